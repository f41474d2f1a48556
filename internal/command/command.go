// Package command defines the closed set of bridge operations, the validated
// Command variants, and their translation into outbound OSC messages.
package command

import "time"

// Operation identifies one request-style operation.
type Operation string

const (
	OpSendMessage      Operation = "send-message"
	OpSetTyping        Operation = "set-typing"
	OpMove             Operation = "move"
	OpJump             Operation = "jump"
	OpSetRun           Operation = "set-run"
	OpSetVoice         Operation = "set-voice"
	OpSetParameter     Operation = "set-parameter"
	OpLaunchWorld      Operation = "launch-world"
	OpRaw              Operation = "raw-command"
	OpCaptureScreen    Operation = "capture-screen"
	OpCaptureAudio     Operation = "capture-audio"
	OpTranscribeAudio  Operation = "transcribe-audio"
	OpListAudioDevices Operation = "list-audio-devices"
)

// Category groups operations sharing a quota configuration.
func (o Operation) Category() string {
	switch o {
	case OpSendMessage, OpSetTyping:
		return "chat"
	case OpMove, OpJump, OpSetRun, OpSetVoice:
		return "motion"
	case OpSetParameter:
		return "avatar"
	case OpLaunchWorld:
		return "world"
	case OpRaw:
		return "raw"
	case OpCaptureScreen, OpCaptureAudio, OpTranscribeAudio:
		return "capture"
	default:
		return "info"
	}
}

// Command is a validated request. Values are only constructed by Validate;
// the translator and capture coordinator never see unvalidated input.
type Command interface {
	Op() Operation
}

// SendMessage posts text to the chatbox.
type SendMessage struct {
	Text   string
	Direct bool
	Notify bool
}

// SetTyping toggles the chatbox typing indicator.
type SetTyping struct {
	Typing bool
}

// Move drives avatar motion axes for a bounded hold duration.
type Move struct {
	Vertical   float64
	Horizontal float64
	Look       float64
	Duration   time.Duration
}

// Jump presses and releases the jump input.
type Jump struct{}

// SetRun toggles the run input.
type SetRun struct {
	Running bool
}

// SetVoice toggles the voice (unmute) input.
type SetVoice struct {
	Unmute bool
}

// SetParameter sets one avatar parameter.
type SetParameter struct {
	Name  string
	Value float64
}

// LaunchWorld asks the local launcher to join a world.
type LaunchWorld struct {
	WorldID string
}

// Raw carries a whitelist-checked caller-supplied OSC message.
type Raw struct {
	Address string
	Args    []any
}

// CaptureScreen grabs the primary display as JPEG.
type CaptureScreen struct {
	Quality int
}

// CaptureAudio records from the capture device for Duration seconds.
type CaptureAudio struct {
	Duration time.Duration
	Device   string
	Format   string
}

// TranscribeAudio records and then transcribes.
type TranscribeAudio struct {
	Duration time.Duration
	Device   string
	Language string
}

// ListAudioDevices enumerates capture devices.
type ListAudioDevices struct{}

func (SendMessage) Op() Operation      { return OpSendMessage }
func (SetTyping) Op() Operation        { return OpSetTyping }
func (Move) Op() Operation             { return OpMove }
func (Jump) Op() Operation             { return OpJump }
func (SetRun) Op() Operation           { return OpSetRun }
func (SetVoice) Op() Operation         { return OpSetVoice }
func (SetParameter) Op() Operation     { return OpSetParameter }
func (LaunchWorld) Op() Operation      { return OpLaunchWorld }
func (Raw) Op() Operation              { return OpRaw }
func (CaptureScreen) Op() Operation    { return OpCaptureScreen }
func (CaptureAudio) Op() Operation     { return OpCaptureAudio }
func (TranscribeAudio) Op() Operation  { return OpTranscribeAudio }
func (ListAudioDevices) Op() Operation { return OpListAudioDevices }

// OutboundMessage is one OSC message to deliver. Delay > 0 means the sender
// schedules it after the preceding immediate messages, still fire-and-forget.
type OutboundMessage struct {
	Address string
	Args    []any
	Delay   time.Duration
}
