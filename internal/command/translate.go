package command

import (
	"errors"
	"fmt"
	"time"
)

// ErrAddressNotWhitelisted is returned by the translator's defensive
// whitelist recheck for raw commands. Validation already enforces the
// whitelist; the translator does not trust that it was the only gate.
var ErrAddressNotWhitelisted = errors.New("raw address not whitelisted")

const jumpReleaseDelay = 100 * time.Millisecond

// Translator maps validated Commands to outbound OSC message sequences.
// It is pure: it produces the sequence and nothing else.
type Translator struct {
	whitelist Whitelist
}

// NewTranslator builds a translator carrying the raw-command whitelist.
func NewTranslator(whitelist Whitelist) *Translator {
	return &Translator{whitelist: whitelist}
}

// Translate returns the outbound messages for cmd. Operations with no OSC
// effect (world launch, captures, device listing) yield an empty sequence.
func (t *Translator) Translate(cmd Command) ([]OutboundMessage, error) {
	switch c := cmd.(type) {
	case SendMessage:
		msgs := []OutboundMessage{
			{Address: "/chatbox/input", Args: []any{c.Text, c.Direct}},
		}
		if c.Notify {
			msgs = append(msgs, OutboundMessage{Address: "/chatbox/notify", Args: []any{true}})
		}
		return msgs, nil

	case SetTyping:
		return []OutboundMessage{
			{Address: "/chatbox/typing", Args: []any{c.Typing}},
		}, nil

	case Move:
		msgs := []OutboundMessage{
			{Address: "/input/Vertical", Args: []any{c.Vertical}},
			{Address: "/input/Horizontal", Args: []any{c.Horizontal}},
		}
		if c.Look != 0 {
			msgs = append(msgs, OutboundMessage{Address: "/input/LookHorizontal", Args: []any{c.Look}})
		}
		// Release the axes after the hold so a single request cannot
		// leave the avatar moving forever.
		msgs = append(msgs,
			OutboundMessage{Address: "/input/Vertical", Args: []any{0.0}, Delay: c.Duration},
			OutboundMessage{Address: "/input/Horizontal", Args: []any{0.0}, Delay: c.Duration},
			OutboundMessage{Address: "/input/LookHorizontal", Args: []any{0.0}, Delay: c.Duration},
		)
		return msgs, nil

	case Jump:
		return []OutboundMessage{
			{Address: "/input/Jump", Args: []any{int64(1)}},
			{Address: "/input/Jump", Args: []any{int64(0)}, Delay: jumpReleaseDelay},
		}, nil

	case SetRun:
		return []OutboundMessage{
			{Address: "/input/Run", Args: []any{boolToInt(c.Running)}},
		}, nil

	case SetVoice:
		return []OutboundMessage{
			{Address: "/input/Voice", Args: []any{boolToInt(c.Unmute)}},
		}, nil

	case SetParameter:
		return []OutboundMessage{
			{Address: "/avatar/parameters/" + c.Name, Args: []any{c.Value}},
		}, nil

	case Raw:
		if !t.whitelist.Allows(c.Address) {
			return nil, fmt.Errorf("%w: %s", ErrAddressNotWhitelisted, c.Address)
		}
		return []OutboundMessage{
			{Address: c.Address, Args: c.Args},
		}, nil

	case LaunchWorld, CaptureScreen, CaptureAudio, TranscribeAudio, ListAudioDevices:
		return nil, nil

	default:
		return nil, fmt.Errorf("no translation for operation %q", cmd.Op())
	}
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
