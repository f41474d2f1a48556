package command

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Stable machine-checkable rejection codes. Clients branch on these, never
// on the human-readable message.
const (
	CodeUnknownOperation = "unknown_operation"
	CodeMissingField     = "missing_field"
	CodeBadType          = "bad_type"
	CodeInvalidUTF8      = "invalid_utf8"
	CodeTextTooLong      = "text_too_long"
	CodeControlChars     = "control_chars"
	CodeDurationRange    = "duration_out_of_range"
	CodeBadParameterName = "bad_parameter_name"
	CodeBadWorldID       = "bad_world_id"
	CodeEmptyAddress     = "empty_address"
	CodeNotWhitelisted   = "address_not_whitelisted"
	CodeBadArgType       = "bad_arg_type"
	CodeQualityRange     = "quality_out_of_range"
)

// Rejection explains why validation refused a request.
type Rejection struct {
	Field   string `json:"field,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (r *Rejection) Error() string {
	if r.Field == "" {
		return r.Code + ": " + r.Message
	}
	return r.Code + " (" + r.Field + "): " + r.Message
}

func reject(field, code, format string, args ...any) (Command, *Rejection) {
	return nil, &Rejection{Field: field, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Limits carries the configured validation ceilings.
type Limits struct {
	MaxMoveSeconds    float64
	MaxCaptureSeconds int
}

const maxMessageRunes = 1000

var (
	parameterNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	worldIDPattern       = regexp.MustCompile(`^wrld_[A-Za-z0-9-]+$`)
)

// Validator maps raw request fields to Commands. It is pure: no I/O, and
// identical inputs always yield identical outputs.
type Validator struct {
	limits    Limits
	whitelist Whitelist
}

// NewValidator builds a validator with the configured limits and raw-command
// whitelist.
func NewValidator(limits Limits, whitelist Whitelist) *Validator {
	if limits.MaxMoveSeconds <= 0 {
		limits.MaxMoveSeconds = 5
	}
	if limits.MaxCaptureSeconds <= 0 || limits.MaxCaptureSeconds > 30 {
		limits.MaxCaptureSeconds = 30
	}
	return &Validator{limits: limits, whitelist: whitelist}
}

// Whitelist returns the raw-command whitelist in use.
func (v *Validator) Whitelist() Whitelist { return v.whitelist }

// Validate dispatches to the per-operation rule set.
func (v *Validator) Validate(op Operation, fields map[string]any) (Command, *Rejection) {
	switch op {
	case OpSendMessage:
		return v.validateSendMessage(fields)
	case OpSetTyping:
		return validateBoolToggle(fields, "typing", func(b bool) Command { return SetTyping{Typing: b} })
	case OpMove:
		return v.validateMove(fields)
	case OpJump:
		return Jump{}, nil
	case OpSetRun:
		return validateBoolToggle(fields, "running", func(b bool) Command { return SetRun{Running: b} })
	case OpSetVoice:
		return validateBoolToggle(fields, "unmute", func(b bool) Command { return SetVoice{Unmute: b} })
	case OpSetParameter:
		return v.validateSetParameter(fields)
	case OpLaunchWorld:
		return v.validateLaunchWorld(fields)
	case OpRaw:
		return v.validateRaw(fields)
	case OpCaptureScreen:
		return v.validateCaptureScreen(fields)
	case OpCaptureAudio:
		return v.validateCaptureAudio(fields)
	case OpTranscribeAudio:
		return v.validateTranscribeAudio(fields)
	case OpListAudioDevices:
		return ListAudioDevices{}, nil
	default:
		return reject("", CodeUnknownOperation, "operation %q is not recognized", op)
	}
}

func (v *Validator) validateSendMessage(fields map[string]any) (Command, *Rejection) {
	text, ok, rej := stringField(fields, "message")
	if rej != nil {
		return nil, rej
	}
	if !ok {
		return reject("message", CodeMissingField, "message is required")
	}
	if !utf8.ValidString(text) {
		return reject("message", CodeInvalidUTF8, "message is not valid UTF-8")
	}
	if utf8.RuneCountInString(text) > maxMessageRunes {
		return reject("message", CodeTextTooLong, "message exceeds %d code points", maxMessageRunes)
	}
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return reject("message", CodeControlChars, "message contains control characters")
		}
	}

	direct, rej := boolField(fields, "direct", true)
	if rej != nil {
		return nil, rej
	}
	notify, rej := boolField(fields, "notify", true)
	if rej != nil {
		return nil, rej
	}
	return SendMessage{Text: text, Direct: direct, Notify: notify}, nil
}

func (v *Validator) validateMove(fields map[string]any) (Command, *Rejection) {
	vertical, rej := motionField(fields, "vertical")
	if rej != nil {
		return nil, rej
	}
	horizontal, rej := motionField(fields, "horizontal")
	if rej != nil {
		return nil, rej
	}
	look, rej := motionField(fields, "look")
	if rej != nil {
		return nil, rej
	}

	// Duration changes how long the avatar keeps moving; silently capping
	// it would change semantics, so out-of-range values are rejected.
	duration := 0.5
	if raw, ok := fields["duration"]; ok {
		f, rej := numericValue("duration", raw)
		if rej != nil {
			return nil, rej
		}
		if f <= 0 || f > v.limits.MaxMoveSeconds {
			return reject("duration", CodeDurationRange, "duration must be in (0, %g] seconds", v.limits.MaxMoveSeconds)
		}
		duration = f
	}

	return Move{
		Vertical:   vertical,
		Horizontal: horizontal,
		Look:       look,
		Duration:   time.Duration(duration * float64(time.Second)),
	}, nil
}

func (v *Validator) validateSetParameter(fields map[string]any) (Command, *Rejection) {
	name, ok, rej := stringField(fields, "name")
	if rej != nil {
		return nil, rej
	}
	if !ok || name == "" {
		return reject("name", CodeMissingField, "name is required")
	}
	if !parameterNamePattern.MatchString(name) {
		return reject("name", CodeBadParameterName, "name must match [A-Za-z0-9_]+")
	}
	raw, ok := fields["value"]
	if !ok {
		return reject("value", CodeMissingField, "value is required")
	}
	value, rej := numericValue("value", raw)
	if rej != nil {
		return nil, rej
	}
	return SetParameter{Name: name, Value: clamp(value)}, nil
}

func (v *Validator) validateLaunchWorld(fields map[string]any) (Command, *Rejection) {
	worldID, _, rej := stringField(fields, "world_id")
	if rej != nil {
		return nil, rej
	}
	if worldID == "" {
		url, _, rej := stringField(fields, "url")
		if rej != nil {
			return nil, rej
		}
		worldID = worldIDFromURL(url)
	}
	if worldID == "" {
		return reject("world_id", CodeMissingField, "provide world_id or a vrchat.com world url")
	}
	if !worldIDPattern.MatchString(worldID) {
		return reject("world_id", CodeBadWorldID, "world_id must match wrld_[A-Za-z0-9-]+")
	}
	return LaunchWorld{WorldID: worldID}, nil
}

func (v *Validator) validateRaw(fields map[string]any) (Command, *Rejection) {
	address, _, rej := stringField(fields, "address")
	if rej != nil {
		return nil, rej
	}
	if address == "" {
		return reject("address", CodeEmptyAddress, "address is required")
	}
	if !strings.HasPrefix(address, "/") {
		return reject("address", CodeNotWhitelisted, "address must start with /")
	}
	if !v.whitelist.Allows(address) {
		return reject("address", CodeNotWhitelisted, "address %q is outside the whitelist", address)
	}

	var args []any
	if raw, ok := fields["args"]; ok {
		list, ok := raw.([]any)
		if !ok {
			return reject("args", CodeBadType, "args must be an array")
		}
		args = make([]any, 0, len(list))
		for i, item := range list {
			arg, rej := primitiveArg(fmt.Sprintf("args[%d]", i), item)
			if rej != nil {
				return nil, rej
			}
			args = append(args, arg)
		}
	}
	return Raw{Address: address, Args: args}, nil
}

func (v *Validator) validateCaptureScreen(fields map[string]any) (Command, *Rejection) {
	quality := 70
	if raw, ok := fields["quality"]; ok {
		n, rej := integerValue("quality", raw)
		if rej != nil {
			return nil, rej
		}
		if n < 1 || n > 100 {
			return reject("quality", CodeQualityRange, "quality must be in [1, 100]")
		}
		quality = int(n)
	}
	return CaptureScreen{Quality: quality}, nil
}

func (v *Validator) validateCaptureAudio(fields map[string]any) (Command, *Rejection) {
	duration, device, rej := v.captureCommon(fields)
	if rej != nil {
		return nil, rej
	}
	format := "wav"
	if raw, ok := fields["format"]; ok {
		s, ok := raw.(string)
		if !ok {
			return reject("format", CodeBadType, "format must be a string")
		}
		switch s {
		case "wav", "opus":
			format = s
		default:
			return reject("format", CodeBadType, "format must be wav or opus")
		}
	}
	return CaptureAudio{Duration: duration, Device: device, Format: format}, nil
}

func (v *Validator) validateTranscribeAudio(fields map[string]any) (Command, *Rejection) {
	duration, device, rej := v.captureCommon(fields)
	if rej != nil {
		return nil, rej
	}
	language, _, rej2 := stringField(fields, "language")
	if rej2 != nil {
		return nil, rej2
	}
	return TranscribeAudio{Duration: duration, Device: device, Language: language}, nil
}

// captureCommon enforces the hard capture ceiling. Capture cost is real, so
// out-of-range durations are rejected rather than clamped.
func (v *Validator) captureCommon(fields map[string]any) (time.Duration, string, *Rejection) {
	raw, ok := fields["duration"]
	if !ok {
		_, rej := reject("duration", CodeMissingField, "duration is required")
		return 0, "", rej
	}
	n, rej := integerValue("duration", raw)
	if rej != nil {
		return 0, "", rej
	}
	if n < 1 || int(n) > v.limits.MaxCaptureSeconds {
		_, rej := reject("duration", CodeDurationRange, "duration must be in [1, %d] seconds", v.limits.MaxCaptureSeconds)
		return 0, "", rej
	}
	device, _, rej2 := stringField(fields, "device")
	if rej2 != nil {
		return 0, "", rej2
	}
	return time.Duration(n) * time.Second, device, nil
}

func validateBoolToggle(fields map[string]any, name string, build func(bool) Command) (Command, *Rejection) {
	value, rej := boolField(fields, name, true)
	if rej != nil {
		return nil, rej
	}
	return build(value), nil
}

// worldIDFromURL extracts a wrld_ token from a vrchat.com world URL.
func worldIDFromURL(url string) string {
	if !strings.HasPrefix(url, "https://vrchat.com/home/world/") {
		return ""
	}
	for _, part := range strings.Split(url, "/") {
		if strings.HasPrefix(part, "wrld_") {
			return part
		}
	}
	return ""
}

func clamp(f float64) float64 {
	if f > 1.0 {
		return 1.0
	}
	if f < -1.0 {
		return -1.0
	}
	return f
}

// motionField clamps rather than rejects: motion is approximate and a
// clamped value preserves intent.
func motionField(fields map[string]any, name string) (float64, *Rejection) {
	raw, ok := fields[name]
	if !ok {
		return 0, nil
	}
	f, rej := numericValue(name, raw)
	if rej != nil {
		return 0, rej
	}
	return clamp(f), nil
}

func stringField(fields map[string]any, name string) (string, bool, *Rejection) {
	raw, ok := fields[name]
	if !ok {
		return "", false, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", false, &Rejection{Field: name, Code: CodeBadType, Message: name + " must be a string"}
	}
	return s, true, nil
}

func boolField(fields map[string]any, name string, fallback bool) (bool, *Rejection) {
	raw, ok := fields[name]
	if !ok {
		return fallback, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return false, &Rejection{Field: name, Code: CodeBadType, Message: name + " must be a boolean"}
	}
	return b, nil
}

func numericValue(name string, raw any) (float64, *Rejection) {
	switch v := raw.(type) {
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, &Rejection{Field: name, Code: CodeBadType, Message: name + " must be a number"}
		}
		return f, nil
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, &Rejection{Field: name, Code: CodeBadType, Message: name + " must be a number"}
	}
}

func integerValue(name string, raw any) (int64, *Rejection) {
	switch v := raw.(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, &Rejection{Field: name, Code: CodeBadType, Message: name + " must be an integer"}
		}
		return n, nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v != float64(int64(v)) {
			return 0, &Rejection{Field: name, Code: CodeBadType, Message: name + " must be an integer"}
		}
		return int64(v), nil
	default:
		return 0, &Rejection{Field: name, Code: CodeBadType, Message: name + " must be an integer"}
	}
}

// primitiveArg admits only string, bool, integer and float values.
func primitiveArg(name string, raw any) (any, *Rejection) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case bool:
		return v, nil
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, &Rejection{Field: name, Code: CodeBadArgType, Message: name + " must be a primitive value"}
		}
		return f, nil
	case float64:
		return v, nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	default:
		return nil, &Rejection{Field: name, Code: CodeBadArgType, Message: name + " must be string, bool, int or float"}
	}
}
