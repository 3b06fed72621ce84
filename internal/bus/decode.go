package bus

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Kind names the outcome of decoding a telemetry payload.
type Kind int

const (
	// KindUnparseable payloads are dropped without touching state.
	KindUnparseable Kind = iota
	// KindStructured is a JSON object with a boolean power field.
	KindStructured
	// KindText is a bare "on" or "off" token.
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindStructured:
		return "structured"
	case KindText:
		return "text"
	default:
		return "unparseable"
	}
}

// Decoded is the result of Decode. On is meaningful only when Kind is not
// KindUnparseable.
type Decoded struct {
	Kind Kind
	On   bool
}

// structuredPower accepts {"on": true} or {"power": true}; "on" wins if both
// are present.
type structuredPower struct {
	On    *bool `json:"on"`
	Power *bool `json:"power"`
}

// Decode tries the structured form first, then the text token.
func Decode(payload []byte) Decoded {
	if d, ok := decodeStructured(payload); ok {
		return d
	}
	if d, ok := decodeText(payload); ok {
		return d
	}
	return Decoded{Kind: KindUnparseable}
}

func decodeStructured(payload []byte) (Decoded, bool) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Decoded{}, false
	}

	var msg structuredPower
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		return Decoded{}, false
	}
	switch {
	case msg.On != nil:
		return Decoded{Kind: KindStructured, On: *msg.On}, true
	case msg.Power != nil:
		return Decoded{Kind: KindStructured, On: *msg.Power}, true
	default:
		return Decoded{}, false
	}
}

func decodeText(payload []byte) (Decoded, bool) {
	switch strings.ToLower(strings.TrimSpace(string(payload))) {
	case PayloadOn:
		return Decoded{Kind: KindText, On: true}, true
	case PayloadOff:
		return Decoded{Kind: KindText, On: false}, true
	default:
		return Decoded{}, false
	}
}
