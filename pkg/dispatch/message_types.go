package dispatch

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"go-bus/pkg/bus"
)

// HeaderMessageType carries the declared message type(s) of a message.
const HeaderMessageType = "MessageType"

// envelopeMessageTypePath lists the message types inside a bus envelope.
const envelopeMessageTypePath = "messageType"

// resolveMessageTypes returns the declared types of a message. The
// MessageType header wins; envelope bodies fall back to their messageType field.
func resolveMessageTypes(h bus.Headers, ct *bus.ContentType, raw []byte) ([]string, error) {
	if v, ok := h.TryGetHeader(HeaderMessageType); ok {
		return parseMessageTypeHeader(v)
	}

	if !ct.IsEnvelope() {
		return nil, nil
	}

	r := gjson.GetBytes(raw, envelopeMessageTypePath)
	switch {
	case !r.Exists():
		return nil, nil
	case r.IsArray():
		var types []string
		for _, item := range r.Array() {
			if item.Type != gjson.String {
				return nil, fmt.Errorf("%w: envelope messageType entry %s", bus.ErrMalformedHeader, item.Raw)
			}
			types = appendType(types, item.String())
		}
		return types, nil
	case r.Type == gjson.String:
		return appendType(nil, r.String()), nil
	default:
		return nil, fmt.Errorf("%w: envelope messageType %s", bus.ErrMalformedHeader, r.Raw)
	}
}

func parseMessageTypeHeader(v any) ([]string, error) {
	var types []string
	switch t := v.(type) {
	case string:
		for _, part := range strings.Split(t, ",") {
			types = appendType(types, part)
		}
	case []byte:
		return parseMessageTypeHeader(string(t))
	case []string:
		for _, part := range t {
			types = appendType(types, part)
		}
	case []any:
		for _, part := range t {
			s, ok := part.(string)
			if !ok {
				return nil, fmt.Errorf("%w: message type entry of kind %T", bus.ErrMalformedHeader, part)
			}
			types = appendType(types, s)
		}
	default:
		return nil, fmt.Errorf("%w: message type of kind %T", bus.ErrMalformedHeader, v)
	}
	return types, nil
}

func appendType(types []string, t string) []string {
	if t = strings.TrimSpace(t); t != "" {
		types = append(types, t)
	}
	return types
}
