package bus

import "strings"

// Headers provides read-only lookup over a transport's native property bag.
type Headers interface {
	TryGetHeader(name string) (any, bool)
}

// PropertyHeaders adapts a native property mapping to Headers.
type PropertyHeaders struct {
	props map[string]any
}

// NewPropertyHeaders wraps props. A nil map behaves as an empty one.
func NewPropertyHeaders(props map[string]any) *PropertyHeaders {
	return &PropertyHeaders{props: props}
}

// TryGetHeader returns the value stored under name. An exact key match wins;
// otherwise keys are compared case-insensitively and, when several keys
// differ only in case, the lexically smallest one is used.
func (h *PropertyHeaders) TryGetHeader(name string) (any, bool) {
	if v, ok := h.props[name]; ok {
		return v, true
	}
	var (
		match string
		value any
		found bool
	)
	for k, v := range h.props {
		if strings.EqualFold(k, name) && (!found || k < match) {
			match, value, found = k, v, true
		}
	}
	return value, found
}
