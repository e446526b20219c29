package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-bus/pkg/bus"
)

func TestResolveMessageTypes(t *testing.T) {
	jsonCT, err := bus.ParseContentType("application/json")
	require.NoError(t, err)

	tests := []struct {
		name    string
		props   map[string]any
		ct      *bus.ContentType
		body    string
		want    []string
		wantErr bool
	}{
		{
			name:  "comma separated header",
			props: map[string]any{HeaderMessageType: "urn:a, urn:b,,"},
			ct:    jsonCT,
			want:  []string{"urn:a", "urn:b"},
		},
		{
			name:  "header wins over envelope",
			props: map[string]any{"messagetype": []byte("urn:header")},
			ct:    bus.DefaultContentType,
			body:  `{"messageType":["urn:body"]}`,
			want:  []string{"urn:header"},
		},
		{
			name:  "string slice header",
			props: map[string]any{HeaderMessageType: []string{"urn:a", " "}},
			ct:    jsonCT,
			want:  []string{"urn:a"},
		},
		{
			name:  "any slice header",
			props: map[string]any{HeaderMessageType: []any{"urn:a", "urn:b"}},
			ct:    jsonCT,
			want:  []string{"urn:a", "urn:b"},
		},
		{
			name:    "any slice with non string",
			props:   map[string]any{HeaderMessageType: []any{"urn:a", 1}},
			ct:      jsonCT,
			wantErr: true,
		},
		{
			name: "envelope array",
			ct:   bus.DefaultContentType,
			body: `{"messageType":["urn:a","urn:b"],"message":{}}`,
			want: []string{"urn:a", "urn:b"},
		},
		{
			name: "envelope string",
			ct:   bus.DefaultContentType,
			body: `{"messageType":"urn:a"}`,
			want: []string{"urn:a"},
		},
		{
			name:    "envelope number",
			ct:      bus.DefaultContentType,
			body:    `{"messageType":7}`,
			wantErr: true,
		},
		{
			name: "envelope without type",
			ct:   bus.DefaultContentType,
			body: `{"message":{}}`,
		},
		{
			name: "plain json without header",
			ct:   jsonCT,
			body: `{"messageType":["urn:a"]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveMessageTypes(bus.NewPropertyHeaders(tt.props), tt.ct, []byte(tt.body))
			if tt.wantErr {
				assert.ErrorIs(t, err, bus.ErrMalformedHeader)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
