package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPropertyHeaders_ExactMatchWins(t *testing.T) {
	h := NewPropertyHeaders(map[string]any{
		"Content-Type": "application/json",
		"content-type": "text/plain",
	})

	v, ok := h.TryGetHeader("content-type")
	assert.True(t, ok)
	assert.Equal(t, "text/plain", v)
}

func TestPropertyHeaders_CaseInsensitiveLookupIsStable(t *testing.T) {
	h := NewPropertyHeaders(map[string]any{
		"content-type": "text/plain",
		"CONTENT-TYPE": "application/json",
		"Content-type": "application/xml",
	})

	for i := 0; i < 100; i++ {
		v, ok := h.TryGetHeader("Content-Type")
		assert.True(t, ok)
		assert.Equal(t, "application/json", v)
	}
}

func TestPropertyHeaders_Missing(t *testing.T) {
	v, ok := NewPropertyHeaders(nil).TryGetHeader("Content-Type")
	assert.False(t, ok)
	assert.Nil(t, v)
}
