package server

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/justapithecus/deltaview/deltaview"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", deltaview.ErrNotFound, http.StatusNotFound},
		{"invalid key", deltaview.ErrInvalidKey, http.StatusBadRequest},
		{"unknown format", deltaview.ErrUnknownFormat, http.StatusBadRequest},
		{"invalid limits", deltaview.ErrInvalidLimits, http.StatusBadRequest},
		{"decode", &deltaview.DecodeError{Format: deltaview.FormatAvro, Reason: "bad"}, http.StatusUnprocessableEntity},
		{"decode wrapping not found", &deltaview.DecodeError{Format: deltaview.FormatDelta, Err: deltaview.ErrNotFound}, http.StatusUnprocessableEntity},
		{"transport", assert.AnError, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestCell(t *testing.T) {
	row := deltaview.Row{"s": "text", "n": 42, "null": nil}
	assert.Equal(t, "text", cell(row, "s"))
	assert.Equal(t, "42", cell(row, "n"))
	assert.Equal(t, "", cell(row, "null"))
	assert.Equal(t, "", cell(row, "absent"))
}

func TestHumanSize(t *testing.T) {
	assert.Equal(t, "0 B", humanSize(0))
	assert.Equal(t, "1023 B", humanSize(1023))
	assert.Equal(t, "1.0 KiB", humanSize(1024))
	assert.Equal(t, "1.5 MiB", humanSize(3<<19))
}
