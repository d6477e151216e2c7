package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeServerURL(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", "ws://localhost:7880"},
		{"wss://localhost:7880", "ws://localhost:7880"},
		{"wss://media.example.com", "wss://media.example.com"},
		{" ws://10.0.0.2:7880 ", "ws://10.0.0.2:7880"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeServerURL(tt.in), tt.in)
	}
}
