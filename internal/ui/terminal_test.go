package ui

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldUseColor(t *testing.T) {
	tests := []struct {
		name          string
		noColor       *string
		cliColor      string
		cliColorForce string
		wantColor     bool
	}{
		{
			name:      "NO_COLOR disables color",
			noColor:   strPtr("1"),
			wantColor: false,
		},
		{
			name:      "NO_COLOR empty string value still disables",
			noColor:   strPtr(""),
			wantColor: false,
		},
		{
			name:      "CLICOLOR=0 disables color",
			cliColor:  "0",
			wantColor: false,
		},
		{
			name:          "CLICOLOR_FORCE enables color for a buffer",
			cliColorForce: "1",
			wantColor:     true,
		},
		{
			name:          "NO_COLOR takes precedence over CLICOLOR_FORCE",
			noColor:       strPtr("1"),
			cliColorForce: "1",
			wantColor:     false,
		},
		{
			name:      "buffer is not a terminal",
			wantColor: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("NO_COLOR", "")
			os.Unsetenv("NO_COLOR")
			t.Setenv("CLICOLOR", tt.cliColor)
			t.Setenv("CLICOLOR_FORCE", tt.cliColorForce)
			if tt.noColor != nil {
				t.Setenv("NO_COLOR", *tt.noColor)
			}

			assert.Equal(t, tt.wantColor, ShouldUseColor(&bytes.Buffer{}))
		})
	}
}

func TestConfigurePlain(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	Configure(&bytes.Buffer{})

	assert.Equal(t, "PAY-1", RenderKey("PAY-1"))
	assert.Equal(t, "NEEDS MARKER", RenderSection("needs marker"))
	assert.Equal(t, SeparatorLight, RenderSeparator())
}

func TestTreePrefix(t *testing.T) {
	assert.Equal(t, "├─ ", TreePrefix(nil, false))
	assert.Equal(t, "└─ ", TreePrefix(nil, true))
	assert.Equal(t, "│     └─ ", TreePrefix([]bool{true, false}, true))
}

func strPtr(s string) *string { return &s }
