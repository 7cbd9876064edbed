// Package ui provides terminal styling for initview text output.
// Uses the Ayu color theme with adaptive light/dark mode support.
package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Ayu theme color palette
// Dark: https://terminalcolors.com/themes/ayu/dark/
// Light: https://terminalcolors.com/themes/ayu/light/
var (
	ColorPass = lipgloss.AdaptiveColor{
		Light: "#86b300", // ayu light bright green
		Dark:  "#c2d94c", // ayu dark bright green
	}
	ColorWarn = lipgloss.AdaptiveColor{
		Light: "#f2ae49", // ayu light bright yellow
		Dark:  "#ffb454", // ayu dark bright yellow
	}
	ColorFail = lipgloss.AdaptiveColor{
		Light: "#f07171", // ayu light bright red
		Dark:  "#f07178", // ayu dark bright red
	}
	ColorMuted = lipgloss.AdaptiveColor{
		Light: "#828c99", // ayu light muted
		Dark:  "#6c7680", // ayu dark muted
	}
	ColorAccent = lipgloss.AdaptiveColor{
		Light: "#399ee6", // ayu light bright blue
		Dark:  "#59c2ff", // ayu dark bright blue
	}
)

var (
	ActiveStyle  = lipgloss.NewStyle().Foreground(ColorPass)
	NeedsStyle   = lipgloss.NewStyle().Foreground(ColorWarn).Bold(true)
	FailStyle    = lipgloss.NewStyle().Foreground(ColorFail)
	MutedStyle   = lipgloss.NewStyle().Foreground(ColorMuted)
	KeyStyle     = lipgloss.NewStyle().Foreground(ColorAccent).Bold(true)
	SectionStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
)

// Tree characters for hierarchical display
const (
	TreeBranch = "├─ "
	TreeLast   = "└─ "
	TreePipe   = "│  "
	TreeSpace  = "   "
)

// SeparatorLight is drawn between report sections.
const SeparatorLight = "──────────────────────────────────────────"

// RenderKey renders an issue key.
func RenderKey(s string) string {
	return KeyStyle.Render(s)
}

// RenderActive marks items with work in an open sprint.
func RenderActive(s string) string {
	return ActiveStyle.Render(s)
}

// RenderNeeds marks items missing the release marker.
func RenderNeeds(s string) string {
	return NeedsStyle.Render(s)
}

// RenderFail renders text with fail (red) styling
func RenderFail(s string) string {
	return FailStyle.Render(s)
}

// RenderMuted renders text with muted (gray) styling
func RenderMuted(s string) string {
	return MutedStyle.Render(s)
}

// RenderSection renders a section header in uppercase with accent color
func RenderSection(s string) string {
	return SectionStyle.Render(strings.ToUpper(s))
}

// RenderSeparator renders the light separator line in muted color
func RenderSeparator() string {
	return MutedStyle.Render(SeparatorLight)
}

// TreePrefix returns the connector for a node at the given depth. open
// reports, for each ancestor level, whether more siblings follow; last
// reports whether the node itself is the final child.
func TreePrefix(open []bool, last bool) string {
	var b strings.Builder
	for _, more := range open {
		if more {
			b.WriteString(TreePipe)
		} else {
			b.WriteString(TreeSpace)
		}
	}
	if last {
		b.WriteString(TreeLast)
	} else {
		b.WriteString(TreeBranch)
	}
	return b.String()
}
