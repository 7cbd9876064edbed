package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mpietro40/jira-initiative-viewer/internal/types"
	"github.com/mpietro40/jira-initiative-viewer/internal/ui"
)

// encode writes v as JSON or YAML. It returns false for text output, which
// each command renders itself.
func encode(w io.Writer, format string, v interface{}) (bool, error) {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	}
	return false, nil
}

func issueLine(ref types.IssueRef) string {
	var b strings.Builder
	b.WriteString(ui.RenderKey(ref.Key))
	b.WriteString(" ")
	b.WriteString(ui.RenderMuted("[" + ref.Status + "]"))
	b.WriteString(" ")
	b.WriteString(ref.Summary)
	if ref.Assignee != types.Unassigned && ref.Assignee != types.UnknownValue && ref.Assignee != "" {
		fmt.Fprintf(&b, " (%s)", ref.Assignee)
	}
	if ref.RiskLevel.Known() {
		fmt.Fprintf(&b, " risk=%d", ref.RiskLevel)
	}
	return b.String()
}

// outline is one printable tree node.
type outline struct {
	text string
	kids []outline
}

func (o outline) print(w io.Writer, open []bool, last bool) {
	fmt.Fprintf(w, "%s%s\n", ui.TreePrefix(open, last), o.text)
	for i, k := range o.kids {
		k.print(w, append(open[:len(open):len(open)], !last), i == len(o.kids)-1)
	}
}

// renderTree prints roots as a tree. Epics are listed under their area in
// discovery order.
func renderTree(w io.Writer, roots []*types.InitiativeNode, marker string) {
	for _, in := range roots {
		fmt.Fprintln(w, issueLine(in.Issue))
		for i, f := range in.Features {
			featureOutline(f, marker).print(w, nil, i == len(in.Features)-1)
		}
	}
}

func featureOutline(f *types.FeatureNode, marker string) outline {
	o := outline{text: issueLine(f.Issue) + flags(f.HasActiveWork, f.NeedsMarker, marker)}
	for _, sf := range f.SubFeatures {
		so := outline{text: issueLine(sf.Issue) + flags(sf.HasActiveWork, sf.NeedsMarker, marker)}
		for _, area := range sf.Areas {
			ao := outline{text: ui.RenderMuted(area)}
			for _, e := range sf.EpicsByArea[area] {
				text := issueLine(e.Issue)
				if e.HasActiveWork {
					text += "  " + ui.RenderActive("active")
				}
				ao.kids = append(ao.kids, outline{text: text})
			}
			so.kids = append(so.kids, ao)
		}
		o.kids = append(o.kids, so)
	}
	return o
}

func flags(active, needs bool, marker string) string {
	var parts []string
	if active {
		parts = append(parts, ui.RenderActive("active"))
	}
	if needs {
		parts = append(parts, ui.RenderNeeds("needs "+marker))
	}
	if len(parts) == 0 {
		return ""
	}
	return "  " + strings.Join(parts, ", ")
}

func sortedRefs(m map[string]types.IssueRef) []types.IssueRef {
	out := make([]types.IssueRef, 0, len(m))
	for _, ref := range m {
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
