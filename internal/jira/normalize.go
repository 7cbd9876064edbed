package jira

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mpietro40/jira-initiative-viewer/internal/types"
)

// Normalize converts a raw Jira issue into an IssueRef. names is the
// field-name dictionary used to discover the risk field; when nil, the
// issue's own Names are used. Missing fields get placeholder text.
func Normalize(ji *Issue, names FieldNames) types.IssueRef {
	f := ji.Fields
	ref := types.IssueRef{
		Key:        ji.Key,
		Type:       types.ParseIssueType(issueTypeName(ji)),
		Summary:    f.Summary,
		Status:     types.UnknownValue,
		Assignee:   types.Unassigned,
		ProjectKey: types.UnknownValue,
		FixMarkers: make([]string, 0, len(f.FixVersions)),
	}
	if ref.Summary == "" {
		ref.Summary = types.NoSummary
	}
	if f.Status != nil && f.Status.Name != "" {
		ref.Status = f.Status.Name
	}
	if f.Assignee != nil && f.Assignee.DisplayName != "" {
		ref.Assignee = f.Assignee.DisplayName
	}
	if f.Project != nil && f.Project.Key != "" {
		ref.ProjectKey = f.Project.Key
	}
	for _, v := range f.FixVersions {
		ref.FixMarkers = append(ref.FixMarkers, v.Name)
	}
	if f.Parent != nil {
		ref.ParentKey = f.Parent.Key
	}

	if names == nil {
		names = ji.Names
	}
	if id, _, ok := FindRiskField(names); ok {
		ref.RiskLevel = NormalizeRisk(RiskText(f.Raw[id]))
	}
	return ref
}

func issueTypeName(ji *Issue) string {
	if ji.Fields.IssueType != nil {
		return ji.Fields.IssueType.Name
	}
	return ""
}

// FindRiskField returns the ID of the first field, in document order, whose
// label contains "risk" and either "status" or "probability".
//
// ambiguous is true when more than one field matches. The winning field then
// depends on how the remote instance orders its field dictionary, which
// differs between differently configured instances.
func FindRiskField(names FieldNames) (id string, ambiguous, ok bool) {
	for _, f := range names {
		label := strings.ToLower(f.Name)
		if !strings.Contains(label, "risk") {
			continue
		}
		if !strings.Contains(label, "status") && !strings.Contains(label, "probability") {
			continue
		}
		if ok {
			return id, true, true
		}
		id, ok = f.ID, true
	}
	return id, false, ok
}

// RiskText extracts the display text of a risk field value. Select fields
// arrive as {"value": ...}, multi-selects as arrays (first entry wins), and
// plain fields as strings or numbers.
func RiskText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	return riskValue(v)
}

func riskValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return ""
	case map[string]interface{}:
		if inner, ok := val["value"]; ok {
			return riskValue(inner)
		}
		return ""
	case []interface{}:
		if len(val) == 0 {
			return ""
		}
		return riskValue(val[0])
	}
	return fmt.Sprint(v)
}

// NormalizeRisk maps free-text risk values onto a 1-5 level. Rules are
// checked in order and the first match wins, so text mentioning both
// "committed" and "medium" is level 1.
func NormalizeRisk(text string) types.RiskLevel {
	if strings.TrimSpace(text) == "" {
		return types.RiskNone
	}
	// Values like "A695494(a695494)" are user identifiers that landed in the risk field.
	if strings.Contains(text, "(") && strings.Contains(text, ")") {
		return types.RiskNone
	}

	s := strings.ToLower(text)
	switch {
	case containsAny(s, "green", "no risk", "committed"):
		return types.RiskLow
	case containsAny(s, "yellow", "medium"):
		return types.RiskMedium
	case containsAny(s, "red", "high risk", "can't deliver", "cannot deliver"):
		return types.RiskHigh
	case containsAny(s, "none", "undefined"):
		return types.RiskNone
	}

	if n, err := strconv.Atoi(strings.TrimSpace(text)); err == nil && n >= 1 && n <= 5 {
		return types.RiskLevel(n)
	}
	return types.RiskNone
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
