// Package types defines the work-item records produced by the retrieval engine.
//
// Every record is a point-in-time snapshot of the remote tracker. Records are
// built once per request and never mutated after construction.
package types

import (
	"strings"
)

// IssueType categorizes a remote work item by hierarchy level.
type IssueType string

// Issue type constants
const (
	TypeInitiative IssueType = "Initiative"
	TypeFeature    IssueType = "Feature"
	TypeSubFeature IssueType = "Sub-Feature"
	TypeEpic       IssueType = "Epic"
	TypeStory      IssueType = "Story"
	TypeTask       IssueType = "Task"
	TypeSubtask    IssueType = "Subtask"
	TypeOther      IssueType = "Other"
)

// ParseIssueType maps a tracker issue-type name onto an IssueType.
// Names the hierarchy does not know about map to TypeOther.
func ParseIssueType(name string) IssueType {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "initiative", "business initiative":
		return TypeInitiative
	case "feature":
		return TypeFeature
	case "sub-feature", "subfeature", "sub feature":
		return TypeSubFeature
	case "epic":
		return TypeEpic
	case "story":
		return TypeStory
	case "task":
		return TypeTask
	case "subtask", "sub-task":
		return TypeSubtask
	}
	return TypeOther
}

// IsLeaf reports whether t is a Story/Task/Subtask level item.
func (t IssueType) IsLeaf() bool {
	return t == TypeStory || t == TypeTask || t == TypeSubtask
}

// RiskLevel is a normalized risk classification from 1 (green) to 5 (red).
// The zero value means no risk level is known.
type RiskLevel int

// Risk levels produced by normalization
const (
	RiskNone   RiskLevel = 0
	RiskLow    RiskLevel = 1
	RiskMedium RiskLevel = 3
	RiskHigh   RiskLevel = 5
)

// Known reports whether r carries a level in the 1-5 range.
func (r RiskLevel) Known() bool {
	return r >= 1 && r <= 5
}

// Placeholder values used when a field could not be resolved.
const (
	Unassigned     = "Unassigned"
	UnknownValue   = "Unknown"
	NoSummary      = "No summary"
	DetailsMissing = "Error fetching details"
)

// DefaultCompletedStatuses are the status names treated as finished work.
var DefaultCompletedStatuses = []string{"done", "closed", "resolved", "completed", "prod deployed"}

// IssueRef is a normalized snapshot of one remote work item.
type IssueRef struct {
	Key        string    `json:"key" yaml:"key"`
	Type       IssueType `json:"type" yaml:"type"`
	Summary    string    `json:"summary" yaml:"summary"`
	Status     string    `json:"status" yaml:"status"`
	Assignee   string    `json:"assignee" yaml:"assignee"`
	ProjectKey string    `json:"project_key" yaml:"project_key"`
	FixMarkers []string  `json:"fix_markers" yaml:"fix_markers"`
	ParentKey  string    `json:"parent_key,omitempty" yaml:"parent_key,omitempty"`
	RiskLevel  RiskLevel `json:"risk_level,omitempty" yaml:"risk_level,omitempty"`
	// Placeholder is set when the record stands in for an issue whose details could not be fetched.
	Placeholder bool `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
}

// PlaceholderIssue returns the stand-in record used when key's details are unavailable.
func PlaceholderIssue(key string) IssueRef {
	return IssueRef{
		Key:         key,
		Type:        TypeOther,
		Summary:     DetailsMissing,
		Status:      UnknownValue,
		Assignee:    UnknownValue,
		ProjectKey:  UnknownValue,
		FixMarkers:  []string{},
		Placeholder: true,
	}
}

// HasFixMarker reports whether the issue carries the named release marker.
// Surrounding whitespace is ignored on both sides.
func (i IssueRef) HasFixMarker(marker string) bool {
	want := strings.TrimSpace(marker)
	if want == "" {
		return false
	}
	for _, m := range i.FixMarkers {
		if strings.TrimSpace(m) == want {
			return true
		}
	}
	return false
}

// IsCompleted reports whether the issue status is one of statuses (case-insensitive).
// A nil statuses list falls back to DefaultCompletedStatuses.
func (i IssueRef) IsCompleted(statuses []string) bool {
	if statuses == nil {
		statuses = DefaultCompletedStatuses
	}
	status := strings.ToLower(strings.TrimSpace(i.Status))
	for _, s := range statuses {
		if status == strings.ToLower(strings.TrimSpace(s)) {
			return true
		}
	}
	return false
}

// Area returns the owning area used to group Epics.
func (i IssueRef) Area() string {
	if i.ProjectKey == "" {
		return UnknownValue
	}
	return i.ProjectKey
}
