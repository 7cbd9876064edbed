package types

// InitiativeNode is the root of a display hierarchy.
type InitiativeNode struct {
	Issue    IssueRef       `json:"issue" yaml:"issue"`
	Features []*FeatureNode `json:"features" yaml:"features"`
}

// FeatureNode is a Feature and its Sub-Features in discovery order.
type FeatureNode struct {
	Issue       IssueRef          `json:"issue" yaml:"issue"`
	SubFeatures []*SubFeatureNode `json:"sub_features" yaml:"sub_features"`

	// Set only by the backward trace.
	HasActiveWork bool `json:"has_active_work,omitempty" yaml:"has_active_work,omitempty"`
	NeedsMarker   bool `json:"needs_marker,omitempty" yaml:"needs_marker,omitempty"`
}

// SubFeatureNode is a Sub-Feature with its Epics grouped by owning area.
// Areas lists the keys of EpicsByArea in the order they were first seen.
type SubFeatureNode struct {
	Issue       IssueRef               `json:"issue" yaml:"issue"`
	Areas       []string               `json:"areas" yaml:"areas"`
	EpicsByArea map[string][]*EpicNode `json:"epics_by_area" yaml:"epics_by_area"`

	// Set only by the backward trace.
	HasActiveWork bool `json:"has_active_work,omitempty" yaml:"has_active_work,omitempty"`
	NeedsMarker   bool `json:"needs_marker,omitempty" yaml:"needs_marker,omitempty"`
}

// EpicNode is a leaf of the display hierarchy.
type EpicNode struct {
	Issue         IssueRef `json:"issue" yaml:"issue"`
	HasActiveWork bool     `json:"has_active_work,omitempty" yaml:"has_active_work,omitempty"`
}

// NewInitiativeNode returns a node with an empty (non-nil) feature list.
func NewInitiativeNode(issue IssueRef) *InitiativeNode {
	return &InitiativeNode{Issue: issue, Features: []*FeatureNode{}}
}

// NewFeatureNode returns a node with an empty (non-nil) sub-feature list.
func NewFeatureNode(issue IssueRef) *FeatureNode {
	return &FeatureNode{Issue: issue, SubFeatures: []*SubFeatureNode{}}
}

// NewSubFeatureNode returns a node with an empty (non-nil) epic map.
func NewSubFeatureNode(issue IssueRef) *SubFeatureNode {
	return &SubFeatureNode{
		Issue:       issue,
		Areas:       []string{},
		EpicsByArea: map[string][]*EpicNode{},
	}
}

// AddFeature appends f unless a feature with the same key is already present.
func (n *InitiativeNode) AddFeature(f *FeatureNode) bool {
	for _, existing := range n.Features {
		if existing.Issue.Key == f.Issue.Key {
			return false
		}
	}
	n.Features = append(n.Features, f)
	return true
}

// AddSubFeature appends sf unless a sub-feature with the same key is already present.
func (n *FeatureNode) AddSubFeature(sf *SubFeatureNode) bool {
	for _, existing := range n.SubFeatures {
		if existing.Issue.Key == sf.Issue.Key {
			return false
		}
	}
	n.SubFeatures = append(n.SubFeatures, sf)
	return true
}

// AddEpic files e under its owning area unless an epic with the same key is
// already present in any area.
func (n *SubFeatureNode) AddEpic(e *EpicNode) bool {
	for _, epics := range n.EpicsByArea {
		for _, existing := range epics {
			if existing.Issue.Key == e.Issue.Key {
				return false
			}
		}
	}
	area := e.Issue.Area()
	if _, ok := n.EpicsByArea[area]; !ok {
		n.Areas = append(n.Areas, area)
	}
	n.EpicsByArea[area] = append(n.EpicsByArea[area], e)
	return true
}

// EpicCount returns the number of epics across all areas.
func (n *SubFeatureNode) EpicCount() int {
	total := 0
	for _, epics := range n.EpicsByArea {
		total += len(epics)
	}
	return total
}

// ActiveLeaf is a Story/Task/Subtask scheduled in a currently open iteration.
type ActiveLeaf struct {
	Key     string `json:"key" yaml:"key"`
	Summary string `json:"summary" yaml:"summary"`
	EpicKey string `json:"epic_key" yaml:"epic_key"`
}

// TraceStage names the step of the backward trace at which a failure occurred.
type TraceStage string

// Trace stages that can fail for a single Epic
const (
	StageEpicParent       TraceStage = "epic-parent"
	StageSubFeatureParent TraceStage = "sub-feature-parent"
	// StageDetails means the ancestor was found but its fields could not be
	// read, so its marker is unknown.
	StageDetails TraceStage = "details"
)

// TraceFailure records why one Epic's ancestry could not be (fully) resolved.
type TraceFailure struct {
	EpicKey string     `json:"epic_key" yaml:"epic_key"`
	Key     string     `json:"key" yaml:"key"` // the issue whose lookup failed
	Stage   TraceStage `json:"stage" yaml:"stage"`
	Reason  string     `json:"reason" yaml:"reason"`
}

// TraceSummary holds the end-of-run counters of a backward trace.
type TraceSummary struct {
	TotalFeatures             int `json:"total_features" yaml:"total_features"`
	TotalSubFeatures          int `json:"total_sub_features" yaml:"total_sub_features"`
	FeaturesWithActiveWork    int `json:"features_with_active_work" yaml:"features_with_active_work"`
	SubFeaturesWithActiveWork int `json:"sub_features_with_active_work" yaml:"sub_features_with_active_work"`
	EpicsWithActiveWork       int `json:"epics_with_active_work" yaml:"epics_with_active_work"`
	ActiveLeaves              int `json:"active_leaves" yaml:"active_leaves"`
	TracesSucceeded           int `json:"traces_succeeded" yaml:"traces_succeeded"`
	TracesFailed              int `json:"traces_failed" yaml:"traces_failed"`
}

// TraceResult is the aggregate output of a backward trace.
type TraceResult struct {
	ReleaseMarker string `json:"release_marker" yaml:"release_marker"`

	// Seed truncation
	Limited       bool `json:"limited" yaml:"limited"`
	OriginalCount int  `json:"original_count" yaml:"original_count"`

	ActiveLeaves        []ActiveLeaf    `json:"active_leaves" yaml:"active_leaves"`
	EpicsWithActiveWork map[string]bool `json:"epics_with_active_work" yaml:"epics_with_active_work"`

	SubFeaturesNeedingMarker map[string]IssueRef `json:"sub_features_needing_marker" yaml:"sub_features_needing_marker"`
	SubFeaturesAlreadyMarked map[string]IssueRef `json:"sub_features_already_marked" yaml:"sub_features_already_marked"`
	FeaturesNeedingMarker    map[string]IssueRef `json:"features_needing_marker" yaml:"features_needing_marker"`
	FeaturesAlreadyMarked    map[string]IssueRef `json:"features_already_marked" yaml:"features_already_marked"`

	Failures    []TraceFailure    `json:"failures" yaml:"failures"`
	Initiatives []*InitiativeNode `json:"initiatives" yaml:"initiatives"`
	Summary     TraceSummary      `json:"summary" yaml:"summary"`
}

// NewTraceResult returns a result with every collection initialized.
func NewTraceResult(marker string) *TraceResult {
	return &TraceResult{
		ReleaseMarker:            marker,
		ActiveLeaves:             []ActiveLeaf{},
		EpicsWithActiveWork:      map[string]bool{},
		SubFeaturesNeedingMarker: map[string]IssueRef{},
		SubFeaturesAlreadyMarked: map[string]IssueRef{},
		FeaturesNeedingMarker:    map[string]IssueRef{},
		FeaturesAlreadyMarked:    map[string]IssueRef{},
		Failures:                 []TraceFailure{},
		Initiatives:              []*InitiativeNode{},
	}
}
