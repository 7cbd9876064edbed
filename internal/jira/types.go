// Package jira provides the retrieval client, wire types, and normalization
// for the Jira REST search and issue endpoints.
package jira

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Issue represents a Jira issue from the REST API.
type Issue struct {
	ID     string      `json:"id"`
	Key    string      `json:"key"`
	Self   string      `json:"self"`
	Fields IssueFields `json:"fields"`

	// Names maps field IDs to labels; present on single-issue responses
	// requested with expand=names.
	Names FieldNames `json:"names,omitempty"`
}

// IssueFields contains the fields of a Jira issue. Raw keeps every field as
// returned so that custom fields (risk status) can be looked up by ID.
type IssueFields struct {
	Summary     string          `json:"summary"`
	Status      *StatusField    `json:"status"`
	IssueType   *IssueTypeField `json:"issuetype"`
	Project     *ProjectField   `json:"project"`
	Assignee    *UserField      `json:"assignee"`
	FixVersions []VersionField  `json:"fixVersions"`
	Parent      *ParentField    `json:"parent"`

	Raw map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the known fields and keeps the full field map in Raw.
func (f *IssueFields) UnmarshalJSON(data []byte) error {
	type plain IssueFields
	var known plain
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*f = IssueFields(known)
	f.Raw = raw
	return nil
}

// StatusField represents a Jira issue status.
type StatusField struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// IssueTypeField represents a Jira issue type.
type IssueTypeField struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subtask bool   `json:"subtask"`
}

// ProjectField represents a Jira project.
type ProjectField struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

// UserField represents a Jira user.
type UserField struct {
	AccountID   string `json:"accountId"`
	DisplayName string `json:"displayName"`
	Name        string `json:"name"` // Server/DC only
}

// VersionField represents a fix version (release marker).
type VersionField struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ParentField is the structural parent link embedded in an issue.
type ParentField struct {
	ID     string `json:"id"`
	Key    string `json:"key"`
	Fields struct {
		Summary   string          `json:"summary"`
		IssueType *IssueTypeField `json:"issuetype"`
	} `json:"fields"`
}

// SearchResult represents a Jira JQL search response.
type SearchResult struct {
	StartAt    int        `json:"startAt"`
	MaxResults int        `json:"maxResults"`
	Total      int        `json:"total"`
	Issues     []Issue    `json:"issues"`
	Names      FieldNames `json:"names,omitempty"`
}

// FieldName is one entry of a field-name dictionary.
type FieldName struct {
	ID   string
	Name string
}

// FieldNames is a field-ID to label dictionary kept in document order.
// Order matters for risk-field discovery, which takes the first match.
type FieldNames []FieldName

// UnmarshalJSON decodes a JSON object into ordered entries.
func (n *FieldNames) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*n = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("field names: expected object, got %v", tok)
	}
	var out FieldNames
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		id, _ := keyTok.(string)
		var label interface{}
		if err := dec.Decode(&label); err != nil {
			return err
		}
		name, _ := label.(string)
		out = append(out, FieldName{ID: id, Name: name})
	}
	*n = out
	return nil
}

// MarshalJSON encodes the entries back into a JSON object, preserving order.
func (n FieldNames) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range n {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.ID)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ParentLink is the resolved immediate parent of an issue.
type ParentLink struct {
	Key     string
	Type    string // tracker issue-type name, e.g. "Sub-Feature"
	Summary string
}
