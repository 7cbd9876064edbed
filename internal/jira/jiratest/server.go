// Package jiratest provides an in-process Jira REST server for tests.
//
// It serves the search, single-issue, and myself endpoints from issues
// registered with AddIssue and queries registered with SetSearch, with real
// startAt/maxResults pagination. It does not import the jira package so that
// package's own tests can use it.
package jiratest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

// Issue describes one issue served by the mock.
type Issue struct {
	Key         string
	Type        string
	Summary     string
	Status      string
	Assignee    string // empty means unassigned
	Project     string // defaults to the key prefix
	FixVersions []string
	Parent      string
	ParentType  string
	Custom      map[string]interface{} // extra fields by ID, e.g. customfield_10100
}

// FieldName is one entry of the served field-name dictionary.
type FieldName struct {
	ID   string
	Name string
}

// RecordedRequest stores information about a request made to the mock server.
type RecordedRequest struct {
	Method string
	Path   string
	Query  string
	JQL    string
	Header http.Header
}

type rejection struct {
	status    int
	remaining int // <0 means forever
}

// Server is the mock Jira instance.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	issues     map[string]Issue
	searches   map[string][]string
	names      []FieldName
	rejectJQL  map[string]*rejection
	rejectKey  map[string]*rejection
	token      string
	requests   []RecordedRequest
	apiVersion string
}

// NewServer starts a mock server. Close it when done.
func NewServer() *Server {
	s := &Server{
		issues:     map[string]Issue{},
		searches:   map[string][]string{},
		rejectJQL:  map[string]*rejection{},
		rejectKey:  map[string]*rejection{},
		apiVersion: "2",
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// AddIssue registers issues served by key.
func (s *Server) AddIssue(issues ...Issue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, is := range issues {
		s.issues[is.Key] = is
	}
}

// SetSearch registers the ordered keys returned for an exact JQL string.
func (s *Server) SetSearch(jql string, keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searches[jql] = keys
}

// SetFieldNames sets the field-name dictionary, served in the given order.
func (s *Server) SetFieldNames(names ...FieldName) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names = names
}

// RequireToken makes every request without "Bearer token" fail with 401.
func (s *Server) RequireToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// RejectSearch answers searches for jql with status. times < 0 rejects forever.
func (s *Server) RejectSearch(jql string, status, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectJQL[jql] = &rejection{status: status, remaining: times}
}

// RejectIssue answers single-issue requests for key with status. times < 0 rejects forever.
func (s *Server) RejectIssue(key string, status, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectKey[key] = &rejection{status: status, remaining: times}
}

// Requests returns all recorded requests.
func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordedRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// SearchCount returns how many search requests were made for jql.
func (s *Server) SearchCount(jql string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.JQL == jql {
			n++
		}
	}
	return n
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, RecordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		JQL:    r.URL.Query().Get("jql"),
		Header: r.Header.Clone(),
	})
	token := s.token
	s.mu.Unlock()

	if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"errorMessages": []string{"Unauthorized"}})
		return
	}

	prefix := "/rest/api/" + s.apiVersion + "/"
	path := strings.TrimPrefix(r.URL.Path, prefix)
	switch {
	case r.Method == http.MethodGet && path == "myself":
		writeJSON(w, http.StatusOK, map[string]string{"name": "tester", "displayName": "Test User"})
	case r.Method == http.MethodGet && path == "search":
		s.handleSearch(w, r)
	case r.Method == http.MethodGet && strings.HasPrefix(path, "issue/"):
		s.handleIssue(w, strings.TrimPrefix(path, "issue/"))
	default:
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"errorMessages": []string{"Not found"}})
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	jql := q.Get("jql")
	startAt, _ := strconv.Atoi(q.Get("startAt"))
	maxResults, err := strconv.Atoi(q.Get("maxResults"))
	if err != nil {
		maxResults = 50
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if status, ok := consume(s.rejectJQL, jql); ok {
		writeJSON(w, status, map[string]interface{}{"errorMessages": []string{"rejected"}})
		return
	}

	keys := s.searches[jql]
	if strings.HasPrefix(jql, "key in (") && keys == nil {
		keys = s.keysIn(jql)
	}

	page := []interface{}{}
	if startAt < len(keys) {
		end := min(startAt+maxResults, len(keys))
		for _, k := range keys[startAt:end] {
			if is, ok := s.issues[k]; ok {
				page = append(page, is.json())
			}
		}
	}

	writeRaw(w, http.StatusOK, map[string]interface{}{
		"startAt":    startAt,
		"maxResults": maxResults,
		"total":      len(keys),
		"issues":     page,
	}, s.names)
}

func (s *Server) keysIn(jql string) []string {
	inner := strings.TrimSuffix(strings.TrimPrefix(jql, "key in ("), ")")
	var keys []string
	for _, k := range strings.Split(inner, ",") {
		if _, ok := s.issues[k]; ok {
			keys = append(keys, k)
		}
	}
	return keys
}

func (s *Server) handleIssue(w http.ResponseWriter, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if status, ok := consume(s.rejectKey, key); ok {
		writeJSON(w, status, map[string]interface{}{"errorMessages": []string{"rejected"}})
		return
	}
	is, ok := s.issues[key]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"errorMessages": []string{"Issue does not exist"}})
		return
	}
	writeRaw(w, http.StatusOK, is.json(), s.names)
}

func consume(m map[string]*rejection, k string) (int, bool) {
	rej, ok := m[k]
	if !ok || rej.remaining == 0 {
		return 0, false
	}
	if rej.remaining > 0 {
		rej.remaining--
	}
	return rej.status, true
}

func (is Issue) json() map[string]interface{} {
	project := is.Project
	if project == "" {
		if i := strings.LastIndex(is.Key, "-"); i > 0 {
			project = is.Key[:i]
		}
	}
	fixVersions := make([]map[string]string, 0, len(is.FixVersions))
	for i, v := range is.FixVersions {
		fixVersions = append(fixVersions, map[string]string{"id": strconv.Itoa(100 + i), "name": v})
	}
	fields := map[string]interface{}{
		"summary":     is.Summary,
		"status":      map[string]string{"name": is.Status},
		"issuetype":   map[string]string{"name": is.Type},
		"project":     map[string]string{"key": project},
		"fixVersions": fixVersions,
		"assignee":    nil,
	}
	if is.Assignee != "" {
		fields["assignee"] = map[string]string{"displayName": is.Assignee}
	}
	if is.Parent != "" {
		fields["parent"] = map[string]interface{}{
			"key":    is.Parent,
			"fields": map[string]interface{}{"issuetype": map[string]string{"name": is.ParentType}},
		}
	}
	for id, v := range is.Custom {
		fields[id] = v
	}
	return map[string]interface{}{"key": is.Key, "fields": fields}
}

// writeRaw encodes body and splices in the ordered "names" object, which a
// Go map would not preserve.
func writeRaw(w http.ResponseWriter, status int, body map[string]interface{}, names []FieldName) {
	data, err := json.Marshal(body)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if len(names) > 0 {
		var buf bytes.Buffer
		buf.WriteString(`,"names":{`)
		for i, n := range names {
			if i > 0 {
				buf.WriteByte(',')
			}
			k, _ := json.Marshal(n.ID)
			v, _ := json.Marshal(n.Name)
			buf.Write(k)
			buf.WriteByte(':')
			buf.Write(v)
		}
		buf.WriteString("}}")
		data = append(data[:len(data)-1], buf.Bytes()...)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
