package jira

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/cenkalti/backoff/v4"

	"github.com/mpietro40/jira-initiative-viewer/internal/telemetry"
)

// searchFields is the default set of fields requested by searches.
var searchFields = []string{"summary", "status", "issuetype", "project", "assignee", "fixVersions", "parent"}

// Client provides HTTP access to a Jira instance.
// A Client holds no per-request state and may be reused while the token is valid.
type Client struct {
	URL        string
	Username   string
	APIToken   string
	APIVersion string
	HTTPClient *http.Client

	// ExpandChangelog adds changelog expansion to search requests.
	ExpandChangelog bool

	policy   FetchPolicy
	logger   *slog.Logger
	metrics  *fetchMetrics
	newTimer func() backoff.Timer
}

// NewClient creates a new Jira client with the default fetch policy.
// Authentication is Basic when username is set, Bearer otherwise.
func NewClient(baseURL, username, apiToken string) *Client {
	c := &Client{
		URL:        strings.TrimSuffix(baseURL, "/"),
		Username:   username,
		APIToken:   apiToken,
		APIVersion: "2",
		logger:     slog.New(slog.DiscardHandler),
		metrics:    newFetchMetrics(),
		newTimer:   func() backoff.Timer { return nil },
	}
	return c.WithPolicy(DefaultFetchPolicy())
}

// WithPolicy sets timeouts, retries, and batch sizing. Zero fields take defaults.
// The HTTP client is rebuilt so the connect timeout applies.
func (c *Client) WithPolicy(p FetchPolicy) *Client {
	c.policy = p.withDefaults()
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: c.policy.ConnectTimeout}).DialContext
	c.HTTPClient = &http.Client{Transport: telemetry.WrapTransport(transport)}
	return c
}

// WithHTTPClient replaces the HTTP client (tests inject failing transports here).
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.HTTPClient = hc
	return c
}

// WithLogger sets the logger used for retry, paging, and batch-resize events.
func (c *Client) WithLogger(l *slog.Logger) *Client {
	if l != nil {
		c.logger = l
	}
	return c
}

// WithAPIVersion sets the REST API version segment ("2" or "3").
func (c *Client) WithAPIVersion(v string) *Client {
	if v != "" {
		c.APIVersion = v
	}
	return c
}

// Policy returns the effective fetch policy.
func (c *Client) Policy() FetchPolicy {
	return c.policy
}

func (c *Client) apiURL(path string, params url.Values) string {
	u := fmt.Sprintf("%s/rest/api/%s/%s", c.URL, c.APIVersion, path)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// Ping checks connectivity and credentials against /myself.
func (c *Client) Ping(ctx context.Context) error {
	err := c.retry(ctx, "myself", func(ctx context.Context) error {
		_, err := c.doRequest(ctx, http.MethodGet, c.apiURL("myself", nil), nil)
		return err
	})
	if err != nil {
		return fmt.Errorf("ping jira: %w", err)
	}
	return nil
}

// SearchPage issues a single search request without retries.
func (c *Client) SearchPage(ctx context.Context, jql string, startAt, maxResults int) (*SearchResult, error) {
	expand := []string{"names"}
	if c.ExpandChangelog {
		expand = append(expand, "changelog")
	}
	params := url.Values{
		"jql":        {jql},
		"startAt":    {strconv.Itoa(startAt)},
		"maxResults": {strconv.Itoa(maxResults)},
		"fields":     {strings.Join(searchFields, ",")},
		"expand":     {strings.Join(expand, ",")},
	}

	body, err := c.doRequest(ctx, http.MethodGet, c.apiURL("search", params), nil)
	if err != nil {
		return nil, fmt.Errorf("search issues: %w", err)
	}

	var result SearchResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parse search response: %w", err)
	}
	return &result, nil
}

// GetIssue fetches a single Jira issue by key with all fields and the
// field-name dictionary, retrying transient failures.
func (c *Client) GetIssue(ctx context.Context, key string) (*Issue, error) {
	params := url.Values{"expand": {"names"}}
	return c.getIssue(ctx, key, params)
}

// GetParent returns the structural parent of key, or nil when the issue has none.
func (c *Client) GetParent(ctx context.Context, key string) (*ParentLink, error) {
	params := url.Values{"fields": {"parent,issuetype,summary"}}
	issue, err := c.getIssue(ctx, key, params)
	if err != nil {
		return nil, err
	}
	p := issue.Fields.Parent
	if p == nil || p.Key == "" {
		return nil, nil
	}
	link := &ParentLink{Key: p.Key, Summary: p.Fields.Summary}
	if p.Fields.IssueType != nil {
		link.Type = p.Fields.IssueType.Name
	}
	return link, nil
}

// FindParent looks up the parent of key with a parentIssuesOf query.
// It is the fallback when the structural parent link is absent.
func (c *Client) FindParent(ctx context.Context, key string) (*ParentLink, error) {
	jql := ParentIssuesOf(key)
	var result *SearchResult
	err := c.retry(ctx, "parent-of "+key, func(ctx context.Context) error {
		r, err := c.SearchPage(ctx, jql, 0, 1)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("find parent of %s: %w", key, err)
	}
	if len(result.Issues) == 0 {
		return nil, nil
	}
	ref := Normalize(&result.Issues[0], result.Names)
	return &ParentLink{Key: ref.Key, Type: issueTypeName(&result.Issues[0]), Summary: ref.Summary}, nil
}

func (c *Client) getIssue(ctx context.Context, key string, params url.Values) (*Issue, error) {
	apiURL := c.apiURL("issue/"+url.PathEscape(key), params)

	var issue Issue
	err := c.retry(ctx, "issue "+key, func(ctx context.Context) error {
		body, err := c.doRequest(ctx, http.MethodGet, apiURL, nil)
		if err != nil {
			return err
		}
		issue = Issue{}
		if err := json.Unmarshal(body, &issue); err != nil {
			return backoff.Permanent(fmt.Errorf("parse issue response: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get issue %s: %w", key, err)
	}
	return &issue, nil
}

// doRequest executes an authenticated HTTP request and returns the response body.
func (c *Client) doRequest(ctx context.Context, method, apiURL string, body []byte) ([]byte, error) {
	if c.URL == "" || c.APIToken == "" {
		return nil, backoff.Permanent(ErrNotConfigured)
	}

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, bodyReader)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}

	c.setAuth(req)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "initview/1.0")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("jira request", "method", method, "url", apiURL)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RemoteError{StatusCode: resp.StatusCode, Body: truncate(string(respBody), 512)}
	}

	return respBody, nil
}

// setAuth sets the appropriate authentication header on the request.
func (c *Client) setAuth(req *http.Request) {
	if c.Username != "" {
		auth := base64.StdEncoding.EncodeToString([]byte(c.Username + ":" + c.APIToken))
		req.Header.Set("Authorization", "Basic "+auth)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.APIToken)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
