package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/mpietro40/jira-initiative-viewer/internal/jira"
	"github.com/mpietro40/jira-initiative-viewer/internal/jira/jiratest"
	"github.com/mpietro40/jira-initiative-viewer/internal/types"
	"github.com/mpietro40/jira-initiative-viewer/internal/ui"
)

const testQuery = `issuetype = "Business Initiative"`

// isolate keeps config discovery and the environment away from the
// developer's own settings.
func isolate(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("NO_COLOR", "1")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", "")

	orig := tokenPrompt
	tokenPrompt = func() (string, error) { return "", nil }
	t.Cleanup(func() { tokenPrompt = orig })

	for _, kv := range os.Environ() {
		if name, _, _ := strings.Cut(kv, "="); strings.HasPrefix(name, "INITVIEW_") {
			t.Setenv(name, "")
			os.Unsetenv(name)
		}
	}
}

func newServer(t *testing.T) *jiratest.Server {
	t.Helper()
	srv := jiratest.NewServer()
	t.Cleanup(srv.Close)
	srv.RequireToken("cli-token")
	t.Setenv("INITVIEW_JIRA_TOKEN", "cli-token")
	return srv
}

// scenario: PORT-1 → FEAT-1 [R24.1] → SUB-1 → PAY-1 (STORY-1 in sprint).
// SUB-1 lacks the marker, so forward stops at FEAT-1 and trace flags SUB-1.
func scenario(srv *jiratest.Server) {
	srv.AddIssue(
		jiratest.Issue{Key: "PORT-1", Type: "Business Initiative", Summary: "Checkout", Status: "In Progress"},
		jiratest.Issue{Key: "FEAT-1", Type: "Feature", Summary: "Wallets", Status: "In Progress",
			FixVersions: []string{"R24.1"}, Parent: "PORT-1", ParentType: "Business Initiative"},
		jiratest.Issue{Key: "SUB-1", Type: "Sub-Feature", Summary: "Apple Pay", Status: "Open",
			Parent: "FEAT-1", ParentType: "Feature"},
		jiratest.Issue{Key: "PAY-1", Type: "Epic", Summary: "Tokenize", Status: "Open", Assignee: "Dana",
			Parent: "SUB-1", ParentType: "Sub-Feature"},
		jiratest.Issue{Key: "STORY-1", Type: "Story", Summary: "Token API", Status: "In Progress"},
	)
	srv.SetSearch(testQuery, "PORT-1")
	srv.SetSearch(jira.WithFixVersion(jira.ChildrenOfType("PORT-1", "Feature"), "R24.1"), "FEAT-1")
	srv.SetSearch(jira.ChildrenOfType("PORT-1", "Feature"), "FEAT-1")
	srv.SetSearch(jira.ChildrenOfType("FEAT-1", "Sub-Feature"), "SUB-1")
	srv.SetSearch(jira.ChildrenOfType("SUB-1", "Epic"), "PAY-1")
	srv.SetSearch(jira.ActiveLeavesOf("PAY-1"), "STORY-1")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	isolate(t)
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "initview version "+Version)
}

func TestInvalidOutputFormat(t *testing.T) {
	isolate(t)
	srv := newServer(t)
	_, err := run(t, "ping", "--url", srv.URL, "-o", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid --output "xml"`)
}

func TestMissingConfiguration(t *testing.T) {
	isolate(t)
	_, err := run(t, "ping")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jira.url")
	assert.Contains(t, err.Error(), "jira.token")
}

func TestConfigFileIsRead(t *testing.T) {
	isolate(t)
	srv := newServer(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("jira:\n  url: "+srv.URL+"\n"), 0o600))

	out, err := run(t, "ping", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "Connected to "+srv.URL+"\n", out)
}

func TestPing(t *testing.T) {
	isolate(t)
	srv := newServer(t)

	out, err := run(t, "ping", "--url", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Connected to "+srv.URL+"\n", out)

	t.Setenv("INITVIEW_JIRA_TOKEN", "wrong")
	_, err = run(t, "ping", "--url", srv.URL, "--max-retries", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authentication failed")
}

func TestForwardJSON(t *testing.T) {
	isolate(t)
	srv := newServer(t)
	scenario(srv)

	out, err := run(t, "forward", "--url", srv.URL, "-Q", testQuery, "-r", "R24.1", "-o", "json")
	require.NoError(t, err)

	var got forwardOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.Initiatives, 1)
	assert.Equal(t, "PORT-1", got.Initiatives[0].Issue.Key)
	require.Len(t, got.Initiatives[0].Features, 1)
	assert.Equal(t, "FEAT-1", got.Initiatives[0].Features[0].Issue.Key)
	// SUB-1 is not in the release, so the branch ends at FEAT-1.
	assert.Empty(t, got.Initiatives[0].Features[0].SubFeatures)
	assert.Equal(t, "R24.1", got.ReleaseMarker)
}

func TestForwardText(t *testing.T) {
	isolate(t)
	srv := newServer(t)
	scenario(srv)

	out, err := run(t, "forward", "--url", srv.URL, "--query", testQuery, "--release", "R24.1")
	require.NoError(t, err)
	assert.Contains(t, out, "PORT-1 [In Progress] Checkout")
	assert.Contains(t, out, "└─ FEAT-1 [In Progress] Wallets")
}

func TestForwardRequiresFlags(t *testing.T) {
	isolate(t)
	srv := newServer(t)
	_, err := run(t, "forward", "--url", srv.URL, "-Q", testQuery)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"release"`)
}

func TestForwardSeedFailure(t *testing.T) {
	isolate(t)
	srv := newServer(t)
	srv.RejectSearch(testQuery, 400, -1)
	_, err := run(t, "forward", "--url", srv.URL, "-Q", testQuery, "-r", "R24.1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forward:")
}

func TestTraceYAML(t *testing.T) {
	isolate(t)
	srv := newServer(t)
	scenario(srv)

	out, err := run(t, "trace", "--url", srv.URL, "-Q", testQuery, "-r", "R24.1", "-o", "yaml")
	require.NoError(t, err)

	var got types.TraceResult
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	assert.Contains(t, got.SubFeaturesNeedingMarker, "SUB-1")
	assert.Contains(t, got.FeaturesAlreadyMarked, "FEAT-1")
	assert.Empty(t, got.FeaturesNeedingMarker)
	assert.Equal(t, 1, got.Summary.ActiveLeaves)
	assert.Equal(t, 1, got.Summary.TracesSucceeded)
	assert.Zero(t, got.Summary.TracesFailed)
}

func TestTraceText(t *testing.T) {
	isolate(t)
	srv := newServer(t)
	scenario(srv)

	out, err := run(t, "trace", "--url", srv.URL, "-Q", testQuery, "-r", "R24.1")
	require.NoError(t, err)
	assert.Contains(t, out, "Active leaves: 1 across 1 epics")
	assert.Contains(t, out, "SUB-FEATURES NEEDING R24.1 (1)\n  SUB-1 [Open] Apple Pay")
	assert.Contains(t, out, "\nFEATURES NEEDING R24.1 (0)")
	assert.Contains(t, out, "└─ FEAT-1 [In Progress] Wallets  active\n")
	assert.Contains(t, out, "   └─ SUB-1 [Open] Apple Pay  active, needs R24.1\n")
	assert.Contains(t, out, "      └─ PAY\n")
	assert.Contains(t, out, "         └─ PAY-1 [Open] Tokenize (Dana)  active\n")
}

func TestLookupByKeyAndURL(t *testing.T) {
	isolate(t)
	srv := newServer(t)
	scenario(srv)

	out, err := run(t, "lookup", "--url", srv.URL, "-o", "json", "PAY-1", srv.URL+"/browse/FEAT-1")
	require.NoError(t, err)

	var got []types.IssueRef
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "PAY-1", got[0].Key)
	assert.Equal(t, "FEAT-1", got[1].Key)
	assert.Equal(t, []string{"R24.1"}, got[1].FixMarkers)
}

func TestLookupJQL(t *testing.T) {
	isolate(t)
	srv := newServer(t)
	scenario(srv)

	out, err := run(t, "lookup", "--url", srv.URL, "--jql", testQuery)
	require.NoError(t, err)
	assert.Contains(t, out, "PORT-1 [In Progress] Checkout")
	assert.Contains(t, out, srv.URL+"/browse/PORT-1")
}

func TestLookupNeedsInput(t *testing.T) {
	isolate(t)
	srv := newServer(t)
	_, err := run(t, "lookup", "--url", srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--jql")
}

func partialTrace() *types.TraceResult {
	res := types.NewTraceResult("R24.1")
	res.OriginalCount = 2
	res.Summary.ActiveLeaves = 1
	res.SubFeaturesNeedingMarker["SUB-1"] = types.IssueRef{Key: "SUB-1", Status: "Open", Summary: "Apple Pay"}
	return res
}

func TestTracePrintsPartialResult(t *testing.T) {
	isolate(t)
	var out bytes.Buffer
	ui.Configure(&out)
	a := &app{output: "text", logger: newLogger(io.Discard, false, false)}

	// The deadline hit after ancestors were resolved but before the tree.
	require.NoError(t, a.reportTrace(&out, partialTrace(), context.DeadlineExceeded))
	assert.Contains(t, out.String(), "Incomplete: context deadline exceeded")
	assert.Contains(t, out.String(), "SUB-FEATURES NEEDING R24.1 (1)\n  SUB-1 [Open] Apple Pay")

	out.Reset()
	a.output = "json"
	require.NoError(t, a.reportTrace(&out, partialTrace(), context.DeadlineExceeded))
	var got types.TraceResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Contains(t, got.SubFeaturesNeedingMarker, "SUB-1")
	assert.Empty(t, got.Initiatives)
}

func TestTraceSeedFailureIsError(t *testing.T) {
	isolate(t)
	var out bytes.Buffer
	a := &app{output: "text", logger: newLogger(io.Discard, false, false)}

	err := a.reportTrace(&out, types.NewTraceResult("R24.1"), context.DeadlineExceeded)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, out.String())

	err = a.reportTrace(&out, nil, context.Canceled)
	require.ErrorIs(t, err, context.Canceled)
}

func TestVerboseLogsFetchPolicy(t *testing.T) {
	isolate(t)
	srv := newServer(t)

	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"ping", "--url", srv.URL, "-v", "--batch-size", "120"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, errOut.String(), "fetch policy")
	assert.Contains(t, errOut.String(), "batch=120")
}

func TestTelemetryConsoleGoesToStderr(t *testing.T) {
	isolate(t)
	srv := newServer(t)
	t.Setenv("INITVIEW_TELEMETRY_ENABLED", "true")
	t.Setenv("INITVIEW_TELEMETRY_CONSOLE", "true")

	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"ping", "--url", srv.URL})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, "Connected to "+srv.URL+"\n", out.String())
	assert.Contains(t, errOut.String(), "http GET")
}
