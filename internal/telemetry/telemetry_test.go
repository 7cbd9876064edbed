package telemetry

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingTransport struct {
	calls int
	err   error
}

func (c *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return http.DefaultTransport.RoundTrip(req)
}

// start runs a Session for the test and shuts it down afterwards.
func start(t *testing.T, s Settings) *Session {
	t.Helper()
	sess, err := Start(context.Background(), s, "initview", "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Shutdown(context.Background()) })
	return sess
}

func TestStartDisabled(t *testing.T) {
	var console bytes.Buffer
	sess := start(t, Settings{Console: &console})
	assert.False(t, Enabled())

	rt := &countingTransport{}
	assert.Same(t, rt, WrapTransport(rt))

	ctx, span := StartStage(context.Background(), "test", "stage")
	assert.NotNil(t, ctx)
	EndStage(span, errors.New("ignored by noop span"))

	require.NoError(t, sess.Shutdown(context.Background()))
	assert.Zero(t, console.Len())
}

func TestStartEnabledWithoutExporters(t *testing.T) {
	// Nothing to export to, so the transport stays bare.
	start(t, Settings{Enabled: true})
	assert.False(t, Enabled())
	rt := &countingTransport{}
	assert.Same(t, rt, WrapTransport(rt))
}

func TestWrapTransportExportsToConsole(t *testing.T) {
	var console bytes.Buffer
	sess := start(t, Settings{Enabled: true, Console: &console})
	require.True(t, Enabled())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	inner := &countingTransport{}
	rt := WrapTransport(inner)
	require.IsType(t, &InstrumentedTransport{}, rt)

	client := &http.Client{Transport: rt}
	resp, err := client.Get(srv.URL + "/ok")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = client.Get(srv.URL + "/missing")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, 2, inner.calls)

	// Shutdown flushes both the span batcher and the metric reader.
	require.NoError(t, sess.Shutdown(context.Background()))
	assert.False(t, Enabled())
	out := console.String()
	assert.Contains(t, out, "http GET")
	assert.Contains(t, out, "initview.http.requests")
	assert.Contains(t, out, "initview.http.errors")
}

func TestWrapTransportPropagatesErrors(t *testing.T) {
	var console bytes.Buffer
	start(t, Settings{Enabled: true, Console: &console})

	boom := errors.New("dial failed")
	rt := WrapTransport(&countingTransport{err: boom})
	req, err := http.NewRequest(http.MethodGet, "http://example.invalid/", nil)
	require.NoError(t, err)

	_, err = rt.RoundTrip(req)
	assert.ErrorIs(t, err, boom)
}

func TestShutdownNilSession(t *testing.T) {
	var sess *Session
	assert.NoError(t, sess.Shutdown(context.Background()))
}
