package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relayd/internal/auth"
	"relayd/internal/control"
	"relayd/internal/dispatch"
	"relayd/internal/ratelimit"
	"relayd/internal/stream"
	logx "relayd/pkg/logx"
)

const testToken = "tok-http"

type okProvider struct{}

func (okProvider) Send(context.Context, string, string) error { return nil }

func newTestServer(t *testing.T, ceiling int) *httptest.Server {
	t.Helper()
	guard := auth.NewGuard(auth.NewStaticStore([]auth.Token{{Value: testToken}}), logx.Nop())
	limiter := ratelimit.New(ratelimit.Config{Ceiling: ceiling, Window: time.Minute}, logx.Nop())
	bc := stream.New(16, logx.Nop())
	store := dispatch.New(dispatch.Config{
		MaxWorkers:  4,
		RetryMax:    1,
		BackoffBase: time.Millisecond,
		BackoffCap:  time.Millisecond,
		CallTimeout: time.Second,
	}, okProvider{}, bc, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	store.Start(ctx)

	plane := control.New(control.Config{ExemptReads: true}, guard, limiter, store, bc, logx.Nop())
	s := New(Config{}, plane, logx.Nop())
	ts := httptest.NewServer(s.router())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, ts *httptest.Server, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestSubmitAccepted(t *testing.T) {
	ts := newTestServer(t, 100)
	resp, body := doJSON(t, ts, http.MethodPost, "/v1/messages", testToken,
		map[string]string{"payload": "hello", "destination": "dest-1"})

	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, float64(1), body["id"])
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
}

func TestSubmitWithoutCredential(t *testing.T) {
	ts := newTestServer(t, 100)
	resp, body := doJSON(t, ts, http.MethodPost, "/v1/messages", "",
		map[string]string{"payload": "hello", "destination": "dest-1"})

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "UNAUTHORIZED", errObj["code"])
}

func TestSubmitUnknownField(t *testing.T) {
	ts := newTestServer(t, 100)
	resp, body := doJSON(t, ts, http.MethodPost, "/v1/messages", testToken,
		map[string]string{"payload": "hello", "destination": "d", "priority": "high"})

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "INVALID_PAYLOAD", errObj["code"])
}

func TestSubmitEmptyPayload(t *testing.T) {
	ts := newTestServer(t, 100)
	resp, body := doJSON(t, ts, http.MethodPost, "/v1/messages", testToken,
		map[string]string{"payload": "", "destination": "dest-1"})

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "INVALID_PAYLOAD", errObj["code"])
}

func TestSubmitThrottled(t *testing.T) {
	ts := newTestServer(t, 1)
	resp, _ := doJSON(t, ts, http.MethodPost, "/v1/messages", testToken,
		map[string]string{"payload": "hello", "destination": "dest-1"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, body := doJSON(t, ts, http.MethodPost, "/v1/messages", testToken,
		map[string]string{"payload": "hello", "destination": "dest-1"})
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "THROTTLED", errObj["code"])
}

func TestStatusRoundTrip(t *testing.T) {
	ts := newTestServer(t, 100)
	resp, body := doJSON(t, ts, http.MethodPost, "/v1/messages", testToken,
		map[string]string{"payload": "hello", "destination": "dest-1"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	id := int64(body["id"].(float64))

	deadline := time.Now().Add(3 * time.Second)
	for {
		resp, rec := doJSON(t, ts, http.MethodGet, fmt.Sprintf("/v1/messages/%d", id), testToken, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		if rec["status"] == "sent" {
			assert.Equal(t, float64(id), rec["id"])
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("message never reached sent: %+v", rec)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStatusUnknownID(t *testing.T) {
	ts := newTestServer(t, 100)
	resp, body := doJSON(t, ts, http.MethodGet, "/v1/messages/99", testToken, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "NOT_FOUND", errObj["code"])
}

func TestStatusMalformedID(t *testing.T) {
	ts := newTestServer(t, 100)
	resp, _ := doJSON(t, ts, http.MethodGet, "/v1/messages/abc", testToken, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListMessages(t *testing.T) {
	ts := newTestServer(t, 100)
	for i := 0; i < 3; i++ {
		resp, _ := doJSON(t, ts, http.MethodPost, "/v1/messages", testToken,
			map[string]string{"payload": "hello", "destination": "dest-1"})
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
	}
	resp, body := doJSON(t, ts, http.MethodGet, "/v1/messages", testToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body["messages"], 3)
}

func TestStopMessage(t *testing.T) {
	ts := newTestServer(t, 100)
	resp, body := doJSON(t, ts, http.MethodPost, "/v1/messages", testToken,
		map[string]string{"payload": "hello", "destination": "dest-1"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	id := int64(body["id"].(float64))

	resp, body = doJSON(t, ts, http.MethodPost, fmt.Sprintf("/v1/messages/%d/stop", id), testToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	// The race with the worker is fair game either way; the field just has to
	// report what happened.
	_, ok := body["stopped"].(bool)
	assert.True(t, ok)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, 100)
	resp, body := doJSON(t, ts, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "dispatch")
}

func TestStreamDeliversEvents(t *testing.T) {
	ts := newTestServer(t, 100)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/v1/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	submitResp, _ := doJSON(t, ts, http.MethodPost, "/v1/messages", testToken,
		map[string]string{"payload": "hello", "destination": "dest-1"})
	require.Equal(t, http.StatusAccepted, submitResp.StatusCode)

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &rec))
		assert.Equal(t, float64(1), rec["id"])
		return
	}
	t.Fatalf("stream closed without an event: %v", scanner.Err())
}

func TestStreamRequiresCredential(t *testing.T) {
	ts := newTestServer(t, 100)
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/v1/stream", nil)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
