package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	logx "relayd/pkg/logx"
)

// httpProvider posts messages as JSON to a webhook-style endpoint.
//
// Classification:
//   - 2xx: accepted
//   - 408, 429, 5xx: retryable
//   - other 4xx: terminal
//   - transport errors and timeouts: retryable
type httpProvider struct {
	endpoint string
	client   *http.Client
	log      logx.Logger
}

func newHTTP(cfg HTTPConfig, log logx.Logger) (*httpProvider, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("http provider endpoint is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &httpProvider{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: timeout},
		log:      log.With(logx.String("comp", "provider.http")),
	}, nil
}

type outboundMessage struct {
	Destination string `json:"destination"`
	Payload     string `json:"payload"`
}

func (p *httpProvider) Send(ctx context.Context, destination, payload string) error {
	body, err := json.Marshal(outboundMessage{Destination: destination, Payload: payload})
	if err != nil {
		return Terminalf("encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return Terminalf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		// Transport fault or timeout; the caller may retry.
		return fmt.Errorf("provider call: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return fmt.Errorf("provider responded %s", resp.Status)
	default:
		return Terminalf("provider rejected message: %s", resp.Status)
	}
}
