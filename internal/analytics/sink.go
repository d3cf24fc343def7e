package analytics

import (
	"SLINK-Backend/internal/config"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

// HTTPSink posts each event as an NDJSON line to an events API
// (e.g. POST /v0/events?name=<datasource>).
type HTTPSink struct {
	endpoint string
	token    string
	http     *http.Client
}

func NewHTTPSink(cfg config.Events) (*HTTPSink, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid events url %q", cfg.URL)
	}
	q := u.Query()
	if cfg.Datasource != "" {
		q.Set("name", cfg.Datasource)
	}
	u.RawQuery = q.Encode()

	return &HTTPSink{endpoint: u.String(), token: cfg.Token, http: &http.Client{}}, nil
}

func (s *HTTPSink) Send(ctx context.Context, ev *LinkEvent) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(ev); err != nil {
		return fmt.Errorf("failed to encode link event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-ndjson")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	res, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send link event: %w", err)
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)

	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("events api responded with status %d", res.StatusCode)
	}
	return nil
}

// NewSink picks the HTTP sink when an events URL is configured and the
// log sink otherwise.
func NewSink(cfg config.Events, log *zap.Logger) (Sink, error) {
	if cfg.URL == "" {
		log.Info("events url not configured, link events go to the log")
		return NewLogSink(log), nil
	}
	return NewHTTPSink(cfg)
}

// ConfigFrom converts the events configuration section.
func ConfigFrom(cfg config.Events) ProcessorConfig {
	pc := DefaultConfig()
	if cfg.Workers > 0 {
		pc.WorkerCount = cfg.Workers
	}
	if cfg.BufferSize > 0 {
		pc.BufferSize = cfg.BufferSize
	}
	if cfg.RetryAttempts > 0 {
		pc.RetryAttempts = cfg.RetryAttempts
	}
	if cfg.RetryDelay > 0 {
		pc.RetryDelay = cfg.RetryDelay
	}
	if cfg.ShutdownTimeout > 0 {
		pc.ShutdownTimeout = cfg.ShutdownTimeout
	}
	return pc
}
