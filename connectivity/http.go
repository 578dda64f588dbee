package connectivity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hazyhaar/formfill/horosafe"
)

// httpRouteConfig is the per-route JSON accepted by HTTPFactory.
type httpRouteConfig struct {
	TimeoutMs   int64             `json:"timeout_ms"`
	ContentType string            `json:"content_type"`
	Method      string            `json:"method"`
	Headers     map[string]string `json:"headers"`
}

type httpFactoryConfig struct {
	client       *http.Client
	allowPrivate bool
	maxBody      int64
}

// HTTPOption configures HTTPFactory.
type HTTPOption func(*httpFactoryConfig)

// WithHTTPClient replaces the client built per route.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(f *httpFactoryConfig) { f.client = c }
}

// WithAllowPrivate lets endpoints resolve to loopback or private addresses.
func WithAllowPrivate(ok bool) HTTPOption {
	return func(f *httpFactoryConfig) { f.allowPrivate = ok }
}

// WithMaxBody caps response bodies.
func WithMaxBody(n int64) HTTPOption {
	return func(f *httpFactoryConfig) { f.maxBody = n }
}

// HTTPFactory builds handlers that send the payload to an HTTP endpoint
// (POST by default, JSON by default) and return the response body.
// Endpoints are checked with horosafe.ValidateURL when the route is built.
// Non-2xx responses become *StatusError.
func HTTPFactory(opts ...HTTPOption) TransportFactory {
	fc := httpFactoryConfig{maxBody: horosafe.MaxResponseBody}
	for _, o := range opts {
		o(&fc)
	}
	return func(endpoint string, config json.RawMessage) (Handler, func(), error) {
		if err := horosafe.ValidateURL(endpoint, horosafe.AllowPrivate(fc.allowPrivate)); err != nil {
			return nil, nil, fmt.Errorf("connectivity/http: %w", err)
		}
		var cfg httpRouteConfig
		if len(config) > 0 {
			if err := json.Unmarshal(config, &cfg); err != nil {
				return nil, nil, fmt.Errorf("connectivity/http: route config: %w", err)
			}
		}
		if cfg.ContentType == "" {
			cfg.ContentType = "application/json"
		}
		if cfg.Method == "" {
			cfg.Method = http.MethodPost
		}
		client := fc.client
		if client == nil {
			timeout := 30 * time.Second
			if cfg.TimeoutMs > 0 {
				timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
			}
			client = &http.Client{Timeout: timeout}
		}

		handler := func(ctx context.Context, payload []byte) ([]byte, error) {
			req, err := http.NewRequestWithContext(ctx, cfg.Method, endpoint, bytes.NewReader(payload))
			if err != nil {
				return nil, fmt.Errorf("connectivity/http: create request: %w", err)
			}
			req.Header.Set("Content-Type", cfg.ContentType)
			req.Header.Set("Accept", "application/json")
			for k, v := range cfg.Headers {
				req.Header.Set(k, v)
			}
			resp, err := client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("connectivity/http: do request: %w", err)
			}
			defer resp.Body.Close()
			data, err := horosafe.LimitedReadAll(resp.Body, fc.maxBody)
			if err != nil {
				return nil, fmt.Errorf("connectivity/http: read response: %w", err)
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return nil, &StatusError{Code: resp.StatusCode, Body: truncate(string(data), 512)}
			}
			return data, nil
		}
		return handler, client.CloseIdleConnections, nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
