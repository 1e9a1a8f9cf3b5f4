package http_client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/logging"
)

// StatusError is returned for responses with status >= 400.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http error status=%d body=%s", e.StatusCode, e.Body)
}

// Temporary reports whether the status is worth retrying later.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

type InstrumentedClient struct {
	Name           string
	BaseURL        string
	DefaultHeaders map[string]string
	Client         *http.Client
	Retry          *RetryConfig
	Underlying     *http.Transport
}

func (ic *InstrumentedClient) buildURL(path string, q map[string]string) (string, error) {
	full := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		if path != "" && path[0] != '/' {
			path = "/" + path
		}
		full = ic.BaseURL + path
	}
	u, err := url.Parse(full)
	if err != nil {
		return "", err
	}
	if len(q) > 0 {
		qs := u.Query()
		for k, v := range q {
			qs.Set(k, v)
		}
		u.RawQuery = qs.Encode()
	}
	return u.String(), nil
}

// Do sends a request and decodes a JSON response into out when out is non-nil.
// Non-reader bodies are JSON encoded; the encoded bytes are replayed on retry.
func (ic *InstrumentedClient) Do(ctx context.Context, method, path string, query, headers map[string]string, body any, out any) (*http.Response, error) {
	if method == "" {
		method = http.MethodGet
	}
	targetURL, err := ic.buildURL(path, query)
	if err != nil {
		return nil, err
	}

	var payload []byte
	var contentType string
	switch b := body.(type) {
	case nil:
	case []byte:
		payload = b
	case string:
		payload = []byte(b)
	case io.Reader:
		if payload, err = io.ReadAll(b); err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
	default:
		if payload, err = json.Marshal(b); err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		contentType = "application/json"
	}

	newReq := func() (*http.Request, error) {
		var rd io.Reader
		if payload != nil {
			rd = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, targetURL, rd)
		if err != nil {
			return nil, err
		}
		for k, v := range ic.DefaultHeaders {
			req.Header.Set(k, v)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		if contentType != "" && req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", contentType)
		}
		if req.Header.Get("Accept") == "" {
			req.Header.Set("Accept", "application/json, */*")
		}
		return req, nil
	}

	start := time.Now()
	resp, err := ic.doWithRetry(ctx, newReq)
	fields := []zap.Field{
		zap.String("client", ic.Name),
		zap.String("method", method),
		zap.String("url", targetURL),
		zap.Duration("latency", time.Since(start)),
	}
	if err != nil {
		logging.Error(ctx, "http_client_request", append(fields, zap.Error(err))...)
		return resp, err
	}
	logging.Debug(ctx, "http_client_request", append(fields, zap.Int("status", resp.StatusCode))...)
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return resp, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(slurp))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp, nil
	}
	if strings.Contains(resp.Header.Get("Content-Type"), "json") {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return resp, fmt.Errorf("decode response: %w", err)
		}
		return resp, nil
	}
	raw, _ := io.ReadAll(resp.Body)
	switch o := out.(type) {
	case *[]byte:
		*o = raw
	case *string:
		*o = string(raw)
	}
	return resp, nil
}

func (ic *InstrumentedClient) Get(ctx context.Context, path string, query, headers map[string]string, out any) (*http.Response, error) {
	return ic.Do(ctx, http.MethodGet, path, query, headers, nil, out)
}

func (ic *InstrumentedClient) Post(ctx context.Context, path string, body any, headers map[string]string, out any) (*http.Response, error) {
	return ic.Do(ctx, http.MethodPost, path, nil, headers, body, out)
}

// doWithRetry retries transport errors and 5xx responses with exponential backoff.
func (ic *InstrumentedClient) doWithRetry(ctx context.Context, newReq func() (*http.Request, error)) (*http.Response, error) {
	attempts := 1
	if ic.Retry != nil && ic.Retry.Enabled && ic.Retry.MaxAttempts > 1 {
		attempts = ic.Retry.MaxAttempts
	}
	var backoff time.Duration
	if ic.Retry != nil {
		backoff = ic.Retry.InitialBackoff
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		req, err := newReq()
		if err != nil {
			return nil, err
		}
		resp, err := ic.Client.Do(req)
		switch {
		case err == nil && resp.StatusCode < 500:
			return resp, nil
		case err == nil:
			if attempt == attempts {
				return resp, nil
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("server error %d", resp.StatusCode)
		default:
			lastErr = err
		}
		if attempt == attempts || ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff = time.Duration(float64(backoff) * ic.Retry.BackoffMultiplier)
		if backoff > ic.Retry.MaxBackoff {
			backoff = ic.Retry.MaxBackoff
		}
	}
	return nil, lastErr
}
