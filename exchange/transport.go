package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/dgnernvsinjsbt/futurebot/config"
)

const defaultMaxAttempts = 3

// Transport issues authenticated, rate-limited, retried HTTP calls against
// the exchange REST API and decodes the {code, msg, data} envelope.
//
// Signed requests carry a server-synced millisecond timestamp, a recvWindow,
// and an HMAC-SHA256 signature over the sorted query string, plus the API
// key header. Transient failures (5xx, network errors, whitelisted exchange
// codes) are retried with exponential backoff; domain errors fail fast.
type Transport struct {
	baseURL    string
	apiKey     string
	secret     []byte
	recvWindow time.Duration
	httpClient *http.Client
	budget     *RateBudget

	maxAttempts int
	retryBase   time.Duration

	// server clock minus local clock, milliseconds
	offsetMs atomic.Int64

	now func() time.Time
}

// NewTransport builds a transport from exchange config and a shared rate
// budget. The budget may be shared across clients; token accounting is
// process-wide.
func NewTransport(cfg config.ExchangeConfig, budget *RateBudget) *Transport {
	return &Transport{
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		secret:      []byte(cfg.APISecret),
		recvWindow:  cfg.RecvWindow.Std(),
		httpClient:  &http.Client{Timeout: cfg.Timeout.Std()},
		budget:      budget,
		maxAttempts: defaultMaxAttempts,
		retryBase:   250 * time.Millisecond,
		now:         time.Now,
	}
}

// envelope is the exchange's uniform response wrapper. code 0 is success
// regardless of HTTP status.
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// Send performs one API call and returns the raw data payload. params may
// be nil. Signed requests are authenticated per the exchange protocol.
func (t *Transport) Send(ctx context.Context, method, path string, params url.Values, signed bool) (json.RawMessage, error) {
	class := classFor(path)

	var lastErr error
	for attempt := 1; attempt <= t.maxAttempts; attempt++ {
		// Every attempt is a wire request and costs a token, not just the
		// first; otherwise retries would exceed the configured budget.
		if err := t.budget.Acquire(ctx, class); err != nil {
			return nil, err
		}

		data, err := t.sendOnce(ctx, method, path, params, signed)
		if err == nil {
			return data, nil
		}
		lastErr = err

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			// Not an exchange failure: malformed response or a request that
			// could not be built. Retrying cannot help.
			return nil, err
		}
		if apiErr.Code == codeTimestampExpired {
			// Clock drifted past recvWindow; resync before retrying.
			if syncErr := t.SyncTime(ctx); syncErr != nil {
				return nil, fmt.Errorf("%s %s: resync after expired timestamp: %w", method, path, syncErr)
			}
		} else if !apiErr.Transient() {
			return nil, err
		}

		if attempt == t.maxAttempts {
			break
		}
		backoff := t.retryBase << (attempt - 1)
		if !sleepCtx(ctx, backoff) {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("%s %s: %w: %w", method, path, ErrRetriesExhausted, lastErr)
}

func (t *Transport) sendOnce(ctx context.Context, method, path string, params url.Values, signed bool) (json.RawMessage, error) {
	query := cloneValues(params)
	if signed {
		query.Set("timestamp", fmt.Sprintf("%d", t.timestampMs()))
		query.Set("recvWindow", fmt.Sprintf("%d", t.recvWindow.Milliseconds()))
	}

	encoded := query.Encode() // sorted by key: the signature input is deterministic
	if signed {
		encoded = encoded + "&signature=" + Sign(t.secret, encoded)
	}

	reqURL := t.baseURL + path
	if encoded != "" {
		reqURL = reqURL + "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if signed {
		req.Header.Set("X-API-KEY", t.apiKey)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		// Network-level failure: always worth a retry.
		return nil, &APIError{Code: codeServiceUnavailable, Msg: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Code: codeServiceUnavailable, Msg: err.Error(), HTTPStatus: resp.StatusCode}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			// Gateways answer with HTML when the API is down; treat as transient.
			return nil, &APIError{Code: codeServiceUnavailable, Msg: http.StatusText(resp.StatusCode), HTTPStatus: resp.StatusCode}
		}
		return nil, fmt.Errorf("malformed response (http %d): %w", resp.StatusCode, err)
	}

	if env.Code != codeSuccess {
		return nil, &APIError{Code: env.Code, Msg: env.Msg, HTTPStatus: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Code: env.Code, Msg: env.Msg, HTTPStatus: resp.StatusCode}
	}
	return env.Data, nil
}

// SyncTime fetches the server clock and records the offset applied to
// signed-request timestamps.
func (t *Transport) SyncTime(ctx context.Context) error {
	if err := t.budget.Acquire(ctx, ClassMarket); err != nil {
		return fmt.Errorf("sync time: %w", err)
	}
	data, err := t.sendOnce(ctx, http.MethodGet, "/api/v1/server/time", nil, false)
	if err != nil {
		return fmt.Errorf("sync time: %w", err)
	}
	var payload struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("sync time: decode: %w", err)
	}
	t.offsetMs.Store(payload.ServerTime - t.now().UnixMilli())
	return nil
}

func (t *Transport) timestampMs() int64 {
	return t.now().UnixMilli() + t.offsetMs.Load()
}

// Sign computes the hex HMAC-SHA256 of payload under secret. The payload
// must already be the sorted key=value&... query string.
func Sign(secret []byte, payload string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func cloneValues(params url.Values) url.Values {
	out := make(url.Values, len(params)+2)
	for k, vs := range params {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
