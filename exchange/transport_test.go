package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgnernvsinjsbt/futurebot/config"
)

func newTestTransport(baseURL string) *Transport {
	return &Transport{
		baseURL:     baseURL,
		apiKey:      "test-key",
		secret:      []byte("test-secret"),
		recvWindow:  5 * time.Second,
		httpClient:  &http.Client{Timeout: time.Second},
		budget:      NewRateBudget(nil),
		maxAttempts: 3,
		retryBase:   time.Millisecond,
		now:         time.Now,
	}
}

func TestSign(t *testing.T) {
	t.Parallel()

	payload := "symbol=BTC-USDT&timestamp=1700000000000"
	assert.Equal(t,
		"f7d5b50f52438df75d512914c00141f49412c10d5270beeee4253622754b0502",
		Sign([]byte("test-secret"), payload))
	assert.Equal(t, Sign([]byte("test-secret"), payload), Sign([]byte("test-secret"), payload),
		"same secret and payload must always sign identically")
	assert.NotEqual(t, Sign([]byte("test-secret"), payload), Sign([]byte("other-secret"), payload))
}

func TestNewTransportFromConfig(t *testing.T) {
	t.Parallel()

	cfg := config.ExchangeConfig{
		BaseURL:    "https://api.example.com",
		APIKey:     "k",
		APISecret:  "s",
		Timeout:    config.Duration(10 * time.Second),
		RecvWindow: config.Duration(5 * time.Second),
	}
	tr := NewTransport(cfg, NewRateBudget(nil))
	assert.Equal(t, "https://api.example.com", tr.baseURL)
	assert.Equal(t, 5*time.Second, tr.recvWindow)
	assert.Equal(t, 10*time.Second, tr.httpClient.Timeout)
}

func TestSendSignedRequest(t *testing.T) {
	t.Parallel()

	var gotQuery url.Values
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		gotKey = r.Header.Get("X-API-KEY")
		w.Write([]byte(`{"code":0,"msg":"ok","data":{"orderId":1}}`))
	}))
	defer srv.Close()

	tr := newTestTransport(srv.URL)
	params := url.Values{}
	params.Set("symbol", "BTC-USDT")
	params.Set("side", "BUY")

	_, err := tr.Send(context.Background(), http.MethodPost, "/api/v1/trade/order", params, true)
	require.NoError(t, err)

	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, "BTC-USDT", gotQuery.Get("symbol"))
	assert.NotEmpty(t, gotQuery.Get("timestamp"))
	assert.Equal(t, "5000", gotQuery.Get("recvWindow"))

	// The signature must cover everything else in the query, sorted.
	signed := cloneValues(gotQuery)
	signed.Del("signature")
	assert.Equal(t, Sign([]byte("test-secret"), signed.Encode()), gotQuery.Get("signature"))
}

func TestSendUnsignedRequest(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("X-API-KEY"))
		assert.Empty(t, r.URL.Query().Get("signature"))
		assert.Empty(t, r.URL.Query().Get("timestamp"))
		w.Write([]byte(`{"code":0,"msg":"ok","data":{"price":"42000.5"}}`))
	}))
	defer srv.Close()

	tr := newTestTransport(srv.URL)
	data, err := tr.Send(context.Background(), http.MethodGet, "/api/v1/market/ticker", nil, false)
	require.NoError(t, err)
	assert.JSONEq(t, `{"price":"42000.5"}`, string(data))
}

func TestSendRetriesTransient(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte("<html>bad gateway</html>"))
			return
		}
		w.Write([]byte(`{"code":0,"msg":"ok","data":[]}`))
	}))
	defer srv.Close()

	tr := newTestTransport(srv.URL)
	_, err := tr.Send(context.Background(), http.MethodGet, "/api/v1/market/klines", nil, false)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSendRetriesExhausted(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"code":10016,"msg":"system busy"}`))
	}))
	defer srv.Close()

	tr := newTestTransport(srv.URL)
	_, err := tr.Send(context.Background(), http.MethodGet, "/api/v1/market/ticker", nil, false)
	require.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, KindTransient, KindOf(err))
}

func TestSendChargesEveryAttempt(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("down"))
	}))
	defer srv.Close()

	tr := newTestTransport(srv.URL)
	tr.budget = NewRateBudget(map[Class]ClassLimit{
		ClassMarket: {Requests: 5, Window: time.Hour},
	})

	_, err := tr.Send(context.Background(), http.MethodGet, "/api/v1/market/ticker", nil, false)
	require.ErrorIs(t, err, ErrRetriesExhausted)
	require.Equal(t, int32(3), calls.Load())

	// Every wire request drew a token, not just the first.
	assert.Equal(t, 2, tr.budget.buckets[ClassMarket].remaining)
}

func TestSendDomainErrorFailsFast(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		kind Kind
	}{
		{"insufficient margin", `{"code":20005,"msg":"insufficient margin"}`, KindInsufficientMargin},
		{"symbol not found", `{"code":20001,"msg":"unknown symbol"}`, KindSymbolNotFound},
		{"invalid precision", `{"code":20007,"msg":"bad precision"}`, KindInvalidPrecision},
		{"order not found", `{"code":20013,"msg":"no such order"}`, KindOrderNotFound},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			tr := newTestTransport(srv.URL)
			_, err := tr.Send(context.Background(), http.MethodGet, "/api/v1/trade/openOrders", nil, true)
			require.Error(t, err)
			assert.Equal(t, int32(1), calls.Load(), "domain errors must not be retried")
			assert.Equal(t, tt.kind, KindOf(err))
			assert.NotErrorIs(t, err, ErrRetriesExhausted)
		})
	}
}

func TestSendResyncsOnExpiredTimestamp(t *testing.T) {
	t.Parallel()

	const serverAhead = int64(90_000) // ms

	local := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	var timestamps []int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/server/time" {
			serverTime := local.UnixMilli() + serverAhead
			w.Write([]byte(`{"code":0,"msg":"ok","data":{"serverTime":` + strconv.FormatInt(serverTime, 10) + `}}`))
			return
		}
		ts, err := strconv.ParseInt(r.URL.Query().Get("timestamp"), 10, 64)
		assert.NoError(t, err)
		timestamps = append(timestamps, ts)
		if len(timestamps) == 1 {
			w.Write([]byte(`{"code":10002,"msg":"timestamp expired"}`))
			return
		}
		w.Write([]byte(`{"code":0,"msg":"ok","data":{}}`))
	}))
	defer srv.Close()

	tr := newTestTransport(srv.URL)
	tr.now = func() time.Time { return local }

	_, err := tr.Send(context.Background(), http.MethodGet, "/api/v1/account/balance", nil, true)
	require.NoError(t, err)

	require.Len(t, timestamps, 2)
	assert.Equal(t, local.UnixMilli(), timestamps[0])
	assert.Equal(t, local.UnixMilli()+serverAhead, timestamps[1], "retry carries the resynced clock")
}

func TestSyncTime(t *testing.T) {
	t.Parallel()

	local := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/server/time", r.URL.Path)
		serverTime := local.Add(2 * time.Second).UnixMilli()
		w.Write([]byte(`{"code":0,"msg":"ok","data":{"serverTime":` + strconv.FormatInt(serverTime, 10) + `}}`))
	}))
	defer srv.Close()

	tr := newTestTransport(srv.URL)
	tr.now = func() time.Time { return local }

	require.NoError(t, tr.SyncTime(context.Background()))
	assert.Equal(t, int64(2000), tr.offsetMs.Load())
	assert.Equal(t, local.UnixMilli()+2000, tr.timestampMs())
}

func TestSendMalformedResponse(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	tr := newTestTransport(srv.URL)
	_, err := tr.Send(context.Background(), http.MethodGet, "/api/v1/market/ticker", nil, false)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "a malformed 200 is not transient")
}

func TestSendContextCancelled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("down"))
	}))
	defer srv.Close()

	tr := newTestTransport(srv.URL)
	tr.retryBase = 500 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := tr.Send(ctx, http.MethodGet, "/api/v1/market/ticker", nil, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
