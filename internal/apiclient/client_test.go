package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, baseURL string, mutate func(*Config)) *Client {
	t.Helper()
	cfg := Config{
		Name:         "test",
		BaseURL:      baseURL,
		CacheEnabled: true,
		CacheTTL:     time.Minute,
		MaxRetries:   2,
		InitialWait:  time.Millisecond,
		Backoff:      2,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg)
}

func TestGetOrFetchCachesWithinTTL(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c := newTestClient(t, "", func(cfg *Config) {
		cfg.CacheTTL = 5 * time.Minute
		cfg.Now = func() time.Time { return now }
	})

	var calls int
	fetch := func(context.Context) (json.RawMessage, error) {
		calls++
		return json.RawMessage(`{"n":1}`), nil
	}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := c.GetOrFetch(ctx, "k", false, fetch); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected fetch to run once within TTL, ran %d times", calls)
	}

	now = now.Add(5 * time.Minute)
	if _, err := c.GetOrFetch(ctx, "k", false, fetch); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected fetch to run again after expiry, ran %d times", calls)
	}

	hits, misses := c.Stats()
	if hits != 1 || misses != 2 {
		t.Errorf("unexpected stats: hits=%d misses=%d", hits, misses)
	}
}

func TestGetOrFetchForceRefreshBypassesCache(t *testing.T) {
	c := newTestClient(t, "", nil)
	ctx := context.Background()

	var calls int
	fetch := func(context.Context) (json.RawMessage, error) {
		calls++
		return json.RawMessage(`{}`), nil
	}

	_, _ = c.GetOrFetch(ctx, "k", false, fetch)
	_, _ = c.GetOrFetch(ctx, "k", true, fetch)
	_, _ = c.GetOrFetch(ctx, "k", false, fetch)
	if calls != 2 {
		t.Fatalf("expected 2 fetches, got %d", calls)
	}
}

func TestGetOrFetchCacheDisabled(t *testing.T) {
	c := newTestClient(t, "", func(cfg *Config) { cfg.CacheEnabled = false })
	var calls int
	fetch := func(context.Context) (json.RawMessage, error) {
		calls++
		return json.RawMessage(`{}`), nil
	}
	for i := 0; i < 3; i++ {
		_, _ = c.GetOrFetch(context.Background(), "k", false, fetch)
	}
	if calls != 3 {
		t.Fatalf("expected every call to fetch, got %d", calls)
	}
}

func TestGetOrFetchDoesNotCacheErrors(t *testing.T) {
	c := newTestClient(t, "", nil)
	var calls int
	fetch := func(context.Context) (json.RawMessage, error) {
		calls++
		return nil, errors.New("boom")
	}
	_, _ = c.GetOrFetch(context.Background(), "k", false, fetch)
	_, _ = c.GetOrFetch(context.Background(), "k", false, fetch)
	if calls != 2 {
		t.Fatalf("expected errors not to be cached, got %d fetches", calls)
	}
}

func TestGetJSONSendsHeadersAndCaches(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if got := r.Header.Get("User-Agent"); got != "weatherhub (ops@example.com)" {
			t.Errorf("unexpected user agent %q", got)
		}
		if r.URL.Query().Get("a") != "1" {
			t.Errorf("missing query parameter, got %q", r.URL.RawQuery)
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(cfg *Config) {
		cfg.Headers = map[string]string{"User-Agent": "weatherhub (ops@example.com)"}
	})

	params := url.Values{"a": {"1"}}
	for i := 0; i < 2; i++ {
		body, err := c.GetJSON(context.Background(), "/points", params, false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(body) != `{"ok":true}` {
			t.Fatalf("unexpected body %s", body)
		}
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Fatalf("expected a single upstream request, got %d", n)
	}
}

func TestFetchRetriesOn429ThenSucceeds(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	if _, err := c.Fetch(context.Background(), "/x", nil); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if n := atomic.LoadInt32(&hits); n != 3 {
		t.Fatalf("expected 3 attempts, got %d", n)
	}
}

func TestFetchReturnsRateLimitErrorAfterRetries(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(cfg *Config) { cfg.MaxRetries = 3 })
	_, err := c.Fetch(context.Background(), "/x", nil)
	if !errors.Is(err, ErrRateLimit) {
		t.Fatalf("expected ErrRateLimit, got %v", err)
	}
	if n := atomic.LoadInt32(&hits); n != 4 {
		t.Fatalf("expected 1 attempt plus 3 retries, got %d", n)
	}
}

func TestFetchClassifiesStatusCodesWithoutRetry(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, ErrNotFound},
		{http.StatusInternalServerError, ErrServer},
		{http.StatusBadRequest, ErrUnknown},
	}

	for _, tc := range cases {
		var hits int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&hits, 1)
			w.WriteHeader(tc.status)
		}))

		c := newTestClient(t, srv.URL, nil)
		_, err := c.Fetch(context.Background(), "/x", nil)
		srv.Close()

		if !errors.Is(err, tc.want) {
			t.Errorf("status %d: expected %v, got %v", tc.status, tc.want, err)
		}
		if n := atomic.LoadInt32(&hits); n != 1 {
			t.Errorf("status %d: expected no retries, got %d requests", tc.status, n)
		}
	}
}

func TestFetchInvalidJSONIsParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>not json</html>`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	_, err := c.Fetch(context.Background(), "/x", nil)
	if !errors.Is(err, ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
	if KindOf(err) != KindParse {
		t.Fatalf("expected KindParse, got %v", KindOf(err))
	}
}

func TestFetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(cfg *Config) {
		cfg.HTTPClient = &http.Client{Timeout: 20 * time.Millisecond}
	})
	_, err := c.Fetch(context.Background(), "/slow", nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestFetchNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	c := newTestClient(t, addr, nil)
	_, err := c.Fetch(context.Background(), "/x", nil)
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
}

func TestConcurrentRequestsShareRateLimiter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	const interval = 30 * time.Millisecond
	c := newTestClient(t, srv.URL, func(cfg *Config) {
		cfg.CacheEnabled = false
		cfg.MinRequestInterval = interval
	})

	const n = 4
	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.GetJSON(context.Background(), "/x", nil, false); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if elapsed := time.Since(start); elapsed < (n-1)*interval {
		t.Fatalf("expected at least %v for %d requests, took %v", (n-1)*interval, n, elapsed)
	}
}

func TestGetOrFetchSharesConcurrentMisses(t *testing.T) {
	c := newTestClient(t, "", nil)

	var calls int32
	release := make(chan struct{})
	fetch := func(context.Context) (json.RawMessage, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return json.RawMessage(`{"ok":true}`), nil
	}

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.GetOrFetch(context.Background(), "points/39.9643,-74.8099", false, fetch); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected concurrent misses to share one fetch, got %d", got)
	}
}

func TestGetOrFetchJoinedCallerOutlivesCancelledLeader(t *testing.T) {
	c := newTestClient(t, "", nil)

	var calls int32
	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(ctx context.Context) (json.RawMessage, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
		}
		select {
		case <-release:
			return json.RawMessage(`{"ok":true}`), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := c.GetOrFetch(leaderCtx, "k", false, fetch)
		leaderErr <- err
	}()
	<-started

	type result struct {
		v   json.RawMessage
		err error
	}
	joined := make(chan result, 1)
	go func() {
		v, err := c.GetOrFetch(context.Background(), "k", false, fetch)
		joined <- result{v, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	if err := <-leaderErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller: expected context.Canceled, got %v", err)
	}

	close(release)
	res := <-joined
	if res.err != nil {
		t.Fatalf("joined caller must not inherit the cancellation, got %v", res.err)
	}
	if string(res.v) != `{"ok":true}` {
		t.Errorf("unexpected value %s", res.v)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("expected one shared fetch, got %d", got)
	}
	if _, ok := c.cache.lookup("k"); !ok {
		t.Errorf("the shared result must be cached")
	}
}

func TestFetchRedactsSecretParams(t *testing.T) {
	const secret = "SUPERSECRET123"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != secret {
			t.Errorf("the real key must still be sent upstream, got %q", r.URL.Query().Get("key"))
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(cfg *Config) {
		cfg.RedactParams = []string{"key"}
	})
	_, err := c.Fetch(context.Background(), "/timeline", url.Values{"key": {secret}, "unitGroup": {"us"}})
	if !errors.Is(err, ErrServer) {
		t.Fatalf("expected ErrServer, got %v", err)
	}
	if strings.Contains(err.Error(), secret) {
		t.Fatalf("secret leaked into error: %v", err)
	}
	if !strings.Contains(err.Error(), "unitGroup=us") {
		t.Errorf("non-secret params should stay visible: %v", err)
	}
}

func TestFetchRedactsSecretParamsInTransportErrors(t *testing.T) {
	const secret = "SUPERSECRET123"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	c := newTestClient(t, addr, func(cfg *Config) {
		cfg.RedactParams = []string{"key"}
	})
	_, err := c.Fetch(context.Background(), "/timeline", url.Values{"key": {secret}})
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
	if strings.Contains(err.Error(), secret) {
		t.Fatalf("secret leaked into error: %v", err)
	}
}
