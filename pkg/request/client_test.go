package request

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"notemap/pkg/cache"
	"notemap/pkg/db"
	"notemap/pkg/store"
	"notemap/pkg/tracker"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	d, err := db.Init(filepath.Join(t.TempDir(), "client_test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })
	c := New(cache.NewSQLiteCache(store.NewSQLiteStore(d)), tracker.New())
	c.gap = 0
	return c
}

func TestGet_Sequential(t *testing.T) {
	var conc int32
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current := atomic.AddInt32(&conc, 1)
		defer atomic.AddInt32(&conc, -1)

		// One host is one provider, so requests must not overlap.
		if current > 1 {
			t.Errorf("Concurrency detected! Expected sequential.")
		}
		time.Sleep(20 * time.Millisecond)
		w.WriteHeader(200)
		if _, err := w.Write([]byte("ok")); err != nil {
			t.Logf("Write failed: %v", err)
		}
	}))
	defer svr.Close()

	client := newTestClient(t)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.Get(context.Background(), svr.URL, ""); err != nil {
				t.Errorf("Get failed: %v", err)
			}
		}()
	}
	wg.Wait()
}

func TestGet_Retry(t *testing.T) {
	var attempts int32
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(200)
		if _, err := w.Write([]byte("success")); err != nil {
			t.Logf("Write failed: %v", err)
		}
	}))
	defer svr.Close()

	client := newTestClient(t)

	body, err := client.Get(context.Background(), svr.URL, "")
	if err != nil {
		t.Fatalf("Expected success after retry, got error: %v", err)
	}
	if string(body) != "success" {
		t.Errorf("Expected 'success', got '%s'", string(body))
	}
	if n := atomic.LoadInt32(&attempts); n != 3 {
		t.Errorf("Expected 3 attempts, got %d", n)
	}
}

func TestGet_Cache(t *testing.T) {
	var hits int32
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte(`{"version":8}`))
	}))
	defer svr.Close()

	client := newTestClient(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		body, err := client.Get(ctx, svr.URL, "style:test")
		if err != nil {
			t.Fatal(err)
		}
		if string(body) != `{"version":8}` {
			t.Errorf("unexpected body %q", body)
		}
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("Expected 1 upstream hit, got %d", n)
	}

	stats := client.Tracker().Snapshot()
	var cacheHits int64
	for _, s := range stats {
		cacheHits += s.CacheHits
	}
	if cacheHits != 1 {
		t.Errorf("Expected 1 tracked cache hit, got %d", cacheHits)
	}
}

func TestGet_ClientError(t *testing.T) {
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer svr.Close()

	if _, err := newTestClient(t).Get(context.Background(), svr.URL, ""); err == nil {
		t.Fatal("Expected error for 404")
	}
}

func TestGet_InvalidScheme(t *testing.T) {
	if _, err := New(nil, nil).Get(context.Background(), "mapbox://styles/u/s", ""); err == nil {
		t.Fatal("Expected error for non-http url")
	}
}

func TestConfigure_Retries(t *testing.T) {
	var hits int32
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer svr.Close()

	client := newTestClient(t)
	client.Configure(Settings{Retries: 1, Timeout: 5 * time.Second})

	if _, err := client.Get(context.Background(), svr.URL, ""); err == nil {
		t.Fatal("Expected error after retries")
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("Expected 1 attempt, got %d", n)
	}
	if client.httpClient.Timeout != 5*time.Second {
		t.Errorf("Timeout not applied: %v", client.httpClient.Timeout)
	}
}
