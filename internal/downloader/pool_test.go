package downloader

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	errs "albumgrab/pkg/errors"
)

// mockFetcher fails the first failuresPerURL attempts for each URL, then
// succeeds
type mockFetcher struct {
	failuresPerURL int
	attempts       map[string]int
	mu             sync.Mutex
	fetchCount     int32
}

func newMockFetcher(failuresPerURL int) *mockFetcher {
	return &mockFetcher{
		failuresPerURL: failuresPerURL,
		attempts:       make(map[string]int),
	}
}

func (m *mockFetcher) Stream(ctx context.Context, url, referer string) (io.ReadCloser, error) {
	atomic.AddInt32(&m.fetchCount, 1)
	m.mu.Lock()
	m.attempts[url]++
	n := m.attempts[url]
	m.mu.Unlock()

	if n <= m.failuresPerURL {
		return nil, &errs.Error{Type: errs.TypeTransport, Message: fmt.Sprintf("connection refused (attempt %d)", n)}
	}
	return io.NopCloser(strings.NewReader("image data")), nil
}

func (m *mockFetcher) attemptsFor(url string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts[url]
}

// mockStore records saved images keyed by index
type mockStore struct {
	saved    map[int]string
	existing map[int]bool
	saveErr  error
	mu       sync.Mutex
}

func newMockStore() *mockStore {
	return &mockStore{
		saved:    make(map[int]string),
		existing: make(map[int]bool),
	}
}

func (m *mockStore) HasImage(dir string, index int, url string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.existing[index] || m.saved[index] != ""
}

func (m *mockStore) SaveImage(dir string, index int, url string, r io.Reader) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	if _, err := io.ReadAll(r); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[index] = url
	return nil
}

func (m *mockStore) savedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

// noSleep skips retry delays in tests
func noSleep(ctx context.Context, d time.Duration) error {
	return nil
}

func collectResults(pool *Pool) func() []Result {
	out := make(chan []Result, 1)
	go func() {
		var results []Result
		for result := range pool.Results() {
			results = append(results, result)
		}
		out <- results
	}()
	return func() []Result { return <-out }
}

func TestNewPoolDefaults(t *testing.T) {
	pool := NewPool(context.Background(), Options{}, newMockFetcher(0), newMockStore(), nil)
	defer pool.cancel()

	if pool.opts.Workers != 3 {
		t.Errorf("expected 3 workers by default, got %d", pool.opts.Workers)
	}
	if pool.opts.Retries != 3 {
		t.Errorf("expected 3 retries by default, got %d", pool.opts.Retries)
	}
	if pool.opts.RetryDelay != time.Second {
		t.Errorf("expected 1s retry delay by default, got %v", pool.opts.RetryDelay)
	}
}

func TestPoolDownloadsAllTasks(t *testing.T) {
	fetcher := newMockFetcher(0)
	store := newMockStore()

	pool := NewPool(context.Background(), Options{Workers: 3, Retries: 3, Sleep: noSleep}, fetcher, store, nil)
	pool.Start()
	results := collectResults(pool)

	numTasks := 10
	for i := 0; i < numTasks; i++ {
		task := Task{
			URL:   fmt.Sprintf("https://example.com/photo%d.jpg", i),
			Index: i,
			Dir:   "album",
		}
		if err := pool.Submit(task); err != nil {
			t.Fatalf("failed to submit task %d: %v", i, err)
		}
	}
	pool.Stop()

	got := results()
	if len(got) != numTasks {
		t.Fatalf("expected %d results, got %d", numTasks, len(got))
	}
	for _, r := range got {
		if r.Failed() {
			t.Errorf("task %d failed unexpectedly: %v", r.Task.Index, r.Err)
		}
	}
	if store.savedCount() != numTasks {
		t.Errorf("expected %d saved images, got %d", numTasks, store.savedCount())
	}
}

func TestPoolRetriesThenSucceeds(t *testing.T) {
	// Fails twice, succeeds on the third attempt: must be reported as a
	// success and leave nothing in the failure record.
	fetcher := newMockFetcher(2)
	store := newMockStore()

	pool := NewPool(context.Background(), Options{Workers: 1, Retries: 3, Sleep: noSleep}, fetcher, store, nil)
	pool.Start()
	results := collectResults(pool)

	url := "https://example.com/flaky.jpg"
	if err := pool.Submit(Task{URL: url, Index: 0, Dir: "album"}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	pool.Stop()

	got := results()
	if len(got) != 1 {
		t.Fatalf("expected 1 result, got %d", len(got))
	}
	if got[0].Failed() {
		t.Fatalf("expected success after retries, got error: %v", got[0].Err)
	}
	if got[0].Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", got[0].Attempts)
	}
	if store.savedCount() != 1 {
		t.Errorf("expected 1 saved image, got %d", store.savedCount())
	}
}

func TestPoolReportsFinalAttemptFailure(t *testing.T) {
	// All attempts fail: exactly retries attempts occur, and only the last
	// attempt's error is reported.
	fetcher := newMockFetcher(10)
	store := newMockStore()

	pool := NewPool(context.Background(), Options{Workers: 1, Retries: 3, Sleep: noSleep}, fetcher, store, nil)
	pool.Start()
	results := collectResults(pool)

	url := "https://example.com/broken.jpg"
	if err := pool.Submit(Task{URL: url, Index: 0, Dir: "album"}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	pool.Stop()

	got := results()
	if len(got) != 1 {
		t.Fatalf("expected 1 result, got %d", len(got))
	}
	if !got[0].Failed() {
		t.Fatal("expected failure")
	}
	if fetcher.attemptsFor(url) != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", fetcher.attemptsFor(url))
	}
	if !strings.Contains(got[0].Err.Error(), "attempt 3") {
		t.Errorf("expected final attempt's error, got: %v", got[0].Err)
	}
	if store.savedCount() != 0 {
		t.Errorf("expected no saved images, got %d", store.savedCount())
	}
}

func TestPoolSkipsExistingImages(t *testing.T) {
	fetcher := newMockFetcher(0)
	store := newMockStore()
	store.existing[0] = true

	pool := NewPool(context.Background(), Options{Workers: 1, Retries: 3, Sleep: noSleep}, fetcher, store, nil)
	pool.Start()
	results := collectResults(pool)

	if err := pool.Submit(Task{URL: "https://example.com/done.jpg", Index: 0, Dir: "album"}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	pool.Stop()

	got := results()
	if len(got) != 1 || got[0].Failed() {
		t.Fatalf("expected one success, got %+v", got)
	}
	if atomic.LoadInt32(&fetcher.fetchCount) != 0 {
		t.Errorf("expected no fetches for existing image, got %d", fetcher.fetchCount)
	}
}

func TestPoolDoesNotRetryParseErrors(t *testing.T) {
	fetcher := newMockFetcher(0)
	store := newMockStore()
	store.saveErr = &errs.Error{Type: errs.TypeParse, Message: "bad payload"}

	pool := NewPool(context.Background(), Options{Workers: 1, Retries: 3, Sleep: noSleep}, fetcher, store, nil)
	pool.Start()
	results := collectResults(pool)

	url := "https://example.com/once.jpg"
	if err := pool.Submit(Task{URL: url, Index: 0, Dir: "album"}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	pool.Stop()

	got := results()
	if len(got) != 1 || !got[0].Failed() {
		t.Fatalf("expected one failure, got %+v", got)
	}
	if got[0].Attempts != 1 {
		t.Errorf("expected a single attempt for a non-retryable error, got %d", got[0].Attempts)
	}
}
