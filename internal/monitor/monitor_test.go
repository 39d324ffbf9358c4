package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/prop"

	"github.com/obentoo/storewatch/internal/extract"
	"github.com/obentoo/storewatch/internal/version"
)

type fakePage struct {
	status int
	body   string
	err    error
}

// fakeFetcher serves canned pages and tracks concurrent calls.
type fakeFetcher struct {
	mu       sync.Mutex
	pages    map[string]fakePage
	calls    []string
	inFlight int32
	maxSeen  int32
	delay    time.Duration
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{pages: make(map[string]fakePage)}
}

func (f *fakeFetcher) set(url string, page fakePage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[url] = page
}

func (f *fakeFetcher) serve(url, body string) {
	f.set(url, fakePage{status: http.StatusOK, body: body})
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string, headers map[string]string) (int, []byte, error) {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		seen := atomic.LoadInt32(&f.maxSeen)
		if n <= seen || atomic.CompareAndSwapInt32(&f.maxSeen, seen, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	page, ok := f.pages[url]
	if !ok {
		return http.StatusNotFound, nil, nil
	}
	if page.err != nil {
		return 0, nil, page.err
	}
	return page.status, []byte(page.body), nil
}

// memRecorder keeps recorded results in memory.
type memRecorder struct {
	mu      sync.Mutex
	results []CheckResult
	err     error
}

func (r *memRecorder) Record(ctx context.Context, res CheckResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
	return r.err
}

const (
	downloadURL = "https://fun-run-4.en.uptodown.com/android/download"
	mainURL     = "https://fun-run-4.en.uptodown.com/android"
)

func uptodownSource() Source {
	return Source{
		Name:   "uptodown",
		URLs:   []string{downloadURL, mainURL},
		Config: extract.Config{Parser: extract.ParserPage, Product: "Fun Run 4"},
	}
}

func newTestMonitor(t *testing.T, f Fetcher, sources ...Source) (*Monitor, string) {
	t.Helper()
	if len(sources) == 0 {
		sources = []Source{uptodownSource()}
	}
	statePath := filepath.Join(t.TempDir(), "version_data.json")
	m, err := New(sources, statePath, WithFetcher(f), WithNowFunc(func() time.Time { return fixedNow }))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return m, statePath
}

func page(v string) string {
	return fmt.Sprintf("<html><body><h1>Fun Run 4 %s</h1></body></html>", v)
}

// =============================================================================
// Property-Based Tests
// =============================================================================

// TestUpdateClassification checks first observation and change detection.
func TestUpdateClassification(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("first observation is never an update", prop.ForAll(
		func(v string) bool {
			f := newFakeFetcher()
			f.serve(downloadURL, page(v))
			m, _ := newTestMonitor(t, f)

			res, err := m.CheckForUpdate(context.Background())
			return err == nil && !res.HasUpdate && res.NewVersion == v && res.Info == InfoInitial
		},
		genStoreVersion(),
	))

	properties.Property("second observation is an update iff versions compare different", prop.ForAll(
		func(a, b string) bool {
			f := newFakeFetcher()
			f.serve(downloadURL, page(a))
			m, _ := newTestMonitor(t, f)
			if _, err := m.CheckForUpdate(context.Background()); err != nil {
				return false
			}

			f.serve(downloadURL, page(b))
			res, err := m.CheckForUpdate(context.Background())
			if err != nil {
				return false
			}
			differs := version.MustCompare(a, b) != 0
			if res.HasUpdate != differs {
				return false
			}
			if differs {
				return res.NewVersion == b && res.Info == UpdateInfo(a, b)
			}
			return res.NewVersion == a && res.Info == InfoNoUpdate
		},
		genStoreVersion(),
		genStoreVersion(),
	))

	properties.TestingRun(t)
}

// =============================================================================
// Unit Tests
// =============================================================================

func TestMonitorLifecycle(t *testing.T) {
	f := newFakeFetcher()
	f.serve(downloadURL, page("1.0.0"))
	m, statePath := newTestMonitor(t, f)
	ctx := context.Background()

	steps := []struct {
		serve     string
		reset     bool
		hasUpdate bool
		version   string
		info      string
	}{
		{serve: "1.0.0", version: "1.0.0", info: InfoInitial},
		{serve: "1.0.0", version: "1.0.0", info: InfoNoUpdate},
		{serve: "1.1.0", hasUpdate: true, version: "1.1.0", info: "updated from 1.0.0 to 1.1.0"},
		{serve: "1.1.0", reset: true, version: "1.1.0", info: InfoInitial},
	}

	for i, step := range steps {
		if step.reset {
			if err := m.Reset(); err != nil {
				t.Fatalf("step %d: Reset failed: %v", i, err)
			}
			if _, err := os.Stat(statePath); !os.IsNotExist(err) {
				t.Fatalf("step %d: state file should be deleted", i)
			}
		}
		f.serve(downloadURL, page(step.serve))

		res, err := m.CheckForUpdate(ctx)
		if err != nil {
			t.Fatalf("step %d: unexpected error: %v", i, err)
		}
		if res.HasUpdate != step.hasUpdate || res.NewVersion != step.version || res.Info != step.info {
			t.Errorf("step %d: got %+v, want update=%v version=%s info=%q", i, res, step.hasUpdate, step.version, step.info)
		}
	}

	// State survives a restart
	again, err := New([]Source{uptodownSource()}, statePath, WithFetcher(f))
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := again.Store().Version("uptodown"); !ok || v != "1.1.0" {
		t.Errorf("reloaded version = %q (%v), want 1.1.0", v, ok)
	}
}

func TestMonitorNothingExtracted(t *testing.T) {
	f := newFakeFetcher()
	f.set(downloadURL, fakePage{err: ErrTransport})
	f.serve(mainURL, "<html>maintenance</html>")
	m, statePath := newTestMonitor(t, f)

	res, err := m.CheckForUpdate(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.HasUpdate || res.NewVersion != "" || res.Info != InfoNotRetrieved {
		t.Errorf("got %+v, want not-retrieved result", res)
	}
	if _, err := os.Stat(statePath); !os.IsNotExist(err) {
		t.Error("state file should not be written when nothing was extracted")
	}
}

func TestMonitorNotRetrievedKeepsStoredVersion(t *testing.T) {
	f := newFakeFetcher()
	f.serve(downloadURL, page("3.0"))
	m, _ := newTestMonitor(t, f)
	if _, err := m.CheckForUpdate(context.Background()); err != nil {
		t.Fatal(err)
	}

	f.set(downloadURL, fakePage{status: http.StatusServiceUnavailable})
	res, err := m.CheckForUpdate(context.Background())
	if err != nil || res.Info != InfoNotRetrieved {
		t.Fatalf("got %+v, %v", res, err)
	}
	if v, _ := m.Store().Version("uptodown"); v != "3.0" {
		t.Errorf("stored version = %q, want 3.0", v)
	}
}

func TestMonitorHighestAcrossURLs(t *testing.T) {
	tests := []struct {
		name     string
		first    string
		second   string
		want     string
		wantFrom string
	}{
		{"second higher", "1.9.0", "1.10.0", "1.10.0", mainURL},
		{"first higher", "2.0", "1.99", "2.0", downloadURL},
		{"tie keeps first", "1.2", "1.2.0", "1.2", downloadURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeFetcher()
			f.serve(downloadURL, page(tt.first))
			f.serve(mainURL, page(tt.second))
			m, _ := newTestMonitor(t, f)

			res, err := m.CheckForUpdate(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if res.NewVersion != tt.want || res.URL != tt.wantFrom {
				t.Errorf("got %s from %s, want %s from %s", res.NewVersion, res.URL, tt.want, tt.wantFrom)
			}
		})
	}
}

func TestMonitorSkipsFailingURLs(t *testing.T) {
	src := uptodownSource()
	src.URLs = []string{"https://a.test/", "https://b.test/", mainURL}

	f := newFakeFetcher()
	f.set("https://a.test/", fakePage{status: http.StatusForbidden, body: page("9.9.9")})
	f.set("https://b.test/", fakePage{err: fmt.Errorf("%w: connection refused", ErrTransport)})
	f.serve(mainURL, page("2.31.0"))
	m, _ := newTestMonitor(t, f, src)

	res, err := m.CheckForUpdate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.NewVersion != "2.31.0" {
		t.Errorf("NewVersion = %q, want 2.31.0 (non-2xx body must be ignored)", res.NewVersion)
	}
	if len(f.calls) != 3 {
		t.Errorf("expected every URL to be tried, got %v", f.calls)
	}
}

func TestMonitorEqualByComparatorIsNoUpdate(t *testing.T) {
	f := newFakeFetcher()
	f.serve(downloadURL, page("1.2"))
	m, _ := newTestMonitor(t, f)
	if _, err := m.CheckForUpdate(context.Background()); err != nil {
		t.Fatal(err)
	}

	f.serve(downloadURL, page("1.2.0"))
	res, err := m.CheckForUpdate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.HasUpdate || res.NewVersion != "1.2" || res.Info != InfoNoUpdate {
		t.Errorf("got %+v, want no update keeping 1.2", res)
	}
}

func TestMonitorCheckAllSources(t *testing.T) {
	appStore := Source{
		Name:   "appstore",
		URLs:   []string{"https://itunes.apple.com/lookup?id=1451163837"},
		Config: extract.Config{Parser: extract.ParserJSON, Path: "results[0].version"},
	}

	f := newFakeFetcher()
	f.serve(downloadURL, page("2.31.0"))
	f.serve(appStore.URLs[0], `{"resultCount":1,"results":[{"version":"2.30.1"}]}`)
	m, statePath := newTestMonitor(t, f, uptodownSource(), appStore)

	results, err := m.CheckAllSources(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results["uptodown"].NewVersion != "2.31.0" || results["appstore"].NewVersion != "2.30.1" {
		t.Errorf("unexpected results: %+v", results)
	}

	reloaded := NewStore(statePath, []string{"uptodown", "appstore"})
	if reloaded.Layout() != LayoutMulti {
		t.Error("two sources should use the multi layout")
	}
	if v, _ := reloaded.Version("appstore"); v != "2.30.1" {
		t.Errorf("persisted appstore = %q", v)
	}

	res, err := m.CheckSource(context.Background(), "appstore")
	if err != nil || res.Info != InfoNoUpdate {
		t.Errorf("CheckSource() = %+v, %v", res, err)
	}
	if _, err := m.CheckSource(context.Background(), "play"); !errors.Is(err, ErrUnknownSource) {
		t.Errorf("CheckSource(play) error = %v, want ErrUnknownSource", err)
	}
}

func TestMonitorPersistenceFailureIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}

	f := newFakeFetcher()
	f.serve(downloadURL, page("1.0.0"))
	m, err := New([]Source{uptodownSource()}, filepath.Join(blocker, "state.json"), WithFetcher(f))
	if err != nil {
		t.Fatal(err)
	}

	res, err := m.CheckForUpdate(context.Background())
	if err != nil {
		t.Fatalf("persistence failure must not surface: %v", err)
	}
	if res.Info != InfoInitial {
		t.Errorf("Info = %q, want initial detection", res.Info)
	}

	res, _ = m.CheckForUpdate(context.Background())
	if res.Info != InfoNoUpdate {
		t.Errorf("in-memory state should still be kept, got %q", res.Info)
	}
}

func TestMonitorCancelledContext(t *testing.T) {
	f := newFakeFetcher()
	f.serve(downloadURL, page("1.0.0"))
	m, statePath := newTestMonitor(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := m.CheckForUpdate(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if res.Info != InfoNotRetrieved {
		t.Errorf("Info = %q", res.Info)
	}
	if _, ok := m.Store().Version("uptodown"); ok {
		t.Error("cancelled check must not store a version")
	}
	if _, err := os.Stat(statePath); !os.IsNotExist(err) {
		t.Error("cancelled check must not write the state file")
	}
}

func TestMonitorChecksDoNotOverlap(t *testing.T) {
	f := newFakeFetcher()
	f.delay = 5 * time.Millisecond
	f.serve(downloadURL, page("1.0.0"))
	m, _ := newTestMonitor(t, f)

	var wg sync.WaitGroup
	var initial int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := m.CheckForUpdate(context.Background())
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if res.Info == InfoInitial {
				atomic.AddInt32(&initial, 1)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&f.maxSeen); got != 1 {
		t.Errorf("max concurrent fetches = %d, want 1", got)
	}
	if initial != 1 {
		t.Errorf("initial detection reported %d times, want 1", initial)
	}
}

func TestMonitorRecorder(t *testing.T) {
	f := newFakeFetcher()
	f.serve(downloadURL, page("1.0.0"))
	rec := &memRecorder{err: errors.New("disk full")}

	m, err := New([]Source{uptodownSource()}, filepath.Join(t.TempDir(), "s.json"), WithFetcher(f), WithRecorder(rec))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := m.CheckForUpdate(context.Background()); err != nil {
		t.Fatalf("recorder failure must not surface: %v", err)
	}
	if len(rec.results) != 1 || rec.results[0].Source != "uptodown" || rec.results[0].NewVersion != "1.0.0" {
		t.Errorf("recorded %+v", rec.results)
	}
}

func TestNewValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.json")

	if _, err := New(nil, path); !errors.Is(err, ErrNoSources) {
		t.Errorf("error = %v, want ErrNoSources", err)
	}
	if _, err := New([]Source{uptodownSource(), uptodownSource()}, path); !errors.Is(err, ErrDuplicateSource) {
		t.Errorf("error = %v, want ErrDuplicateSource", err)
	}

	bad := uptodownSource()
	bad.Parser = "yaml"
	if _, err := New([]Source{bad}, path); !errors.Is(err, extract.ErrInvalidParserType) {
		t.Errorf("error = %v, want ErrInvalidParserType", err)
	}
	if _, err := New([]Source{uptodownSource()}, path, WithFetcher(nil)); err == nil {
		t.Error("nil fetcher should be rejected")
	}
}

func TestMonitorWithHTTPClient(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&hits, 1)
		if n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if r.Header.Get("User-Agent") != BrowserUserAgent {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		fmt.Fprint(w, `<div><span>Version</span> <span class="v">4.2.0</span></div>`)
	}))
	defer server.Close()

	client := newTestClient(server)
	src := Source{Name: "store", URLs: []string{server.URL + "/app"}}
	m, err := New([]Source{src}, filepath.Join(t.TempDir(), "s.json"), WithFetcher(client))
	if err != nil {
		t.Fatal(err)
	}

	res, err := m.CheckForUpdate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.NewVersion != "4.2.0" || res.Info != InfoInitial {
		t.Errorf("got %+v", res)
	}
}
