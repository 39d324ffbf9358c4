package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/obentoo/storewatch/internal/common/logger"
	"github.com/obentoo/storewatch/internal/extract"
	"github.com/obentoo/storewatch/internal/version"
)

// Info messages carried by CheckResult
const (
	InfoNotRetrieved = "could not retrieve/extract version"
	InfoInitial      = "initial detection"
	InfoNoUpdate     = "no update available"
)

// Error variables for monitor errors
var (
	// ErrDuplicateSource is returned when two sources share a name
	ErrDuplicateSource = errors.New("duplicate source name")
)

// CheckResult is the outcome of checking one source.
type CheckResult struct {
	// Source is the name of the checked source
	Source string
	// HasUpdate is true only when a stored version existed and the observed one differs
	HasUpdate bool
	// NewVersion is the observed version, or the stored one when nothing changed.
	// Empty when no version could be extracted.
	NewVersion string
	// OldVersion is the stored version before this check, empty if none
	OldVersion string
	// Info describes the outcome
	Info string
	// URL is the page the reported version came from
	URL string
	// CheckedAt is when the check completed
	CheckedAt time.Time
}

// UpdateInfo returns the message for a version change.
func UpdateInfo(oldVersion, newVersion string) string {
	return fmt.Sprintf("updated from %s to %s", oldVersion, newVersion)
}

// Recorder receives every check result, for example to keep a history.
type Recorder interface {
	Record(ctx context.Context, result CheckResult) error
}

// Monitor checks sources for new versions and keeps the last seen version of
// each in a Store. Checks on one Monitor never overlap.
type Monitor struct {
	sources  []Source
	parsers  map[string]extract.Parser
	fetcher  Fetcher
	store    *Store
	recorder Recorder
	log      *logger.Logger
	nowFunc  func() time.Time
	mu       sync.Mutex
}

// Option is a functional option for configuring Monitor
type Option func(*Monitor) error

// WithFetcher sets the transport used to retrieve pages
func WithFetcher(f Fetcher) Option {
	return func(m *Monitor) error {
		if f == nil {
			return errors.New("fetcher must not be nil")
		}
		m.fetcher = f
		return nil
	}
}

// WithRecorder sets a recorder that receives every result
func WithRecorder(r Recorder) Option {
	return func(m *Monitor) error {
		m.recorder = r
		return nil
	}
}

// WithLogger sets the logger
func WithLogger(l *logger.Logger) Option {
	return func(m *Monitor) error {
		m.log = l
		return nil
	}
}

// WithNowFunc sets a custom time function for testing
func WithNowFunc(fn func() time.Time) Option {
	return func(m *Monitor) error {
		m.nowFunc = fn
		return nil
	}
}

// New creates a monitor for sources, keeping its state in the file at statePath.
// The state file is written in single form when there is exactly one source.
func New(sources []Source, statePath string, opts ...Option) (*Monitor, error) {
	if len(sources) == 0 {
		return nil, ErrNoSources
	}

	m := &Monitor{
		sources: append([]Source(nil), sources...),
		parsers: make(map[string]extract.Parser, len(sources)),
		log:     logger.Nop(),
		nowFunc: time.Now,
	}

	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}

	names := make([]string, 0, len(sources))
	for i := range m.sources {
		src := &m.sources[i]
		if _, dup := m.parsers[src.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSource, src.Name)
		}
		if err := ValidateSource(src); err != nil {
			return nil, err
		}
		p, err := extract.NewParser(src.Config)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src.Name, err)
		}
		m.parsers[src.Name] = p
		names = append(names, src.Name)
	}

	if m.fetcher == nil {
		client := NewRetryableHTTPClient()
		client.SetLogger(m.log)
		m.fetcher = client
	}

	m.store = NewStore(statePath, names, WithStoreNowFunc(m.nowFunc), WithStoreLogger(m.log))
	return m, nil
}

// Sources returns the configured sources in order
func (m *Monitor) Sources() []Source {
	return append([]Source(nil), m.sources...)
}

// Store returns the state store
func (m *Monitor) Store() *Store {
	return m.store
}

// CheckForUpdate checks the first configured source.
func (m *Monitor) CheckForUpdate(ctx context.Context) (CheckResult, error) {
	return m.CheckSource(ctx, m.sources[0].Name)
}

// CheckSource checks the named source and persists the state if it changed.
func (m *Monitor) CheckSource(ctx context.Context, name string) (CheckResult, error) {
	src, ok := m.source(name)
	if !ok {
		return CheckResult{}, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	res, extracted, err := m.check(ctx, src)
	if extracted {
		m.persist()
	}
	m.record(ctx, res)
	return res, err
}

// CheckAllSources checks every source in order and persists the state once.
// When ctx is cancelled the results gathered so far are returned with ctx.Err().
func (m *Monitor) CheckAllSources(ctx context.Context) (map[string]CheckResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	results := make(map[string]CheckResult, len(m.sources))
	dirty := false
	var firstErr error

	for i := range m.sources {
		src := &m.sources[i]
		res, extracted, err := m.check(ctx, src)
		dirty = dirty || extracted
		results[src.Name] = res
		m.record(ctx, res)

		if err != nil {
			firstErr = err
			if ctx.Err() != nil {
				break
			}
		}
	}

	if dirty {
		m.persist()
	}
	return results, firstErr
}

// Reset forgets every stored version and deletes the state file, so the next
// check is a first observation again.
func (m *Monitor) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Delete(); err != nil {
		m.log.Error("failed to reset version data: %v", err)
		return err
	}
	m.log.Info("version data reset")
	return nil
}

func (m *Monitor) source(name string) (*Source, bool) {
	for i := range m.sources {
		if m.sources[i].Name == name {
			return &m.sources[i], true
		}
	}
	return nil, false
}

// check runs fetch, extract and compare for one source and updates the
// in-memory state. extracted reports whether the state was touched.
// Caller must hold m.mu.
func (m *Monitor) check(ctx context.Context, src *Source) (res CheckResult, extracted bool, err error) {
	log := m.log.With("source", src.Name)
	res = CheckResult{Source: src.Name, Info: InfoNotRetrieved}

	var found []string
	var urls []string
	for _, u := range src.URLs {
		if ctx.Err() != nil {
			break
		}

		log.Info("checking URL: %s", u)
		status, body, ferr := m.fetcher.Fetch(ctx, u, src.Headers)
		if ferr != nil {
			if ctx.Err() != nil {
				break
			}
			log.Warn("failed to fetch %s: %v", u, ferr)
			continue
		}
		if status != http.StatusOK {
			log.Warn("failed to fetch %s: status %d", u, status)
			continue
		}

		v, perr := m.parsers[src.Name].Parse(body)
		if perr != nil {
			log.Debug("no version in %s: %v", u, perr)
			continue
		}
		log.Debug("found version %s at %s", v, u)
		found = append(found, v)
		urls = append(urls, u)
	}

	res.CheckedAt = m.nowFunc().UTC()
	if ctx.Err() != nil {
		return res, false, ctx.Err()
	}
	if len(found) == 0 {
		log.Warn("could not retrieve version")
		return res, false, nil
	}

	latest, err := version.Max(found...)
	if err != nil {
		return res, false, err
	}
	for i, v := range found {
		if v == latest {
			res.URL = urls[i]
			break
		}
	}

	stored, ok := m.store.Version(src.Name)
	if !ok {
		m.store.Record(src.Name, latest)
		res.NewVersion = latest
		res.Info = InfoInitial
		log.Info("initial version detected: %s", latest)
		return res, true, nil
	}

	res.OldVersion = stored
	cmp, err := version.Compare(latest, stored)
	if err != nil {
		return res, false, err
	}
	if cmp != 0 {
		m.store.Record(src.Name, latest)
		res.HasUpdate = true
		res.NewVersion = latest
		res.Info = UpdateInfo(stored, latest)
		log.Info("new version detected: %s -> %s", stored, latest)
		return res, true, nil
	}

	m.store.Touch()
	res.NewVersion = stored
	res.Info = InfoNoUpdate
	log.Info("no update available (%s)", stored)
	return res, true, nil
}

// persist saves the state, logging failures. Caller must hold m.mu.
func (m *Monitor) persist() {
	if err := m.store.Save(); err != nil {
		m.log.Error("failed to save version data: %v", err)
		return
	}
	m.log.Debug("saved version data to %s", m.store.Path())
}

func (m *Monitor) record(ctx context.Context, res CheckResult) {
	if m.recorder == nil || ctx.Err() != nil {
		return
	}
	if err := m.recorder.Record(ctx, res); err != nil {
		m.log.Warn("failed to record result for %s: %v", res.Source, err)
	}
}
