package monitor

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() func() time.Time {
	return func() time.Time { return fixedNow }
}

// =============================================================================
// Property-Based Tests
// =============================================================================

// TestStoreRoundTrip checks that a saved store reloads the same versions.
func TestStoreRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("multi-source state survives save and load", prop.ForAll(
		func(play, appstore string, haveAppStore bool) bool {
			path := filepath.Join(t.TempDir(), "state.json")
			names := []string{"play", "appstore"}

			s := NewStore(path, names, WithStoreNowFunc(fixedClock()))
			s.Record("play", play)
			if haveAppStore {
				s.Record("appstore", appstore)
			}
			if err := s.Save(); err != nil {
				t.Logf("Save failed: %v", err)
				return false
			}

			loaded := NewStore(path, names)
			got, ok := loaded.Version("play")
			if !ok || got != play {
				return false
			}
			got, ok = loaded.Version("appstore")
			if ok != haveAppStore || (haveAppStore && got != appstore) {
				return false
			}
			ts, ok := loaded.LastCheck()
			return ok && ts.Equal(fixedNow)
		},
		genStoreVersion(),
		genStoreVersion(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func genStoreVersion() gopter.Gen {
	return gen.RegexMatch(`^[1-9][0-9]{0,2}(\.[0-9]{1,3}){0,3}$`)
}

// =============================================================================
// Unit Tests
// =============================================================================

func TestStoreMissingFileIsFresh(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "nope.json"), []string{"play"})
	if _, ok := s.Version("play"); ok {
		t.Error("fresh store should have no version")
	}
	if _, ok := s.LastCheck(); ok {
		t.Error("fresh store should have no last check")
	}
}

func TestStoreCorruptFileIsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{broken"), 0644); err != nil {
		t.Fatal(err)
	}

	s := NewStore(path, []string{"play"})
	if _, ok := s.Version("play"); ok {
		t.Error("corrupt file should load as fresh state")
	}
	if err := s.Load(); !errors.Is(err, ErrStateCorrupted) {
		t.Errorf("Load() error = %v, want ErrStateCorrupted", err)
	}
}

func TestStoreSingleLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := NewStore(path, []string{"play"}, WithStoreNowFunc(fixedClock()))
	if s.Layout() != LayoutSingle {
		t.Fatalf("Layout() = %v, want single", s.Layout())
	}

	s.Record("play", "2.31.0")
	if err := s.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	var raw map[string]interface{}
	data, _ := os.ReadFile(path)
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("state file is not JSON: %v", err)
	}
	if raw["version"] != "2.31.0" {
		t.Errorf("version = %v, want 2.31.0", raw["version"])
	}
	if raw["last_check"] != "2024-03-01T12:00:00Z" {
		t.Errorf("last_check = %v", raw["last_check"])
	}
	if _, ok := raw["versions"]; ok {
		t.Error("single layout should not write versions")
	}
}

func TestStoreMultiLayoutWritesNulls(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := NewStore(path, []string{"play", "appstore"})
	s.Record("play", "1.0")
	if err := s.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	var raw struct {
		Versions map[string]*string `json:"versions"`
	}
	data, _ := os.ReadFile(path)
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	if v, ok := raw.Versions["appstore"]; !ok || v != nil {
		t.Errorf("appstore should be written as null, got %v (present %v)", v, ok)
	}
	if v := raw.Versions["play"]; v == nil || *v != "1.0" {
		t.Errorf("play = %v, want 1.0", v)
	}
}

func TestStoreReadsSingleFormIntoFirstSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	content := `{"version": "4.2.1", "last_check": "2024-01-02T03:04:05Z"}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	s := NewStore(path, []string{"play", "appstore"})
	if v, ok := s.Version("play"); !ok || v != "4.2.1" {
		t.Errorf("play = %q (%v), want 4.2.1", v, ok)
	}
	if _, ok := s.Version("appstore"); ok {
		t.Error("appstore should be absent")
	}
}

func TestStoreNullAndInvalidVersionsAreAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	content := `{"versions": {"play": null, "appstore": "latest"}, "last_check": "yesterday"}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	s := NewStore(path, []string{"play", "appstore"})
	for _, name := range []string{"play", "appstore"} {
		if v, ok := s.Version(name); ok {
			t.Errorf("%s = %q, want absent", name, v)
		}
	}
	if _, ok := s.LastCheck(); ok {
		t.Error("invalid last_check should be absent")
	}
}

func TestStoreDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := NewStore(path, []string{"play"})
	s.Record("play", "1.0")
	if err := s.Save(); err != nil {
		t.Fatal(err)
	}

	if err := s.Delete(); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("state file should be removed")
	}
	if _, ok := s.Version("play"); ok {
		t.Error("memory should be cleared")
	}

	// Deleting again is fine
	if err := s.Delete(); err != nil {
		t.Errorf("second Delete failed: %v", err)
	}
}

func TestStoreSaveFailureWrapsPersistence(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}

	s := NewStore(filepath.Join(blocker, "state.json"), []string{"play"})
	s.Record("play", "1.0")
	if err := s.Save(); !errors.Is(err, ErrPersistence) {
		t.Errorf("Save() error = %v, want ErrPersistence", err)
	}
}

func TestStoreAtomicWrite(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(filepath.Join(dir, "state.json"), []string{"play"})
	s.Record("play", "1.0")
	if err := s.Save(); err != nil {
		t.Fatal(err)
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0].Name() != "state.json" {
		t.Errorf("unexpected files after save: %v", files)
	}
}
