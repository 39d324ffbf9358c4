// Package monitor watches store pages for new app versions.
//
// The package implements:
//   - Source configuration via a TOML file, one table per source
//   - Page fetching with retries and browser-like headers
//   - Version selection across the candidate URLs of a source
//   - A JSON state file holding the last seen version per source
//
// A version is reported as an update only when a version was stored before
// and the new one compares different. The first observation of a source is
// never an update.
//
// Usage:
//
//	sources, err := monitor.LoadSources(path)
//	if err != nil {
//	    return err
//	}
//	m, err := monitor.New(sources, statePath, monitor.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	results, err := m.CheckAllSources(ctx)
package monitor
