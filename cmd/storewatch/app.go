package main

import (
	"fmt"
	"time"

	"github.com/obentoo/storewatch/internal/common/config"
	"github.com/obentoo/storewatch/internal/history"
	"github.com/obentoo/storewatch/internal/monitor"
)

// app bundles the monitor with the resources it holds open.
type app struct {
	monitor *monitor.Monitor
	history *history.DB
}

func (a *app) Close() {
	if a.history != nil {
		a.history.Close()
	}
}

// newHTTPClient configures the retrying client from the http config section.
func newHTTPClient(c *config.Config) *monitor.RetryableHTTPClient {
	rc := monitor.DefaultRetryConfig()
	rc.MaxRetries = c.HTTP.MaxRetries
	rc.Timeout = c.HTTPTimeout()

	client := monitor.NewRetryableHTTPClientWithConfig(rc)
	client.SetLogger(log)
	if c.HTTP.UserAgent != "" {
		headers := monitor.DefaultHeaders()
		headers["User-Agent"] = c.HTTP.UserAgent
		client.SetDefaultHeaders(headers)
	}
	return client
}

// newApp loads sources, opens the history database when configured and
// builds the monitor.
func newApp(c *config.Config, opts ...monitor.Option) (*app, error) {
	sourcesPath, err := c.SourcesPath()
	if err != nil {
		return nil, err
	}
	sources, err := monitor.LoadOrCreateSources(sourcesPath)
	if err != nil {
		return nil, err
	}

	statePath, err := c.StatePath()
	if err != nil {
		return nil, err
	}

	a := &app{}
	options := []monitor.Option{
		monitor.WithLogger(log),
		monitor.WithFetcher(newHTTPClient(c)),
	}

	historyPath, err := c.HistoryPath()
	if err != nil {
		return nil, err
	}
	if historyPath != "" {
		db, err := history.Open(historyPath, log)
		if err != nil {
			return nil, fmt.Errorf("opening history: %w", err)
		}
		a.history = db
		options = append(options, monitor.WithRecorder(db))
	}

	m, err := monitor.New(sources, statePath, append(options, opts...)...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.monitor = m
	return a, nil
}

// formatTime renders a timestamp in local time for terminal output
func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}
