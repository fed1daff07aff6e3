// Package probe runs the startup checks of the server.
package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds a single check.
const DefaultTimeout = 5 * time.Second

// CheckFunc returns nil when the check passes.
type CheckFunc func(ctx context.Context) error

// Probe is a single startup check.
type Probe struct {
	Name  string
	Check CheckFunc
	// Critical failures abort startup.
	Critical bool
}

// Result is the outcome of one probe.
type Result struct {
	Probe    Probe
	Error    error
	Duration time.Duration
}

// Run executes the probes concurrently, each bounded by timeout.
// Results keep the order of probes.
func Run(ctx context.Context, probes []Probe, timeout time.Duration) []Result {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	results := make([]Result, len(probes))

	var g errgroup.Group
	for i, p := range probes {
		g.Go(func() error {
			start := time.Now()
			checkCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			results[i] = Result{Probe: p, Error: p.Check(checkCtx), Duration: time.Since(start)}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// AnalyzeResults logs every result and joins the errors of failed critical probes.
func AnalyzeResults(results []Result) error {
	var critical []error

	slog.Info("Startup Checks Summary")
	for _, r := range results {
		status := "PASS"
		if r.Error != nil {
			status = "FAIL"
		}
		msg := fmt.Sprintf("[%s] %-20s (%v)", status, r.Probe.Name, r.Duration.Round(time.Millisecond))

		if r.Error == nil {
			slog.Info(msg)
			continue
		}
		slog.Error(msg, "error", r.Error, "critical", r.Probe.Critical)
		if r.Probe.Critical {
			critical = append(critical, fmt.Errorf("%s: %w", r.Probe.Name, r.Error))
		}
	}
	return errors.Join(critical...)
}

// Pinger is implemented by the sqlite store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Database checks that the store answers.
func Database(p Pinger) Probe {
	return Probe{Name: "Database", Critical: true, Check: p.Ping}
}

// Vault checks that the vault directory is readable.
func Vault(root string) Probe {
	return Probe{
		Name:     "Vault",
		Critical: true,
		Check: func(context.Context) error {
			entries, err := os.ReadDir(root)
			if err != nil {
				return err
			}
			slog.Debug("Probe: Vault readable", "entries", len(entries))
			return nil
		},
	}
}

// Fetcher is the HTTP client used by the style resolver.
type Fetcher interface {
	Get(ctx context.Context, u, cacheKey string) ([]byte, error)
}

// Style checks that the default style document is reachable and valid JSON.
// A failure only degrades the map to the bare style URL.
func Style(f Fetcher, url string) Probe {
	return Probe{
		Name: "Default Style",
		Check: func(ctx context.Context) error {
			body, err := f.Get(ctx, url, "")
			if err != nil {
				return err
			}
			var doc map[string]any
			if err := json.Unmarshal(body, &doc); err != nil {
				return fmt.Errorf("invalid style document: %w", err)
			}
			if _, ok := doc["version"]; !ok {
				return errors.New("style document has no version")
			}
			return nil
		},
	}
}
