package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/custodia-labs/kqlstore/internal/core/domain"
	"github.com/custodia-labs/kqlstore/internal/core/ports/driving"
)

// dbPath is the query store dump read by the query commands.
var dbPath string

// storePrefix matches ingest output names.
const storePrefix = "kql_query_db"

// openQueries loads the store named by --db, or the newest dump in the
// configured output folder.
func openQueries(ctx context.Context) (driving.QueryService, string, error) {
	if app == nil || app.OpenQueries == nil {
		return nil, "", errNotConfigured
	}
	path := dbPath
	if path == "" {
		_, settings, err := loadSettings()
		if err != nil {
			return nil, "", err
		}
		path, err = latestStore(settings.Output.Dir)
		if err != nil {
			return nil, "", err
		}
	}
	svc, err := app.OpenQueries(ctx, path)
	if err != nil {
		return nil, "", err
	}
	return svc, path, nil
}

// latestStore returns the most recently written store dump in dir.
// Stage dumps are ignored.
func latestStore(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("reading output folder %s: %w", dir, err)
	}

	var (
		best     string
		bestTime int64
	)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !isStoreName(name) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if t := info.ModTime().UnixNano(); best == "" || t > bestTime || (t == bestTime && name > best) {
			best, bestTime = name, t
		}
	}
	if best == "" {
		return "", fmt.Errorf("no query store in %s, run ingest first: %w", dir, domain.ErrNotFound)
	}
	return filepath.Join(dir, best), nil
}

func isStoreName(name string) bool {
	if !strings.HasPrefix(name, storePrefix) || strings.Contains(name, ".p1.") {
		return false
	}
	return strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".json.zst")
}
