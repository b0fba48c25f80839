package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/kqlstore/internal/core/domain"
	"github.com/custodia-labs/kqlstore/internal/core/ports/driven"
	"github.com/custodia-labs/kqlstore/internal/logger"
)

// Ensure Connector implements the interface.
var _ driven.Connector = (*Connector)(nil)

// maxFileSize skips files larger than 1MB.
const maxFileSize = 1024 * 1024

// Connector reads query files from a local directory tree.
type Connector struct {
	sourceID string
	rootPath string
	patterns []string
	format   string
	urlBase  string

	mu      sync.Mutex
	closed  bool
	watcher *fsnotify.Watcher
}

// Option configures a Connector.
type Option func(*Connector)

// WithPatterns restricts files to those whose name or relative path
// matches one of the glob patterns.
func WithPatterns(patterns ...string) Option {
	return func(c *Connector) { c.patterns = patterns }
}

// WithFormat sets the normaliser hint placed in file metadata.
func WithFormat(format string) Option {
	return func(c *Connector) { c.format = format }
}

// WithURLBase makes file URLs relative to base, for local checkouts of
// remote repositories.
func WithURLBase(base string) Option {
	return func(c *Connector) { c.urlBase = base }
}

// New creates a filesystem connector rooted at rootPath.
func New(sourceID, rootPath string, opts ...Option) *Connector {
	c := &Connector{
		sourceID: sourceID,
		rootPath: rootPath,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Type returns the connector type identifier.
func (c *Connector) Type() string {
	return domain.SourceKindFilesystem
}

// SourceID returns the source identifier.
func (c *Connector) SourceID() string {
	return c.sourceID
}

// Capabilities returns the connector's capabilities.
func (c *Connector) Capabilities() driven.ConnectorCapabilities {
	return driven.ConnectorCapabilities{
		SupportsWatch:        true,
		RequiresAuth:         false,
		SupportsValidation:   true,
		SupportsRateLimiting: false,
	}
}

// Validate checks the root path is a readable directory.
func (c *Connector) Validate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.checkRoot()
}

func (c *Connector) checkRoot() error {
	info, err := os.Stat(c.rootPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: root path does not exist: %s", domain.ErrConnectorValidation, c.rootPath)
		}
		return fmt.Errorf("%w: %w", domain.ErrConnectorValidation, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: root path is not a directory: %s", domain.ErrConnectorValidation, c.rootPath)
	}
	return nil
}

// FullSync walks the root directory and emits every included file.
// Hidden files and directories are skipped.
func (c *Connector) FullSync(ctx context.Context) (<-chan domain.RawFile, <-chan error) {
	filesChan := make(chan domain.RawFile)
	errsChan := make(chan error, 1)

	go func() {
		defer close(filesChan)
		defer close(errsChan)

		if c.isClosed() {
			errsChan <- domain.ErrConnectorClosed
			return
		}
		if err := c.checkRoot(); err != nil {
			errsChan <- err
			return
		}

		err := filepath.WalkDir(c.rootPath, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				logger.Warn("skipping %s: %v", path, err)
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			rel, relErr := filepath.Rel(c.rootPath, path)
			if relErr != nil || rel == "." {
				return nil
			}
			rel = filepath.ToSlash(rel)

			if d.IsDir() {
				if isHidden(rel) {
					return fs.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() || isHidden(rel) || !c.includes(rel) {
				return nil
			}

			file, ok := c.readFile(path, rel)
			if !ok {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case filesChan <- file:
				return nil
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			errsChan <- fmt.Errorf("walk %s: %w", c.rootPath, err)
		}
	}()

	return filesChan, errsChan
}

// Watch emits file changes below the root until ctx is cancelled or the
// connector is closed.
func (c *Connector) Watch(ctx context.Context) (<-chan domain.RawFileChange, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, domain.ErrConnectorClosed
	}
	c.mu.Unlock()

	if err := c.checkRoot(); err != nil {
		return nil, fmt.Errorf("root path error: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := c.addDirs(watcher, c.rootPath); err != nil {
		watcher.Close()
		return nil, err
	}

	c.mu.Lock()
	if c.watcher != nil {
		c.watcher.Close()
	}
	c.watcher = watcher
	c.mu.Unlock()

	changes := make(chan domain.RawFileChange)
	go func() {
		defer close(changes)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Create) {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						if err := c.addDirs(watcher, event.Name); err != nil {
							logger.Warn("watch %s: %v", event.Name, err)
						}
						continue
					}
				}
				change := c.handleFsEvent(event)
				if change == nil {
					continue
				}
				select {
				case <-ctx.Done():
					return
				case changes <- *change:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("watch error: %v", err)
			}
		}
	}()

	return changes, nil
}

// addDirs watches dir and every non-hidden directory below it.
func (c *Connector) addDirs(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if rel, err := filepath.Rel(c.rootPath, path); err == nil && rel != "." && isHidden(filepath.ToSlash(rel)) {
			return fs.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

// handleFsEvent converts an fsnotify event into a change. It returns nil
// for directories, hidden or excluded files and chmod-only events.
func (c *Connector) handleFsEvent(event fsnotify.Event) *domain.RawFileChange {
	rel, err := filepath.Rel(c.rootPath, event.Name)
	if err != nil {
		return nil
	}
	rel = filepath.ToSlash(rel)
	if isHidden(rel) || !c.includes(rel) {
		return nil
	}

	var changeType domain.ChangeType
	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return &domain.RawFileChange{
			Type: domain.ChangeDeleted,
			File: c.newRawFile(event.Name, rel, nil),
		}
	case event.Has(fsnotify.Create):
		changeType = domain.ChangeCreated
	case event.Has(fsnotify.Write):
		changeType = domain.ChangeUpdated
	default:
		return nil
	}

	info, err := os.Stat(event.Name)
	if err != nil || info.IsDir() {
		return nil
	}
	file, ok := c.readFile(event.Name, rel)
	if !ok {
		return nil
	}
	return &domain.RawFileChange{Type: changeType, File: file}
}

func (c *Connector) includes(rel string) bool {
	if len(c.patterns) == 0 {
		return true
	}
	for _, pattern := range c.patterns {
		if ok, err := filepath.Match(pattern, filepath.Base(rel)); err == nil && ok {
			return true
		}
		if ok, err := filepath.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}

func (c *Connector) readFile(path, rel string) (domain.RawFile, bool) {
	info, err := os.Stat(path)
	if err != nil {
		logger.Warn("skipping %s: %v", rel, err)
		return domain.RawFile{}, false
	}
	if info.Size() > maxFileSize {
		logger.Debug("skipping %s: %d bytes", rel, info.Size())
		return domain.RawFile{}, false
	}
	content, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("skipping %s: %v", rel, err)
		return domain.RawFile{}, false
	}
	return c.newRawFile(path, rel, content), true
}

func (c *Connector) newRawFile(path, rel string, content []byte) domain.RawFile {
	name := filepath.Base(rel)
	meta := map[string]any{
		"filename":  name,
		"extension": strings.TrimPrefix(filepath.Ext(name), "."),
		"abs_path":  path,
	}
	if c.format != "" {
		meta["format"] = c.format
	}

	file := domain.RawFile{
		SourceID: c.sourceID,
		Path:     rel,
		Content:  content,
		Metadata: meta,
	}
	if c.urlBase != "" {
		if u, err := url.JoinPath(c.urlBase, strings.Split(rel, "/")...); err == nil {
			file.URL = u
		}
	}
	return file
}

// isHidden reports whether any element of a slash separated path starts
// with a dot. "." and ".." are not hidden.
func isHidden(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if len(part) > 1 && part[0] == '.' && part != ".." {
			return true
		}
	}
	return false
}

// Close stops any active watcher.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.watcher != nil {
		err := c.watcher.Close()
		c.watcher = nil
		return err
	}
	return nil
}

func (c *Connector) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
