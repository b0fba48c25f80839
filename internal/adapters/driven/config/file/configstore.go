package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/kqlstore/internal/core/domain"
	"github.com/custodia-labs/kqlstore/internal/core/ports/driven"
)

// Ensure ConfigStore implements the interface.
var _ driven.ConfigStore = (*ConfigStore)(nil)

// TokenEnv names the environment variable consulted when no GitHub token
// is configured.
const TokenEnv = "GITHUB_TOKEN"

// ConfigStore is a file-based implementation of driven.ConfigStore using TOML.
// Configuration is stored in config.toml within the kqlstore config directory.
type ConfigStore struct {
	mu       sync.RWMutex
	filePath string
}

// NewConfigStore creates a new TOML-based config store.
// If configDir is empty, defaults to ~/.kqlstore/config.toml.
func NewConfigStore(configDir string) (*ConfigStore, error) {
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		configDir = filepath.Join(home, ".kqlstore")
	}

	// Ensure directory exists
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, err
	}

	return &ConfigStore{
		filePath: filepath.Join(configDir, "config.toml"),
	}, nil
}

// fileSettings is the on-disk TOML layout.
type fileSettings struct {
	Extractor fileExtractor `toml:"extractor"`
	GitHub    fileGitHub    `toml:"github"`
	Output    fileOutput    `toml:"output"`
	Sources   []fileSource  `toml:"sources"`
}

type fileExtractor struct {
	Command     []string `toml:"command,omitempty"`
	Dir         string   `toml:"dir,omitempty"`
	Timeout     string   `toml:"timeout,omitempty"`
	Concurrency int      `toml:"concurrency,omitempty"`
}

type fileGitHub struct {
	Token             string  `toml:"token,omitempty"`
	RequestsPerSecond float64 `toml:"requests_per_second,omitempty"`
}

type fileOutput struct {
	Dir        string `toml:"dir,omitempty"`
	Timestamp  bool   `toml:"timestamp"`
	Compress   bool   `toml:"compress"`
	SQLite     bool   `toml:"sqlite"`
	SaveStages bool   `toml:"save_stages"`
}

type fileSource struct {
	ID       string            `toml:"id"`
	Type     string            `toml:"type"`
	Name     string            `toml:"name,omitempty"`
	Repo     string            `toml:"repo,omitempty"`
	Branch   string            `toml:"branch,omitempty"`
	Path     string            `toml:"path,omitempty"`
	Paths    []string          `toml:"paths,omitempty"`
	Patterns []string          `toml:"patterns,omitempty"`
	Format   string            `toml:"format,omitempty"`
	Options  map[string]string `toml:"options,omitempty"`
}

// Keys of Source.Config mapped to dedicated TOML fields.
var sourceFieldKeys = []string{"repo", "branch", "path", "paths", "patterns", "format"}

// Load reads settings from the TOML file. A missing file yields
// domain.DefaultSettings.
func (s *ConfigStore) Load() (*domain.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// No config file yet - that's fine, start from defaults
			settings := domain.DefaultSettings()
			applyEnv(&settings)
			return &settings, nil
		}
		return nil, fmt.Errorf("reading %s: %w", s.filePath, err)
	}

	var fs fileSettings
	if err := toml.Unmarshal(data, &fs); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", domain.ErrInvalidInput, s.filePath, err)
	}

	settings, err := fs.toDomain()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.filePath, err)
	}
	applyEnv(settings)
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", s.filePath, err)
	}
	return settings, nil
}

// Save persists settings to disk.
func (s *ConfigStore) Save(settings *domain.Settings) error {
	if settings == nil {
		return domain.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := toml.Marshal(fromDomain(settings))
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}

	// Write with restricted permissions, the file may hold a token
	return os.WriteFile(s.filePath, data, 0600)
}

// Path returns the configuration file path.
func (s *ConfigStore) Path() string {
	return s.filePath
}

func applyEnv(settings *domain.Settings) {
	if settings.GitHub.Token == "" {
		settings.GitHub.Token = os.Getenv(TokenEnv)
	}
}

func (fs *fileSettings) toDomain() (*domain.Settings, error) {
	settings := &domain.Settings{
		Extractor: domain.ExtractorSettings{
			Command:     fs.Extractor.Command,
			Dir:         fs.Extractor.Dir,
			Concurrency: fs.Extractor.Concurrency,
		},
		GitHub: domain.GitHubSettings{
			Token:             fs.GitHub.Token,
			RequestsPerSecond: fs.GitHub.RequestsPerSecond,
		},
		Output: domain.OutputSettings{
			Dir:        fs.Output.Dir,
			Timestamp:  fs.Output.Timestamp,
			Compress:   fs.Output.Compress,
			SQLite:     fs.Output.SQLite,
			SaveStages: fs.Output.SaveStages,
		},
	}

	if fs.Extractor.Timeout != "" {
		d, err := time.ParseDuration(fs.Extractor.Timeout)
		if err != nil {
			return nil, fmt.Errorf("%w: extractor timeout %q", domain.ErrInvalidInput, fs.Extractor.Timeout)
		}
		settings.Extractor.Timeout = d
	}

	for _, src := range fs.Sources {
		settings.Sources = append(settings.Sources, src.toDomain())
	}
	return settings, nil
}

func (src fileSource) toDomain() domain.Source {
	cfg := make(map[string]string, len(src.Options)+len(sourceFieldKeys))
	for k, v := range src.Options {
		cfg[k] = v
	}
	set := func(key, value string) {
		if value != "" {
			cfg[key] = value
		}
	}
	set("repo", src.Repo)
	set("branch", src.Branch)
	set("path", src.Path)
	set("paths", strings.Join(src.Paths, ","))
	set("patterns", strings.Join(src.Patterns, ","))
	set("format", src.Format)

	return domain.Source{
		ID:     src.ID,
		Type:   src.Type,
		Name:   src.Name,
		Config: cfg,
	}
}

func fromDomain(settings *domain.Settings) fileSettings {
	fs := fileSettings{
		Extractor: fileExtractor{
			Command:     settings.Extractor.Command,
			Dir:         settings.Extractor.Dir,
			Concurrency: settings.Extractor.Concurrency,
		},
		GitHub: fileGitHub{
			Token:             settings.GitHub.Token,
			RequestsPerSecond: settings.GitHub.RequestsPerSecond,
		},
		Output: fileOutput{
			Dir:        settings.Output.Dir,
			Timestamp:  settings.Output.Timestamp,
			Compress:   settings.Output.Compress,
			SQLite:     settings.Output.SQLite,
			SaveStages: settings.Output.SaveStages,
		},
	}
	if settings.Extractor.Timeout > 0 {
		fs.Extractor.Timeout = settings.Extractor.Timeout.String()
	}

	for _, src := range settings.Sources {
		out := fileSource{
			ID:       src.ID,
			Type:     src.Type,
			Name:     src.Name,
			Repo:     src.Config["repo"],
			Branch:   src.Config["branch"],
			Path:     src.Config["path"],
			Paths:    src.ConfigList("paths"),
			Patterns: src.ConfigList("patterns"),
			Format:   src.Config["format"],
		}
		for k, v := range src.Config {
			if isSourceFieldKey(k) {
				continue
			}
			if out.Options == nil {
				out.Options = make(map[string]string)
			}
			out.Options[k] = v
		}
		fs.Sources = append(fs.Sources, out)
	}
	return fs
}

func isSourceFieldKey(key string) bool {
	for _, k := range sourceFieldKeys {
		if k == key {
			return true
		}
	}
	return false
}
