package domain

import "time"

// Settings is the application configuration.
type Settings struct {
	Extractor ExtractorSettings
	GitHub    GitHubSettings
	Output    OutputSettings
	Sources   []Source
}

// ExtractorSettings configures the external KQL property extractor.
type ExtractorSettings struct {
	// Command is the extractor executable and its arguments.
	Command []string

	// Dir is the working directory for the extractor process.
	Dir string

	// Timeout is the per-query response deadline.
	Timeout time.Duration

	// Concurrency bounds how many queries are submitted at once.
	Concurrency int
}

// GitHubSettings configures the GitHub connector.
type GitHubSettings struct {
	// Token is an optional personal access token.
	Token string

	// RequestsPerSecond throttles API calls.
	RequestsPerSecond float64
}

// OutputSettings controls where ingest results are written.
type OutputSettings struct {
	// Dir is the output folder.
	Dir string

	// Timestamp adds a UTC timestamp to output file names.
	Timestamp bool

	// Compress writes zstd compressed JSON dumps.
	Compress bool

	// SQLite additionally exports a SQLite snapshot.
	SQLite bool

	// SaveStages writes the store before extraction.
	SaveStages bool
}

// Defaults for Settings fields.
const (
	DefaultExtractorTimeout     = 5 * time.Second
	DefaultExtractorConcurrency = 4
	DefaultGitHubRPS            = 1.2
	DefaultOutputDir            = "output"
)

// DefaultExtractorCommand runs the KQL extraction project with dotnet.
var DefaultExtractorCommand = []string{
	"dotnet", "run", "-c", "Release", "--project", "kqlextraction/KqlExtraction/KqlExtraction.csproj",
}

// DefaultSentinelSource is the Azure Sentinel repository restricted to
// the folders holding analytic rules and hunting queries.
func DefaultSentinelSource() Source {
	return Source{
		ID:   "azure-sentinel",
		Type: SourceKindGitHub,
		Name: "Azure Sentinel",
		Config: map[string]string{
			"repo":     "Azure/Azure-Sentinel",
			"branch":   "master",
			"paths":    "Detections,Hunting Queries,Solutions",
			"patterns": "*.yaml,*.yml",
			"format":   "sentinel",
		},
	}
}

// DefaultSettings returns settings with every field at its default.
func DefaultSettings() Settings {
	return Settings{
		Extractor: ExtractorSettings{
			Command:     append([]string(nil), DefaultExtractorCommand...),
			Timeout:     DefaultExtractorTimeout,
			Concurrency: DefaultExtractorConcurrency,
		},
		GitHub: GitHubSettings{
			RequestsPerSecond: DefaultGitHubRPS,
		},
		Output: OutputSettings{
			Dir: DefaultOutputDir,
		},
		Sources: []Source{DefaultSentinelSource()},
	}
}

// Validate fills zero values with defaults and rejects unusable settings.
func (s *Settings) Validate() error {
	if len(s.Extractor.Command) == 0 {
		s.Extractor.Command = append([]string(nil), DefaultExtractorCommand...)
	}
	if s.Extractor.Timeout <= 0 {
		s.Extractor.Timeout = DefaultExtractorTimeout
	}
	if s.Extractor.Concurrency <= 0 {
		s.Extractor.Concurrency = DefaultExtractorConcurrency
	}
	if s.GitHub.RequestsPerSecond <= 0 {
		s.GitHub.RequestsPerSecond = DefaultGitHubRPS
	}
	if s.Output.Dir == "" {
		s.Output.Dir = DefaultOutputDir
	}
	seen := make(map[string]bool, len(s.Sources))
	for _, src := range s.Sources {
		if src.ID == "" {
			return ErrInvalidInput
		}
		if seen[src.ID] {
			return ErrInvalidInput
		}
		seen[src.ID] = true
	}
	return nil
}

// AddSources appends sources whose ids are not already configured and
// returns the number added.
func (s *Settings) AddSources(sources ...Source) int {
	seen := make(map[string]bool, len(s.Sources))
	for _, src := range s.Sources {
		seen[src.ID] = true
	}
	added := 0
	for _, src := range sources {
		if src.ID == "" || seen[src.ID] {
			continue
		}
		seen[src.ID] = true
		s.Sources = append(s.Sources, src)
		added++
	}
	return added
}

// Source returns the configured source with the given id.
func (s *Settings) Source(id string) (Source, bool) {
	for _, src := range s.Sources {
		if src.ID == id {
			return src, true
		}
	}
	return Source{}, false
}
