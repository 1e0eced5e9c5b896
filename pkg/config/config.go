package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultStartURL is the National 5 Mathematics subject landing page.
const DefaultStartURL = "https://www.bbc.co.uk/bitesize/subjects/ztrjmp3"

// DefaultUserAgent mimics a desktop browser; the target site serves reduced markup to unknown agents.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// TargetConfig describes which pages of the target site are in scope and how they are prioritized
type TargetConfig struct {
	AllowedHosts           []string `yaml:"allowed_hosts"`
	AllowedPathPrefix      string   `yaml:"allowed_path_prefix,omitempty"` // Empty = any path on an allowed host
	SiteName               string   `yaml:"site_name,omitempty"`           // Stripped from the front of page titles
	SubjectCode            string   `yaml:"subject_code,omitempty"`
	GradeKeywords          []string `yaml:"grade_keywords,omitempty"`
	SubjectKeywords        []string `yaml:"subject_keywords,omitempty"`
	GuidesSegment          string   `yaml:"guides_segment"`
	RevisionSegment        string   `yaml:"revision_segment"`
	ContentSegments        []string `yaml:"content_segments,omitempty"`
	ExcludePatterns        []string `yaml:"exclude_patterns,omitempty"`         // Plain substrings of the lowercased URL
	DisallowedPathPatterns []string `yaml:"disallowed_path_patterns,omitempty"` // Regex patterns for paths to exclude
}

// ReportConfig controls the optional run report files. Empty paths disable the output.
type ReportConfig struct {
	MetadataYAMLPath  string `yaml:"metadata_yaml_path,omitempty"`
	MappingTSVPath    string `yaml:"mapping_tsv_path,omitempty"`
	ChunksJSONLPath   string `yaml:"chunks_jsonl_path,omitempty"`
	VisitedLogPath    string `yaml:"visited_log_path,omitempty"`
	TokenizerEncoding string `yaml:"tokenizer_encoding,omitempty"`
	ChunkMaxTokens    int    `yaml:"chunk_max_tokens,omitempty"`
	ChunkOverlap      int    `yaml:"chunk_overlap_tokens,omitempty"`
}

// AppConfig holds the global application configuration
type AppConfig struct {
	StartURLs          []string         `yaml:"start_urls"`
	MaxPages           int              `yaml:"max_pages"`
	OutputDir          string           `yaml:"output_dir"`
	UserAgent          string           `yaml:"user_agent,omitempty"`
	PolitenessDelay    time.Duration    `yaml:"politeness_delay"`
	NumWorkers         int              `yaml:"num_workers"`
	MaxRequestsPerHost int              `yaml:"max_requests_per_host"`
	MaxRetries         int              `yaml:"max_retries"`
	InitialRetryDelay  time.Duration    `yaml:"initial_retry_delay"`
	MaxRetryDelay      time.Duration    `yaml:"max_retry_delay"`
	MaxPageSizeBytes   int64            `yaml:"max_page_size_bytes,omitempty"`
	GlobalCrawlTimeout time.Duration    `yaml:"global_crawl_timeout,omitempty"`
	ProgressInterval   time.Duration    `yaml:"progress_interval,omitempty"`
	RespectRobotsTxt   bool             `yaml:"respect_robots_txt,omitempty"`
	VisitedStore       string           `yaml:"visited_store,omitempty"` // "memory" or "badger"
	HTTPClientSettings HTTPClientConfig `yaml:"http_client_settings,omitempty"`
	Target             TargetConfig     `yaml:"target"`
	Report             ReportConfig     `yaml:"report,omitempty"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`                 // Per-request timeout
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"`
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"` // nil=default, true=force, false=disable
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`
}

// DefaultTarget returns the scope rules for BBC Bitesize National 5 Mathematics.
func DefaultTarget() TargetConfig {
	return TargetConfig{
		AllowedHosts:      []string{"www.bbc.co.uk", "bbc.co.uk", "www.bbc.com", "bbc.com"},
		AllowedPathPrefix: "/bitesize",
		SiteName:          "BBC Bitesize",
		SubjectCode:       "ztrjmp3",
		GradeKeywords:     []string{"national-5", "national5", "n5", "national 5"},
		SubjectKeywords:   []string{"maths", "mathematics", "math"},
		GuidesSegment:     "/guides/",
		RevisionSegment:   "/revision/",
		ContentSegments:   []string{"/guides/", "/topics/", "/revision/", "/learn/", "/study/"},
		ExcludePatterns: []string{
			"/quizzes/", "/quiz/",
			"/games/", "/game/",
			"/images/", "/image/",
			"/downloads/", "/download/",
			"/print/", "/share/",
			"/search",
			"/topics?page=",
			"/articles/",
			"/videos/", "/video/",
			"/my-bitesize",
			"/sign-in",
			"/register",
			"/about",
			"/contact",
			"/terms",
			"/privacy",
			"/cookies",
			"/accessibility",
			"/help",
			"/jobs",
			"/podcasts",
			"/radio",
			"/skillswise",
			"/external",
			"?page=",
			"#",
		},
	}
}

// Default returns a complete configuration for the default crawl.
// Load decodes YAML on top of it, so omitted keys keep these values.
func Default() *AppConfig {
	return &AppConfig{
		StartURLs:          []string{DefaultStartURL},
		MaxPages:           200,
		OutputDir:          "docs",
		UserAgent:          DefaultUserAgent,
		PolitenessDelay:    1 * time.Second,
		NumWorkers:         1,
		MaxRequestsPerHost: 1,
		MaxRetries:         2,
		InitialRetryDelay:  1 * time.Second,
		MaxRetryDelay:      30 * time.Second,
		MaxPageSizeBytes:   10 << 20,
		ProgressInterval:   30 * time.Second,
		VisitedStore:       "memory",
		HTTPClientSettings: HTTPClientConfig{
			Timeout: 10 * time.Second,
		},
		Target: DefaultTarget(),
	}
}

// Load reads a YAML config file on top of Default(). An empty path returns the defaults.
func Load(path string) (*AppConfig, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
