package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/Sriram-PR/bitesize-scraper/pkg/utils"
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	// StartURLs
	if len(c.StartURLs) == 0 {
		warnings = append(warnings, fmt.Sprintf("start_urls is empty, defaulting to %s", DefaultStartURL))
		c.StartURLs = []string{DefaultStartURL}
	}

	// MaxPages
	if c.MaxPages <= 0 {
		warnings = append(warnings, "max_pages should be > 0, defaulting to 200")
		c.MaxPages = 200
	}

	// OutputDir
	if c.OutputDir == "" {
		warnings = append(warnings, "output_dir is empty, defaulting to 'docs'")
		c.OutputDir = "docs"
	}

	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}

	// PolitenessDelay
	if c.PolitenessDelay < 0 {
		warnings = append(warnings, "politeness_delay cannot be negative, setting to 0")
		c.PolitenessDelay = 0
	}

	// NumWorkers
	if c.NumWorkers <= 0 {
		warnings = append(warnings, "num_workers should be > 0, defaulting to 1")
		c.NumWorkers = 1
	}

	// MaxRequestsPerHost
	if c.MaxRequestsPerHost <= 0 {
		warnings = append(warnings, "max_requests_per_host should be > 0, defaulting to 1")
		c.MaxRequestsPerHost = 1
	}

	// MaxRetries
	if c.MaxRetries < 0 {
		warnings = append(warnings, "max_retries cannot be negative, setting to 0")
		c.MaxRetries = 0
	}

	// Retry delays (only if retries enabled)
	if c.MaxRetries > 0 {
		if c.InitialRetryDelay <= 0 {
			c.InitialRetryDelay = 1 * time.Second
		}
		if c.MaxRetryDelay <= 0 {
			c.MaxRetryDelay = 30 * time.Second
		}
	}

	// InitialRetryDelay > MaxRetryDelay check
	if c.InitialRetryDelay > c.MaxRetryDelay && c.MaxRetryDelay > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"initial_retry_delay (%v) > max_retry_delay (%v), using max_retry_delay for initial",
			c.InitialRetryDelay, c.MaxRetryDelay))
		c.InitialRetryDelay = c.MaxRetryDelay
	}

	// MaxPageSizeBytes
	if c.MaxPageSizeBytes < 0 {
		warnings = append(warnings, "max_page_size_bytes cannot be negative, setting to 0 (unlimited)")
		c.MaxPageSizeBytes = 0
	}

	// GlobalCrawlTimeout
	if c.GlobalCrawlTimeout < 0 {
		warnings = append(warnings, "global_crawl_timeout cannot be negative, disabling timeout")
		c.GlobalCrawlTimeout = 0
	}

	if c.ProgressInterval <= 0 {
		c.ProgressInterval = 30 * time.Second
	}

	// VisitedStore
	switch c.VisitedStore {
	case "":
		c.VisitedStore = "memory"
	case "memory", "badger":
	default:
		return warnings, fmt.Errorf("%w: visited_store must be 'memory' or 'badger', got %q",
			utils.ErrConfigValidation, c.VisitedStore)
	}

	// HTTPClientSettings defaults
	c.validateHTTPClientSettings()

	targetWarnings, err := c.Target.Validate()
	warnings = append(warnings, targetWarnings...)
	if err != nil {
		return warnings, err
	}

	warnings = append(warnings, c.Report.validate(c.OutputDir)...)

	return warnings, nil
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.Timeout <= 0 {
		h.Timeout = 10 * time.Second
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 2
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
}

// Validate checks TargetConfig fields and normalizes them.
// Hosts and keyword lists are lowercased because classification runs on lowercased URLs.
func (t *TargetConfig) Validate() (warnings []string, err error) {
	if len(t.AllowedHosts) == 0 {
		return nil, fmt.Errorf("%w: target needs at least one allowed_hosts entry", utils.ErrConfigValidation)
	}
	for i, h := range t.AllowedHosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			return nil, fmt.Errorf("%w: allowed_hosts entry #%d is empty", utils.ErrConfigValidation, i+1)
		}
		t.AllowedHosts[i] = h
	}

	// AllowedPathPrefix normalization
	if t.AllowedPathPrefix != "" && t.AllowedPathPrefix[0] != '/' {
		t.AllowedPathPrefix = "/" + t.AllowedPathPrefix
	}
	t.AllowedPathPrefix = strings.ToLower(t.AllowedPathPrefix)

	if t.GuidesSegment == "" || t.RevisionSegment == "" {
		warnings = append(warnings, "guides_segment or revision_segment is empty, revision pages cannot be recognized")
	}
	if t.SubjectCode == "" && len(t.SubjectKeywords) == 0 && len(t.GradeKeywords) == 0 {
		warnings = append(warnings, "target has no subject_code or keywords, only revision pages will be in scope")
	}

	t.SubjectCode = strings.ToLower(t.SubjectCode)
	t.GuidesSegment = strings.ToLower(t.GuidesSegment)
	t.RevisionSegment = strings.ToLower(t.RevisionSegment)
	lowerAll(t.GradeKeywords)
	lowerAll(t.SubjectKeywords)
	lowerAll(t.ContentSegments)
	lowerAll(t.ExcludePatterns)

	if _, err := utils.CompileRegexPatterns(t.DisallowedPathPatterns); err != nil {
		return warnings, err
	}

	return warnings, nil
}

func (r *ReportConfig) validate(outputDir string) (warnings []string) {
	for _, p := range []struct{ key, path string }{
		{"metadata_yaml_path", r.MetadataYAMLPath},
		{"mapping_tsv_path", r.MappingTSVPath},
		{"chunks_jsonl_path", r.ChunksJSONLPath},
		{"visited_log_path", r.VisitedLogPath},
	} {
		if p.path != "" && isWithin(p.path, outputDir) {
			warnings = append(warnings, fmt.Sprintf(
				"report.%s (%s) is inside output_dir (%s); it will be read as a document downstream",
				p.key, p.path, outputDir))
		}
	}

	if r.TokenizerEncoding == "" {
		r.TokenizerEncoding = "cl100k_base"
	}
	if r.ChunkMaxTokens <= 0 {
		r.ChunkMaxTokens = 512
	}
	if r.ChunkOverlap < 0 || r.ChunkOverlap >= r.ChunkMaxTokens {
		warnings = append(warnings, fmt.Sprintf(
			"chunk_overlap_tokens must be in [0, chunk_max_tokens), defaulting to %d", r.ChunkMaxTokens/8))
		r.ChunkOverlap = r.ChunkMaxTokens / 8
	}
	return warnings
}

func lowerAll(items []string) {
	for i := range items {
		items[i] = strings.ToLower(items[i])
	}
}

// isWithin reports whether path lies inside dir after both are made absolute.
func isWithin(path, dir string) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != "."
}

// ValidateStartURL reports whether raw is an absolute http(s) URL.
func ValidateStartURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: start URL %q: %v", utils.ErrConfigValidation, raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: start URL %q must be an absolute http(s) URL", utils.ErrConfigValidation, raw)
	}
	return nil
}
