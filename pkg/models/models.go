package models

import "time"

// Tier is the priority class of a frontier entry. Lower values pop first.
type Tier int

const (
	TierRevision Tier = iota // Revision guide pages (actual learning material)
	TierContent              // Guide/topic pages and trusted entry points
	TierOther                // Any other in-scope page
)

// String implements fmt.Stringer for logging
func (t Tier) String() string {
	switch t {
	case TierRevision:
		return "revision"
	case TierContent:
		return "content"
	case TierOther:
		return "other"
	}
	return "unknown"
}

// MarshalYAML renders the tier by name in run reports.
func (t Tier) MarshalYAML() (any, error) {
	return t.String(), nil
}

// WorkItem is a canonical URL waiting in the frontier
type WorkItem struct {
	URL  string
	Tier Tier
}

// ExtractedPage is the result of running the content extractor over one page.
// An empty Body means nothing survived filtering and the page is not persisted.
type ExtractedPage struct {
	Title     string
	Body      string
	SourceURL string
}

// HasBody reports whether at least one content block survived extraction.
func (p ExtractedPage) HasBody() bool {
	return p.Body != ""
}

// VisitEntry records the outcome of a visited URL in the visited store
type VisitEntry struct {
	Status      PageStatus `json:"status"`
	ErrorType   string     `json:"error_type,omitempty"` // Error category (on failure)
	Tier        Tier       `json:"tier"`
	LastAttempt time.Time  `json:"last_attempt"`
}

// CrawlMetadata holds the run report written after a crawl.
type CrawlMetadata struct {
	RunID          string         `yaml:"run_id"`
	StartURLs      []string       `yaml:"start_urls"`
	SubjectCode    string         `yaml:"subject_code,omitempty"`
	OutputDir      string         `yaml:"output_dir"`
	CrawlStartTime time.Time      `yaml:"crawl_start_time"`
	CrawlEndTime   time.Time      `yaml:"crawl_end_time"`
	MaxPages       int            `yaml:"max_pages"`
	PagesCrawled   int            `yaml:"pages_crawled"`
	PagesFailed    int            `yaml:"pages_failed"`
	PagesSaved     int            `yaml:"pages_saved"`
	Pages          []PageMetadata `yaml:"pages"`
}

// PageMetadata holds metadata for a single persisted document.
type PageMetadata struct {
	SourceURL   string    `yaml:"source_url"`
	File        string    `yaml:"file"` // Relative to output_dir
	Title       string    `yaml:"title,omitempty"`
	Tier        Tier      `yaml:"tier"`
	SavedAt     time.Time `yaml:"saved_at"`
	ContentHash string    `yaml:"content_hash,omitempty"` // SHA-256 of the body
	TokenCount  int       `yaml:"token_count,omitempty"`
	Headings    []string  `yaml:"headings,omitempty"`
}

// ChunkJSONL is one line of the chunks sidecar file.
type ChunkJSONL struct {
	SourceURL  string   `json:"source_url"`
	File       string   `json:"file"`
	Title      string   `json:"title,omitempty"`
	ChunkIndex int      `json:"chunk_index"`
	Content    string   `json:"content"`
	Headings   []string `json:"headings,omitempty"` // Headings that start inside the chunk
	TokenCount int      `json:"token_count"`
}
