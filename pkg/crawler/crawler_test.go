package crawler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/bitesize-scraper/pkg/config"
	"github.com/Sriram-PR/bitesize-scraper/pkg/log"
	"github.com/Sriram-PR/bitesize-scraper/pkg/utils"
)

// site serves a fixed link graph and records the order of requested paths.
type site struct {
	*httptest.Server
	mu    sync.Mutex
	pages map[string]string
	hits  []string
}

func newSite(t *testing.T, pages map[string]string) *site {
	t.Helper()
	s := &site{pages: pages}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits = append(s.hits, r.URL.Path)
		s.mu.Unlock()

		body, ok := s.pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprint(w, body)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *site) requested() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.hits...)
}

// page renders an HTML page with a saveable body and the given links.
func page(title string, links ...string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<html><head><title>Test Site - %s</title></head><body>", title)
	sb.WriteString(`<header><a href="/bitesize">Home</a></header><main>`)
	fmt.Fprintf(&sb, "<h1>%s</h1>", title)
	fmt.Fprintf(&sb, "<p>This paragraph explains %s in enough detail for the page to be saved.</p>", title)
	for _, l := range links {
		fmt.Fprintf(&sb, `<a href="%s">link</a>`, l)
	}
	sb.WriteString("</main></body></html>")
	return sb.String()
}

func testAppConfig(t *testing.T, startURL string) *config.AppConfig {
	t.Helper()
	cfg := config.Default()
	cfg.StartURLs = []string{startURL}
	cfg.OutputDir = filepath.Join(t.TempDir(), "docs")
	cfg.PolitenessDelay = 0
	cfg.MaxRetries = 0
	cfg.Target = config.TargetConfig{
		AllowedHosts:      []string{"127.0.0.1"},
		AllowedPathPrefix: "/bitesize",
		SiteName:          "Test Site",
		SubjectCode:       "zcode1",
		GradeKeywords:     []string{"national-5"},
		SubjectKeywords:   []string{"maths"},
		GuidesSegment:     "/guides/",
		RevisionSegment:   "/revision/",
		ContentSegments:   []string{"/guides/", "/topics/"},
		ExcludePatterns:   []string{"/quizzes/"},
	}
	_, err := cfg.Validate()
	require.NoError(t, err)
	return cfg
}

func runCrawl(t *testing.T, cfg *config.AppConfig) Summary {
	t.Helper()
	c, err := NewCrawler(cfg, log.Discard())
	require.NoError(t, err)
	summary, err := c.Run(context.Background())
	require.NoError(t, err)
	return summary
}

func TestRun_CrawlsInScopeGraph(t *testing.T) {
	for _, backend := range []string{"memory", "badger"} {
		t.Run(backend, func(t *testing.T) {
			s := newSite(t, map[string]string{
				"/bitesize/subjects/zcode1": page("Subject home",
					"/bitesize/topics/zcode1-algebra",
					"/bitesize/guides/zg1/revision/1",
					"/bitesize/quizzes/zcode1-quiz",
					"http://other.tld/bitesize/topics/zcode1",
					"mailto:someone@example.com",
					"/bitesize/unrelated",
				),
				"/bitesize/topics/zcode1-algebra": page("Algebra",
					"/bitesize/subjects/zcode1/", // Same page as the start URL
					"/bitesize/guides/zg1/revision/1#top",
				),
				"/bitesize/guides/zg1/revision/1": page("Revision one"),
				"/bitesize/quizzes/zcode1-quiz":   page("Quiz"),
			})
			cfg := testAppConfig(t, s.URL+"/bitesize/subjects/zcode1")
			cfg.VisitedStore = backend

			summary := runCrawl(t, cfg)

			assert.Equal(t, 3, summary.PagesCrawled)
			assert.Equal(t, 3, summary.PagesSaved)
			assert.Equal(t, 0, summary.PagesFailed)
			assert.Equal(t, 3, summary.Visited)
			assert.NotEmpty(t, summary.RunID)

			hits := s.requested()
			assert.ElementsMatch(t, []string{
				"/bitesize/subjects/zcode1",
				"/bitesize/topics/zcode1-algebra",
				"/bitesize/guides/zg1/revision/1",
			}, hits, "each in-scope page fetched exactly once")

			entries, err := os.ReadDir(cfg.OutputDir)
			require.NoError(t, err)
			assert.Len(t, entries, 3)
		})
	}
}

func TestRun_StopsAtMaxPages(t *testing.T) {
	pages := map[string]string{}
	var links []string
	for i := 0; i < 10; i++ {
		p := fmt.Sprintf("/bitesize/topics/zcode1-%d", i)
		links = append(links, p)
		pages[p] = page(fmt.Sprintf("Topic %d", i))
	}
	pages["/bitesize/subjects/zcode1"] = page("Subject home", links...)

	for _, workers := range []int{1, 3} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			s := newSite(t, pages)
			cfg := testAppConfig(t, s.URL+"/bitesize/subjects/zcode1")
			cfg.MaxPages = 5
			cfg.NumWorkers = workers
			cfg.MaxRequestsPerHost = workers

			summary := runCrawl(t, cfg)

			assert.Equal(t, 5, summary.PagesCrawled)
			assert.Equal(t, 5, summary.PagesSaved)
			assert.Len(t, s.requested(), 5, "no fetch is issued once the budget is spent")
		})
	}
}

func TestRun_BudgetStopLeavesNoGoroutines(t *testing.T) {
	s := newSite(t, map[string]string{
		"/bitesize/subjects/zcode1": page("Subject home",
			"/bitesize/topics/zcode1-a",
			"/bitesize/topics/zcode1-b",
			"/bitesize/topics/zcode1-c",
		),
	})
	baseline := runtime.NumGoroutine()

	for i := 0; i < 5; i++ {
		cfg := testAppConfig(t, s.URL+"/bitesize/subjects/zcode1")
		cfg.MaxPages = 1 // Three links stay queued when the budget runs out
		summary := runCrawl(t, cfg)
		require.Equal(t, 1, summary.PagesCrawled)
	}

	// Server-side connection goroutines exit shortly after the client closes them
	deadline := time.Now().Add(2 * time.Second)
	for runtime.NumGoroutine() > baseline+1 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	assert.LessOrEqual(t, runtime.NumGoroutine(), baseline+1)
}

func TestRun_RevisionTierFirst(t *testing.T) {
	s := newSite(t, map[string]string{
		"/bitesize/subjects/zcode1": page("Subject home",
			"/bitesize/topics/zcode1-first",
			"/bitesize/topics/zcode1-second",
			"/bitesize/guides/zg1/revision/1",
		),
		"/bitesize/topics/zcode1-first":   page("First topic"),
		"/bitesize/topics/zcode1-second":  page("Second topic"),
		"/bitesize/guides/zg1/revision/1": page("Revision one"),
	})
	cfg := testAppConfig(t, s.URL+"/bitesize/subjects/zcode1")

	runCrawl(t, cfg)

	assert.Equal(t, []string{
		"/bitesize/subjects/zcode1",
		"/bitesize/guides/zg1/revision/1",
		"/bitesize/topics/zcode1-first",
		"/bitesize/topics/zcode1-second",
	}, s.requested())
}

func TestRun_FailedPagesConsumeNoBudget(t *testing.T) {
	s := newSite(t, map[string]string{
		"/bitesize/subjects/zcode1": page("Subject home",
			"/bitesize/topics/zcode1-missing",
			"/bitesize/topics/zcode1-present",
		),
		"/bitesize/topics/zcode1-present": page("Present topic"),
	})
	cfg := testAppConfig(t, s.URL+"/bitesize/subjects/zcode1")
	cfg.MaxPages = 2
	cfg.Report.VisitedLogPath = filepath.Join(t.TempDir(), "visited.log")

	summary := runCrawl(t, cfg)

	assert.Equal(t, 2, summary.PagesCrawled)
	assert.Equal(t, 1, summary.PagesFailed)
	assert.Equal(t, 3, summary.Visited)

	data, err := os.ReadFile(cfg.Report.VisitedLogPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "/bitesize/topics/zcode1-missing\tfailure\tRetryFailed_HTTPClient")
}

func TestRun_ShortPagesCrawledButNotSaved(t *testing.T) {
	s := newSite(t, map[string]string{
		"/bitesize/subjects/zcode1": page("Subject home", "/bitesize/topics/zcode1-short"),
		"/bitesize/topics/zcode1-short": `<html><body><main><p>Too short.</p></main></body></html>`,
	})
	cfg := testAppConfig(t, s.URL+"/bitesize/subjects/zcode1")

	summary := runCrawl(t, cfg)

	assert.Equal(t, 2, summary.PagesCrawled)
	assert.Equal(t, 1, summary.PagesSaved)
}

func TestRun_RobotsDisallowed(t *testing.T) {
	s := newSite(t, map[string]string{
		"/robots.txt":                     "User-agent: *\nDisallow: /bitesize/topics/\n",
		"/bitesize/subjects/zcode1":       page("Subject home", "/bitesize/topics/zcode1-private"),
		"/bitesize/topics/zcode1-private": page("Private topic"),
	})

	cfg := testAppConfig(t, s.URL+"/bitesize/subjects/zcode1")
	cfg.RespectRobotsTxt = true

	summary := runCrawl(t, cfg)

	assert.Equal(t, 1, summary.PagesCrawled)
	assert.Equal(t, 1, summary.PagesFailed)
	assert.NotContains(t, s.requested(), "/bitesize/topics/zcode1-private")
}

func TestRun_WritesReportSidecars(t *testing.T) {
	s := newSite(t, map[string]string{
		"/bitesize/subjects/zcode1":       page("Subject home", "/bitesize/topics/zcode1-algebra"),
		"/bitesize/topics/zcode1-algebra": page("Algebra"),
	})
	cfg := testAppConfig(t, s.URL+"/bitesize/subjects/zcode1")
	reportDir := t.TempDir()
	cfg.Report.MetadataYAMLPath = filepath.Join(reportDir, "metadata.yaml")
	cfg.Report.MappingTSVPath = filepath.Join(reportDir, "mapping.tsv")
	cfg.Report.ChunksJSONLPath = filepath.Join(reportDir, "chunks.jsonl")

	summary := runCrawl(t, cfg)
	require.Equal(t, 2, summary.PagesSaved)

	// Metadata YAML
	data, err := os.ReadFile(cfg.Report.MetadataYAMLPath)
	require.NoError(t, err)
	var meta struct {
		RunID        string `yaml:"run_id"`
		PagesCrawled int    `yaml:"pages_crawled"`
		Pages        []struct {
			SourceURL   string   `yaml:"source_url"`
			File        string   `yaml:"file"`
			Tier        string   `yaml:"tier"`
			ContentHash string   `yaml:"content_hash"`
			TokenCount  int      `yaml:"token_count"`
			Headings    []string `yaml:"headings"`
		} `yaml:"pages"`
	}
	require.NoError(t, yaml.Unmarshal(data, &meta))
	assert.Equal(t, summary.RunID, meta.RunID)
	assert.Equal(t, 2, meta.PagesCrawled)
	require.Len(t, meta.Pages, 2)
	for _, p := range meta.Pages {
		assert.Len(t, p.ContentHash, 64)
		assert.Greater(t, p.TokenCount, 0)
		assert.Equal(t, "content", p.Tier)
		assert.FileExists(t, filepath.Join(cfg.OutputDir, p.File))
	}

	// Mapping TSV
	lines := readLines(t, cfg.Report.MappingTSVPath)
	require.Len(t, lines, 2)
	for _, line := range lines {
		parts := strings.Split(line, "\t")
		require.Len(t, parts, 2)
		assert.True(t, strings.HasPrefix(parts[0], s.URL))
		assert.True(t, strings.HasSuffix(parts[1], ".txt"))
	}

	// Chunks JSONL
	chunkLines := readLines(t, cfg.Report.ChunksJSONLPath)
	assert.GreaterOrEqual(t, len(chunkLines), 2)
	assert.Contains(t, chunkLines[0], `"chunk_index":0`)
	var firstChunks []string
	for _, line := range chunkLines {
		var chunk struct {
			ChunkIndex int      `json:"chunk_index"`
			Headings   []string `json:"headings"`
		}
		require.NoError(t, json.Unmarshal([]byte(line), &chunk))
		if chunk.ChunkIndex == 0 {
			require.Len(t, chunk.Headings, 1)
			firstChunks = append(firstChunks, chunk.Headings[0])
		}
	}
	assert.ElementsMatch(t, []string{"Subject home", "Algebra"}, firstChunks)
}

func TestRun_NoValidStartURLs(t *testing.T) {
	cfg := testAppConfig(t, "not a url")
	cfg.StartURLs = []string{"/relative/only", "mailto:x@y.z"}

	c, err := NewCrawler(cfg, log.Discard())
	require.NoError(t, err)

	_, err = c.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrConfigValidation)
}

func TestRun_CancelledContext(t *testing.T) {
	s := newSite(t, map[string]string{
		"/bitesize/subjects/zcode1": page("Subject home"),
	})
	cfg := testAppConfig(t, s.URL+"/bitesize/subjects/zcode1")

	c, err := NewCrawler(cfg, log.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := c.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, summary.PagesCrawled)
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NoError(t, sc.Err())
	return lines
}
