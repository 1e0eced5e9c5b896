package crawler

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Sriram-PR/bitesize-scraper/pkg/classify"
	"github.com/Sriram-PR/bitesize-scraper/pkg/config"
	"github.com/Sriram-PR/bitesize-scraper/pkg/extract"
	"github.com/Sriram-PR/bitesize-scraper/pkg/fetch"
	"github.com/Sriram-PR/bitesize-scraper/pkg/models"
	"github.com/Sriram-PR/bitesize-scraper/pkg/parse"
	"github.com/Sriram-PR/bitesize-scraper/pkg/persist"
	"github.com/Sriram-PR/bitesize-scraper/pkg/queue"
	"github.com/Sriram-PR/bitesize-scraper/pkg/storage"
	"github.com/Sriram-PR/bitesize-scraper/pkg/utils"
)

// Summary describes a finished run.
type Summary struct {
	RunID        string
	PagesCrawled int // Pages fetched successfully, counted against max_pages
	PagesSaved   int // Documents written to the output directory
	PagesFailed  int // Pages that exhausted retries or were refused by robots.txt
	Visited      int
	Duration     time.Duration
}

// Crawler drives one crawl run over a single target site. All crawl state
// (frontier, visited set) lives and dies with the Crawler.
type Crawler struct {
	log   *logrus.Entry // Logger contextualized with run_id
	cfg   *config.AppConfig
	runID string

	// Core components
	store         storage.VisitedStore
	frontier      *queue.Frontier
	classifier    *classify.Classifier
	fetcher       *fetch.Fetcher
	robotsHandler *fetch.RobotsHandler // nil unless respect_robots_txt
	hostSemPool   *fetch.HostSemaphorePool
	extractor     *extract.Extractor
	writer        *persist.Writer
	linkProcessor *LinkProcessor
	output        *OutputManager

	// Tracking and coordination
	budget      *Budget
	wg          sync.WaitGroup // One count per queued item not yet processed
	failedCount atomic.Int64
}

// NewCrawler creates a Crawler and its components from a validated config.
func NewCrawler(cfg *config.AppConfig, baseLogger *logrus.Entry) (*Crawler, error) {
	runID := uuid.NewString()
	logger := baseLogger.WithField("run_id", runID)

	classifier, err := classify.New(cfg.Target)
	if err != nil {
		return nil, fmt.Errorf("build classifier: %w", err)
	}

	writer, err := persist.NewWriter(cfg.OutputDir, logger)
	if err != nil {
		return nil, err
	}

	store, err := storage.New(cfg.VisitedStore, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: open visited store: %w", utils.ErrDatabase, err)
	}

	client := fetch.NewClient(cfg.HTTPClientSettings, logger)
	limiter := fetch.NewPolitenessLimiter(cfg.PolitenessDelay, logger)

	c := &Crawler{
		log:         logger,
		cfg:         cfg,
		runID:       runID,
		store:       store,
		frontier:    queue.NewFrontier(logger),
		classifier:  classifier,
		fetcher:     fetch.NewFetcher(client, limiter, cfg, logger),
		hostSemPool: fetch.NewHostSemaphorePool(cfg.MaxRequestsPerHost, logger),
		extractor:   extract.New(cfg.Target.SiteName, logger),
		writer:      writer,
		output:      NewOutputManager(cfg.Report, logger),
		budget:      NewBudget(cfg.MaxPages),
	}
	if cfg.RespectRobotsTxt {
		c.robotsHandler = fetch.NewRobotsHandler(client, limiter, cfg.UserAgent, logger)
	}
	c.linkProcessor = NewLinkProcessor(classifier, store, c.frontier, logger)

	return c, nil
}

// RunID returns the identifier attached to this run's logs and report.
func (c *Crawler) RunID() string {
	return c.runID
}

// Run crawls until the frontier is exhausted, max_pages pages have been
// crawled, ctx is done, or global_crawl_timeout expires. The returned error is
// the cancellation or deadline error, or a startup error when no start URL is usable.
func (c *Crawler) Run(ctx context.Context) (Summary, error) {
	startTime := time.Now()
	defer c.closeStore()
	defer c.fetcher.CloseIdleConnections()

	crawlCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if c.cfg.GlobalCrawlTimeout > 0 {
		crawlCtx, cancel = context.WithTimeout(crawlCtx, c.cfg.GlobalCrawlTimeout)
		defer cancel()
	}

	// --- Seed the frontier ---
	seeded := 0
	for i, raw := range c.cfg.StartURLs {
		startLog := c.log.WithFields(logrus.Fields{"index": i, "url": raw})
		canonical, err := parse.Canonicalize(raw, "")
		if err != nil {
			startLog.Warnf("Invalid start URL, skipping: %v", err)
			continue
		}
		c.wg.Add(1)
		if !c.frontier.Push(models.WorkItem{URL: canonical, Tier: models.TierContent}) {
			c.wg.Done()
			startLog.Warn("Duplicate start URL, skipping.")
			continue
		}
		seeded++
	}
	if seeded == 0 {
		c.closeFrontier()
		return Summary{RunID: c.runID}, fmt.Errorf("%w: no valid start URLs", utils.ErrConfigValidation)
	}

	c.output.OpenFiles()

	c.log.WithFields(logrus.Fields{
		"start_urls": seeded,
		"max_pages":  c.cfg.MaxPages,
		"workers":    c.cfg.NumWorkers,
		"output_dir": c.writer.Dir(),
	}).Info("Crawl starting")

	// --- Waiter: close the frontier when the work runs out or the run stops ---
	stopWaiter := make(chan struct{})
	waiterDone := make(chan struct{})
	go c.waiter(crawlCtx, stopWaiter, waiterDone)

	g, gCtx := errgroup.WithContext(crawlCtx)
	for i := 1; i <= c.cfg.NumWorkers; i++ {
		workerLog := c.log.WithField("worker_id", i)
		g.Go(func() error {
			c.worker(gCtx, workerLog)
			return nil
		})
	}
	_ = g.Wait()

	close(stopWaiter)
	<-waiterDone

	summary := Summary{
		RunID:        c.runID,
		PagesCrawled: c.budget.Committed(),
		PagesSaved:   c.writer.SavedCount(),
		PagesFailed:  int(c.failedCount.Load()),
		Duration:     time.Since(startTime),
	}
	if visited, err := c.store.VisitedCount(); err != nil {
		c.log.Warnf("Could not get final visited count: %v", err)
	} else {
		summary.Visited = visited
	}

	c.finishReport(summary, startTime)

	summaryLog := c.log.WithField("output_dir", c.writer.Dir())
	summaryLog.Info("========================================================================")
	summaryLog.Info("CRAWL FINISHED")
	summaryLog.Infof("Duration:         %v", summary.Duration.Round(time.Millisecond))
	summaryLog.Infof("Pages visited:    %d", summary.Visited)
	summaryLog.Infof("Pages crawled:    %d (failed: %d)", summary.PagesCrawled, summary.PagesFailed)
	summaryLog.Infof("Files saved:      %d", summary.PagesSaved)
	summaryLog.Info("========================================================================")

	return summary, crawlCtx.Err()
}

// waiter closes the frontier once every queued item has been processed, the
// budget is spent, or ctx is done, and logs progress until then.
func (c *Crawler) waiter(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer c.closeFrontier()

	tasksDone := make(chan struct{})
	go func() { c.wg.Wait(); close(tasksDone) }()

	interval := c.cfg.ProgressInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	progTicker := time.NewTicker(interval)
	defer progTicker.Stop()

	for {
		select {
		case <-tasksDone:
			c.log.Info("Frontier exhausted, all queued pages processed.")
			c.budget.Stop()
			return
		case <-ctx.Done():
			c.log.Warnf("Crawl context done (%v), stopping.", ctx.Err())
			return
		case <-stop:
			return
		case <-progTicker.C:
			visited, _ := c.store.VisitedCount()
			c.log.WithFields(logrus.Fields{
				"visited":       visited,
				"frontier_len":  c.frontier.Len(),
				"discovered":    c.frontier.SeenCount(),
				"pages_crawled": c.budget.Committed(),
				"pages_saved":   c.writer.SavedCount(),
			}).Info("Crawl Progress")
		}
	}
}

func (c *Crawler) worker(ctx context.Context, workerLog *logrus.Entry) {
	workerLog.Debug("Worker starting")
	defer workerLog.Debug("Worker finished")

	for {
		if !c.budget.Acquire(ctx) {
			if c.budget.Exhausted() {
				workerLog.Debug("Page budget spent")
				c.closeFrontier()
			}
			return
		}

		item, ok := c.frontier.Pop()
		if !ok {
			c.budget.Release(false)
			return
		}

		crawled := c.processPage(ctx, item, workerLog)
		c.budget.Release(crawled)
	}
}

// processPage runs the fetch, extract, persist and expand steps for one item.
// It returns true when the page counts against the budget.
func (c *Crawler) processPage(ctx context.Context, item models.WorkItem, workerLog *logrus.Entry) (crawled bool) {
	taskLog := workerLog.WithFields(logrus.Fields{"url": item.URL, "tier": item.Tier})
	startTime := time.Now()

	defer c.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			crawled = false
			taskLog.WithFields(logrus.Fields{
				"panic_info":  r,
				"duration":    time.Since(startTime).String(),
				"stack_trace": string(debug.Stack()),
			}).Error("PANIC recovered in processPage")
			c.markVisited(item, models.PageStatusFailure, fmt.Errorf("panic: %v", r), taskLog)
		}
	}()

	visited, err := c.store.IsVisited(item.URL)
	if err != nil {
		taskLog.Warnf("Visited check failed, proceeding: %v", err)
	} else if visited {
		taskLog.Debug("Already visited, discarding.")
		return false
	}

	target, err := url.Parse(item.URL)
	if err != nil {
		c.markVisited(item, models.PageStatusFailure, fmt.Errorf("%w: URL %q: %w", utils.ErrParsing, item.URL, err), taskLog)
		return false
	}
	taskLog = taskLog.WithField("host", target.Hostname())

	if c.robotsHandler != nil && !c.robotsHandler.Allowed(ctx, target) {
		c.markVisited(item, models.PageStatusFailure, utils.ErrRobotsDisallowed, taskLog)
		return false
	}

	release, err := c.hostSemPool.Acquire(ctx, target.Hostname())
	if err != nil {
		return false
	}
	res := c.fetcher.Fetch(ctx, item.URL)
	release()

	if !res.OK() {
		if ctx.Err() != nil {
			taskLog.Debugf("Fetch abandoned: %v", res.Err)
			return false
		}
		c.markVisited(item, models.PageStatusFailure, res.Err, taskLog)
		return false
	}

	base := item.URL
	if res.FinalURL != "" {
		base = res.FinalURL
	}

	var links []string
	page := models.ExtractedPage{SourceURL: item.URL}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		taskLog.Warnf("Unparseable markup, nothing extracted: %v", err)
	} else {
		links = CollectLinks(doc, base, taskLog)
		page = c.extractor.ExtractDocument(doc, item.URL)
	}
	if !page.HasBody() {
		taskLog.Debug("No body text extracted")
	}

	saved, err := c.writer.Save(page)
	if err != nil {
		taskLog.WithField("category", utils.CategorizeError(err)).Errorf("Failed to save document: %v", err)
	} else if saved.Saved {
		c.output.RecordPage(page, saved, item.Tier, taskLog)
	}

	queued := c.linkProcessor.QueueLinks(links, &c.wg, taskLog)

	c.markVisited(item, models.PageStatusSuccess, nil, taskLog)
	taskLog.WithFields(logrus.Fields{
		"duration": time.Since(startTime).String(),
		"saved":    saved.File,
		"queued":   queued,
		"attempts": res.Attempts,
	}).Info("Page crawled")
	return true
}

// markVisited records the outcome of item. Failures are logged with their category.
func (c *Crawler) markVisited(item models.WorkItem, status models.PageStatus, taskErr error, taskLog *logrus.Entry) {
	entry := models.VisitEntry{Status: status, Tier: item.Tier, LastAttempt: time.Now()}
	if taskErr != nil {
		entry.ErrorType = utils.CategorizeError(taskErr)
		c.failedCount.Add(1)
		taskLog.WithField("category", entry.ErrorType).Warnf("Page failed: %v", taskErr)
	}
	if _, err := c.store.MarkVisited(item.URL, entry); err != nil {
		taskLog.Errorf("Failed to mark '%s' visited: %v", item.URL, err)
	}
}

func (c *Crawler) finishReport(summary Summary, startTime time.Time) {
	meta := models.CrawlMetadata{
		RunID:          c.runID,
		StartURLs:      c.cfg.StartURLs,
		SubjectCode:    c.cfg.Target.SubjectCode,
		OutputDir:      c.writer.Dir(),
		CrawlStartTime: startTime,
		CrawlEndTime:   time.Now(),
		MaxPages:       c.cfg.MaxPages,
		PagesCrawled:   summary.PagesCrawled,
		PagesFailed:    summary.PagesFailed,
		PagesSaved:     summary.PagesSaved,
	}
	if err := c.output.Close(meta); err != nil {
		c.log.Errorf("Failed to write crawl metadata: %v", err)
	}

	if path := c.cfg.Report.VisitedLogPath; path != "" {
		if err := c.store.WriteVisitedLog(path); err != nil {
			c.log.Errorf("Failed to write visited log: %v", err)
		} else {
			c.log.Infof("Wrote visited log to %s", path)
		}
	}
}

// closeFrontier closes the frontier and settles the task count of every item
// it abandoned, so the waiter's WaitGroup still reaches zero.
func (c *Crawler) closeFrontier() {
	if n := c.frontier.Close(); n > 0 {
		c.wg.Add(-n)
	}
}

func (c *Crawler) closeStore() {
	if err := c.store.Close(); err != nil {
		c.log.Errorf("Failed to close visited store: %v", err)
	}
}
