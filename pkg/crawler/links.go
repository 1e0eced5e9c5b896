package crawler

import (
	"errors"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/bitesize-scraper/pkg/classify"
	"github.com/Sriram-PR/bitesize-scraper/pkg/models"
	"github.com/Sriram-PR/bitesize-scraper/pkg/parse"
	"github.com/Sriram-PR/bitesize-scraper/pkg/queue"
	"github.com/Sriram-PR/bitesize-scraper/pkg/storage"
)

// LinkProcessor discovers outbound links on a fetched page and queues the in-scope ones.
type LinkProcessor struct {
	classifier *classify.Classifier
	store      storage.VisitedStore
	frontier   *queue.Frontier
	log        *logrus.Entry
}

// NewLinkProcessor creates a LinkProcessor
func NewLinkProcessor(classifier *classify.Classifier, store storage.VisitedStore, frontier *queue.Frontier, log *logrus.Entry) *LinkProcessor {
	return &LinkProcessor{
		classifier: classifier,
		store:      store,
		frontier:   frontier,
		log:        log,
	}
}

// CollectLinks returns the canonical form of every a[href] in doc, resolved
// against base, in document order without duplicates. Unparseable and
// non-http(s) links are dropped.
// Must run before extraction, which removes navigation from doc.
func CollectLinks(doc *goquery.Document, base string, taskLog *logrus.Entry) []string {
	seen := make(map[string]bool)
	var links []string

	doc.Find("a[href]").Each(func(_ int, el *goquery.Selection) {
		href, _ := el.Attr("href")
		canonical, err := parse.Canonicalize(href, base)
		if err != nil {
			if !errors.Is(err, parse.ErrUncrawlable) {
				taskLog.Tracef("Dropping link '%s': %v", href, err)
			}
			return
		}
		if !seen[canonical] {
			seen[canonical] = true
			links = append(links, canonical)
		}
	})
	return links
}

// QueueLinks classifies links and pushes the in-scope ones that are neither
// visited nor already queued. wg is incremented for every queued item.
func (lp *LinkProcessor) QueueLinks(links []string, wg *sync.WaitGroup, taskLog *logrus.Entry) (queuedCount int) {
	for _, link := range links {
		inScope, tier := lp.classifier.Classify(link)
		if !inScope {
			continue
		}

		visited, err := lp.store.IsVisited(link)
		if err != nil {
			taskLog.Warnf("Visited check failed for '%s', skipping link: %v", link, err)
			continue
		}
		if visited {
			continue
		}

		// Add before Push so a fast worker cannot call Done first
		wg.Add(1)
		if !lp.frontier.Push(models.WorkItem{URL: link, Tier: tier}) {
			wg.Done()
			continue
		}
		queuedCount++
		taskLog.WithField("tier", tier).Debugf("Queued link: %s", link)
	}

	if queuedCount > 0 {
		taskLog.Debugf("Queued %d new links out of %d found.", queuedCount, len(links))
	}
	return queuedCount
}
