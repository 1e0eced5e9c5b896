// Package extract turns fetched page markup into a title and a plain-text body.
package extract

import (
	"bytes"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/bitesize-scraper/pkg/models"
)

const (
	// boilerplateSelector lists elements removed before any text is read.
	boilerplateSelector = "script, style, nav, header, footer, aside, form, button"

	headingSelector  = "h1, h2, h3, h4, h5, h6"
	blockSelector    = "p, li, dd, dt, blockquote"
	fallbackSelector = "h1, h2, h3, h4, h5, h6, p, li"

	minHeadingLength = 3  // Headings must be longer than this
	minBlockLength   = 10 // Text blocks must be longer than this
	recentWindow     = 5  // Blocks contained in one of the last N entries are skipped
)

var titleClassRe = regexp.MustCompile(`(?i)title|heading`)

// Extractor pulls the learning content out of a page. It holds no per-page
// state and is safe for concurrent use.
type Extractor struct {
	strategies  []Strategy
	titlePrefix *regexp.Regexp // nil when no site name is configured
	log         *logrus.Entry
}

// New creates an Extractor that strips siteName from the front of titles and
// resolves the content region with DefaultStrategies.
func New(siteName string, log *logrus.Entry) *Extractor {
	return &Extractor{
		strategies:  DefaultStrategies(),
		titlePrefix: siteNamePrefix(siteName),
		log:         log,
	}
}

// Extract parses markup and returns its title and body. Malformed markup
// degrades to an empty page, it never fails.
func (e *Extractor) Extract(markup []byte, pageURL string) models.ExtractedPage {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		e.log.WithField("url", pageURL).Warnf("Could not parse markup: %v", err)
		return models.ExtractedPage{SourceURL: pageURL}
	}
	return e.ExtractDocument(doc, pageURL)
}

// ExtractDocument is Extract on an already parsed document.
// Boilerplate elements are removed from doc in place.
func (e *Extractor) ExtractDocument(doc *goquery.Document, pageURL string) (page models.ExtractedPage) {
	page.SourceURL = pageURL
	defer func() {
		if r := recover(); r != nil {
			e.log.WithField("url", pageURL).Errorf("PANIC during extraction: %v", r)
			page = models.ExtractedPage{SourceURL: pageURL}
		}
	}()

	doc.Find(boilerplateSelector).Remove()

	page.Title = e.title(doc)

	var blocks []string
	if region := e.region(doc); region != nil {
		blocks = regionBlocks(region)
	} else {
		blocks = fallbackBlocks(doc)
	}
	page.Body = strings.Join(dedupe(blocks), "\n\n")
	return page
}

func (e *Extractor) title(doc *goquery.Document) string {
	candidates := []*goquery.Selection{
		doc.Find("h1").FilterFunction(func(_ int, s *goquery.Selection) bool {
			class, _ := s.Attr("class")
			return titleClassRe.MatchString(class)
		}),
		doc.Find("h1"),
		doc.Find("title"),
	}

	for _, sel := range candidates {
		if sel.Length() == 0 {
			continue
		}
		title := cleanText(sel.First().Text())
		if e.titlePrefix != nil {
			title = e.titlePrefix.ReplaceAllString(title, "")
		}
		return title
	}
	return ""
}

func (e *Extractor) region(doc *goquery.Document) *goquery.Selection {
	for _, strategy := range e.strategies {
		if sel := strategy(doc); sel != nil && sel.Length() > 0 {
			return sel.First()
		}
	}
	return nil
}

// regionBlocks emits underlined headings first, then the text blocks.
func regionBlocks(region *goquery.Selection) []string {
	var blocks []string

	region.Find(headingSelector).Each(func(_ int, s *goquery.Selection) {
		text := cleanText(s.Text())
		n := utf8.RuneCountInString(text)
		if n > minHeadingLength {
			blocks = append(blocks, text+"\n"+strings.Repeat("=", n))
		}
	})

	region.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		text := cleanText(s.Text())
		if utf8.RuneCountInString(text) <= minBlockLength {
			return
		}
		if containedInRecent(text, blocks) {
			return
		}
		blocks = append(blocks, text)
	})
	return blocks
}

func fallbackBlocks(doc *goquery.Document) []string {
	var blocks []string
	doc.Find(fallbackSelector).Each(func(_ int, s *goquery.Selection) {
		text := cleanText(s.Text())
		if utf8.RuneCountInString(text) > minBlockLength {
			blocks = append(blocks, text)
		}
	})
	return blocks
}

func containedInRecent(text string, blocks []string) bool {
	start := len(blocks) - recentWindow
	if start < 0 {
		start = 0
	}
	for _, existing := range blocks[start:] {
		if strings.Contains(existing, text) {
			return true
		}
	}
	return false
}

// dedupe drops case-insensitive repeats and blocks whose key is too short.
func dedupe(blocks []string) []string {
	seen := make(map[string]struct{}, len(blocks))
	out := make([]string, 0, len(blocks))
	for _, b := range blocks {
		key := strings.ToLower(strings.TrimSpace(b))
		if utf8.RuneCountInString(key) <= minBlockLength {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, b)
	}
	return out
}

// cleanText collapses whitespace runs to single spaces and trims.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func siteNamePrefix(siteName string) *regexp.Regexp {
	words := strings.Fields(siteName)
	if len(words) == 0 {
		return nil
	}
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?i)^\s*` + strings.Join(words, `\s+`) + `\s*[-–—]\s*`)
}
