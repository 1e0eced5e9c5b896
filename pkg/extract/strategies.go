package extract

import (
	"regexp"

	"github.com/PuerkitoBio/goquery"
)

// Strategy locates the main content region of a document, or returns nil.
type Strategy func(doc *goquery.Document) *goquery.Selection

var (
	contentClassRe  = regexp.MustCompile(`(?i)content|main|article|text|body|guide|topic|revision`)
	contentIDRe     = regexp.MustCompile(`(?i)content|main|article|body`)
	contentTestIDRe = regexp.MustCompile(`(?i)content|article|main`)
)

// DefaultStrategies returns the region lookups in priority order: landmark
// elements first, then containers hinted by class, id and data-testid.
func DefaultStrategies() []Strategy {
	return []Strategy{
		ByElement("main"),
		ByElement("article"),
		ByAttribute("div", "class", contentClassRe),
		ByAttribute("div", "id", contentIDRe),
		ByAttribute("div", "data-testid", contentTestIDRe),
	}
}

// ByElement matches the first element with the given tag.
func ByElement(tag string) Strategy {
	return func(doc *goquery.Document) *goquery.Selection {
		sel := doc.Find(tag).First()
		if sel.Length() == 0 {
			return nil
		}
		return sel
	}
}

// ByAttribute matches the first tag element whose attr matches re.
func ByAttribute(tag, attr string, re *regexp.Regexp) Strategy {
	return func(doc *goquery.Document) *goquery.Selection {
		sel := doc.Find(tag + "[" + attr + "]").FilterFunction(func(_ int, s *goquery.Selection) bool {
			v, _ := s.Attr(attr)
			return re.MatchString(v)
		}).First()
		if sel.Length() == 0 {
			return nil
		}
		return sel
	}
}
