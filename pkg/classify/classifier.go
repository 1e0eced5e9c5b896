// Package classify decides whether a canonical URL belongs to the target
// syllabus and how urgently it should be crawled.
package classify

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/Sriram-PR/bitesize-scraper/pkg/config"
	"github.com/Sriram-PR/bitesize-scraper/pkg/models"
	"github.com/Sriram-PR/bitesize-scraper/pkg/utils"
)

// Classifier applies the target's scope rules. It is immutable after New and safe for concurrent use.
type Classifier struct {
	hosts           map[string]struct{}
	pathPrefix      string
	subjectCode     string
	gradeKeywords   []string
	subjectKeywords []string
	guidesSegment   string
	revisionSegment string
	contentSegments []string
	excludes        []string
	disallowed      []*regexp.Regexp
}

// New builds a Classifier from target. Matching is case-insensitive.
func New(target config.TargetConfig) (*Classifier, error) {
	disallowed, err := utils.CompileRegexPatterns(target.DisallowedPathPatterns)
	if err != nil {
		return nil, err
	}

	c := &Classifier{
		hosts:           make(map[string]struct{}, len(target.AllowedHosts)),
		pathPrefix:      strings.ToLower(target.AllowedPathPrefix),
		subjectCode:     strings.ToLower(target.SubjectCode),
		gradeKeywords:   lowered(target.GradeKeywords),
		subjectKeywords: lowered(target.SubjectKeywords),
		guidesSegment:   strings.ToLower(target.GuidesSegment),
		revisionSegment: strings.ToLower(target.RevisionSegment),
		contentSegments: lowered(target.ContentSegments),
		excludes:        lowered(target.ExcludePatterns),
		disallowed:      disallowed,
	}
	for _, h := range target.AllowedHosts {
		c.hosts[strings.ToLower(strings.TrimSpace(h))] = struct{}{}
	}
	return c, nil
}

// Classify reports whether canonical is in scope and, if so, its tier.
// Out-of-scope URLs return (false, models.TierOther).
func (c *Classifier) Classify(canonical string) (bool, models.Tier) {
	lower := strings.ToLower(canonical)
	u, err := url.Parse(lower)
	if err != nil || u.Host == "" {
		return false, models.TierOther
	}

	if _, ok := c.hosts[u.Hostname()]; !ok {
		return false, models.TierOther
	}
	if c.pathPrefix != "" && !strings.HasPrefix(u.Path, c.pathPrefix) {
		return false, models.TierOther
	}

	revision := c.isRevisionPage(lower)
	if !revision && c.isExcluded(lower, u.Path) {
		return false, models.TierOther
	}

	if revision {
		return true, models.TierRevision
	}

	hasCode := c.subjectCode != "" && strings.Contains(lower, c.subjectCode)
	hasGrade := containsAny(lower, c.gradeKeywords)
	hasSubject := containsAny(lower, c.subjectKeywords)

	if hasCode {
		return true, models.TierContent
	}
	if containsAny(lower, c.contentSegments) && (hasGrade || hasSubject) {
		return true, models.TierContent
	}
	if hasGrade && hasSubject {
		return true, models.TierOther
	}
	return false, models.TierOther
}

func (c *Classifier) isRevisionPage(lower string) bool {
	if c.guidesSegment == "" || c.revisionSegment == "" {
		return false
	}
	return strings.Contains(lower, c.guidesSegment) && strings.Contains(lower, c.revisionSegment)
}

func (c *Classifier) isExcluded(lower, path string) bool {
	if containsAny(lower, c.excludes) {
		return true
	}
	for _, re := range c.disallowed {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func lowered(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(s))
	}
	return out
}
