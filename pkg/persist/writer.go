// Package persist writes extracted pages to the output directory as plain-text documents.
package persist

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/bitesize-scraper/pkg/models"
	"github.com/Sriram-PR/bitesize-scraper/pkg/utils"
)

const (
	// MinBodyLength is the smallest trimmed body, in runes, worth saving.
	MinBodyLength = 50

	maxTitleNameRunes = 100
	maxPathNameRunes  = 50
	maxCollisions     = 10000

	headerRule = "================================================================================" // 80
)

var (
	unsafeNameRe = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)
	separatorRe  = regexp.MustCompile(`[-\s]+`)
)

// SaveResult describes what Save did with a page.
type SaveResult struct {
	Saved bool
	Path  string // Absolute path of the written file, empty when not saved
	File  string // File name relative to the output directory
}

// Writer stores documents under a single output directory. Safe for concurrent use;
// file creation is exclusive so concurrent saves never share a name.
type Writer struct {
	dir   string
	mu    sync.Mutex
	saved int
	log   *logrus.Entry
}

// NewWriter creates dir (and parents) if needed.
func NewWriter(dir string, log *logrus.Entry) (*Writer, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve output dir '%s': %w", utils.ErrFilesystem, dir, err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("%w: create output dir '%s': %w", utils.ErrFilesystem, abs, err)
	}
	return &Writer{dir: abs, log: log}, nil
}

// Dir returns the absolute output directory.
func (w *Writer) Dir() string {
	return w.dir
}

// SavedCount returns the number of documents written so far.
func (w *Writer) SavedCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.saved
}

// Save writes page as <name>.txt. Pages whose trimmed body is shorter than
// MinBodyLength are skipped without error.
func (w *Writer) Save(page models.ExtractedPage) (SaveResult, error) {
	if utf8.RuneCountInString(strings.TrimSpace(page.Body)) < MinBodyLength {
		w.log.WithField("url", page.SourceURL).Debug("Body too short, not saving")
		return SaveResult{}, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	stem := FileStem(page.Title, page.SourceURL, w.saved)
	content := FormatDocument(page)

	f, name, err := w.createUnique(stem)
	if err != nil {
		return SaveResult{}, err
	}
	path := filepath.Join(w.dir, name)

	if _, err := f.WriteString(content); err != nil {
		f.Close()
		_ = os.Remove(path)
		return SaveResult{}, fmt.Errorf("%w: write '%s': %w", utils.ErrFilesystem, path, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return SaveResult{}, fmt.Errorf("%w: close '%s': %w", utils.ErrFilesystem, path, err)
	}

	w.saved++
	w.log.WithFields(logrus.Fields{"url": page.SourceURL, "file": name}).Info("Saved")
	return SaveResult{Saved: true, Path: path, File: name}, nil
}

// createUnique opens stem.txt, stem_1.txt, stem_2.txt... taking the first name that does not exist.
func (w *Writer) createUnique(stem string) (*os.File, string, error) {
	for i := 0; i < maxCollisions; i++ {
		name := stem + ".txt"
		if i > 0 {
			name = fmt.Sprintf("%s_%d.txt", stem, i)
		}
		f, err := os.OpenFile(filepath.Join(w.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			return f, name, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", fmt.Errorf("%w: create '%s': %w", utils.ErrFilesystem, name, err)
		}
	}
	return nil, "", fmt.Errorf("%w: no free file name for '%s' after %d attempts", utils.ErrFilesystem, stem, maxCollisions)
}

// FormatDocument renders the provenance header followed by the body.
func FormatDocument(page models.ExtractedPage) string {
	var sb strings.Builder
	sb.Grow(len(page.SourceURL) + len(page.Title) + len(page.Body) + 100)
	sb.WriteString("URL: ")
	sb.WriteString(page.SourceURL)
	sb.WriteString("\nTitle: ")
	sb.WriteString(page.Title)
	sb.WriteString("\n")
	sb.WriteString(headerRule)
	sb.WriteString("\n\n")
	sb.WriteString(page.Body)
	return sb.String()
}

// FileStem derives a file name (without extension) from the title, falling
// back to the URL path and finally to content_<savedCount>.
func FileStem(title, sourceURL string, savedCount int) string {
	if name := titleStem(title); name != "" {
		return name
	}
	if name := pathStem(sourceURL); name != "" {
		return name
	}
	return fmt.Sprintf("content_%d", savedCount)
}

func titleStem(title string) string {
	name := unsafeNameRe.ReplaceAllString(title, "")
	name = truncateRunes(name, maxTitleNameRunes)
	name = separatorRe.ReplaceAllString(name, "-")
	if strings.Trim(name, "-") == "" {
		return ""
	}
	return name
}

func pathStem(sourceURL string) string {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return ""
	}
	name := strings.ReplaceAll(strings.Trim(u.Path, "/"), "/", "-")
	// Keep the path usable as a file name on every platform
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`\:*?"<>|`, r) || r < 0x20 {
			return -1
		}
		return r
	}, name)
	if n := utf8.RuneCountInString(name); n > maxPathNameRunes {
		name = string([]rune(name)[n-maxPathNameRunes:])
	}
	if name == "." || name == ".." {
		return ""
	}
	return name
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
