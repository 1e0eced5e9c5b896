package storage

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/bitesize-scraper/pkg/models"
	"github.com/Sriram-PR/bitesize-scraper/pkg/utils"
)

type visitRecord struct {
	url   string
	entry models.VisitEntry
}

// writeVisitedLog writes one "url\tstatus[\terror_type]" line per record, sorted by URL.
func writeVisitedLog(filePath string, records []visitRecord, log *logrus.Entry) error {
	sort.Slice(records, func(i, j int) bool { return records[i].url < records[j].url })

	if dir := filepath.Dir(filePath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("%w: create visited log dir '%s': %w", utils.ErrFilesystem, dir, err)
		}
	}
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("%w: create visited log '%s': %w", utils.ErrFilesystem, filePath, err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, r := range records {
		line := r.url + "\t" + r.entry.Status.String()
		if r.entry.ErrorType != "" {
			line += "\t" + r.entry.ErrorType
		}
		if _, err := writer.WriteString(line + "\n"); err != nil {
			return fmt.Errorf("%w: write visited log '%s': %w", utils.ErrFilesystem, filePath, err)
		}
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("%w: flush visited log '%s': %w", utils.ErrFilesystem, filePath, err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("%w: sync visited log '%s': %w", utils.ErrFilesystem, filePath, err)
	}

	log.Infof("Wrote %d URLs to visited log: %s", len(records), filePath)
	return nil
}
