package crawler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/bitesize-scraper/pkg/config"
	"github.com/Sriram-PR/bitesize-scraper/pkg/models"
	"github.com/Sriram-PR/bitesize-scraper/pkg/persist"
	"github.com/Sriram-PR/bitesize-scraper/pkg/process"
	"github.com/Sriram-PR/bitesize-scraper/pkg/utils"
)

// OutputManager owns the run report sidecars: the TSV mapping, the chunks JSONL
// and the metadata YAML. Every sidecar is optional; an empty path disables it.
type OutputManager struct {
	log *logrus.Entry
	cfg config.ReportConfig
	tok *process.Tokenizer // nil when no sidecar needs token counts

	chunker *process.Chunker

	// TSV mapping
	mappingFile   *os.File
	mappingFileMu sync.Mutex

	// Chunks output
	chunksFile   *os.File
	chunksFileMu sync.Mutex

	// YAML metadata
	collectedPageMetadata []models.PageMetadata
	metadataMutex         sync.Mutex
}

// NewOutputManager creates an OutputManager without opening files.
func NewOutputManager(cfg config.ReportConfig, log *logrus.Entry) *OutputManager {
	om := &OutputManager{log: log, cfg: cfg}

	if cfg.MetadataYAMLPath != "" || cfg.ChunksJSONLPath != "" {
		tok, err := process.NewTokenizer(cfg.TokenizerEncoding)
		if err != nil {
			log.Warnf("Failed to load tokenizer '%s': %v. Token counts will be omitted.", cfg.TokenizerEncoding, err)
		} else {
			om.tok = tok
			log.Debugf("Token counting enabled with encoding: %s", tok.Encoding())
		}
	}
	if cfg.ChunksJSONLPath != "" {
		om.chunker = process.NewChunker(process.ChunkerConfig{
			MaxChunkSize: cfg.ChunkMaxTokens,
			ChunkOverlap: cfg.ChunkOverlap,
		}, om.tok)
	}
	return om
}

// OpenFiles truncates and opens the streamed sidecars. A file that cannot be
// opened is logged and its output disabled.
func (om *OutputManager) OpenFiles() {
	if om.cfg.MappingTSVPath != "" {
		om.mappingFile = openOutputFile(om.log, om.cfg.MappingTSVPath, "TSV mapping")
	}
	if om.cfg.ChunksJSONLPath != "" {
		om.chunksFile = openOutputFile(om.log, om.cfg.ChunksJSONLPath, "chunks")
	}
}

func openOutputFile(log *logrus.Entry, path, label string) *os.File {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		log.Errorf("Failed to create directory for %s file '%s': %v. %s output will be disabled.", label, path, err, label)
		return nil
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		log.Errorf("Failed to open/create %s file '%s': %v. %s output will be disabled.", label, path, err, label)
		return nil
	}
	log.Infof("Writing %s output to %s", label, path)
	return file
}

// RecordPage handles all post-save output for a persisted document.
func (om *OutputManager) RecordPage(page models.ExtractedPage, saved persist.SaveResult, tier models.Tier, taskLog *logrus.Entry) {
	om.writeToMappingFile(page.SourceURL, saved.File, taskLog)

	if om.cfg.MetadataYAMLPath != "" {
		meta := models.PageMetadata{
			SourceURL:   page.SourceURL,
			File:        saved.File,
			Title:       page.Title,
			Tier:        tier,
			SavedAt:     time.Now(),
			ContentHash: utils.CalculateStringSHA256(page.Body),
			Headings:    process.ExtractHeadings([]byte(page.Body)),
		}
		if n := om.tok.Count(page.Body); n > 0 {
			meta.TokenCount = n
		}
		om.metadataMutex.Lock()
		om.collectedPageMetadata = append(om.collectedPageMetadata, meta)
		om.metadataMutex.Unlock()
	}

	if om.chunker != nil && om.chunksFile != nil {
		chunks, err := om.chunker.Split(page.Body)
		if err != nil {
			taskLog.Warnf("Failed to chunk document body: %v", err)
			return
		}
		lines := make([]models.ChunkJSONL, len(chunks))
		for i, chunk := range chunks {
			lines[i] = models.ChunkJSONL{
				SourceURL:  page.SourceURL,
				File:       saved.File,
				Title:      page.Title,
				ChunkIndex: i,
				Content:    chunk.Content,
				Headings:   chunk.Headings,
				TokenCount: chunk.TokenCount,
			}
		}
		om.writeToChunksFile(lines, taskLog)
		taskLog.Debugf("Wrote %d chunks for page", len(chunks))
	}
}

func (om *OutputManager) writeToMappingFile(pageURL, file string, taskLog *logrus.Entry) {
	om.mappingFileMu.Lock()
	defer om.mappingFileMu.Unlock()
	if om.mappingFile == nil {
		return
	}
	if _, err := fmt.Fprintf(om.mappingFile, "%s\t%s\n", pageURL, file); err != nil {
		taskLog.WithField("tsv_mapping_file", om.cfg.MappingTSVPath).Errorf("Failed to write to TSV mapping file: %v", err)
	}
}

func (om *OutputManager) writeToChunksFile(chunks []models.ChunkJSONL, taskLog *logrus.Entry) {
	om.chunksFileMu.Lock()
	defer om.chunksFileMu.Unlock()
	if om.chunksFile == nil {
		return
	}
	for _, chunk := range chunks {
		jsonBytes, err := json.Marshal(chunk)
		if err != nil {
			taskLog.WithField("chunks_file", om.cfg.ChunksJSONLPath).Errorf("Failed to marshal chunk to JSON: %v", err)
			continue
		}
		if _, err := om.chunksFile.Write(append(jsonBytes, '\n')); err != nil {
			taskLog.WithField("chunks_file", om.cfg.ChunksJSONLPath).Errorf("Failed to write to chunks file: %v", err)
		}
	}
}

// Close syncs and closes the streamed sidecars, then writes the metadata YAML
// using run as the header. run.Pages is replaced with the collected pages.
func (om *OutputManager) Close(run models.CrawlMetadata) error {
	closeOutputFile(om.log, &om.mappingFileMu, &om.mappingFile, om.cfg.MappingTSVPath)
	closeOutputFile(om.log, &om.chunksFileMu, &om.chunksFile, om.cfg.ChunksJSONLPath)
	return om.writeMetadataYAML(run)
}

func closeOutputFile(log *logrus.Entry, mu *sync.Mutex, file **os.File, path string) {
	mu.Lock()
	defer mu.Unlock()
	if *file == nil {
		return
	}
	if err := (*file).Sync(); err != nil {
		log.Errorf("Error syncing '%s': %v", path, err)
	}
	if err := (*file).Close(); err != nil {
		log.Errorf("Error closing '%s': %v", path, err)
	}
	*file = nil
}

func (om *OutputManager) writeMetadataYAML(run models.CrawlMetadata) error {
	path := om.cfg.MetadataYAMLPath
	if path == "" {
		return nil
	}

	om.metadataMutex.Lock()
	run.Pages = make([]models.PageMetadata, len(om.collectedPageMetadata))
	copy(run.Pages, om.collectedPageMetadata)
	om.metadataMutex.Unlock()

	yamlData, err := yaml.Marshal(&run)
	if err != nil {
		return fmt.Errorf("marshal crawl metadata: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("%w: create metadata dir: %w", utils.ErrFilesystem, err)
	}
	if err := os.WriteFile(path, yamlData, 0644); err != nil {
		return fmt.Errorf("%w: write metadata YAML '%s': %w", utils.ErrFilesystem, path, err)
	}

	om.log.Infof("Wrote crawl metadata (%d pages) to %s", len(run.Pages), path)
	return nil
}
