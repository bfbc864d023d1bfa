package main

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"rankjuice/internal/brands"
	"rankjuice/internal/feed"
	"rankjuice/internal/store"
)

func main() {
	var (
		dbPath      = flag.String("db", filepath.FromSlash("data/rankjuice.db"), "Path to SQLite database")
		feedPaths   multiFlag
		feedDirs    multiFlag
		feedURLs    multiFlag
		csvPath     = flag.String("csv", "", "Brand CSV (brand[,source] columns) merged into the inventory")
		minLength   = flag.Int("min-length", 3, "Minimum brand length after normalization")
		minCount    = flag.Int("min-count", 2, "Minimum occurrences for a title term to be kept")
		limit       = flag.Int("limit", 1000, "Maximum number of top title terms to emit")
		outputPath  = flag.String("output", "", "Optional path to write JSON array of top title terms")
		refreshOnly = flag.Bool("refresh", false, "Only re-emit aggregates without ingesting feeds")
	)
	flag.Var(&feedPaths, "feed", "Product feed XML, RSS or ZIP file (repeatable)")
	flag.Var(&feedDirs, "feed-dir", "Directory containing product feeds (repeatable)")
	flag.Var(&feedURLs, "feed-url", "Product feed URL to download (repeatable, env FEED_URLS)")
	flag.Parse()

	if len(feedURLs) == 0 {
		for _, raw := range strings.Split(os.Getenv("FEED_URLS"), ",") {
			if trimmed := strings.TrimSpace(raw); trimmed != "" {
				feedURLs = append(feedURLs, trimmed)
			}
		}
	}

	db, err := store.Open(*dbPath, true)
	if err != nil {
		logrus.Fatalf("open database: %v", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			logrus.WithError(cerr).Warn("close database")
		}
	}()

	ingestList := make([]string, 0, len(feedPaths))
	seen := make(map[string]struct{})

	addFile := func(path string) {
		cleaned := filepath.Clean(path)
		if cleaned == "" {
			return
		}
		if _, ok := seen[cleaned]; ok {
			return
		}
		seen[cleaned] = struct{}{}
		ingestList = append(ingestList, cleaned)
	}

	for _, p := range feedPaths {
		addFile(p)
	}

	for _, dir := range feedDirs {
		dir = filepath.Clean(dir)
		if dir == "" {
			continue
		}
		filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				logrus.WithError(err).WithField("path", path).Warn("walking feed dir")
				return nil
			}
			if d.IsDir() {
				return nil
			}
			name := strings.ToLower(d.Name())
			if strings.HasSuffix(name, ".xml") || strings.HasSuffix(name, ".rss") ||
				strings.HasSuffix(name, ".atom") || strings.HasSuffix(name, ".zip") {
				addFile(path)
			}
			return nil
		})
	}

	if !*refreshOnly {
		for _, rawURL := range feedURLs {
			dest, dlErr := downloadFeed(rawURL)
			if dlErr != nil {
				if len(ingestList) == 0 {
					logrus.Fatalf("download %s: %v", rawURL, dlErr)
				}
				logrus.WithError(dlErr).WithField("url", rawURL).Warn("skipping feed download")
				continue
			}
			ingestList = append(ingestList, dest)
		}
	}

	harvest := feed.NewHarvest(*minLength)

	if !*refreshOnly && len(ingestList) > 0 {
		for _, path := range ingestList {
			start := time.Now()
			logrus.WithField("file", path).Info("ingesting product feed")
			ingested, err := feed.Ingest(feed.IngestOptions{
				Path:    path,
				Harvest: harvest,
				Progress: func(count int) {
					logrus.WithField("file", path).WithField("items", count).Info("ingest progress")
				},
			})
			if err != nil {
				logrus.Fatalf("ingest %s: %v", path, err)
			}
			logrus.WithFields(logrus.Fields{
				"file":     path,
				"items":    ingested,
				"duration": time.Since(start).Round(time.Second),
			}).Info("ingest complete")
		}
	}

	entries := harvest.Brands()
	if !*refreshOnly && strings.TrimSpace(*csvPath) != "" {
		csvEntries, err := readBrandCSV(*csvPath, *minLength)
		if err != nil {
			logrus.Fatalf("read brand csv: %v", err)
		}
		entries = mergeBrandEntries(entries, csvEntries)
		logrus.WithFields(logrus.Fields{
			"path":   *csvPath,
			"brands": len(csvEntries),
		}).Info("brand csv merged")
	}

	if !*refreshOnly && len(entries) > 0 {
		index := brands.NewIndex(db)
		stored, err := index.Replace(entries)
		if err != nil {
			logrus.Fatalf("persist brand inventory: %v", err)
		}
		logrus.WithField("brands", stored).Info("brand inventory replaced")
	}

	if !*refreshOnly {
		terms := harvest.TitleTerms(*minCount)
		if len(terms) > 0 {
			if err := db.ReplaceTitleTerms(terms); err != nil {
				logrus.Fatalf("persist title terms: %v", err)
			}
			logrus.WithFields(logrus.Fields{
				"terms":     len(terms),
				"min_count": *minCount,
			}).Info("title term aggregates replaced")
		}
	}

	topTerms, err := db.ListTitleTerms(*limit)
	if err != nil {
		logrus.Fatalf("list title terms: %v", err)
	}
	tokens := make([]string, 0, len(topTerms))
	for _, row := range topTerms {
		tokens = append(tokens, row.Term)
	}

	topBrands, err := db.PopularBrands(10, *minCount)
	if err != nil {
		logrus.Fatalf("list popular brands: %v", err)
	}
	for _, brand := range topBrands {
		logrus.WithFields(logrus.Fields{
			"brand": brand.Name,
			"items": brand.Items,
		}).Info("top brand")
	}

	logrus.WithFields(logrus.Fields{
		"items":       harvest.Items(),
		"title_terms": len(tokens),
	}).Info("brand harvest complete")

	if *outputPath != "" {
		if err := writeTokens(*outputPath, tokens); err != nil {
			logrus.Fatalf("write tokens: %v", err)
		}
		logrus.WithField("path", *outputPath).Info("top title terms written to file")
	}
}

// readBrandCSV parses brand[,source] rows into entries without touching the
// store, so they can be merged with harvested feed brands.
func readBrandCSV(path string, minLength int) ([]store.Brand, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(bufio.NewReader(file))
	reader.FieldsPerRecord = -1
	var entries []store.Brand
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(row) == 0 {
			continue
		}
		name := strings.TrimSpace(row[0])
		if strings.EqualFold(name, "brand") || strings.EqualFold(name, "name") {
			continue
		}
		source := "csv"
		if len(row) > 1 && strings.TrimSpace(row[1]) != "" {
			source = strings.TrimSpace(row[1])
		}
		if entry, ok := brands.BuildEntry(name, source, minLength); ok {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// mergeBrandEntries folds extra entries into base, summing item counts on
// normalized-name collisions.
func mergeBrandEntries(base, extra []store.Brand) []store.Brand {
	merged := make(map[string]int, len(base))
	out := make([]store.Brand, 0, len(base)+len(extra))
	for _, entry := range base {
		merged[entry.Normalized] = len(out)
		out = append(out, entry)
	}
	for _, entry := range extra {
		if idx, ok := merged[entry.Normalized]; ok {
			out[idx].Items += entry.Items
			continue
		}
		merged[entry.Normalized] = len(out)
		out = append(out, entry)
	}
	return out
}

func downloadFeed(rawURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", err
	}

	req, err := http.NewRequest(http.MethodGet, parsed.String(), nil)
	if err != nil {
		return "", err
	}
	client := &http.Client{Timeout: 5 * time.Minute}

	logrus.WithField("url", parsed.String()).Info("downloading product feed")
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("download failed: %s", strings.TrimSpace(string(body)))
	}

	ext := strings.ToLower(filepath.Ext(parsed.Path))
	if ext != ".zip" && ext != ".rss" && ext != ".atom" {
		ext = ".xml"
	}
	tmp, err := os.CreateTemp("", "feed-*"+ext)
	if err != nil {
		return "", err
	}
	defer tmp.Close()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}

	fileInfo, statErr := tmp.Stat()
	size := int64(0)
	if statErr == nil {
		size = fileInfo.Size()
	}
	logrus.WithFields(logrus.Fields{
		"file": tmp.Name(),
		"size": size,
	}).Info("product feed downloaded")
	return tmp.Name(), nil
}

func writeTokens(path string, tokens []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		if !os.IsExist(err) {
			return err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(tokens)
}

type multiFlag []string

func (m *multiFlag) String() string {
	return strings.Join(*m, ",")
}

func (m *multiFlag) Set(value string) error {
	*m = append(*m, value)
	return nil
}
