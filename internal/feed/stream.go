package feed

import (
	"archive/zip"
	"bufio"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"rankjuice/internal/brands"
	"rankjuice/internal/match"
	"rankjuice/internal/store"
)

// Item is the subset of a product-feed entry used for brand harvesting.
type Item struct {
	Brand string
	Title string
}

// Harvest accumulates brand rows and title-term counts across one or more feeds.
type Harvest struct {
	minLength int
	merged    map[string]store.Brand
	order     []string
	terms     map[string]int
	items     int
}

// NewHarvest prepares an empty harvest. Brands shorter than minLength runes
// after normalization are dropped.
func NewHarvest(minLength int) *Harvest {
	if minLength <= 0 {
		minLength = 3
	}
	return &Harvest{
		minLength: minLength,
		merged:    make(map[string]store.Brand),
		terms:     make(map[string]int),
	}
}

// IngestOptions configures the feed ingestion routine.
type IngestOptions struct {
	Path     string
	Source   string
	Harvest  *Harvest
	Progress func(count int)
	Context  context.Context
}

// Ingest parses a Merchant-style product feed (optionally zipped) and folds its
// items into the harvest. Both RSS <item> and Atom <entry> elements are read.
func Ingest(opts IngestOptions) (int, error) {
	if opts.Harvest == nil {
		return 0, errors.New("harvest is required")
	}
	if opts.Path == "" {
		return 0, errors.New("path is required")
	}
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	source := strings.TrimSpace(opts.Source)
	if source == "" {
		source = filepath.Base(opts.Path)
	}

	r, closer, err := openFeed(opts.Path)
	if err != nil {
		return 0, err
	}
	defer closer()

	decoder := xml.NewDecoder(bufio.NewReader(r))
	count := 0

	for {
		select {
		case <-ctx.Done():
			return count, ctx.Err()
		default:
		}

		tok, err := decoder.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return count, nil
			}
			return count, fmt.Errorf("decode token: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local != "item" && start.Name.Local != "entry" {
			continue
		}

		var entry feedItem
		if err := decoder.DecodeElement(&entry, &start); err != nil {
			return count, fmt.Errorf("decode feed item: %w", err)
		}

		item := entry.toItem()
		if item.Brand == "" && item.Title == "" {
			continue
		}

		opts.Harvest.add(item, source)
		count++
		if opts.Progress != nil && count%500 == 0 {
			opts.Progress(count)
		}
	}
}

// add folds one feed item into the harvest.
func (h *Harvest) add(item Item, source string) {
	h.items++

	if entry, ok := brands.BuildEntry(item.Brand, source, h.minLength); ok {
		if existing, seen := h.merged[entry.Normalized]; seen {
			existing.Items++
			h.merged[entry.Normalized] = existing
		} else {
			h.merged[entry.Normalized] = entry
			h.order = append(h.order, entry.Normalized)
		}
	}

	// One count per item and term, so a repeated word in a single title does
	// not inflate its popularity.
	seen := make(map[string]struct{})
	for _, token := range match.Tokens(item.Title) {
		if utf8.RuneCountInString(token) < 3 {
			continue
		}
		if match.IsStopWord(token) {
			continue
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		h.terms[token]++
	}
}

// Items returns the number of feed items folded into the harvest.
func (h *Harvest) Items() int {
	if h == nil {
		return 0
	}
	return h.items
}

// Brands returns the merged brand rows in first-seen order.
func (h *Harvest) Brands() []store.Brand {
	if h == nil {
		return nil
	}
	out := make([]store.Brand, 0, len(h.merged))
	for _, key := range h.order {
		out = append(out, h.merged[key])
	}
	return out
}

// TitleTerms returns the harvested term counts at or above minTotal, most
// frequent first.
func (h *Harvest) TitleTerms(minTotal int) []store.TitleTerm {
	if h == nil {
		return nil
	}
	if minTotal <= 0 {
		minTotal = 2
	}
	var out []store.TitleTerm
	for term, total := range h.terms {
		if total < minTotal {
			continue
		}
		out = append(out, store.TitleTerm{Term: term, Total: total})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Term < out[j].Term
	})
	return out
}

// openFeed opens either a raw feed file or a ZIP containing one.
func openFeed(path string) (io.Reader, func(), error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, err
	}
	if info.IsDir() {
		return nil, nil, fmt.Errorf("%s is a directory", path)
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".zip" {
		return openFromZip(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

func openFromZip(path string) (io.Reader, func(), error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, nil, err
	}
	for _, f := range zr.File {
		name := strings.ToLower(f.Name)
		if strings.HasSuffix(name, ".xml") || strings.HasSuffix(name, ".rss") || strings.HasSuffix(name, ".atom") {
			rc, err := f.Open()
			if err != nil {
				_ = zr.Close()
				return nil, nil, err
			}
			closer := func() {
				_ = rc.Close()
				_ = zr.Close()
			}
			return rc, closer, nil
		}
	}
	_ = zr.Close()
	return nil, nil, fmt.Errorf("no feed file found in %s", path)
}

type feedItem struct {
	Title string `xml:"title"`
	Brand string `xml:"brand"`
}

func (fi feedItem) toItem() Item {
	return Item{
		Brand: cleanString(fi.Brand),
		Title: cleanString(fi.Title),
	}
}

func cleanString(in string) string {
	return strings.TrimSpace(strings.ReplaceAll(in, "\n", " "))
}
