package storage

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	json "github.com/goccy/go-json"

	"sjsage522/mallcrawler/internal/crawler"
	"sjsage522/mallcrawler/logger"
	"sjsage522/mallcrawler/pkg/errors"
)

// AllProductsFile aggregates the products of every mall
const AllProductsFile = "all-products.json"

// ErrorReport is written to <site>-error.json when a crawl failed or
// skipped items.
type ErrorReport struct {
	Site   string              `json:"site"`
	Name   string              `json:"name"`
	Time   time.Time           `json:"time"`
	Error  string              `json:"error,omitempty"`
	Errors []crawler.ItemError `json:"errors,omitempty"`
}

// Catalog is the combined product list of all malls
type Catalog struct {
	GeneratedAt   time.Time         `json:"generated_at"`
	TotalMalls    int               `json:"total_malls"`
	TotalProducts int               `json:"total_products"`
	Products      []crawler.Product `json:"products"`
}

// Store writes crawl results as JSON files under one directory
type Store struct {
	dir string
	log *logger.Logger
	now func() time.Time
}

// NewStore creates a store rooted at dir
func NewStore(dir string) *Store {
	return &Store{
		dir: dir,
		log: logger.ForStorage(),
		now: time.Now,
	}
}

// Dir returns the output directory
func (s *Store) Dir() string {
	return s.dir
}

// SnapshotPath returns the path of a site's snapshot file
func (s *Store) SnapshotPath(siteKey string) string {
	return filepath.Join(s.dir, siteKey+".json")
}

// SummaryPath returns the path of a site's summary file
func (s *Store) SummaryPath(siteKey string) string {
	return filepath.Join(s.dir, siteKey+"-summary.json")
}

// ErrorPath returns the path of a site's error report
func (s *Store) ErrorPath(siteKey string) string {
	return filepath.Join(s.dir, siteKey+"-error.json")
}

// WriteSnapshot writes <site>.json
func (s *Store) WriteSnapshot(snapshot *crawler.Snapshot) error {
	if snapshot.Site == "" {
		return errors.NewValidation("", "snapshot has no site key")
	}
	return s.writeJSON(snapshot.Site, s.SnapshotPath(snapshot.Site), snapshot)
}

// WriteSummary derives the summary of snapshot and writes <site>-summary.json
func (s *Store) WriteSummary(snapshot *crawler.Snapshot) (*Summary, error) {
	summary := BuildSummary(snapshot)
	if err := s.writeJSON(snapshot.Site, s.SummaryPath(snapshot.Site), summary); err != nil {
		return nil, err
	}
	return summary, nil
}

// WriteErrors writes <site>-error.json when crawlErr is set or the
// snapshot recorded item errors. A clean run removes a stale report.
func (s *Store) WriteErrors(snapshot *crawler.Snapshot, crawlErr error) error {
	path := s.ErrorPath(snapshot.Site)
	if crawlErr == nil && len(snapshot.Errors) == 0 {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return errors.NewStorage(snapshot.Site, "failed to remove stale error report", err)
		}
		return nil
	}

	report := ErrorReport{
		Site:   snapshot.Site,
		Name:   snapshot.Name,
		Time:   s.now(),
		Errors: snapshot.Errors,
	}
	if crawlErr != nil {
		report.Error = crawlErr.Error()
	}
	return s.writeJSON(snapshot.Site, path, report)
}

// Save writes the snapshot, its summary and its error report. A failed
// crawl only writes the error report, so the last good snapshot of the
// mall stays in place and no summary is returned.
func (s *Store) Save(snapshot *crawler.Snapshot, crawlErr error) (*Summary, error) {
	if crawlErr != nil {
		if err := s.WriteErrors(snapshot, crawlErr); err != nil {
			return nil, err
		}
		s.log.Warn().
			Str("site", snapshot.Site).
			Int("products", len(snapshot.Products)).
			Err(crawlErr).
			Msg("Crawl failed, kept previous snapshot")
		return nil, nil
	}

	if err := s.WriteSnapshot(snapshot); err != nil {
		return nil, err
	}
	summary, err := s.WriteSummary(snapshot)
	if err != nil {
		return nil, err
	}
	if err := s.WriteErrors(snapshot, crawlErr); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("site", snapshot.Site).
		Int("products", len(snapshot.Products)).
		Int("errors", len(snapshot.Errors)).
		Msg("Saved snapshot")
	return summary, nil
}

// WriteAll writes all-products.json from the given snapshots, ordered by
// site key.
func (s *Store) WriteAll(snapshots []*crawler.Snapshot) (*Catalog, error) {
	ordered := make([]*crawler.Snapshot, 0, len(snapshots))
	for _, snapshot := range snapshots {
		if snapshot != nil {
			ordered = append(ordered, snapshot)
		}
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Site < ordered[j].Site })

	catalog := &Catalog{
		GeneratedAt: s.now(),
		TotalMalls:  len(ordered),
		Products:    []crawler.Product{},
	}
	for _, snapshot := range ordered {
		catalog.Products = append(catalog.Products, snapshot.Products...)
	}
	catalog.TotalProducts = len(catalog.Products)

	if err := s.writeJSON("", filepath.Join(s.dir, AllProductsFile), catalog); err != nil {
		return nil, err
	}
	return catalog, nil
}

// ReadSnapshot loads a snapshot file
func ReadSnapshot(path string) (*crawler.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewStorage("", "failed to read "+path, err)
	}
	var snapshot crawler.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, errors.NewParsing("", "invalid snapshot "+path, err)
	}
	return &snapshot, nil
}

// LoadSnapshots reads every existing snapshot for the given site keys.
// Missing files are skipped.
func (s *Store) LoadSnapshots(siteKeys []string) ([]*crawler.Snapshot, error) {
	var snapshots []*crawler.Snapshot
	for _, key := range siteKeys {
		path := s.SnapshotPath(key)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		snapshot, err := ReadSnapshot(path)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, nil
}

func (s *Store) writeJSON(siteKey, path string, v interface{}) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return errors.NewStorage(siteKey, "failed to encode "+filepath.Base(path), err)
	}
	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return errors.NewStorage(siteKey, "failed to write "+path, err)
	}
	return nil
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it over path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmpName, err)
	}
	return nil
}
