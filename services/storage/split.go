package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sjsage522/mallcrawler/pkg/errors"
)

// SplitIndividual reshapes a snapshot file into one JSON file per
// product under <dir>/<site>/<product-id>.json and returns how many
// files were written.
func (s *Store) SplitIndividual(snapshotPath, dir string) (int, error) {
	snapshot, err := ReadSnapshot(snapshotPath)
	if err != nil {
		return 0, err
	}
	siteName := safeFileName(snapshot.Site)
	if siteName == "" {
		return 0, errors.NewValidation("", "snapshot has no usable site key: "+snapshotPath)
	}

	siteDir := filepath.Join(dir, siteName)
	if err := os.MkdirAll(siteDir, 0755); err != nil {
		return 0, errors.NewStorage(snapshot.Site, "failed to create "+siteDir, err)
	}

	written := 0
	for _, product := range snapshot.Products {
		name := safeFileName(product.ID)
		if name == "" {
			s.log.Warn().Str("site", snapshot.Site).Str("product", product.Name).Msg("Skipping product without id")
			continue
		}
		if err := s.writeJSON(snapshot.Site, filepath.Join(siteDir, name+".json"), product); err != nil {
			return written, err
		}
		written++
	}

	s.log.Info().
		Str("site", snapshot.Site).
		Int("files", written).
		Str("dir", siteDir).
		Msg("Split snapshot into product files")
	return written, nil
}

// safeFileName turns a product id or site key into a single path element.
// Separators, characters reserved on common filesystems and '%' itself
// are percent-escaped, so distinct ids never share a file.
func safeFileName(id string) string {
	id = strings.TrimSpace(id)
	switch id {
	case "":
		return ""
	case ".":
		return "%2E"
	case "..":
		return "%2E%2E"
	}

	var b strings.Builder
	for _, r := range id {
		switch {
		case r < 0x20, strings.ContainsRune(`%/\:*?"<>|`, r):
			fmt.Fprintf(&b, "%%%02X", r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
