// Package application contains the application services.
package application

import (
	"log/slog"
	"strings"

	"github.com/jobrunner/verto/internal/domain"
)

// Grouper partitions a flat list of uploaded files into logical datasets:
// multi-file bundles keyed by base name, and standalone singles.
type Grouper struct {
	logger *slog.Logger
}

// NewGrouper creates a dataset grouper.
func NewGrouper(logger *slog.Logger) *Grouper {
	return &Grouper{logger: logger}
}

// bundleKey identifies a candidate bundle during accumulation.
type bundleKey struct {
	base     string // lower-cased base name
	formatID string
}

type bundleCandidate struct {
	base    string // original-case base name of the first member seen
	format  *domain.FormatDescriptor
	members []domain.UploadedFile
	anchor  bool
}

// Group partitions files into bundles and singles. A candidate bundle is
// promoted only when its anchor member is present; otherwise its members
// degrade to individual singles so they stay visible in the run. Each file
// lands in exactly one dataset; files with unknown extensions are skipped
// and returned separately.
func (g *Grouper) Group(files []domain.UploadedFile) (domain.GroupResult, []domain.UploadedFile) {
	var result domain.GroupResult
	var skipped []domain.UploadedFile

	candidates := make(map[bundleKey]*bundleCandidate)
	var order []bundleKey

	for _, f := range files {
		format, ext, ok := domain.MatchExtension(f.Name)
		if !ok {
			g.logger.Warn("skipping file with unsupported extension", "file", f.Name)
			skipped = append(skipped, f)
			continue
		}

		// Already-archived datasets and single-file formats bypass bundling.
		if !format.MultiFile {
			result.Singles = append(result.Singles, domain.Dataset{
				Name:     f.Name,
				BaseName: domain.BaseName(f.Name, ext),
				FormatID: format.ID,
				Members:  []domain.UploadedFile{f},
			})
			continue
		}

		base := domain.BaseName(f.Name, ext)
		key := bundleKey{base: strings.ToLower(base), formatID: format.ID}
		cand, exists := candidates[key]
		if !exists {
			cand = &bundleCandidate{base: base, format: format}
			candidates[key] = cand
			order = append(order, key)
		}
		cand.members = append(cand.members, f)
		if ext == format.Anchor {
			cand.anchor = true
		}
	}

	for _, key := range order {
		cand := candidates[key]
		if cand.anchor {
			result.Bundles = append(result.Bundles, domain.Dataset{
				Name:     cand.base + cand.format.Anchor,
				BaseName: cand.base,
				FormatID: cand.format.ID,
				Bundle:   true,
				Members:  cand.members,
			})
			continue
		}

		// Missing anchor: the set cannot convert as a bundle, but its members
		// must not silently disappear from the run.
		g.logger.Warn("bundle candidate missing anchor, degrading to singles",
			"base", cand.base, "format", cand.format.ID, "anchor", cand.format.Anchor)
		for _, m := range cand.members {
			_, mext, _ := domain.MatchExtension(m.Name)
			result.Singles = append(result.Singles, domain.Dataset{
				Name:     m.Name,
				BaseName: domain.BaseName(m.Name, mext),
				FormatID: cand.format.ID,
				Members:  []domain.UploadedFile{m},
			})
		}
	}

	return result, skipped
}
