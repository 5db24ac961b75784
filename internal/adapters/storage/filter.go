package storage

import (
	"strings"

	"github.com/jobrunner/verto/internal/domain"
	"github.com/jobrunner/verto/internal/ports/output"
)

// keepConvertible reduces a listing to objects that can start or complete a
// conversion: readable single-file formats, bundle anchors, and companion
// files whose anchor is present in the same listing. Companion extensions
// like .dat or .map are generic enough to collide with unrelated files;
// without a sibling anchor such a file would only become a dataset doomed to
// fail in the engine.
func keepConvertible(objects []output.StorageObject) []output.StorageObject {
	anchors := make(map[string]bool)
	for _, obj := range objects {
		f, ext, ok := domain.MatchExtension(obj.Key)
		if ok && f.MultiFile && ext == f.Anchor {
			anchors[strings.ToLower(domain.BaseName(obj.Key, ext))] = true
		}
	}

	kept := objects[:0]
	for _, obj := range objects {
		f, ext, ok := domain.MatchExtension(obj.Key)
		if !ok {
			continue
		}
		switch {
		case !f.MultiFile:
			if f.CanRead {
				kept = append(kept, obj)
			}
		case ext == f.Anchor:
			kept = append(kept, obj)
		default:
			if anchors[strings.ToLower(domain.BaseName(obj.Key, ext))] {
				kept = append(kept, obj)
			}
		}
	}
	return kept
}
