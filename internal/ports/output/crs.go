package output

import (
	"context"

	"github.com/jobrunner/verto/internal/domain"
)

// CrsScope identifies which side of the conversion a resolution is for. The
// per-scope in-flight guard keys on it.
type CrsScope string

const (
	ScopeSource CrsScope = "source"
	ScopeTarget CrsScope = "target"
)

// CrsResolver resolves a human-entered CRS code to a canonical definition.
type CrsResolver interface {
	// Resolve returns the resolved definition for a numeric registry code, or
	// the input unchanged when it is not a code (assumed full definition) or
	// when a resolution for the same scope is already in flight. fromCache is
	// true when the value was served without a network call.
	Resolve(ctx context.Context, raw string, scope CrsScope) (resolved string, fromCache bool, err error)
}

// BboxReprojector transforms a bounding box into geographic coordinates for
// preview display. It is a best-effort fallback, never authoritative.
type BboxReprojector interface {
	// Reproject validates bbox (exactly four ordered numbers, rejected with a
	// *domain.BboxError before any network call) and returns the reprojected
	// bbox plus whether reprojection was applied. A geographic source returns
	// the input unchanged with reprojected=false and no error; a transform
	// failure returns the input unchanged with a non-nil error.
	Reproject(ctx context.Context, bbox []float64, sourceDef string) (out domain.Bbox, reprojected bool, err error)
}
