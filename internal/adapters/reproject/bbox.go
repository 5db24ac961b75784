package reproject

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/jobrunner/verto/internal/domain"
	"github.com/jobrunner/verto/internal/ports/output"
)

// edgeSamples is the number of points taken along each bbox edge. Projected
// rectangles curve in geographic space; corners alone under-cover the true
// extent.
const edgeSamples = 9

// geographicCodes are registry codes already in degrees; reprojection is a
// no-op for them without touching the network.
var geographicCodes = map[string]bool{
	"epsg:4326": true,
	"epsg:4258": true,
	"epsg:4269": true,
	"epsg:4267": true,
}

// Reprojector implements the preview bbox fallback transform. It owns its
// own CRS resolver so a definition lookup here never interferes with the
// in-flight guard of the conversion options path.
type Reprojector struct {
	resolver output.CrsResolver
	logger   *slog.Logger
}

// NewReprojector creates a bbox reprojector.
func NewReprojector(resolver output.CrsResolver, logger *slog.Logger) *Reprojector {
	return &Reprojector{resolver: resolver, logger: logger}
}

// Reproject transforms a projected bbox to geographic degrees by sampling
// edge points and taking the min/max envelope. The input is validated before
// any resolution work; a geographic source returns unchanged with
// reprojected=false.
func (r *Reprojector) Reproject(ctx context.Context, bbox []float64, sourceDef string) (domain.Bbox, bool, error) {
	in, err := domain.NewBbox(bbox)
	if err != nil {
		return domain.Bbox{}, false, err
	}

	def := strings.TrimSpace(sourceDef)
	if def == "" || geographicCodes[strings.ToLower(def)] {
		return in, false, nil
	}

	// The engine reports layer CRS as WKT. Geographic WKT is already in
	// degrees, and projected WKT cannot be parsed here; both leave the bbox
	// untouched without flagging a failure.
	if isWKT(def) {
		return in, false, nil
	}

	if !strings.HasPrefix(def, "+") && r.resolver != nil {
		resolved, _, rerr := r.resolver.Resolve(ctx, def, output.ScopeSource)
		if rerr != nil {
			return in, false, fmt.Errorf("resolving source definition: %w", rerr)
		}
		def = resolved
	}
	if !strings.HasPrefix(def, "+") {
		return in, false, fmt.Errorf("source definition %q is not a proj4 string", sourceDef)
	}

	p, err := parseProj(def)
	if err != nil {
		return in, false, err
	}
	if p.geographic() {
		return in, false, nil
	}

	out, err := transformEnvelope(p, in)
	if err != nil {
		return in, false, err
	}
	return out, true, nil
}

// isWKT reports whether def is a WKT CRS definition, which always opens with
// an upper-case keyword and a bracket. Proj4 strings and EPSG codes never do.
func isWKT(def string) bool {
	head, _, ok := strings.Cut(def, "[")
	if !ok {
		return false
	}
	switch strings.ToUpper(strings.TrimSpace(head)) {
	case "GEOGCS", "GEOGCRS", "GEODCRS", "PROJCS", "PROJCRS",
		"COMPD_CS", "COMPOUNDCRS", "LOCAL_CS", "ENGCRS", "BOUNDCRS":
		return true
	}
	return false
}

// transformEnvelope inverse-projects sampled edge points and envelopes them.
func transformEnvelope(p *projDef, in domain.Bbox) (domain.Bbox, error) {
	minLon, minLat := math.Inf(1), math.Inf(1)
	maxLon, maxLat := math.Inf(-1), math.Inf(-1)

	sample := func(x, y float64) error {
		lon, lat, err := p.inverse(x, y)
		if err != nil {
			return err
		}
		if math.IsNaN(lon) || math.IsNaN(lat) || math.IsInf(lon, 0) || math.IsInf(lat, 0) {
			return fmt.Errorf("inverse projection produced a non-finite coordinate at (%g, %g)", x, y)
		}
		minLon = math.Min(minLon, lon)
		minLat = math.Min(minLat, lat)
		maxLon = math.Max(maxLon, lon)
		maxLat = math.Max(maxLat, lat)
		return nil
	}

	for i := 0; i < edgeSamples; i++ {
		t := float64(i) / float64(edgeSamples-1)
		x := in[0] + t*(in[2]-in[0])
		y := in[1] + t*(in[3]-in[1])

		if err := sample(x, in[1]); err != nil {
			return domain.Bbox{}, err
		}
		if err := sample(x, in[3]); err != nil {
			return domain.Bbox{}, err
		}
		if err := sample(in[0], y); err != nil {
			return domain.Bbox{}, err
		}
		if err := sample(in[2], y); err != nil {
			return domain.Bbox{}, err
		}
	}

	if maxLat > 90 || minLat < -90 || maxLon > 360 || minLon < -360 {
		return domain.Bbox{}, fmt.Errorf("reprojected bounds [%g %g %g %g] fall outside the geographic range",
			minLon, minLat, maxLon, maxLat)
	}

	return domain.Bbox{minLon, minLat, maxLon, maxLat}, nil
}
