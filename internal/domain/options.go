package domain

import "fmt"

// Geometry type filter values accepted by the conversion engine.
const (
	GeomTypeNone            = ""
	GeomTypePoint           = "POINT"
	GeomTypeLineString      = "LINESTRING"
	GeomTypePolygon         = "POLYGON"
	GeomTypeMultiPoint      = "MULTIPOINT"
	GeomTypeMultiLineString = "MULTILINESTRING"
	GeomTypeMultiPolygon    = "MULTIPOLYGON"
	GeomTypeGeometry        = "GEOMETRY"
)

var validGeomTypes = map[string]bool{
	GeomTypeNone:            true,
	GeomTypePoint:           true,
	GeomTypeLineString:      true,
	GeomTypePolygon:         true,
	GeomTypeMultiPoint:      true,
	GeomTypeMultiLineString: true,
	GeomTypeMultiPolygon:    true,
	GeomTypeGeometry:        true,
}

// ConvertOptions is the fixed configuration record sent once per dataset.
// It is never mutated after dispatch.
type ConvertOptions struct {
	SourceCRS          string   // CRS code or full definition; empty = keep source
	TargetCRS          string   // CRS code or full definition; empty = no reprojection
	LayerName          string   // Output layer name; empty = derive from dataset
	GeometryType       string   // Geometry type filter; empty = no filter
	SkipFailures       bool     // Continue past per-feature translation failures
	MakeValid          bool     // Repair invalid geometries
	KeepZ              bool     // Preserve the Z dimension
	Where              string   // Attribute filter expression
	Fields             []string // Fields to keep; empty = all
	SimplifyTolerance  float64  // Geometry simplification tolerance; 0 = off
	ExplodeCollections bool     // Split geometry collections into single parts
	PreserveFID        bool     // Carry source feature IDs into the output
	CoordinatePrecision int     // Output coordinate precision; 0 = driver default
	OutputMode         string   // Format-specific output mode; empty = default
}

// DefaultOptions returns the defaulted configuration record.
func DefaultOptions() ConvertOptions {
	return ConvertOptions{
		KeepZ: true,
	}
}

// Validate checks the options at the orchestration boundary.
func (o *ConvertOptions) Validate() error {
	if !validGeomTypes[o.GeometryType] {
		return &ValidationError{
			Field:      "geometry_type",
			Value:      o.GeometryType,
			Constraint: "known geometry type",
			Message:    fmt.Sprintf("unknown geometry type filter %q", o.GeometryType),
		}
	}
	if o.SimplifyTolerance < 0 {
		return &ValidationError{
			Field:      "simplify_tolerance",
			Value:      o.SimplifyTolerance,
			Constraint: ">= 0",
			Message:    "simplify tolerance must not be negative",
		}
	}
	if o.CoordinatePrecision < 0 || o.CoordinatePrecision > 15 {
		return &ValidationError{
			Field:      "coordinate_precision",
			Value:      o.CoordinatePrecision,
			Constraint: "[0, 15]",
			Message:    "coordinate precision must be between 0 and 15",
		}
	}
	return nil
}
