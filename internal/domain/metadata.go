package domain

import "fmt"

// Bbox is an axis-aligned bounding box: minX, minY, maxX, maxY.
type Bbox [4]float64

// NewBbox validates raw coordinates as a bounding box. Anything other than
// exactly four ordered numbers is rejected.
func NewBbox(values []float64) (Bbox, error) {
	if len(values) != 4 {
		return Bbox{}, &BboxError{Values: values, Message: fmt.Sprintf("expected 4 values, got %d", len(values))}
	}
	b := Bbox{values[0], values[1], values[2], values[3]}
	if b[0] > b[2] || b[1] > b[3] {
		return Bbox{}, &BboxError{Values: values, Message: "min must not exceed max"}
	}
	return b, nil
}

// Width returns the horizontal span.
func (b Bbox) Width() float64 { return b[2] - b[0] }

// Height returns the vertical span.
func (b Bbox) Height() float64 { return b[3] - b[1] }

// Field describes one attribute column of a layer schema.
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// LayerInfo describes one layer of a dataset.
type LayerInfo struct {
	Name         string `json:"name"`
	GeometryType string `json:"geometry_type"`
	FeatureCount int64  `json:"feature_count"`
}

// Metadata is the preview description of a dataset.
type Metadata struct {
	Bbox               Bbox        `json:"bbox"`
	BboxOriginal       *Bbox       `json:"bbox_original,omitempty"` // Pre-reprojection bbox, when reprojected
	BboxReprojected    bool        `json:"bbox_reprojected"`
	ReprojectionFailed bool        `json:"reprojection_failed,omitempty"`
	CRS                string      `json:"crs"`
	FeatureCount       int64       `json:"feature_count"`
	GeometryType       string      `json:"geometry_type"`
	Layers             []LayerInfo `json:"layers"`
	Fields             []Field     `json:"fields"`
}

// LayerNames returns the names of all layers.
func (m *Metadata) LayerNames() []string {
	names := make([]string, len(m.Layers))
	for i, l := range m.Layers {
		names[i] = l.Name
	}
	return names
}
