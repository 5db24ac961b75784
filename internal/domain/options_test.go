package domain

import (
	"errors"
	"testing"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	if !opts.KeepZ {
		t.Error("KeepZ should default to true")
	}
	if err := opts.Validate(); err != nil {
		t.Errorf("default options should validate, got %v", err)
	}
}

func TestConvertOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ConvertOptions)
		wantErr bool
	}{
		{name: "defaults", mutate: func(_ *ConvertOptions) {}},
		{name: "geometry filter", mutate: func(o *ConvertOptions) { o.GeometryType = GeomTypeMultiPolygon }},
		{name: "unknown geometry filter", mutate: func(o *ConvertOptions) { o.GeometryType = "CIRCLE" }, wantErr: true},
		{name: "negative simplify", mutate: func(o *ConvertOptions) { o.SimplifyTolerance = -0.5 }, wantErr: true},
		{name: "precision too high", mutate: func(o *ConvertOptions) { o.CoordinatePrecision = 20 }, wantErr: true},
		{name: "full options", mutate: func(o *ConvertOptions) {
			o.SourceCRS = "EPSG:25832"
			o.TargetCRS = "EPSG:4326"
			o.LayerName = "out"
			o.Where = "population > 1000"
			o.Fields = []string{"name", "population"}
			o.SimplifyTolerance = 0.001
			o.ExplodeCollections = true
			o.PreserveFID = true
			o.CoordinatePrecision = 7
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.mutate(&opts)

			err := opts.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidInput) {
				t.Error("validation errors should unwrap to ErrInvalidInput")
			}
		})
	}
}
