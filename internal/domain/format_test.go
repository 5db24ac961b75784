package domain

import "testing"

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		name       string
		file       string
		wantFormat string
		wantExt    string
		wantOK     bool
	}{
		{name: "geojson", file: "parcels.geojson", wantFormat: FormatGeoJSON, wantExt: ".geojson", wantOK: true},
		{name: "plain json maps to geojson", file: "parcels.json", wantFormat: FormatGeoJSON, wantExt: ".json", wantOK: true},
		{name: "shapefile anchor", file: "roads.shp", wantFormat: FormatShapefile, wantExt: ".shp", wantOK: true},
		{name: "case insensitive", file: "ROADS.SHP", wantFormat: FormatShapefile, wantExt: ".shp", wantOK: true},
		{name: "shp.xml beats shp", file: "roads.shp.xml", wantFormat: FormatShapefile, wantExt: ".shp.xml", wantOK: true},
		{name: "tab anchor", file: "zones.tab", wantFormat: FormatMapInfoTAB, wantExt: ".tab", wantOK: true},
		{name: "mif anchor", file: "zones.mif", wantFormat: FormatMapInfoMIF, wantExt: ".mif", wantOK: true},
		{name: "mid companion", file: "zones.mid", wantFormat: FormatMapInfoMIF, wantExt: ".mid", wantOK: true},
		{name: "zipped shapefile", file: "roads.zip", wantFormat: FormatShapefileZ, wantExt: ".zip", wantOK: true},
		{name: "unknown extension", file: "notes.txt", wantOK: false},
		{name: "no extension", file: "README", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, ext, ok := MatchExtension(tt.file)
			if ok != tt.wantOK {
				t.Fatalf("MatchExtension(%q) ok = %v, want %v", tt.file, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if f.ID != tt.wantFormat {
				t.Errorf("format = %s, want %s", f.ID, tt.wantFormat)
			}
			if ext != tt.wantExt {
				t.Errorf("ext = %s, want %s", ext, tt.wantExt)
			}
		})
	}
}

func TestBaseName(t *testing.T) {
	_, ext, ok := MatchExtension("Roads.shp.xml")
	if !ok {
		t.Fatal("expected match for Roads.shp.xml")
	}
	if got := BaseName("Roads.shp.xml", ext); got != "Roads" {
		t.Errorf("BaseName = %q, want %q", got, "Roads")
	}
}

func TestFormatByID(t *testing.T) {
	f, ok := FormatByID(FormatShapefile)
	if !ok {
		t.Fatal("shapefile format missing from catalogue")
	}
	if !f.MultiFile || f.Anchor != ".shp" {
		t.Errorf("shapefile descriptor = %+v, want multi-file with .shp anchor", f)
	}
	if !f.IsBundleMember(".dbf") {
		t.Error(".dbf should be a shapefile bundle member")
	}
	if f.IsBundleMember(".mid") {
		t.Error(".mid must not be a shapefile bundle member")
	}

	if _, ok := FormatByID("raster"); ok {
		t.Error("unknown format id should not resolve")
	}
}

func TestWritableFormats(t *testing.T) {
	for _, f := range WritableFormats() {
		if !f.CanWrite {
			t.Errorf("format %s listed as writable but CanWrite is false", f.ID)
		}
		if f.ID == FormatShapefileZ {
			t.Error("zipped shapefile is read-only and must not be a target")
		}
	}
}
