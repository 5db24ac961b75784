// Package domain contains the core business entities and value objects.
package domain

import (
	"sort"
	"strings"
)

// FormatDescriptor describes a supported vector format.
type FormatDescriptor struct {
	ID          string   // Stable identifier, e.g. "shapefile"
	Label       string   // Human-readable name
	Driver      string   // Engine driver name, e.g. "ESRI Shapefile"
	Extensions  []string // Recognized extensions, lower-case, with leading dot
	CanRead     bool
	CanWrite    bool
	DownloadExt string   // Extension used for converted artifacts
	MultiFile   bool     // Format is a multi-file bundle
	Anchor      string   // Mandatory bundle member extension
	Companions  []string // Optional bundle member extensions
}

// IsBundleMember returns true if ext is the anchor or a companion extension.
func (f *FormatDescriptor) IsBundleMember(ext string) bool {
	if ext == f.Anchor {
		return true
	}
	for _, c := range f.Companions {
		if c == ext {
			return true
		}
	}
	return false
}

// Format identifiers.
const (
	FormatGeoJSON     = "geojson"
	FormatKML         = "kml"
	FormatGPX         = "gpx"
	FormatShapefile   = "shapefile"
	FormatShapefileZ  = "shapefile-zip"
	FormatMapInfoTAB  = "mapinfo-tab"
	FormatMapInfoMIF  = "mapinfo-mif"
	FormatGML         = "gml"
	FormatCSV         = "csv"
	FormatGeoPackage  = "geopackage"
	FormatDXF         = "dxf"
	FormatFlatGeobuf  = "flatgeobuf"
	FormatTopoJSON    = "topojson"
	FormatSQLiteSpat  = "sqlite"
	FormatGeoJSONSeq  = "geojsonseq"
)

// formats is the static catalogue. Loaded once, never mutated.
var formats = []FormatDescriptor{
	{
		ID: FormatGeoJSON, Label: "GeoJSON", Driver: "GeoJSON",
		Extensions: []string{".geojson", ".json"},
		CanRead:    true, CanWrite: true, DownloadExt: "geojson",
	},
	{
		ID: FormatGeoJSONSeq, Label: "GeoJSON Sequence", Driver: "GeoJSONSeq",
		Extensions: []string{".geojsonl", ".geojsons"},
		CanRead:    true, CanWrite: true, DownloadExt: "geojsonl",
	},
	{
		ID: FormatKML, Label: "KML", Driver: "KML",
		Extensions: []string{".kml"},
		CanRead:    true, CanWrite: true, DownloadExt: "kml",
	},
	{
		ID: FormatGPX, Label: "GPX", Driver: "GPX",
		Extensions: []string{".gpx"},
		CanRead:    true, CanWrite: true, DownloadExt: "gpx",
	},
	{
		ID: FormatShapefile, Label: "ESRI Shapefile", Driver: "ESRI Shapefile",
		Extensions: []string{
			".shp", ".shx", ".dbf", ".prj", ".cpg", ".sbn", ".sbx",
			".fbn", ".fbx", ".ain", ".aih", ".ixs", ".mxs", ".atx",
			".shp.xml", ".qix",
		},
		CanRead: true, CanWrite: true, DownloadExt: "zip",
		MultiFile: true, Anchor: ".shp",
		Companions: []string{
			".shx", ".dbf", ".prj", ".cpg", ".sbn", ".sbx", ".fbn",
			".fbx", ".ain", ".aih", ".ixs", ".mxs", ".atx", ".shp.xml",
			".qix",
		},
	},
	{
		// A shapefile already packaged as a zip archive bypasses bundling.
		ID: FormatShapefileZ, Label: "Zipped Shapefile", Driver: "ESRI Shapefile",
		Extensions: []string{".zip"},
		CanRead:    true, CanWrite: false, DownloadExt: "zip",
	},
	{
		ID: FormatMapInfoTAB, Label: "MapInfo TAB", Driver: "MapInfo File",
		Extensions: []string{".tab", ".dat", ".map", ".id", ".ind"},
		CanRead:    true, CanWrite: true, DownloadExt: "zip",
		MultiFile: true, Anchor: ".tab",
		Companions: []string{".dat", ".map", ".id", ".ind"},
	},
	{
		ID: FormatMapInfoMIF, Label: "MapInfo MIF/MID", Driver: "MapInfo File",
		Extensions: []string{".mif", ".mid"},
		CanRead:    true, CanWrite: true, DownloadExt: "zip",
		MultiFile: true, Anchor: ".mif",
		Companions: []string{".mid"},
	},
	{
		ID: FormatGML, Label: "GML", Driver: "GML",
		Extensions: []string{".gml"},
		CanRead:    true, CanWrite: true, DownloadExt: "gml",
	},
	{
		ID: FormatCSV, Label: "CSV", Driver: "CSV",
		Extensions: []string{".csv"},
		CanRead:    true, CanWrite: true, DownloadExt: "csv",
	},
	{
		ID: FormatGeoPackage, Label: "GeoPackage", Driver: "GPKG",
		Extensions: []string{".gpkg"},
		CanRead:    true, CanWrite: true, DownloadExt: "gpkg",
	},
	{
		ID: FormatDXF, Label: "AutoCAD DXF", Driver: "DXF",
		Extensions: []string{".dxf"},
		CanRead:    true, CanWrite: true, DownloadExt: "dxf",
	},
	{
		ID: FormatFlatGeobuf, Label: "FlatGeobuf", Driver: "FlatGeobuf",
		Extensions: []string{".fgb"},
		CanRead:    true, CanWrite: true, DownloadExt: "fgb",
	},
	{
		ID: FormatTopoJSON, Label: "TopoJSON", Driver: "TopoJSON",
		Extensions: []string{".topojson"},
		CanRead:    true, CanWrite: false, DownloadExt: "topojson",
	},
	{
		ID: FormatSQLiteSpat, Label: "SQLite / SpatiaLite", Driver: "SQLite",
		Extensions: []string{".sqlite", ".db"},
		CanRead:    true, CanWrite: true, DownloadExt: "sqlite",
	},
}

var formatsByID = func() map[string]*FormatDescriptor {
	m := make(map[string]*FormatDescriptor, len(formats))
	for i := range formats {
		m[formats[i].ID] = &formats[i]
	}
	return m
}()

// extensionIndex maps each known extension to its format, longest first.
var extensionIndex = func() []extensionEntry {
	var entries []extensionEntry
	for i := range formats {
		for _, ext := range formats[i].Extensions {
			entries = append(entries, extensionEntry{ext: ext, format: &formats[i]})
		}
	}
	// Longer extensions win ties so ".shp.xml" is never mistaken for ".shp".
	sort.SliceStable(entries, func(a, b int) bool {
		return len(entries[a].ext) > len(entries[b].ext)
	})
	return entries
}()

type extensionEntry struct {
	ext    string
	format *FormatDescriptor
}

// Formats returns the full format catalogue.
func Formats() []FormatDescriptor {
	out := make([]FormatDescriptor, len(formats))
	copy(out, formats)
	return out
}

// FormatByID looks up a format descriptor by its identifier.
func FormatByID(id string) (*FormatDescriptor, bool) {
	f, ok := formatsByID[id]
	return f, ok
}

// MatchExtension finds the format for a file name by longest-matching known
// extension, case-insensitive. The matched extension is returned alongside.
func MatchExtension(name string) (*FormatDescriptor, string, bool) {
	lower := strings.ToLower(name)
	for _, e := range extensionIndex {
		if strings.HasSuffix(lower, e.ext) {
			return e.format, e.ext, true
		}
	}
	return nil, "", false
}

// KnownExtension returns true if the file name carries any catalogued extension.
func KnownExtension(name string) bool {
	_, _, ok := MatchExtension(name)
	return ok
}

// BaseName strips the matched extension from a file name, preserving case.
func BaseName(name, ext string) string {
	return name[:len(name)-len(ext)]
}

// WritableFormats returns the formats usable as conversion targets.
func WritableFormats() []FormatDescriptor {
	var out []FormatDescriptor
	for _, f := range formats {
		if f.CanWrite {
			out = append(out, f)
		}
	}
	return out
}
