package application

import (
	"context"
	"errors"
	"testing"

	"github.com/jobrunner/verto/internal/domain"
	"github.com/jobrunner/verto/internal/ports/output"
)

const describeJSON = `{
  "layers": [
    {
      "name": "parcels",
      "featureCount": 128,
      "geometryFields": [
        {
          "type": "Polygon",
          "extent": [150000.0, 440000.0, 160000.0, 450000.0],
          "coordinateSystem": {"wkt": "PROJCS[\"Amersfoort / RD New\"]"}
        }
      ],
      "fields": [
        {"name": "id", "type": "Integer64"},
        {"name": "owner", "type": "String"}
      ]
    }
  ]
}`

func newTestPreview(engine *mockEngine, resolver *mockResolver, reprojector *mockReprojector) (*PreviewService, *Dispatcher) {
	d := NewDispatcher(engine, testLogger())
	// A nil *mockReprojector must become a nil interface, not a typed nil,
	// so the service's nil guard applies.
	var rp output.BboxReprojector
	if reprojector != nil {
		rp = reprojector
	}
	s := NewPreviewService(d, &mockArchiver{}, resolver, rp,
		NewPreviewCache(), &output.NoOpMetrics{}, testLogger())
	return s, d
}

func TestPreviewParsesMetadata(t *testing.T) {
	engine := &mockEngine{
		describeFunc: func(output.DescribeRequest) ([]byte, error) {
			return []byte(describeJSON), nil
		},
	}
	s, d := newTestPreview(engine, &mockResolver{}, nil)
	defer d.Close()

	ds := singleDataset("parcels.geojson", "geojson", "{}")
	meta, err := s.Preview(context.Background(), &ds, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if meta.FeatureCount != 128 {
		t.Errorf("expected 128 features, got %d", meta.FeatureCount)
	}
	if meta.GeometryType != "Polygon" {
		t.Errorf("expected Polygon, got %s", meta.GeometryType)
	}
	if len(meta.Layers) != 1 || meta.Layers[0].Name != "parcels" {
		t.Errorf("unexpected layers: %+v", meta.Layers)
	}
	if len(meta.Fields) != 2 || meta.Fields[1].Name != "owner" {
		t.Errorf("unexpected fields: %+v", meta.Fields)
	}
	want := domain.Bbox{150000, 440000, 160000, 450000}
	if meta.Bbox != want {
		t.Errorf("expected bbox %v, got %v", want, meta.Bbox)
	}
}

func TestParseMetadataSeedsBboxFromFirstExtent(t *testing.T) {
	// The first layer carries no extent; the dataset bbox must come from the
	// second layer alone, not a union with the zero value.
	raw := `{
	  "layers": [
	    {
	      "name": "empty",
	      "featureCount": 0,
	      "geometryFields": [{"type": "Polygon", "coordinateSystem": {"wkt": ""}}],
	      "fields": []
	    },
	    {
	      "name": "parcels",
	      "featureCount": 12,
	      "geometryFields": [
	        {
	          "type": "Polygon",
	          "extent": [150000.0, 440000.0, 160000.0, 450000.0],
	          "coordinateSystem": {"wkt": "PROJCS[\"Amersfoort / RD New\"]"}
	        }
	      ],
	      "fields": []
	    }
	  ]
	}`

	meta, err := ParseMetadata([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := domain.Bbox{150000, 440000, 160000, 450000}
	if meta.Bbox != want {
		t.Errorf("expected bbox %v, got %v", want, meta.Bbox)
	}
}

func TestPreviewCacheHitSkipsEngine(t *testing.T) {
	engine := &mockEngine{
		describeFunc: func(output.DescribeRequest) ([]byte, error) {
			return []byte(describeJSON), nil
		},
	}
	s, d := newTestPreview(engine, &mockResolver{}, nil)
	defer d.Close()

	ds := singleDataset("parcels.geojson", "geojson", "{}")
	if _, err := s.Preview(context.Background(), &ds, ""); err != nil {
		t.Fatalf("first preview failed: %v", err)
	}
	if _, err := s.Preview(context.Background(), &ds, ""); err != nil {
		t.Fatalf("second preview failed: %v", err)
	}

	if engine.describeCount() != 1 {
		t.Errorf("expected 1 engine call, got %d", engine.describeCount())
	}
}

func TestPreviewCacheMissOnChangedCrs(t *testing.T) {
	engine := &mockEngine{
		describeFunc: func(output.DescribeRequest) ([]byte, error) {
			return []byte(describeJSON), nil
		},
	}
	s, d := newTestPreview(engine, &mockResolver{}, nil)
	defer d.Close()

	ds := singleDataset("parcels.geojson", "geojson", "{}")
	if _, err := s.Preview(context.Background(), &ds, "epsg:28992"); err != nil {
		t.Fatalf("preview failed: %v", err)
	}
	if _, err := s.Preview(context.Background(), &ds, "epsg:4326"); err != nil {
		t.Fatalf("preview failed: %v", err)
	}

	if engine.describeCount() != 2 {
		t.Errorf("expected distinct CRS to miss the cache, got %d engine calls", engine.describeCount())
	}
}

func TestPreviewClearCacheForcesRecompute(t *testing.T) {
	engine := &mockEngine{
		describeFunc: func(output.DescribeRequest) ([]byte, error) {
			return []byte(describeJSON), nil
		},
	}
	s, d := newTestPreview(engine, &mockResolver{}, nil)
	defer d.Close()

	ds := singleDataset("parcels.geojson", "geojson", "{}")
	_, _ = s.Preview(context.Background(), &ds, "")
	s.ClearCache()
	_, _ = s.Preview(context.Background(), &ds, "")

	if engine.describeCount() != 2 {
		t.Errorf("expected recompute after clear, got %d engine calls", engine.describeCount())
	}
}

func TestPreviewSanitizesControlCharacters(t *testing.T) {
	// Raw tab and newline inside a string literal, as upstream attribute data
	// can produce.
	dirty := "{\"layers\":[{\"name\":\"bad\tname\nhere\",\"featureCount\":3,\"geometryFields\":[],\"fields\":[]}]}"
	engine := &mockEngine{
		describeFunc: func(output.DescribeRequest) ([]byte, error) {
			return []byte(dirty), nil
		},
	}
	s, d := newTestPreview(engine, &mockResolver{}, nil)
	defer d.Close()

	ds := singleDataset("bad.geojson", "geojson", "{}")
	meta, err := s.Preview(context.Background(), &ds, "")
	if err != nil {
		t.Fatalf("expected sanitize-and-retry to succeed, got %v", err)
	}
	if meta.Layers[0].Name != "bad\tname\nhere" {
		t.Errorf("expected control characters escaped and round-tripped, got %q", meta.Layers[0].Name)
	}
}

func TestPreviewUnparseableMetadata(t *testing.T) {
	engine := &mockEngine{
		describeFunc: func(output.DescribeRequest) ([]byte, error) {
			return []byte("not json at all"), nil
		},
	}
	s, d := newTestPreview(engine, &mockResolver{}, nil)
	defer d.Close()

	ds := singleDataset("x.geojson", "geojson", "{}")
	_, err := s.Preview(context.Background(), &ds, "")
	if !errors.Is(err, domain.ErrMetadataParse) {
		t.Errorf("expected ErrMetadataParse, got %v", err)
	}
}

func TestPreviewBboxReprojection(t *testing.T) {
	engine := &mockEngine{
		describeFunc: func(output.DescribeRequest) ([]byte, error) {
			return []byte(describeJSON), nil
		},
	}
	reproj := &mockReprojector{apply: true, out: domain.Bbox{4.8, 52.0, 5.0, 52.1}}
	s, d := newTestPreview(engine, &mockResolver{}, reproj)
	defer d.Close()

	ds := singleDataset("parcels.geojson", "geojson", "{}")
	meta, err := s.Preview(context.Background(), &ds, "epsg:28992")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !meta.BboxReprojected {
		t.Fatal("expected BboxReprojected set")
	}
	if meta.Bbox != reproj.out {
		t.Errorf("expected reprojected bbox %v, got %v", reproj.out, meta.Bbox)
	}
	if meta.BboxOriginal == nil || (*meta.BboxOriginal)[0] != 150000 {
		t.Errorf("expected original bbox preserved, got %v", meta.BboxOriginal)
	}
}

func TestPreviewReprojectionFailureKeepsOriginal(t *testing.T) {
	engine := &mockEngine{
		describeFunc: func(output.DescribeRequest) ([]byte, error) {
			return []byte(describeJSON), nil
		},
	}
	reproj := &mockReprojector{err: errors.New("no transform")}
	s, d := newTestPreview(engine, &mockResolver{}, reproj)
	defer d.Close()

	ds := singleDataset("parcels.geojson", "geojson", "{}")
	meta, err := s.Preview(context.Background(), &ds, "epsg:28992")
	if err != nil {
		t.Fatalf("reprojection failure must not fail the preview: %v", err)
	}

	if !meta.ReprojectionFailed {
		t.Error("expected ReprojectionFailed set")
	}
	if meta.Bbox != (domain.Bbox{150000, 440000, 160000, 450000}) {
		t.Errorf("expected original bbox kept, got %v", meta.Bbox)
	}
}

func TestPreviewResolvesSourceCrs(t *testing.T) {
	var seen string
	engine := &mockEngine{
		describeFunc: func(req output.DescribeRequest) ([]byte, error) {
			seen = req.SourceCRS
			return []byte(describeJSON), nil
		},
	}
	resolver := &mockResolver{defs: map[string]string{
		"epsg:28992": "+proj=sterea +lat_0=52.15616055555555",
	}}
	s, d := newTestPreview(engine, resolver, nil)
	defer d.Close()

	ds := singleDataset("parcels.geojson", "geojson", "{}")
	if _, err := s.Preview(context.Background(), &ds, "epsg:28992"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen != "+proj=sterea +lat_0=52.15616055555555" {
		t.Errorf("expected resolved definition dispatched, got %q", seen)
	}
}

func TestFingerprintSensitivity(t *testing.T) {
	base := singleDataset("a.geojson", "geojson", "{}")
	fp := Fingerprint(&base, "epsg:4326")

	renamed := singleDataset("b.geojson", "geojson", "{}")
	if Fingerprint(&renamed, "epsg:4326") == fp {
		t.Error("expected name change to change the fingerprint")
	}

	grown := base
	grown.Members = []domain.UploadedFile{upload("a.geojson", "{\"x\":1}")}
	if Fingerprint(&grown, "epsg:4326") == fp {
		t.Error("expected size change to change the fingerprint")
	}

	if Fingerprint(&base, "epsg:28992") == fp {
		t.Error("expected CRS change to change the fingerprint")
	}

	same := singleDataset("a.geojson", "geojson", "{}")
	if Fingerprint(&same, "epsg:4326") != fp {
		t.Error("expected identical inputs to produce identical fingerprints")
	}
}

func TestSanitizeJSONPreservesStructure(t *testing.T) {
	in := "{\"a\":\"x\x00y\",\n\t\"b\":3,\"c\":\"a\\\\\tb\"}"
	out := string(SanitizeJSON([]byte(in)))
	// The null byte inside the literal is dropped, tabs inside literals are
	// escaped, and whitespace outside string context stays untouched. The
	// escaped backslash must not swallow the character after it.
	want := "{\"a\":\"xy\",\n\t\"b\":3,\"c\":\"a\\\\\\tb\"}"
	if out != want {
		t.Errorf("SanitizeJSON = %q, want %q", out, want)
	}
}
