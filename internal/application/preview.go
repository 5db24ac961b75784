package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/jobrunner/verto/internal/domain"
	"github.com/jobrunner/verto/internal/ports/output"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// PreviewCache is a content-fingerprint-keyed cache of dataset metadata.
// Entries live for the session; Clear is called whenever the active file
// selection changes. No eviction beyond that.
type PreviewCache struct {
	mu      sync.RWMutex
	entries map[string]*domain.Metadata
}

// NewPreviewCache creates an empty preview cache.
func NewPreviewCache() *PreviewCache {
	return &PreviewCache{entries: make(map[string]*domain.Metadata)}
}

// Get returns the cached metadata for a fingerprint.
func (c *PreviewCache) Get(fingerprint string) (*domain.Metadata, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.entries[fingerprint]
	return m, ok
}

// Put stores metadata under a fingerprint.
func (c *PreviewCache) Put(fingerprint string, m *domain.Metadata) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[fingerprint] = m
}

// Clear drops every entry.
func (c *PreviewCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*domain.Metadata)
}

// Len returns the number of cached entries.
func (c *PreviewCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// PreviewService computes dataset previews: metadata via the engine's
// describe call, with a best-effort bbox reprojection for display.
type PreviewService struct {
	dispatcher  *Dispatcher
	archiver    output.Archiver
	resolver    output.CrsResolver
	reprojector output.BboxReprojector
	cache       *PreviewCache
	metrics     output.MetricsCollector
	logger      *slog.Logger
}

// NewPreviewService creates a preview service.
func NewPreviewService(
	dispatcher *Dispatcher,
	archiver output.Archiver,
	resolver output.CrsResolver,
	reprojector output.BboxReprojector,
	cache *PreviewCache,
	metrics output.MetricsCollector,
	logger *slog.Logger,
) *PreviewService {
	return &PreviewService{
		dispatcher:  dispatcher,
		archiver:    archiver,
		resolver:    resolver,
		reprojector: reprojector,
		cache:       cache,
		metrics:     metrics,
		logger:      logger,
	}
}

// Preview returns metadata for a dataset, served from cache when the
// fingerprint matches a previous computation.
func (s *PreviewService) Preview(ctx context.Context, ds *domain.Dataset, sourceCRS string) (*domain.Metadata, error) {
	effectiveCRS := sourceCRS
	if s.resolver != nil && sourceCRS != "" {
		resolved, _, err := s.resolver.Resolve(ctx, sourceCRS, output.ScopeSource)
		if err != nil {
			// Resolution failure keeps the original input; the engine may
			// still understand the raw code.
			s.logger.Warn("source CRS resolution failed for preview", "crs", sourceCRS, "error", err)
		} else {
			effectiveCRS = resolved
		}
	}

	fp := Fingerprint(ds, effectiveCRS)
	if m, ok := s.cache.Get(fp); ok {
		s.metrics.IncPreviewCache("hit")
		return m, nil
	}
	s.metrics.IncPreviewCache("miss")

	payload, name, err := s.payload(ds)
	if err != nil {
		return nil, err
	}

	raw, err := s.dispatcher.Describe(ctx, output.DescribeRequest{
		Payload:     payload,
		Name:        name,
		InputFormat: ds.FormatID,
		SourceCRS:   effectiveCRS,
	})
	if err != nil {
		return nil, err
	}

	meta, err := ParseMetadata(raw)
	if err != nil {
		return nil, err
	}

	s.reprojectBbox(ctx, meta, effectiveCRS)

	s.cache.Put(fp, meta)
	return meta, nil
}

// ClearCache invalidates all preview entries; called when the active file
// selection is replaced.
func (s *PreviewService) ClearCache() {
	s.cache.Clear()
}

// reprojectBbox applies the preview-only bbox fallback transform. Failure is
// recorded on the metadata, never fatal to the preview.
func (s *PreviewService) reprojectBbox(ctx context.Context, meta *domain.Metadata, sourceDef string) {
	if s.reprojector == nil {
		return
	}

	def := sourceDef
	if def == "" {
		def = meta.CRS
	}

	reprojected, ok, err := s.reprojector.Reproject(ctx, meta.Bbox[:], def)
	if err != nil {
		meta.ReprojectionFailed = true
		s.logger.Warn("bbox reprojection failed, keeping original bounds", "error", err)
		return
	}
	if !ok {
		return
	}
	original := meta.Bbox
	meta.BboxOriginal = &original
	meta.Bbox = reprojected
	meta.BboxReprojected = true
}

func (s *PreviewService) payload(ds *domain.Dataset) ([]byte, string, error) {
	if ds.Bundle {
		data, err := s.archiver.Pack(ds.Members)
		if err != nil {
			return nil, "", fmt.Errorf("packaging bundle %s: %w", ds.Name, err)
		}
		return data, ds.BaseName + ".zip", nil
	}
	f := ds.File()
	data, err := f.ReadAll()
	if err != nil {
		return nil, "", fmt.Errorf("reading %s: %w", f.Name, err)
	}
	return data, f.Name, nil
}

// Fingerprint derives the preview cache key from member file identities,
// sizes, modification times, the detected format and the effective source
// CRS. Changing any one component produces a different key.
func Fingerprint(ds *domain.Dataset, sourceCRS string) string {
	h := sha256.New()
	for _, m := range ds.Members {
		h.Write([]byte(m.Name))
		h.Write([]byte{0})
		h.Write([]byte(strconv.FormatInt(m.Size, 10)))
		h.Write([]byte{0})
		h.Write([]byte(strconv.FormatInt(m.ModTime.UnixNano(), 10)))
		h.Write([]byte{0})
	}
	h.Write([]byte(ds.FormatID))
	h.Write([]byte{0})
	h.Write([]byte(sourceCRS))
	return hex.EncodeToString(h.Sum(nil))
}

// describePayload mirrors the engine's describe JSON shape.
type describePayload struct {
	Layers []struct {
		Name           string `json:"name"`
		FeatureCount   int64  `json:"featureCount"`
		GeometryFields []struct {
			Type             string    `json:"type"`
			Extent           []float64 `json:"extent"`
			CoordinateSystem struct {
				WKT string `json:"wkt"`
			} `json:"coordinateSystem"`
		} `json:"geometryFields"`
		Fields []struct {
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"fields"`
	} `json:"layers"`
}

// ParseMetadata decodes the engine's describe response. The text may carry
// unescaped control characters inside string literals (raw attribute data);
// a direct parse is attempted first, then a sanitizing pass and one retry.
func ParseMetadata(raw []byte) (*domain.Metadata, error) {
	var payload describePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		sanitized := SanitizeJSON(raw)
		if err2 := json.Unmarshal(sanitized, &payload); err2 != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrMetadataParse, err2)
		}
	}

	meta := &domain.Metadata{}
	bboxSet := false
	for _, layer := range payload.Layers {
		info := domain.LayerInfo{
			Name:         layer.Name,
			FeatureCount: layer.FeatureCount,
		}
		if len(layer.GeometryFields) > 0 {
			g := layer.GeometryFields[0]
			info.GeometryType = g.Type
			if meta.CRS == "" {
				meta.CRS = g.CoordinateSystem.WKT
			}
			if len(g.Extent) == 4 {
				if bbox, err := domain.NewBbox(g.Extent); err == nil {
					// Seed from the first layer that actually has an extent;
					// unioning with the zero value would drag the bbox to the
					// origin.
					meta.Bbox = mergeBbox(meta.Bbox, bbox, !bboxSet)
					bboxSet = true
				}
			}
		}
		for _, f := range layer.Fields {
			meta.Fields = append(meta.Fields, domain.Field{Name: f.Name, Type: f.Type})
		}
		meta.FeatureCount += layer.FeatureCount
		if meta.GeometryType == "" {
			meta.GeometryType = info.GeometryType
		}
		meta.Layers = append(meta.Layers, info)
	}
	return meta, nil
}

// mergeBbox unions layer extents into the dataset bbox.
func mergeBbox(acc, next domain.Bbox, first bool) domain.Bbox {
	if first {
		return next
	}
	if next[0] < acc[0] {
		acc[0] = next[0]
	}
	if next[1] < acc[1] {
		acc[1] = next[1]
	}
	if next[2] > acc[2] {
		acc[2] = next[2]
	}
	if next[3] > acc[3] {
		acc[3] = next[3]
	}
	return acc
}

// SanitizeJSON escapes or strips raw control characters (0x00-0x1F, 0x7F)
// found inside string literals. Backspace, tab, newline, form feed and
// carriage return map to their standard escapes; other control bytes are
// discarded. Structure outside string literals is left untouched.
func SanitizeJSON(raw []byte) []byte {
	out := make([]byte, 0, len(raw)+16)
	inString := false
	escaped := false

	for _, b := range raw {
		if !inString {
			if b == '"' {
				inString = true
			}
			out = append(out, b)
			continue
		}

		if escaped {
			escaped = false
			out = append(out, b)
			continue
		}

		switch {
		case b == '\\':
			escaped = true
			out = append(out, b)
		case b == '"':
			inString = false
			out = append(out, b)
		case b == '\b':
			out = append(out, '\\', 'b')
		case b == '\t':
			out = append(out, '\\', 't')
		case b == '\n':
			out = append(out, '\\', 'n')
		case b == '\f':
			out = append(out, '\\', 'f')
		case b == '\r':
			out = append(out, '\\', 'r')
		case b < 0x20 || b == 0x7F:
			// Unrepresentable control byte: drop it.
		default:
			out = append(out, b)
		}
	}
	return out
}
