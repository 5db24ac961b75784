// Package engine runs conversions through the GDAL command line tools.
package engine

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/jobrunner/verto/internal/adapters/archive"
	"github.com/jobrunner/verto/internal/domain"
	"github.com/jobrunner/verto/internal/ports/output"
)

// Config holds GDAL engine configuration.
type Config struct {
	Ogr2ogrPath string        // default: ogr2ogr from PATH
	OgrinfoPath string        // default: ogrinfo from PATH
	Timeout     time.Duration // per-invocation limit; default 10 minutes
	WorkDir     string        // scratch space; default: system temp
}

// GDALEngine implements the ConversionEngine port on top of the ogr2ogr and
// ogrinfo binaries. Each call stages its input in a private scratch
// directory that is removed when the call returns.
type GDALEngine struct {
	cfg    Config
	logger *slog.Logger
}

// NewGDALEngine creates a GDAL command line engine.
func NewGDALEngine(cfg Config, logger *slog.Logger) *GDALEngine {
	if cfg.Ogr2ogrPath == "" {
		cfg.Ogr2ogrPath = "ogr2ogr"
	}
	if cfg.OgrinfoPath == "" {
		cfg.OgrinfoPath = "ogrinfo"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Minute
	}
	return &GDALEngine{cfg: cfg, logger: logger}
}

// Convert translates the payload into the output format. Multi-file outputs
// are collected into a single zip buffer.
func (e *GDALEngine) Convert(ctx context.Context, req output.ConvertRequest) ([]byte, error) {
	target, ok := domain.FormatByID(req.OutputFormat)
	if !ok {
		return nil, fmt.Errorf("output format %q: %w", req.OutputFormat, domain.ErrUnsupportedFormat)
	}

	workDir, err := os.MkdirTemp(e.cfg.WorkDir, "verto-convert-*")
	if err != nil {
		return nil, fmt.Errorf("creating scratch dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	inputPath, err := e.stageInput(workDir, req.Name, req.Payload)
	if err != nil {
		return nil, err
	}

	outDir := filepath.Join(workDir, "out")
	if err := os.Mkdir(outDir, 0750); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}
	base := strings.TrimSuffix(filepath.Base(req.Name), filepath.Ext(req.Name))
	outPath := filepath.Join(outDir, base+primaryExt(target))

	args := buildConvertArgs(target, outPath, inputPath, req.Options)

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, e.cfg.Ogr2ogrPath, args...) //#nosec G204 -- args are built from a fixed flag table
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	e.logger.Debug("running ogr2ogr", "dataset", req.Name, "output_format", target.ID)
	if err := cmd.Run(); err != nil {
		return nil, &domain.EngineError{
			Dataset: req.Name,
			Op:      "convert",
			Message: engineMessage(stderr.String(), err),
		}
	}
	e.logger.Debug("ogr2ogr finished", "dataset", req.Name, "duration", time.Since(start))

	return collectOutput(outDir)
}

// Describe returns raw ogrinfo JSON for the payload.
func (e *GDALEngine) Describe(ctx context.Context, req output.DescribeRequest) ([]byte, error) {
	workDir, err := os.MkdirTemp(e.cfg.WorkDir, "verto-describe-*")
	if err != nil {
		return nil, fmt.Errorf("creating scratch dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	inputPath, err := e.stageInput(workDir, req.Name, req.Payload)
	if err != nil {
		return nil, err
	}

	args := buildDescribeArgs(inputPath, req.SourceCRS)

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.cfg.OgrinfoPath, args...) //#nosec G204 -- args are built from a fixed flag table
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &domain.EngineError{
			Dataset: req.Name,
			Op:      "describe",
			Message: engineMessage(stderr.String(), err),
		}
	}
	return stdout.Bytes(), nil
}

// Version reports the GDAL release string.
func (e *GDALEngine) Version(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, e.cfg.OgrinfoPath, "--version").Output() //#nosec G204 -- fixed flag
	if err != nil {
		return "", fmt.Errorf("probing engine version: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// stageInput writes the payload to the scratch dir and returns the path
// GDAL should open. Zip payloads are addressed through the vsizip virtual
// filesystem instead of being extracted.
func (e *GDALEngine) stageInput(workDir, name string, payload []byte) (string, error) {
	path := filepath.Join(workDir, filepath.Base(name))
	if err := os.WriteFile(path, payload, 0600); err != nil {
		return "", fmt.Errorf("staging input %s: %w", name, err)
	}
	if archive.IsZip(payload) {
		return "/vsizip/" + path, nil
	}
	return path, nil
}

// primaryExt is the extension of the file GDAL is pointed at for a format.
func primaryExt(f *domain.FormatDescriptor) string {
	if f.MultiFile && f.Anchor != "" {
		return f.Anchor
	}
	if len(f.Extensions) > 0 {
		return f.Extensions[0]
	}
	return ""
}

// buildConvertArgs maps options onto the ogr2ogr flag table. Argument order
// follows the tool's convention: flags, destination, source.
func buildConvertArgs(target *domain.FormatDescriptor, outPath, inPath string, opts domain.ConvertOptions) []string {
	args := []string{"-f", target.Driver}

	if opts.SourceCRS != "" {
		args = append(args, "-s_srs", opts.SourceCRS)
	}
	if opts.TargetCRS != "" {
		args = append(args, "-t_srs", opts.TargetCRS)
	}
	if opts.LayerName != "" {
		args = append(args, "-nln", opts.LayerName)
	}
	if opts.GeometryType != domain.GeomTypeNone {
		args = append(args, "-nlt", opts.GeometryType)
	}
	if opts.Where != "" {
		args = append(args, "-where", opts.Where)
	}
	if len(opts.Fields) > 0 {
		args = append(args, "-select", strings.Join(opts.Fields, ","))
	}
	if opts.SimplifyTolerance > 0 {
		args = append(args, "-simplify", strconv.FormatFloat(opts.SimplifyTolerance, 'f', -1, 64))
	}
	if opts.ExplodeCollections {
		args = append(args, "-explodecollections")
	}
	if opts.PreserveFID {
		args = append(args, "-preserve_fid")
	}
	if opts.SkipFailures {
		args = append(args, "-skipfailures")
	}
	if opts.MakeValid {
		args = append(args, "-makevalid")
	}
	if !opts.KeepZ {
		args = append(args, "-dim", "XY")
	}
	if opts.CoordinatePrecision > 0 && target.Driver == "GeoJSON" {
		args = append(args, "-lco", "COORDINATE_PRECISION="+strconv.Itoa(opts.CoordinatePrecision))
	}
	if opts.OutputMode != "" {
		args = append(args, "-dsco", opts.OutputMode)
	}

	return append(args, outPath, inPath)
}

// buildDescribeArgs requests summary-only JSON metadata for all layers.
func buildDescribeArgs(inPath, sourceCRS string) []string {
	args := []string{"-json", "-al", "-so"}
	if sourceCRS != "" {
		args = append(args, "-a_srs", sourceCRS)
	}
	return append(args, inPath)
}

// collectOutput returns the produced artifact: a single file's bytes, or a
// zip of everything when the driver wrote companions.
func collectOutput(outDir string) ([]byte, error) {
	entries, err := os.ReadDir(outDir)
	if err != nil {
		return nil, fmt.Errorf("reading output dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	switch len(names) {
	case 0:
		return nil, &domain.EngineError{Op: "convert", Message: "the engine produced no output"}
	case 1:
		data, err := os.ReadFile(filepath.Join(outDir, names[0])) //#nosec G304 -- path is inside our scratch dir
		if err != nil {
			return nil, fmt.Errorf("reading output %s: %w", names[0], err)
		}
		return data, nil
	}

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(outDir, name)) //#nosec G304 -- path is inside our scratch dir
		if err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("reading output %s: %w", name, err)
		}
		entry, err := w.Create(name)
		if err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("zipping output %s: %w", name, err)
		}
		if _, err := entry.Write(data); err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("zipping output %s: %w", name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing output zip: %w", err)
	}
	return buf.Bytes(), nil
}

// engineMessage prefers the tool's stderr text over the exec error.
func engineMessage(stderr string, err error) string {
	msg := strings.TrimSpace(stderr)
	if msg == "" {
		return err.Error()
	}
	return msg
}
