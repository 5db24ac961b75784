package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/jobrunner/verto/internal/domain"
	"github.com/jobrunner/verto/internal/ports/output"
)

// handleHealth reports server liveness and the probed engine version.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"engine": s.engineVersion,
	})
}

// handleFormats returns the format catalogue.
func (s *Server) handleFormats(w http.ResponseWriter, _ *http.Request) {
	formats := domain.Formats()
	response := make([]map[string]interface{}, len(formats))
	for i, f := range formats {
		response[i] = map[string]interface{}{
			"id":           f.ID,
			"label":        f.Label,
			"extensions":   f.Extensions,
			"can_read":     f.CanRead,
			"can_write":    f.CanWrite,
			"download_ext": f.DownloadExt,
			"multi_file":   f.MultiFile,
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"formats": response,
		"count":   len(formats),
	})
}

// handleConvert accepts a multipart upload, groups it into datasets, runs
// the conversion and returns the run summary.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	files, err := s.parseUpload(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	outputFormat := r.FormValue("output_format")
	if outputFormat == "" {
		s.writeError(w, http.StatusBadRequest, "output_format is required")
		return
	}

	opts, err := s.parseOptions(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Resolve CRS codes before dispatch; failures keep the raw input and
	// leave the engine to decide.
	opts.SourceCRS = s.resolveCRS(r, opts.SourceCRS, output.ScopeSource)
	opts.TargetCRS = s.resolveCRS(r, opts.TargetCRS, output.ScopeTarget)

	result, skipped := s.grouper.Group(files)
	if result.Count() == 0 {
		s.writeError(w, http.StatusBadRequest, "no convertible datasets in upload")
		return
	}

	sink := newArtifactSink()
	report, err := s.runner.Run(r.Context(), result.Datasets(), outputFormat, opts, sink)
	if err != nil {
		s.handleRunError(w, err)
		return
	}

	run := &storedRun{report: report, artifacts: sink.artifacts}
	for _, f := range skipped {
		run.skipped = append(run.skipped, f.Name)
	}
	s.runs.put(run)

	s.writeJSON(w, http.StatusOK, s.formatRun(run))
}

// handlePreview accepts a multipart upload and returns metadata per dataset.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	files, err := s.parseUpload(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sourceCRS := r.FormValue("source_crs")

	result, skipped := s.grouper.Group(files)
	if result.Count() == 0 {
		s.writeError(w, http.StatusBadRequest, "no previewable datasets in upload")
		return
	}

	datasets := result.Datasets()
	previews := make([]map[string]interface{}, 0, len(datasets))
	for i := range datasets {
		ds := &datasets[i]
		meta, err := s.preview.Preview(r.Context(), ds, sourceCRS)
		if err != nil {
			previews = append(previews, map[string]interface{}{
				"dataset": ds.Name,
				"error":   err.Error(),
			})
			continue
		}
		previews = append(previews, map[string]interface{}{
			"dataset":  ds.Name,
			"format":   ds.FormatID,
			"metadata": meta,
		})
	}

	response := map[string]interface{}{
		"previews": previews,
		"count":    len(previews),
	}
	if len(skipped) > 0 {
		names := make([]string, len(skipped))
		for i, f := range skipped {
			names[i] = f.Name
		}
		response["skipped"] = names
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handlePreviewCacheClear empties the preview cache. Clients call it when
// the working file selection changes so stale metadata is never served.
func (s *Server) handlePreviewCacheClear(w http.ResponseWriter, _ *http.Request) {
	s.preview.ClearCache()
	w.WriteHeader(http.StatusNoContent)
}

// handleGetRun returns the summary of a finished run.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.runs.get(mux.Vars(r)["runId"])
	if !ok {
		s.writeError(w, http.StatusNotFound, "Run not found")
		return
	}
	s.writeJSON(w, http.StatusOK, s.formatRun(run))
}

// handleGetReport returns the plain text run report.
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	run, ok := s.runs.get(mux.Vars(r)["runId"])
	if !ok {
		s.writeError(w, http.StatusNotFound, "Run not found")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, run.report.Render())
}

// handleGetArtifact streams one converted artifact.
func (s *Server) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	run, ok := s.runs.get(vars["runId"])
	if !ok {
		s.writeError(w, http.StatusNotFound, "Run not found")
		return
	}

	name := vars["name"]
	data, ok := run.artifacts[name]
	if !ok {
		s.writeError(w, http.StatusNotFound, "Artifact not found")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	_, _ = w.Write(data)
}

// handleOpenAPI returns the OpenAPI specification.
func (s *Server) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	spec, err := getOpenAPIJSON()
	if err != nil {
		s.logger.Error("failed to get OpenAPI spec", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to load OpenAPI specification")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(spec)
}

// parseUpload reads the multipart form into uploaded files. The whole
// payload is buffered; conversions operate on byte slices.
func (s *Server) parseUpload(r *http.Request) ([]domain.UploadedFile, error) {
	maxBytes := s.config.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = 2 << 30
	}
	r.Body = http.MaxBytesReader(nil, r.Body, maxBytes)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, fmt.Errorf("parsing multipart form: %w", err)
	}
	if r.MultipartForm == nil || len(r.MultipartForm.File["files"]) == 0 {
		return nil, errors.New("at least one file is required in the files field")
	}

	now := time.Now()
	var files []domain.UploadedFile
	for _, hdr := range r.MultipartForm.File["files"] {
		f, err := hdr.Open()
		if err != nil {
			return nil, fmt.Errorf("opening upload %s: %w", hdr.Filename, err)
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("reading upload %s: %w", hdr.Filename, err)
		}

		files = append(files, domain.UploadedFile{
			Name:    hdr.Filename,
			Size:    int64(len(data)),
			ModTime: now,
			Handle:  domain.BytesHandle(data),
		})
	}
	return files, nil
}

// parseOptions maps form fields onto the conversion options record.
func (s *Server) parseOptions(r *http.Request) (domain.ConvertOptions, error) {
	opts := domain.DefaultOptions()

	opts.SourceCRS = r.FormValue("source_crs")
	opts.TargetCRS = r.FormValue("target_crs")
	opts.LayerName = r.FormValue("layer_name")
	opts.GeometryType = strings.ToUpper(r.FormValue("geometry_type"))
	opts.Where = r.FormValue("where")
	opts.OutputMode = r.FormValue("output_mode")

	if fields := r.FormValue("fields"); fields != "" {
		opts.Fields = strings.Split(fields, ",")
	}

	var err error
	if opts.SkipFailures, err = parseBool(r, "skip_failures", false); err != nil {
		return opts, err
	}
	if opts.MakeValid, err = parseBool(r, "make_valid", false); err != nil {
		return opts, err
	}
	if opts.KeepZ, err = parseBool(r, "keep_z", true); err != nil {
		return opts, err
	}
	if opts.ExplodeCollections, err = parseBool(r, "explode_collections", false); err != nil {
		return opts, err
	}
	if opts.PreserveFID, err = parseBool(r, "preserve_fid", false); err != nil {
		return opts, err
	}

	if v := r.FormValue("simplify_tolerance"); v != "" {
		opts.SimplifyTolerance, err = strconv.ParseFloat(v, 64)
		if err != nil {
			return opts, errors.New("invalid simplify_tolerance parameter")
		}
	}
	if v := r.FormValue("coordinate_precision"); v != "" {
		opts.CoordinatePrecision, err = strconv.Atoi(v)
		if err != nil {
			return opts, errors.New("invalid coordinate_precision parameter")
		}
	}

	return opts, nil
}

func parseBool(r *http.Request, field string, def bool) (bool, error) {
	v := r.FormValue(field)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s parameter", field)
	}
	return b, nil
}

// resolveCRS maps an EPSG code through the resolver, keeping the raw input
// when resolution fails.
func (s *Server) resolveCRS(r *http.Request, raw string, scope output.CrsScope) string {
	if raw == "" || s.resolver == nil {
		return raw
	}
	resolved, _, err := s.resolver.Resolve(r.Context(), raw, scope)
	if err != nil {
		s.logger.Warn("CRS resolution failed, using raw input", "crs", raw, "error", err)
		return raw
	}
	return resolved
}

// formatRun formats a stored run for JSON output.
func (s *Server) formatRun(run *storedRun) map[string]interface{} {
	report := run.report

	failures := make([]map[string]interface{}, len(report.Failed))
	for i, f := range report.Failed {
		failures[i] = map[string]interface{}{
			"dataset": f.Name,
			"error":   f.Classified,
			"raw":     f.Raw,
		}
	}

	artifacts := make([]string, 0, len(run.artifacts))
	for name := range run.artifacts {
		artifacts = append(artifacts, name)
	}
	sort.Strings(artifacts)

	response := map[string]interface{}{
		"run_id":    report.ID,
		"timestamp": report.Timestamp,
		"total":     report.Total,
		"succeeded": report.Succeeded,
		"failed":    failures,
		"artifacts": artifacts,
	}
	if len(run.skipped) > 0 {
		response["skipped"] = run.skipped
	}
	return response
}

// handleRunError maps run-level failures to HTTP statuses.
func (s *Server) handleRunError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		s.writeError(w, http.StatusBadRequest, validationErr.Message)
		return
	}

	if errors.Is(err, domain.ErrUnsupported) {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if errors.Is(err, domain.ErrDispatcherClosed) {
		s.writeError(w, http.StatusServiceUnavailable, "Conversion service is shutting down")
		return
	}

	s.logger.Error("conversion run error", "error", err)
	s.writeError(w, http.StatusInternalServerError, "Conversion failed")
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}
