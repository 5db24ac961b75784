package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jobrunner/verto/internal/domain"
	"github.com/jobrunner/verto/internal/ports/output"
)

// Runner drives a set of datasets through the conversion dispatcher and
// assembles the run report.
type Runner struct {
	dispatcher *Dispatcher
	archiver   output.Archiver
	classifier *Classifier
	metrics    output.MetricsCollector
	logger     *slog.Logger
}

// NewRunner creates a conversion runner.
func NewRunner(
	dispatcher *Dispatcher,
	archiver output.Archiver,
	classifier *Classifier,
	metrics output.MetricsCollector,
	logger *slog.Logger,
) *Runner {
	return &Runner{
		dispatcher: dispatcher,
		archiver:   archiver,
		classifier: classifier,
		metrics:    metrics,
		logger:     logger,
	}
}

// Run converts datasets sequentially. The worker channel carries no request
// correlation, so each dataset's response must arrive before the next
// dispatch; do not parallelize this loop without adding request IDs.
//
// Successful artifacts are handed to the sink under their download name.
// Failures are classified and recorded; the run always continues to the next
// dataset and always ends in a report.
func (r *Runner) Run(
	ctx context.Context,
	datasets []domain.Dataset,
	outputFormat string,
	opts domain.ConvertOptions,
	sink output.ArtifactSink,
) (*domain.RunReport, error) {
	target, ok := domain.FormatByID(outputFormat)
	if !ok {
		return nil, fmt.Errorf("output format %q: %w", outputFormat, domain.ErrUnsupportedFormat)
	}
	if !target.CanWrite {
		return nil, fmt.Errorf("output format %q: %w", outputFormat, domain.ErrFormatNotWritable)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	report := domain.NewRunReport(len(datasets))
	r.logger.Info("starting conversion run",
		"run", report.ID, "datasets", len(datasets), "output_format", outputFormat)

	for i := range datasets {
		ds := &datasets[i]
		start := time.Now()

		err := r.convertOne(ctx, ds, target, opts, sink)
		r.metrics.IncConversion(outputFormat, err == nil)
		r.metrics.ObserveConversionDuration(outputFormat, time.Since(start))

		if err != nil {
			raw := rawEngineMessage(err)
			classified := r.classifier.Classify(raw)
			report.AddFailure(ds.Name, raw, classified)
			r.logger.Warn("dataset conversion failed",
				"run", report.ID, "dataset", ds.Name, "error", classified)
			continue
		}

		report.AddSuccess(ds.Name)
		r.logger.Info("dataset converted",
			"run", report.ID, "dataset", ds.Name, "duration", time.Since(start))
	}

	r.logger.Info("conversion run finished",
		"run", report.ID,
		"succeeded", len(report.Succeeded),
		"failed", len(report.Failed),
	)
	return report, nil
}

// convertOne packages, dispatches and stores a single dataset.
func (r *Runner) convertOne(
	ctx context.Context,
	ds *domain.Dataset,
	target *domain.FormatDescriptor,
	opts domain.ConvertOptions,
	sink output.ArtifactSink,
) error {
	payload, name, err := r.payload(ds)
	if err != nil {
		return err
	}

	converted, err := r.dispatcher.Convert(ctx, output.ConvertRequest{
		Payload:      payload,
		Name:         name,
		InputFormat:  ds.FormatID,
		OutputFormat: target.ID,
		Options:      opts,
	})
	if err != nil {
		return err
	}

	artifact := ds.BaseName + "." + target.DownloadExt
	if err := sink.Store(artifact, converted); err != nil {
		return fmt.Errorf("storing artifact %s: %w", artifact, err)
	}
	return nil
}

// payload assembles the dispatch buffer: bundle members are packaged into a
// single archive, a single file is read as-is.
func (r *Runner) payload(ds *domain.Dataset) ([]byte, string, error) {
	if ds.Bundle {
		data, err := r.archiver.Pack(ds.Members)
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

// rawEngineMessage extracts the engine's raw error text when present.
func rawEngineMessage(err error) string {
	var engineErr *domain.EngineError
	if errors.As(err, &engineErr) {
		return engineErr.Message
	}
	return err.Error()
}
