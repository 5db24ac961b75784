// Package output defines the secondary/driven ports of the application.
package output

import (
	"context"

	"github.com/jobrunner/verto/internal/domain"
)

// ConvertRequest is one conversion request against the engine.
type ConvertRequest struct {
	Payload      []byte // Input bytes; ownership transfers to the engine
	Name         string // Input file name, extension included
	InputFormat  string // Format ID of the input
	OutputFormat string // Format ID of the output
	Options      domain.ConvertOptions
}

// DescribeRequest is one metadata request against the engine.
type DescribeRequest struct {
	Payload     []byte // Input bytes; ownership transfers to the engine
	Name        string // Input file name, extension included
	InputFormat string // Format ID of the input
	SourceCRS   string // Effective source CRS, may be empty
}

// ConversionEngine is the external conversion/describe engine. Calls are
// synchronous and CPU-heavy; the dispatcher keeps them off the foreground.
type ConversionEngine interface {
	// Convert translates the payload into the output format and returns the
	// converted bytes.
	Convert(ctx context.Context, req ConvertRequest) ([]byte, error)

	// Describe returns dataset metadata as raw UTF-8 JSON text. The text may
	// contain unescaped control characters from upstream attribute data.
	Describe(ctx context.Context, req DescribeRequest) ([]byte, error)

	// Version reports the engine version string.
	Version(ctx context.Context) (string, error)
}
