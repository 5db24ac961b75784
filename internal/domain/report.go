package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FailedDataset records one failed conversion with both the raw engine
// message and its classified rewrite.
type FailedDataset struct {
	Name       string `json:"name"`
	Raw        string `json:"raw"`
	Classified string `json:"classified"`
}

// RunReport is the audit artifact of one conversion run. It is produced
// unconditionally, whatever the outcome mix, and never persisted beyond the
// session.
type RunReport struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Total     int             `json:"total"`
	Succeeded []string        `json:"succeeded"`
	Failed    []FailedDataset `json:"failed"`
}

// NewRunReport creates a report for a run over total datasets.
func NewRunReport(total int) *RunReport {
	return &RunReport{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Total:     total,
	}
}

// AddSuccess appends a succeeded dataset name.
func (r *RunReport) AddSuccess(name string) {
	r.Succeeded = append(r.Succeeded, name)
}

// AddFailure appends a failed dataset with its raw and classified messages.
func (r *RunReport) AddFailure(name, raw, classified string) {
	r.Failed = append(r.Failed, FailedDataset{Name: name, Raw: raw, Classified: classified})
}

// AllSucceeded returns true if no dataset failed.
func (r *RunReport) AllSucceeded() bool {
	return len(r.Failed) == 0
}

// Render produces the plain-text report artifact.
func (r *RunReport) Render() string {
	var b strings.Builder

	b.WriteString("CONVERSION RUN REPORT\n")
	b.WriteString("=====================\n")
	fmt.Fprintf(&b, "Run:       %s\n", r.ID)
	fmt.Fprintf(&b, "Timestamp: %s\n", r.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&b, "Datasets:  %d total, %d succeeded, %d failed\n",
		r.Total, len(r.Succeeded), len(r.Failed))

	b.WriteString("\nSUCCEEDED\n")
	if len(r.Succeeded) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, name := range r.Succeeded {
		fmt.Fprintf(&b, "  %s\n", name)
	}

	b.WriteString("\nFAILED\n")
	if len(r.Failed) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, f := range r.Failed {
		fmt.Fprintf(&b, "  %s: %s\n", f.Name, f.Classified)
	}

	return b.String()
}
