package domain

import (
	"bytes"
	"io"
	"os"
	"time"
)

// ContentHandle is an opaque handle to a file's raw bytes. The bytes are
// borrowed per operation; the core never holds them long-term.
type ContentHandle interface {
	Open() (io.ReadCloser, error)
}

// BytesHandle is a ContentHandle over an in-memory buffer.
type BytesHandle []byte

// Open implements ContentHandle.
func (b BytesHandle) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b)), nil
}

// PathHandle is a ContentHandle over a file on disk.
type PathHandle string

// Open implements ContentHandle.
func (p PathHandle) Open() (io.ReadCloser, error) {
	return os.Open(string(p))
}

// UploadedFile is one raw file submitted for conversion.
type UploadedFile struct {
	Name    string
	Size    int64
	ModTime time.Time
	Handle  ContentHandle
}

// ReadAll drains the file's content handle.
func (f *UploadedFile) ReadAll() ([]byte, error) {
	rc, err := f.Handle.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}

// Dataset is a logical unit of conversion: either a single file or a
// multi-file bundle sharing a base name.
//
// Invariant: a bundle exists only if its anchor member is present; candidate
// bundles missing the anchor degrade to individual single-file datasets.
type Dataset struct {
	Name     string // Display name: file name, or base name for bundles
	BaseName string // File name with the matched extension stripped
	FormatID string
	Bundle   bool
	Members  []UploadedFile // Exactly one member for single-file datasets
}

// File returns the single member of a non-bundle dataset.
func (d *Dataset) File() UploadedFile {
	return d.Members[0]
}

// HasMember reports whether a member with the given extension is present.
func (d *Dataset) HasMember(ext string) bool {
	for _, m := range d.Members {
		if _, mext, ok := MatchExtension(m.Name); ok && mext == ext {
			return true
		}
	}
	return false
}

// TotalSize returns the combined byte size of all members.
func (d *Dataset) TotalSize() int64 {
	var total int64
	for _, m := range d.Members {
		total += m.Size
	}
	return total
}

// GroupResult is the outcome of partitioning uploads into datasets.
type GroupResult struct {
	Bundles []Dataset
	Singles []Dataset
}

// Datasets returns bundles followed by singles, preserving grouping order.
func (g *GroupResult) Datasets() []Dataset {
	out := make([]Dataset, 0, len(g.Bundles)+len(g.Singles))
	out = append(out, g.Bundles...)
	out = append(out, g.Singles...)
	return out
}

// Count returns the total number of datasets.
func (g *GroupResult) Count() int {
	return len(g.Bundles) + len(g.Singles)
}
