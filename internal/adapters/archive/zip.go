// Package archive packages dataset members into zip buffers.
package archive

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zip"

	"github.com/jobrunner/verto/internal/domain"
)

// zipMagic is the local-file-header signature of a zip archive.
var zipMagic = []byte{'P', 'K', 0x03, 0x04}

// Zipper implements the Archiver port with in-memory zip buffers. Bundles
// are small relative to the conversion itself; no streaming needed.
type Zipper struct{}

// NewZipper creates a zip archiver.
func NewZipper() *Zipper {
	return &Zipper{}
}

// Pack writes all files into one zip archive and returns its bytes. Member
// modification times are preserved so engine-side caching stays meaningful.
func (z *Zipper) Pack(files []domain.UploadedFile) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	for _, f := range files {
		hdr := &zip.FileHeader{
			Name:     f.Name,
			Method:   zip.Deflate,
			Modified: f.ModTime,
		}
		entry, err := w.CreateHeader(hdr)
		if err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("creating zip entry %s: %w", f.Name, err)
		}

		rc, err := f.Handle.Open()
		if err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("opening %s: %w", f.Name, err)
		}
		_, err = io.Copy(entry, rc)
		_ = rc.Close()
		if err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("writing zip entry %s: %w", f.Name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing zip: %w", err)
	}
	return buf.Bytes(), nil
}

// List returns the member names of a zip archive.
func (z *Zipper) List(data []byte) ([]string, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("reading zip: %w", err)
	}

	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	return names, nil
}

// IsZip reports whether data starts with the zip signature.
func IsZip(data []byte) bool {
	return len(data) >= len(zipMagic) && bytes.Equal(data[:len(zipMagic)], zipMagic)
}
