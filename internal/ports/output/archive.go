package output

import "github.com/jobrunner/verto/internal/domain"

// Archiver packages bundle members into a single archive byte buffer before
// dispatch. Archive packaging is a collaborator capability, not core logic.
type Archiver interface {
	// Pack writes all files into one archive and returns its bytes.
	Pack(files []domain.UploadedFile) ([]byte, error)

	// List returns the member names of an archive.
	List(data []byte) ([]string, error)
}

// ArtifactSink receives named converted artifacts as they are produced.
type ArtifactSink interface {
	Store(name string, data []byte) error
}
