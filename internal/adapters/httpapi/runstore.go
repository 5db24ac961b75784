package httpapi

import (
	"sync"

	"github.com/jobrunner/verto/internal/domain"
)

// storedRun is a finished conversion run held for result retrieval. Runs
// live in memory for the server's lifetime; there is no persistence layer.
type storedRun struct {
	report    *domain.RunReport
	artifacts map[string][]byte
	skipped   []string
}

// runStore indexes finished runs by their report ID.
type runStore struct {
	mu   sync.RWMutex
	runs map[string]*storedRun
}

func newRunStore() *runStore {
	return &runStore{runs: make(map[string]*storedRun)}
}

func (s *runStore) put(run *storedRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.report.ID] = run
}

func (s *runStore) get(id string) (*storedRun, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	return run, ok
}

// artifactSink collects converted artifacts for one run in memory.
type artifactSink struct {
	mu        sync.Mutex
	artifacts map[string][]byte
}

func newArtifactSink() *artifactSink {
	return &artifactSink{artifacts: make(map[string][]byte)}
}

// Store implements the ArtifactSink port.
func (s *artifactSink) Store(name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[name] = data
	return nil
}
