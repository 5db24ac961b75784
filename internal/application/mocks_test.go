package application

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jobrunner/verto/internal/domain"
	"github.com/jobrunner/verto/internal/ports/output"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockEngine is a scriptable conversion engine for dispatcher and runner
// tests.
type mockEngine struct {
	mu sync.Mutex

	convertFunc  func(req output.ConvertRequest) ([]byte, error)
	describeFunc func(req output.DescribeRequest) ([]byte, error)
	version      string

	convertCalls  []output.ConvertRequest
	describeCalls []output.DescribeRequest
	active        int
	maxActive     int
}

func (m *mockEngine) Convert(_ context.Context, req output.ConvertRequest) ([]byte, error) {
	m.mu.Lock()
	m.convertCalls = append(m.convertCalls, req)
	m.active++
	if m.active > m.maxActive {
		m.maxActive = m.active
	}
	fn := m.convertFunc
	m.mu.Unlock()

	// Give overlapping callers a window to be observed.
	time.Sleep(2 * time.Millisecond)

	m.mu.Lock()
	m.active--
	m.mu.Unlock()

	if fn != nil {
		return fn(req)
	}
	return []byte("converted:" + req.Name), nil
}

func (m *mockEngine) Describe(_ context.Context, req output.DescribeRequest) ([]byte, error) {
	m.mu.Lock()
	m.describeCalls = append(m.describeCalls, req)
	fn := m.describeFunc
	m.mu.Unlock()
	if fn != nil {
		return fn(req)
	}
	return []byte(`{"layers":[]}`), nil
}

func (m *mockEngine) Version(_ context.Context) (string, error) {
	if m.version == "" {
		return "mock 0.0.0", nil
	}
	return m.version, nil
}

func (m *mockEngine) convertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.convertCalls)
}

func (m *mockEngine) describeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.describeCalls)
}

// mockArchiver concatenates member names instead of producing a real archive.
type mockArchiver struct {
	packErr   error
	packCalls int
}

func (m *mockArchiver) Pack(files []domain.UploadedFile) ([]byte, error) {
	m.packCalls++
	if m.packErr != nil {
		return nil, m.packErr
	}
	var out []byte
	for _, f := range files {
		out = append(out, []byte(f.Name)...)
		out = append(out, '\n')
	}
	return out, nil
}

func (m *mockArchiver) List(_ []byte) ([]string, error) {
	return nil, nil
}

// mockResolver returns a fixed mapping of raw inputs to definitions.
type mockResolver struct {
	defs  map[string]string
	err   error
	calls int
}

func (m *mockResolver) Resolve(_ context.Context, raw string, _ output.CrsScope) (string, bool, error) {
	m.calls++
	if m.err != nil {
		return raw, false, m.err
	}
	if def, ok := m.defs[raw]; ok {
		return def, false, nil
	}
	return raw, false, nil
}

// mockReprojector applies a fixed output bbox or a scripted error.
type mockReprojector struct {
	out   domain.Bbox
	apply bool
	err   error
	calls int
}

func (m *mockReprojector) Reproject(_ context.Context, bbox []float64, _ string) (domain.Bbox, bool, error) {
	m.calls++
	in, berr := domain.NewBbox(bbox)
	if berr != nil {
		return domain.Bbox{}, false, berr
	}
	if m.err != nil {
		return in, false, m.err
	}
	if !m.apply {
		return in, false, nil
	}
	return m.out, true, nil
}

// memorySink collects stored artifacts by name.
type memorySink struct {
	mu        sync.Mutex
	artifacts map[string][]byte
	storeErr  error
}

func newMemorySink() *memorySink {
	return &memorySink{artifacts: make(map[string][]byte)}
}

func (s *memorySink) Store(name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.storeErr != nil {
		return s.storeErr
	}
	s.artifacts[name] = data
	return nil
}

func (s *memorySink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.artifacts))
	for name := range s.artifacts {
		out = append(out, name)
	}
	return out
}

// upload builds a test file with in-memory content.
func upload(name, content string) domain.UploadedFile {
	return domain.UploadedFile{
		Name:    name,
		Size:    int64(len(content)),
		ModTime: time.Date(2026, 5, 14, 12, 0, 0, 0, time.UTC),
		Handle:  domain.BytesHandle([]byte(content)),
	}
}

// singleDataset wraps one file as a standalone dataset.
func singleDataset(name, formatID, content string) domain.Dataset {
	f := upload(name, content)
	_, ext, _ := domain.MatchExtension(name)
	return domain.Dataset{
		Name:     name,
		BaseName: domain.BaseName(name, ext),
		FormatID: formatID,
		Members:  []domain.UploadedFile{f},
	}
}
