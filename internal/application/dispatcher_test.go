package application

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jobrunner/verto/internal/domain"
	"github.com/jobrunner/verto/internal/ports/output"
)

func TestDispatcherConvert(t *testing.T) {
	engine := &mockEngine{}
	d := NewDispatcher(engine, testLogger())
	defer d.Close()

	out, err := d.Convert(context.Background(), output.ConvertRequest{
		Name: "points.geojson", Payload: []byte("{}"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != "converted:points.geojson" {
		t.Errorf("unexpected payload: %s", out)
	}
}

func TestDispatcherPropagatesEngineError(t *testing.T) {
	engineErr := &domain.EngineError{Dataset: "bad.gpx", Op: "convert", Message: "ERROR 1: boom"}
	engine := &mockEngine{
		convertFunc: func(output.ConvertRequest) ([]byte, error) { return nil, engineErr },
	}
	d := NewDispatcher(engine, testLogger())
	defer d.Close()

	_, err := d.Convert(context.Background(), output.ConvertRequest{Name: "bad.gpx"})
	var got *domain.EngineError
	if !errors.As(err, &got) {
		t.Fatalf("expected EngineError, got %v", err)
	}
	if got.Message != "ERROR 1: boom" {
		t.Errorf("unexpected message: %s", got.Message)
	}
}

func TestDispatcherSerializesRequests(t *testing.T) {
	engine := &mockEngine{}
	d := NewDispatcher(engine, testLogger())
	defer d.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := d.Convert(context.Background(), output.ConvertRequest{Name: "a.geojson"}); err != nil {
				t.Errorf("convert failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if engine.convertCount() != 8 {
		t.Fatalf("expected 8 engine calls, got %d", engine.convertCount())
	}
	if engine.maxActive != 1 {
		t.Errorf("expected at most 1 request in flight, observed %d", engine.maxActive)
	}
}

func TestDispatcherConvertAndDescribeShareTheWorker(t *testing.T) {
	engine := &mockEngine{}
	d := NewDispatcher(engine, testLogger())
	defer d.Close()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = d.Convert(context.Background(), output.ConvertRequest{Name: "a.geojson"})
		}()
		go func() {
			defer wg.Done()
			_, _ = d.Describe(context.Background(), output.DescribeRequest{Name: "a.geojson"})
		}()
	}
	wg.Wait()

	if engine.maxActive != 1 {
		t.Errorf("expected convert and describe serialized, observed %d in flight", engine.maxActive)
	}
	if engine.convertCount() != 4 || engine.describeCount() != 4 {
		t.Errorf("expected 4 converts and 4 describes, got %d and %d",
			engine.convertCount(), engine.describeCount())
	}
}

func TestDispatcherCloseRejectsNewRequests(t *testing.T) {
	engine := &mockEngine{}
	d := NewDispatcher(engine, testLogger())
	d.Close()

	_, err := d.Convert(context.Background(), output.ConvertRequest{Name: "a.geojson"})
	if !errors.Is(err, domain.ErrDispatcherClosed) {
		t.Errorf("expected ErrDispatcherClosed, got %v", err)
	}
}

func TestDispatcherCloseIsIdempotent(t *testing.T) {
	d := NewDispatcher(&mockEngine{}, testLogger())
	d.Close()
	d.Close()
}

func TestDispatcherContextCancelledBeforeDispatch(t *testing.T) {
	engine := &mockEngine{}
	d := NewDispatcher(engine, testLogger())
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Convert(ctx, output.ConvertRequest{Name: "a.geojson"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if engine.convertCount() != 0 {
		t.Errorf("expected no engine call on cancelled context, got %d", engine.convertCount())
	}
}
