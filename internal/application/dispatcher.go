package application

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jobrunner/verto/internal/domain"
	"github.com/jobrunner/verto/internal/ports/output"
)

// request is one message on the worker channel. The response channel is
// buffered for exactly one message and abandoned after the first receive, so
// a handler can never leak across calls.
type request struct {
	kind     string // "convert" or "describe"
	convert  output.ConvertRequest
	describe output.DescribeRequest
	resp     chan response
}

type response struct {
	payload []byte
	err     error
}

// Dispatcher owns the single background execution context for the session
// and correlates request/response pairs against it.
//
// The channel carries no correlation identifier, so at most one request may
// be outstanding at a time; opMu is held across the full request/response
// pair to enforce that. Convert and Describe therefore serialize against
// each other as well.
type Dispatcher struct {
	engine   output.ConversionEngine
	logger   *slog.Logger
	requests chan *request

	opMu sync.Mutex // one outstanding request at a time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewDispatcher creates the dispatcher and starts its worker goroutine. The
// worker lives until Close and is never recreated per call.
func NewDispatcher(engine output.ConversionEngine, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		engine:   engine,
		logger:   logger,
		requests: make(chan *request),
		stopCh:   make(chan struct{}),
	}
	d.wg.Add(1)
	go d.worker()
	return d
}

// worker is the background execution context. It answers every accepted
// request with exactly one response.
func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for {
		select {
		case <-d.stopCh:
			d.logger.Debug("conversion worker stopped")
			return
		case req := <-d.requests:
			var payload []byte
			var err error
			switch req.kind {
			case "convert":
				payload, err = d.engine.Convert(context.Background(), req.convert)
			case "describe":
				payload, err = d.engine.Describe(context.Background(), req.describe)
			}
			req.resp <- response{payload: payload, err: err}
		}
	}
}

// Convert dispatches a conversion to the background worker and waits for its
// single response. The payload buffer is handed off; the caller must not
// read it afterward.
func (d *Dispatcher) Convert(ctx context.Context, req output.ConvertRequest) ([]byte, error) {
	return d.dispatch(ctx, &request{kind: "convert", convert: req})
}

// Describe dispatches a metadata request to the background worker and waits
// for its single response. The returned bytes are raw JSON text.
func (d *Dispatcher) Describe(ctx context.Context, req output.DescribeRequest) ([]byte, error) {
	return d.dispatch(ctx, &request{kind: "describe", describe: req})
}

func (d *Dispatcher) dispatch(ctx context.Context, req *request) ([]byte, error) {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req.resp = make(chan response, 1)

	select {
	case d.requests <- req:
	case <-d.stopCh:
		return nil, domain.ErrDispatcherClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	// The worker always answers an accepted request; the buffered channel
	// guarantees it never blocks doing so. No cancellation mid-flight.
	resp := <-req.resp
	if resp.err != nil {
		return nil, resp.err
	}
	return resp.payload, nil
}

// Close tears the background worker down exactly once. Any call arriving
// afterward fails with ErrDispatcherClosed.
func (d *Dispatcher) Close() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
	})
	d.wg.Wait()
}
