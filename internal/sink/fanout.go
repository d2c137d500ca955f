package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"vigil/internal/event"
	"vigil/internal/logging"
)

// FailureObserver is told about every failed sink write.
type FailureObserver func(sink string)

// FanOut delivers each event to every sink.
type FanOut struct {
	sinks     []Sink
	logger    *slog.Logger
	onFail    FailureObserver
	closeOnce sync.Once
}

// NewFanOut builds a fan-out over sinks. onFail may be nil.
func NewFanOut(logger *slog.Logger, onFail FailureObserver, sinks ...Sink) *FanOut {
	return &FanOut{
		sinks:  sinks,
		logger: logging.NewComponentLogger(logger, "sinks"),
		onFail: onFail,
	}
}

// Names lists the sinks in registration order.
func (f *FanOut) Names() []string {
	names := make([]string, 0, len(f.sinks))
	for _, s := range f.sinks {
		names = append(names, s.Name())
	}
	return names
}

// Write runs every sink concurrently and waits for all of them. The returned
// map holds one entry per failed sink and is empty when all succeeded. A
// failure never stops or undoes the other sinks.
func (f *FanOut) Write(ctx context.Context, ev *event.Event) map[string]error {
	var (
		mu     sync.Mutex
		failed = make(map[string]error)
		group  errgroup.Group
	)
	for _, s := range f.sinks {
		group.Go(func() error {
			if err := safeWrite(ctx, s, ev); err != nil {
				mu.Lock()
				failed[s.Name()] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = group.Wait()

	for name, err := range failed {
		f.ReportFailure(name, ev.ID(), err)
	}
	return failed
}

// safeWrite turns a panicking sink into a failed write so the other sinks and
// the pipeline keep running.
func safeWrite(ctx context.Context, s Sink, ev *event.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink %s panicked: %v", s.Name(), r)
		}
	}()
	return s.Write(ctx, ev)
}

// ReportFailure logs and counts a persistence failure of sink.
func (f *FanOut) ReportFailure(sink, eventID string, err error) {
	logging.WarnWithContext(f.logger, "event sink write failed", "sink_write_failed",
		logging.Sink(sink),
		logging.EventID(eventID),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check disk space and data directory permissions"),
		logging.String(logging.FieldImpact, "event missing from this sink; other sinks unaffected"),
	)
	if f.onFail != nil {
		f.onFail(sink)
	}
}

// Flush flushes every sink and joins their errors.
func (f *FanOut) Flush() error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close flushes and closes every sink once.
func (f *FanOut) Close() error {
	var err error
	f.closeOnce.Do(func() {
		errs := []error{f.Flush()}
		for _, s := range f.sinks {
			errs = append(errs, s.Close())
		}
		err = errors.Join(errs...)
	})
	return err
}
