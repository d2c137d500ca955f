package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
)

func TestNewFanoutHandlerCollapses(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)

	if _, ok := newFanoutHandler(nil, nil).(NoopHandler); !ok {
		t.Fatal("expected NoopHandler when every handler is nil")
	}
	if h := newFanoutHandler(nil, inner, nil); h != inner {
		t.Fatal("expected the single non-nil handler to be returned unwrapped")
	}
}

func TestFanoutHandlerRoutesByLevel(t *testing.T) {
	var infoBuf, debugBuf bytes.Buffer
	infoHandler := slog.NewJSONHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo})
	debugHandler := slog.NewJSONHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug})

	logger := slog.New(newFanoutHandler(infoHandler, debugHandler))
	logger.Debug("debug only")

	if infoBuf.Len() != 0 {
		t.Fatalf("info handler received debug output: %s", infoBuf.String())
	}
	if debugBuf.Len() == 0 {
		t.Fatal("debug handler missed debug output")
	}

	logger.Info("everyone", slog.String("attr", "value"))
	for name, buf := range map[string]*bytes.Buffer{"info": &infoBuf, "debug": &debugBuf} {
		if !bytes.Contains(buf.Bytes(), []byte(`"attr"`)) {
			t.Fatalf("%s handler missing attr: %s", name, buf.String())
		}
	}
}

func TestFanoutHandlerDerivedHandlersKeepAttrsAndGroups(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	h := newFanoutHandler(slog.NewJSONHandler(&buf1, nil), slog.NewJSONHandler(&buf2, nil))

	logger := slog.New(h.WithAttrs([]slog.Attr{slog.String("source", "cam-1")}).WithGroup("frame"))
	logger.Info("admitted", slog.Int("seq", 7))

	for _, buf := range []*bytes.Buffer{&buf1, &buf2} {
		if !bytes.Contains(buf.Bytes(), []byte(`"source":"cam-1"`)) {
			t.Fatalf("missing source attr: %s", buf.String())
		}
		if !bytes.Contains(buf.Bytes(), []byte(`"frame":{"seq":7}`)) {
			t.Fatalf("missing grouped attr: %s", buf.String())
		}
	}
}

type failingHandler struct{ NoopHandler }

func (failingHandler) Enabled(context.Context, slog.Level) bool  { return true }
func (failingHandler) Handle(context.Context, slog.Record) error { return errors.New("disk full") }

func TestFanoutHandlerContinuesPastFailingOutput(t *testing.T) {
	var buf bytes.Buffer
	h := newFanoutHandler(failingHandler{}, slog.NewJSONHandler(&buf, nil))

	var rec slog.Record
	rec.Level = slog.LevelInfo
	rec.Message = "still written"
	err := h.Handle(context.Background(), rec)
	if err == nil {
		t.Fatal("expected joined error from failing output")
	}
	if !bytes.Contains(buf.Bytes(), []byte("still written")) {
		t.Fatal("healthy output should still receive the record")
	}
}
