package sink

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"vigil/internal/event"
)

// TextSink appends one human-readable line per event to events.log.
type TextSink struct {
	file shardFile
}

// NewTextSink writes under dataDir.
func NewTextSink(dataDir string) *TextSink {
	return &TextSink{file: shardFile{root: dataDir, name: "events.log"}}
}

func (s *TextSink) Name() string { return "text" }

func (s *TextSink) Write(_ context.Context, ev *event.Event) error {
	return s.file.append(ev.Shard(), []byte(FormatLine(ev)+"\n"))
}

func (s *TextSink) Flush() error { return s.file.sync() }

func (s *TextSink) Close() error { return s.file.close() }

// FormatLine renders an event as
//
//	2026-04-02T09:30:00.123Z porch [package, person] score=0.40 "description" id=...
func FormatLine(ev *event.Event) string {
	var b strings.Builder
	b.WriteString(ev.CreatedAt().Format("2006-01-02T15:04:05.000Z07:00"))
	b.WriteByte(' ')
	b.WriteString(ev.SourceID())
	b.WriteString(" [")
	b.WriteString(strings.Join(ev.Labels().Sorted(), ", "))
	b.WriteString("] score=")
	b.WriteString(strconv.FormatFloat(ev.Score(), 'f', 2, 64))
	b.WriteByte(' ')
	b.WriteString(strconv.Quote(ev.Description()))
	fmt.Fprintf(&b, " id=%s", ev.ID())
	if path := ev.ImagePath(); path != "" {
		b.WriteString(" image=")
		b.WriteString(path)
	}
	return b.String()
}
