package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"vigil/internal/event"
)

// JSONLSink appends one JSON object per event to events.jsonl.
type JSONLSink struct {
	file shardFile
}

// NewJSONLSink writes under dataDir.
func NewJSONLSink(dataDir string) *JSONLSink {
	return &JSONLSink{file: shardFile{root: dataDir, name: "events.jsonl"}}
}

func (s *JSONLSink) Name() string { return "jsonl" }

func (s *JSONLSink) Write(_ context.Context, ev *event.Event) error {
	line, err := json.Marshal(ev.Record())
	if err != nil {
		return fmt.Errorf("encode event %s: %w", ev.ID(), err)
	}
	return s.file.append(ev.Shard(), append(line, '\n'))
}

func (s *JSONLSink) Flush() error { return s.file.sync() }

func (s *JSONLSink) Close() error { return s.file.close() }
