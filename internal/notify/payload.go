package notify

import (
	"encoding/json"
	"fmt"

	"vigil/internal/event"
)

// payload is the JSON body sent to message brokers.
func payload(ev *event.Event) ([]byte, error) {
	data, err := json.Marshal(ev.Record())
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", ev.ID(), err)
	}
	return data, nil
}
