package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ShardLayout is the date format used for shard directory names.
const ShardLayout = "2006-01-02"

// Box is a detection bounding box in source pixel coordinates.
type Box struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Detection is one object found in a frame.
type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"bbox"`
}

// Validate reports whether the detection satisfies the value ranges.
func (d Detection) Validate() error {
	if strings.TrimSpace(d.Label) == "" {
		return errors.New("detection label is empty")
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("detection %q confidence %.3f outside [0,1]", d.Label, d.Confidence)
	}
	if d.Box.X < 0 || d.Box.Y < 0 {
		return fmt.Errorf("detection %q box origin (%d,%d) is negative", d.Label, d.Box.X, d.Box.Y)
	}
	if d.Box.W <= 0 || d.Box.H <= 0 {
		return fmt.Errorf("detection %q box size %dx%d is not positive", d.Label, d.Box.W, d.Box.H)
	}
	return nil
}

// Params carries the inputs for New. ID and CreatedAt are generated when
// empty; callers that need the id before the event exists (image artifacts)
// obtain one from NewID and pass it back here.
type Params struct {
	ID          string
	CreatedAt   time.Time
	SourceID    string
	Score       float64
	Detections  []Detection
	Description string
	ImagePath   string
}

// Event is an immutable record of one accepted occurrence.
type Event struct {
	id          string
	createdAt   time.Time
	sourceID    string
	score       float64
	detections  []Detection
	description string
	imagePath   string
}

// NewID returns a fresh time-ordered identifier (UUIDv7).
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// New validates p and returns the event it describes.
func New(p Params) (*Event, error) {
	if strings.TrimSpace(p.SourceID) == "" {
		return nil, errors.New("event source id is required")
	}
	if p.Score < 0 || p.Score > 1 {
		return nil, fmt.Errorf("event score %.3f outside [0,1]", p.Score)
	}
	for _, det := range p.Detections {
		if err := det.Validate(); err != nil {
			return nil, err
		}
	}
	id := strings.TrimSpace(p.ID)
	if id == "" {
		id = NewID()
	} else if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("event id %q: %w", id, err)
	}
	created := p.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return &Event{
		id:          id,
		createdAt:   created.UTC(),
		sourceID:    strings.TrimSpace(p.SourceID),
		score:       p.Score,
		detections:  slices.Clone(p.Detections),
		description: p.Description,
		imagePath:   p.ImagePath,
	}, nil
}

func (e *Event) ID() string           { return e.id }
func (e *Event) CreatedAt() time.Time { return e.createdAt }
func (e *Event) SourceID() string     { return e.sourceID }
func (e *Event) Score() float64       { return e.score }
func (e *Event) Description() string  { return e.description }
func (e *Event) ImagePath() string    { return e.imagePath }

// Detections returns a copy of the detections in detector order.
func (e *Event) Detections() []Detection {
	return slices.Clone(e.detections)
}

// Shard returns the UTC date of the event, which names the shard directory it
// is appended to.
func (e *Event) Shard() string {
	return e.createdAt.Format(ShardLayout)
}

// Labels returns the distinct labels carried by the event.
func (e *Event) Labels() LabelSet {
	return NewLabelSet(UniqueLabels(e.detections)...)
}

// UniqueLabels returns the distinct labels of dets in first-seen order.
func UniqueLabels(dets []Detection) []string {
	out := make([]string, 0, len(dets))
	for _, det := range dets {
		if det.Label == "" || slices.Contains(out, det.Label) {
			continue
		}
		out = append(out, det.Label)
	}
	return out
}

// Record is the serialized form of an event.
type Record struct {
	ID          string      `json:"id"`
	CreatedAt   time.Time   `json:"created_at"`
	SourceID    string      `json:"source_id"`
	Score       float64     `json:"score"`
	Labels      []string    `json:"labels"`
	Detections  []Detection `json:"detections"`
	Description string      `json:"description"`
	ImagePath   string      `json:"image_path,omitempty"`
	Shard       string      `json:"shard"`
}

// Record returns the serialized snapshot of e.
func (e *Event) Record() Record {
	dets := e.Detections()
	if dets == nil {
		dets = []Detection{}
	}
	return Record{
		ID:          e.id,
		CreatedAt:   e.createdAt,
		SourceID:    e.sourceID,
		Score:       e.score,
		Labels:      e.Labels().Sorted(),
		Detections:  dets,
		Description: e.description,
		ImagePath:   e.imagePath,
		Shard:       e.Shard(),
	}
}

// MarshalJSON encodes the event as its Record.
func (e *Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Record())
}

// FromRecord rebuilds an event read back from storage.
func FromRecord(r Record) (*Event, error) {
	if strings.TrimSpace(r.ID) == "" {
		return nil, errors.New("event record has no id")
	}
	if r.CreatedAt.IsZero() {
		return nil, fmt.Errorf("event record %s has no timestamp", r.ID)
	}
	return New(Params{
		ID:          r.ID,
		CreatedAt:   r.CreatedAt,
		SourceID:    r.SourceID,
		Score:       r.Score,
		Detections:  r.Detections,
		Description: r.Description,
		ImagePath:   r.ImagePath,
	})
}
