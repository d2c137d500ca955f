package pipeline

import (
	"context"
	"fmt"
	"image"
	"time"

	"vigil/internal/admission"
	"vigil/internal/event"
	"vigil/internal/source"
	"vigil/internal/storage"
)

// StageResult tells the loop how to continue after a stage.
type StageResult int

const (
	// Continue hands the frame to the next stage.
	Continue StageResult = iota
	// Skip abandons the frame.
	Skip
	// Fatal abandons the frame and requests shutdown.
	Fatal
)

func (r StageResult) String() string {
	switch r {
	case Continue:
		return "continue"
	case Skip:
		return "skip"
	case Fatal:
		return "fatal"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// State is the orchestrator lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// FrameSource is the connection manager contract.
type FrameSource interface {
	GetFrame(ctx context.Context) (*source.Frame, error)
	Disconnect()
	Fatal() <-chan error
	Status() source.Status
}

// Admitter decides which frames reach inference.
type Admitter interface {
	Admit(frame *source.Frame) (admission.Decision, error)
}

// Inference runs detection and description.
type Inference interface {
	Detect(ctx context.Context, jpeg []byte) ([]event.Detection, time.Duration, error)
	Describe(ctx context.Context, jpeg []byte, labels []string) (string, bool)
}

// Suppressor reports whether a label set is new enough to record.
type Suppressor interface {
	Evaluate(labels event.LabelSet) bool
	Window() []event.LabelSet
}

// Guardian enforces the storage ceiling.
type Guardian interface {
	Check(ctx context.Context) (storage.Stats, error)
}

// Persister fans events out to the persistence sinks.
type Persister interface {
	Write(ctx context.Context, ev *event.Event) map[string]error
	ReportFailure(sink, eventID string, err error)
	Flush() error
	Close() error
}

// ImageSaver writes the frame artifact of an event.
type ImageSaver interface {
	Name() string
	Write(shard, id string, frame []byte, img image.Image, dets []event.Detection) (string, error)
}

// Publisher receives accepted events after persistence.
type Publisher interface {
	Publish(ev *event.Event)
	Close(ctx context.Context) error
}

// Observer receives counter updates, typically backed by Prometheus.
type Observer interface {
	FrameProcessed()
	FrameAdmitted()
	EventAccepted()
	EventSuppressed()
	InferenceSkipped(reason string)
	StageError(stage string)
}

type nopObserver struct{}

func (nopObserver) FrameProcessed()         {}
func (nopObserver) FrameAdmitted()          {}
func (nopObserver) EventAccepted()          {}
func (nopObserver) EventSuppressed()        {}
func (nopObserver) InferenceSkipped(string) {}
func (nopObserver) StageError(string)       {}

// Stats is a snapshot of the orchestrator counters.
type Stats struct {
	FramesProcessed     uint64        `json:"frames_processed"`
	FramesAdmitted      uint64        `json:"frames_admitted"`
	EventsCreated       uint64        `json:"events_created"`
	EventsSuppressed    uint64        `json:"events_suppressed"`
	InferenceSkips      uint64        `json:"inference_skips"`
	PersistenceFailures uint64        `json:"persistence_failures"`
	StagePanics         uint64        `json:"stage_panics"`
	StorageChecks       uint64        `json:"storage_checks"`
	StartedAt           time.Time     `json:"started_at,omitzero"`
	Uptime              time.Duration `json:"uptime"`
}

// Snapshot is the JSON body served on /status.
type Snapshot struct {
	State          string        `json:"state"`
	Source         source.Status `json:"source"`
	Stats          Stats         `json:"stats"`
	Window         [][]string    `json:"suppression_window"`
	ShutdownReason string        `json:"shutdown_reason,omitempty"`
}

// skip reasons reported to the observer
const (
	skipDetectorError = "detector_error"
	skipNoDetections  = "no_detections"
)
