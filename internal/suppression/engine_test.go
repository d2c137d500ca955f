package suppression

import (
	"fmt"
	"testing"

	"vigil/internal/event"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := New(DefaultWindow, DefaultThreshold)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return engine
}

func TestNewRejectsInvalidParameters(t *testing.T) {
	if _, err := New(0, 0.8); err == nil {
		t.Fatal("expected error for zero window")
	}
	if _, err := New(5, 0); err == nil {
		t.Fatal("expected error for zero threshold")
	}
	if _, err := New(5, 1.01); err == nil {
		t.Fatal("expected error for threshold above one")
	}
}

func TestOverlap(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want float64
	}{
		{"both empty", nil, nil, 1},
		{"one empty", []string{"person"}, nil, 0},
		{"disjoint", []string{"cat"}, []string{"dog"}, 0},
		{"one third", []string{"person", "package"}, []string{"person", "dog"}, 1.0 / 3.0},
		{"identical", []string{"person", "package"}, []string{"package", "person"}, 1},
		{"four fifths", []string{"a", "b", "c", "d"}, []string{"a", "b", "c", "d", "e"}, 0.8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := event.NewLabelSet(tt.a...), event.NewLabelSet(tt.b...)
			if got := Overlap(a, b); got != tt.want {
				t.Fatalf("Overlap(a,b) = %v, want %v", got, tt.want)
			}
			if got := Overlap(b, a); got != tt.want {
				t.Fatalf("Overlap(b,a) = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluateThresholdBoundary(t *testing.T) {
	tests := []struct {
		name      string
		history   []string
		candidate []string
		accepted  bool
	}{
		{"one third accepted", []string{"person", "dog"}, []string{"person", "package"}, true},
		{"identical suppressed", []string{"person", "package"}, []string{"person", "package"}, false},
		{"exactly threshold suppressed", []string{"a", "b", "c", "d", "e"}, []string{"a", "b", "c", "d"}, false},
		{"just below threshold accepted", []string{"a", "b", "c", "d", "e", "f"}, []string{"a", "b", "c", "d"}, true},
		{"empty against empty suppressed", []string{}, []string{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newEngine(t)
			if !engine.Evaluate(event.NewLabelSet(tt.history...)) {
				t.Fatal("history seed must be accepted into an empty window")
			}
			if got := engine.Evaluate(event.NewLabelSet(tt.candidate...)); got != tt.accepted {
				t.Fatalf("Evaluate = %v, want %v", got, tt.accepted)
			}
		})
	}
}

func TestEvaluateIsSymmetricAndOrderIndependent(t *testing.T) {
	pairs := [][2][]string{
		{{"person", "package"}, {"dog", "person"}},
		{{"car", "truck", "person"}, {"person", "truck", "car"}},
		{{"a", "b", "c", "d"}, {"e", "d", "c", "b", "a"}},
		{{}, {"cat"}},
	}
	for i, pair := range pairs {
		t.Run(fmt.Sprintf("pair-%d", i), func(t *testing.T) {
			forward := newEngine(t)
			forward.Evaluate(event.NewLabelSet(pair[1]...))
			a := forward.Evaluate(event.NewLabelSet(pair[0]...))

			reverse := newEngine(t)
			reverse.Evaluate(event.NewLabelSet(pair[0]...))
			b := reverse.Evaluate(event.NewLabelSet(pair[1]...))
			if a != b {
				t.Fatalf("decision depends on direction: %v vs %v", a, b)
			}

			shuffled := newEngine(t)
			shuffled.Evaluate(event.NewLabelSet(reversed(pair[1])...))
			if got := shuffled.Evaluate(event.NewLabelSet(reversed(pair[0])...)); got != a {
				t.Fatalf("decision depends on element order: %v vs %v", got, a)
			}
		})
	}
}

func TestWindowEvictsOldestAfterNPlusOneAccepts(t *testing.T) {
	engine := newEngine(t)
	for i := 0; i <= DefaultWindow; i++ {
		if !engine.Evaluate(event.NewLabelSet(fmt.Sprintf("label-%d", i))) {
			t.Fatalf("distinct label %d should be accepted", i)
		}
	}
	if engine.Len() != DefaultWindow {
		t.Fatalf("window length = %d, want %d", engine.Len(), DefaultWindow)
	}
	window := engine.Window()
	if window[0].Key() != "label-1" || window[len(window)-1].Key() != fmt.Sprintf("label-%d", DefaultWindow) {
		t.Fatalf("unexpected window order: %v", window)
	}
	if engine.Evaluate(event.NewLabelSet("label-1")) {
		t.Fatal("label-1 is still in the window and must be suppressed")
	}
	if !engine.Evaluate(event.NewLabelSet("label-0")) {
		t.Fatal("label-0 was evicted and must be accepted again")
	}
}

func TestSuppressedCandidateDoesNotEnterWindow(t *testing.T) {
	engine := newEngine(t)
	engine.Evaluate(event.NewLabelSet("person"))
	engine.Evaluate(event.NewLabelSet("person"))
	if engine.Len() != 1 {
		t.Fatalf("suppressed candidate was recorded; len=%d", engine.Len())
	}
}

func TestWindowReturnsCopies(t *testing.T) {
	engine := newEngine(t)
	candidate := event.NewLabelSet("person", "package")
	engine.Evaluate(candidate)
	delete(candidate, "person")
	window := engine.Window()
	delete(window[0], "package")
	if got := engine.Window()[0].Key(); got != "package,person" {
		t.Fatalf("window was mutated from outside: %q", got)
	}
}

func reversed(in []string) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}
