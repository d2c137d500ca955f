package inference

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"vigil/internal/config"
	"vigil/internal/event"
)

// Filter selects which detections survive post-processing.
type Filter struct {
	MinConfidence float64
	Allow         []string
	Deny          []string
}

// FilterFromConfig builds a Filter from the detector section.
func FilterFromConfig(cfg config.Detector) Filter {
	return Filter{
		MinConfidence: cfg.MinConfidence,
		Allow:         cfg.AllowLabels,
		Deny:          cfg.DenyLabels,
	}
}

// NormalizeLabel case-folds and trims a detector label.
func NormalizeLabel(label string) string {
	return cases.Lower(language.Und).String(strings.TrimSpace(label))
}

type compiledFilter struct {
	minConfidence float64
	allow         event.LabelSet
	deny          event.LabelSet
}

func (f Filter) compile() compiledFilter {
	normalize := func(in []string) event.LabelSet {
		out := make([]string, 0, len(in))
		for _, label := range in {
			out = append(out, NormalizeLabel(label))
		}
		return event.NewLabelSet(out...)
	}
	return compiledFilter{
		minConfidence: f.MinConfidence,
		allow:         normalize(f.Allow),
		deny:          normalize(f.Deny),
	}
}

// keep reports whether a detection with an already normalized label passes.
func (c compiledFilter) keep(d event.Detection) bool {
	if d.Confidence < c.minConfidence {
		return false
	}
	if c.deny.Has(d.Label) {
		return false
	}
	if len(c.allow) > 0 && !c.allow.Has(d.Label) {
		return false
	}
	return true
}
