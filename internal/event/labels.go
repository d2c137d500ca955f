package event

import (
	"sort"
	"strings"
)

// LabelSet is an unordered set of detection labels.
type LabelSet map[string]struct{}

// NewLabelSet builds a set from labels, ignoring empty strings.
func NewLabelSet(labels ...string) LabelSet {
	set := make(LabelSet, len(labels))
	for _, label := range labels {
		if label == "" {
			continue
		}
		set[label] = struct{}{}
	}
	return set
}

// Has reports whether label is in the set.
func (s LabelSet) Has(label string) bool {
	_, ok := s[label]
	return ok
}

// Clone returns an independent copy.
func (s LabelSet) Clone() LabelSet {
	out := make(LabelSet, len(s))
	for label := range s {
		out[label] = struct{}{}
	}
	return out
}

// Sorted returns the labels in lexical order.
func (s LabelSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for label := range s {
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}

// Key returns a canonical comma-joined form, equal for equal sets.
func (s LabelSet) Key() string {
	return strings.Join(s.Sorted(), ",")
}

func (s LabelSet) String() string {
	return "{" + strings.Join(s.Sorted(), ", ") + "}"
}
