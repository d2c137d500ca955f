// Package admission decides which frames are worth sending to inference.
//
// A Filter wraps a MotionDetector and applies, in order: the warm-up period,
// the change test, the minimum score and the minimum interval between
// admissions. DiffDetector is the built-in detector; any implementation of
// MotionDetector can replace it.
package admission
