// Package event defines the immutable event record produced for every accepted
// frame, together with the detections it carries and the label-set helpers the
// suppression engine and notification layer compare on.
//
// Events are built only through New (or rebuilt from storage through
// FromRecord) and expose read-only accessors; the Record type is the stable
// serialized form shared by the store, the JSONL sink and event hooks.
package event
