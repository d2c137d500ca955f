// Package notify fans accepted events out to external subscribers without
// ever blocking the pipeline.
//
// Each subscriber registered with the Hub owns a bounded queue drained by its
// own goroutine. Publish enqueues without waiting; when a queue is full the
// event is dropped for that subscriber and counted. Shipped subscribers
// publish to NATS, to an MQTT broker and to an ntfy topic (with per-label-set
// deduplication). Each is enabled by setting its address in the [notify]
// configuration section.
package notify
