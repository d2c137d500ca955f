// Package sink writes accepted events to their durable destinations.
//
// Every Sink receives every event; FanOut runs them concurrently, waits for
// all of them and reports failures per sink without rolling back the sinks
// that succeeded. File sinks shard by the event's own UTC date under the data
// root:
//
//	<data>/<YYYY-MM-DD>/events.jsonl
//	<data>/<YYYY-MM-DD>/events.log
//	<data>/<YYYY-MM-DD>/images/<event-id>.jpg
package sink
