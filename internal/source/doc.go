// Package source owns the connection to the upstream camera.
//
// A Source delivers raw JPEG frames (HTTP snapshot polling, RTSP decoded
// through ffmpeg, or a directory replay). Manager wraps a Source with the
// reconnect policy: exponential backoff between attempts, a fatal signal after
// the configured number of consecutive failures, and non-blocking GetFrame
// calls that report ErrUnavailable while a reconnect is pending. Source
// addresses only ever reach logs through RedactURL.
//
// DeviceWatcher listens to udev netlink events for a local capture device and
// feeds add/remove notifications into the Manager.
package source
