// Package storage keeps the event data directory under its configured
// ceiling.
//
// The data root holds one directory per UTC day (YYYY-MM-DD). The Guardian
// sums usage on demand, and when usage reaches the rotation threshold it
// deletes whole day directories oldest first. It never deletes the current
// day and never leaves fewer than the retention floor. A directory is renamed
// to a .trash-* name before removal so a crash mid-delete never leaves a
// partial day visible; leftover trash is purged on the next check.
package storage
