// Package metrics owns the Prometheus collectors of a vigil process and the
// operational HTTP server exposing them.
//
// Collectors are registered on a private registry so tests and multiple
// daemons in one process never collide. Server serves /metrics, /healthz,
// /status and the pause/resume controls with a chi router.
package metrics
