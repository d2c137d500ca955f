package pipeline

// Stats returns a copy of the counters.
func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := o.stats
	if !st.StartedAt.IsZero() {
		st.Uptime = o.now().Sub(st.StartedAt)
	}
	return st
}

func (o *Orchestrator) bump(fn func(*Stats)) {
	o.mu.Lock()
	fn(&o.stats)
	o.mu.Unlock()
}

// Snapshot reports state, counters, source status and the suppression
// window for the status endpoint.
func (o *Orchestrator) Snapshot() any {
	window := o.c.Suppressor.Window()
	labels := make([][]string, 0, len(window))
	for _, set := range window {
		labels = append(labels, set.Sorted())
	}
	o.mu.Lock()
	reason := o.reason
	o.mu.Unlock()
	return Snapshot{
		State:          o.State().String(),
		Source:         o.c.Source.Status(),
		Stats:          o.Stats(),
		Window:         labels,
		ShutdownReason: reason,
	}
}

// Healthy reports whether the loop is running or paused.
func (o *Orchestrator) Healthy() bool {
	switch o.State() {
	case StateRunning, StatePaused:
		return true
	default:
		return false
	}
}
