package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

// Requirement names an external binary a vigil component shells out to.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status is a Requirement after resolution. Command holds the resolved path
// when Available, otherwise Detail says what went wrong.
type Status struct {
	Requirement
	Available bool
	Detail    string
}

var ffmpegRequirement = Requirement{
	Name:        "FFmpeg",
	Command:     "ffmpeg",
	Description: "Decodes the RTSP stream into JPEG frames",
}

// Check resolves a single requirement against PATH.
func (r Requirement) Check() Status {
	r.Command = strings.TrimSpace(r.Command)
	r.Description = strings.TrimSpace(r.Description)
	st := Status{Requirement: r}
	if r.Command == "" {
		st.Detail = "command not configured"
		return st
	}
	resolved, err := exec.LookPath(r.Command)
	if err != nil {
		st.Detail = fmt.Sprintf("binary %q not found", r.Command)
		return st
	}
	st.Command = resolved
	st.Available = true
	return st
}

// CheckBinaries resolves every requirement, in order.
func CheckBinaries(requirements []Requirement) []Status {
	out := make([]Status, len(requirements))
	for i, req := range requirements {
		out[i] = req.Check()
	}
	return out
}

// SourceRequirements lists the binaries needed to read from sourceURL. Only
// rtsp(s) sources shell out; snapshot and replay sources need nothing.
func SourceRequirements(sourceURL, ffmpegPath string) []Requirement {
	scheme, _, ok := strings.Cut(strings.TrimSpace(sourceURL), "://")
	if !ok {
		return nil
	}
	switch strings.ToLower(scheme) {
	case "rtsp", "rtsps":
		req := ffmpegRequirement
		req.Command = ffmpegPath
		return []Requirement{req}
	}
	return nil
}
