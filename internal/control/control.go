// Package control defines the line-JSON protocol spoken over the unix
// control socket, plus the CLI commands that speak it.
package control

import "time"

// Request is one command line sent to the daemon. Text carries the
// input for test-text; Pattern and Replace carry an add-replacement rule.
type Request struct {
	Op      string `json:"op"`
	Text    string `json:"text,omitempty"`
	Pattern string `json:"pattern,omitempty"`
	Replace string `json:"replacement,omitempty"`
}

// Status is the daemon's answer to the status op.
type Status struct {
	Running       bool         `json:"running"`
	Recording     bool         `json:"recording"`
	UptimeSec     float64      `json:"uptime_sec"`
	SessionID     string       `json:"session_id,omitempty"`
	Mode          string       `json:"mode"`
	Backend       string       `json:"backend"`
	Segments      int64        `json:"segments"`
	Results       int64        `json:"results"`
	Errors        int64        `json:"errors"`
	DroppedFrames int64        `json:"dropped_frames"`
	Transcripts   []Transcript `json:"transcripts"`
}

// SimpleResponse answers ops that only succeed or fail.
type SimpleResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Transcript is one finished, cleaned transcription.
type Transcript struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}
