// Package runnerv1 holds the messages exchanged between a runner and its
// host. Messages are encoded as JSON on the wire.
package runnerv1

import "encoding/json"

// Frame is one line of a script traceback.
type Frame struct {
	Name       string `json:"name"`
	File       string `json:"file"`
	Line       int    `json:"line"`
	SourceText string `json:"source_text,omitempty"`
}

// Export describes a top-level function that can be used as an entry point.
type Export struct {
	File string   `json:"file"`
	Name string   `json:"name"`
	Args []string `json:"args"`
	Line int      `json:"line"`
}

// StartRequest asks the runner to run Entrypoint ("path/to/file.js:name")
// with the JSON encoded Event.
type StartRequest struct {
	Entrypoint string          `json:"entrypoint"`
	Event      json.RawMessage `json:"event,omitempty"`
}

type StartResponse struct {
	Error     string   `json:"error,omitempty"`
	Traceback []*Frame `json:"traceback,omitempty"`
}

// ExecuteRequest carries an envelope {"token": ...} naming the pending call
// to run.
type ExecuteRequest struct {
	Data []byte `json:"data"`
}

// ExecuteResponse carries the call outcome as an envelope with the same
// token.
type ExecuteResponse struct {
	Result    []byte   `json:"result,omitempty"`
	Error     string   `json:"error,omitempty"`
	Traceback []*Frame `json:"traceback,omitempty"`
}

// ActivityReplyRequest delivers the outcome of an activity as an envelope.
type ActivityReplyRequest struct {
	Data  []byte `json:"data"`
	Error string `json:"error,omitempty"`
}

type ActivityReplyResponse struct {
	Error string `json:"error,omitempty"`
}

type ExportsRequest struct {
	FileName string `json:"file_name"`
}

type ExportsResponse struct {
	Exports []*Export `json:"exports"`
	Error   string    `json:"error,omitempty"`
}
