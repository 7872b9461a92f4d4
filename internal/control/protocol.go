// Package control implements the daemon's external command surface: a
// tagged-type, line-delimited JSON request/response protocol over a unix
// domain socket, serving exactly the command table from the core
// specification's external interfaces. It is a thin adapter over
// session.Manager and ptypool.Pool — it holds no pool or session logic of
// its own, matching the field envelope already established by the
// teacher's relay.TerminalMessage/BrowserCommand pattern for tagged JSON
// messages.
package control

import "encoding/json"

// Request is one client→daemon command. Type selects which fields apply;
// unused fields are omitted from the wire encoding.
type Request struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`

	SessionID     int               `json:"session_id,omitempty"`
	AgentType     string            `json:"agent_type,omitempty"`
	ProjectPath   string            `json:"project_path,omitempty"`
	WorkingDir    string            `json:"working_dir,omitempty"`
	Branch        string            `json:"branch,omitempty"`
	Model         string            `json:"model,omitempty"`
	CodexProvider string            `json:"codex_provider,omitempty"`
	Env           map[string]string `json:"env,omitempty"`
	Data          string            `json:"data,omitempty"`
	Cols          int               `json:"cols,omitempty"`
	Rows          int               `json:"rows,omitempty"`
}

// Response is one daemon→client reply. Error is non-empty on failure, in
// which case the other fields should be ignored.
type Response struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Error     string `json:"error,omitempty"`

	SessionID   int              `json:"session_id,omitempty"`
	PaneIndex   int              `json:"pane_index,omitempty"`
	AgentType   string           `json:"agent_type,omitempty"`
	Warning     string           `json:"warning,omitempty"`
	Success     bool             `json:"success,omitempty"`
	Sessions    []SessionSummary `json:"sessions,omitempty"`
	Scrollback  string           `json:"scrollback,omitempty"` // base64
	Stats       *PoolStats       `json:"stats,omitempty"`
	Roundtrip   string           `json:"roundtrip,omitempty"`
}

// SessionSummary is one entry of a session_list response.
type SessionSummary struct {
	SessionID   int    `json:"session_id"`
	PaneIndex   int    `json:"pane_index"`
	AgentType   string `json:"agent_type"`
	Warning     string `json:"warning,omitempty"`
	WorkingDir  string `json:"working_dir,omitempty"`
	ProjectPath string `json:"project_path,omitempty"`
	Branch      string `json:"branch,omitempty"`
}

// PoolStats mirrors ptypool.Stats for the debug_pool_stats response.
type PoolStats struct {
	Idle         int `json:"idle"`
	Active       int `json:"active"`
	SpawningIdle int `json:"spawning_idle"`
}

// ErrorResponse builds a Response carrying err's message, tagged to match
// the request type it answers.
func ErrorResponse(reqType string, err error) Response {
	return Response{Type: reqType, Error: err.Error()}
}

func marshalLine(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}
