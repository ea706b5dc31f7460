package runnerv1

import "encoding/json"

// CallInfo names the intercepted function and its serialized arguments.
type CallInfo struct {
	Function string            `json:"function"`
	Args     []json.RawMessage `json:"args,omitempty"`
}

type ActivityRequest struct {
	RunnerId string    `json:"runner_id"`
	Data     []byte    `json:"data"`
	CallInfo *CallInfo `json:"call_info,omitempty"`
}

type ActivityResponse struct {
	Error string `json:"error,omitempty"`
}

type PrintRequest struct {
	RunnerId string `json:"runner_id"`
	Message  string `json:"message"`
}

type PrintResponse struct {
	Error string `json:"error,omitempty"`
}

type LogRequest struct {
	RunnerId string `json:"runner_id"`
	Level    string `json:"level"`
	Message  string `json:"message"`
}

type LogResponse struct {
	Error string `json:"error,omitempty"`
}

type SleepRequest struct {
	RunnerId   string `json:"runner_id"`
	DurationMs int64  `json:"duration_ms"`
}

type SleepResponse struct {
	Error string `json:"error,omitempty"`
}

type SubscribeRequest struct {
	RunnerId   string `json:"runner_id"`
	Connection string `json:"connection"`
	Filter     string `json:"filter"`
}

type SubscribeResponse struct {
	SignalId string `json:"signal_id"`
	Error    string `json:"error,omitempty"`
}

type NextEventRequest struct {
	RunnerId  string   `json:"runner_id"`
	SignalIds []string `json:"signal_ids"`
	TimeoutMs int64    `json:"timeout_ms,omitempty"`
}

// NextEventResponse has a nil Event when the wait timed out.
type NextEventResponse struct {
	Event json.RawMessage `json:"event,omitempty"`
	Error string          `json:"error,omitempty"`
}

type UnsubscribeRequest struct {
	RunnerId string `json:"runner_id"`
	SignalId string `json:"signal_id"`
}

type UnsubscribeResponse struct {
	Error string `json:"error,omitempty"`
}

type IsActiveRunnerRequest struct {
	RunnerId string `json:"runner_id"`
}

type IsActiveRunnerResponse struct {
	IsActive bool   `json:"is_active"`
	Error    string `json:"error,omitempty"`
}

type StartSessionRequest struct {
	RunnerId string            `json:"runner_id"`
	Loc      string            `json:"loc"`
	Data     json.RawMessage   `json:"data,omitempty"`
	Memo     map[string]string `json:"memo,omitempty"`
}

type StartSessionResponse struct {
	SessionId string `json:"session_id"`
	Error     string `json:"error,omitempty"`
}

type EncodeJWTRequest struct {
	RunnerId   string          `json:"runner_id"`
	Payload    json.RawMessage `json:"payload"`
	Connection string          `json:"connection"`
	Algorithm  string          `json:"algorithm,omitempty"`
}

type EncodeJWTResponse struct {
	Jwt   string `json:"jwt"`
	Error string `json:"error,omitempty"`
}

type RefreshOAuthTokenRequest struct {
	RunnerId    string `json:"runner_id"`
	Integration string `json:"integration"`
	Connection  string `json:"connection"`
}

type RefreshOAuthTokenResponse struct {
	Token   string `json:"token"`
	Expires int64  `json:"expires,omitempty"`
	Error   string `json:"error,omitempty"`
}

// DoneRequest reports the end of the entry point. Result is set on success,
// Error and Traceback otherwise.
type DoneRequest struct {
	RunnerId  string          `json:"runner_id"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	Traceback []*Frame        `json:"traceback,omitempty"`
}

type DoneResponse struct{}
