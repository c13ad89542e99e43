package server

import (
	"github.com/raysh454/zapdash/internal/model"
	"github.com/raysh454/zapdash/internal/reconciler"
)

// SubmitTestRequest is the payload of POST /tests.
type SubmitTestRequest struct {
	TestName  string `json:"testName"`
	TargetURL string `json:"targetURL"`
	Tool      string `json:"tool,omitempty"`
	Type      string `json:"type,omitempty"`
}

// ChatRequest asks a question about a completed report.
type ChatRequest struct {
	Question string `json:"question"`
}

type ChatResponse struct {
	RecordID string `json:"recordId"`
	Answer   string `json:"answer"`
}

// ErrorResponse is a uniform error payload returned by the API.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Dashboard websocket message types.
const (
	MessageRecords    = "records"
	MessageTransition = "transition"
	MessageError      = "error"
)

// DashboardMessage is one frame on /ws/dashboard.
type DashboardMessage struct {
	Type       string                 `json:"type"`
	Records    []model.ScanRecord     `json:"records,omitzero"`
	Transition *reconciler.Transition `json:"transition,omitzero"`
	Error      string                 `json:"error,omitempty"`
}
