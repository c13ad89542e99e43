package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-json-experiment/json/jsontext"
)

// ScanStatus is the lifecycle state of a submitted scan.
type ScanStatus string

const (
	StatusInitiated  ScanStatus = "initiated"
	StatusRunning    ScanStatus = "running"
	StatusProcessing ScanStatus = "processing"
	StatusCompleted  ScanStatus = "completed"
	StatusFailed     ScanStatus = "failed"
)

// PendingStatuses lists every non-terminal status.
var PendingStatuses = []ScanStatus{StatusInitiated, StatusRunning, StatusProcessing}

// IsTerminal reports whether no further remote transition is expected.
func (s ScanStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsValid reports whether s is one of the known statuses.
func (s ScanStatus) IsValid() bool {
	switch s {
	case StatusInitiated, StatusRunning, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// ParseScanStatus normalizes a remote status string.
func ParseScanStatus(raw string) (ScanStatus, error) {
	s := ScanStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", fmt.Errorf("unknown scan status %q", raw)
	}
	return s, nil
}

// ScanRecord is the metadata row tracking one submitted test.
type ScanRecord struct {
	ID        string     `json:"id"`
	TestName  string     `json:"testName"`
	TargetURL string     `json:"targetURL"`
	TestDate  string     `json:"testDate"`
	Type      string     `json:"type"`
	ScanID    string     `json:"scanId"`
	Status    ScanStatus `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// LaunchResult is what the scan launcher returns for a new scan.
type LaunchResult struct {
	ScanID  string `json:"scan_id"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// StatusResult is one observation of a remote scan. Report is only present
// once the scan has completed.
type StatusResult struct {
	Status  string         `json:"status"`
	Report  jsontext.Value `json:"report,omitzero"`
	Message string         `json:"message,omitempty"`
}

// HasReport reports whether the observation carries a non-empty report body.
func (r *StatusResult) HasReport() bool {
	if r == nil {
		return false
	}
	trimmed := strings.TrimSpace(string(r.Report))
	return trimmed != "" && trimmed != "null" && trimmed != `""`
}
