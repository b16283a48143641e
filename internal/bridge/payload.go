package bridge

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kingrea/relay/internal/store"
)

// ProtocolVersion identifies the bridge contract version exposed via /health.
const ProtocolVersion = "1.0.0"

// SignalPosting is the inbound body for POST /signals. Field names follow the
// store wire contract so workers can reuse the same payload they would write
// to disk.
type SignalPosting struct {
	TaskID     string `json:"taskId"`
	SignalType string `json:"signalType"`
	Status     string `json:"status"`
	Summary    string `json:"summary,omitempty"`
	SavedBy    string `json:"savedBy,omitempty"`
}

// Normalize applies canonical formatting before validation.
func (p *SignalPosting) Normalize() {
	if p == nil {
		return
	}
	p.TaskID = strings.TrimSpace(p.TaskID)
	p.SignalType = strings.TrimSpace(p.SignalType)
	p.Status = strings.ToLower(strings.TrimSpace(p.Status))
	p.Summary = strings.TrimSpace(p.Summary)
	p.SavedBy = strings.TrimSpace(p.SavedBy)
}

// Validate enforces the wire contract, including the closed status enum.
func (p SignalPosting) Validate() error {
	if p.TaskID == "" {
		return errors.New("taskId is required")
	}
	if p.SignalType == "" {
		return errors.New("signalType is required")
	}
	if !store.ValidStatus(p.Status) {
		return fmt.Errorf("status must be %q or %q", store.StatusPassed, store.StatusFailed)
	}
	return nil
}

// Signal converts the posting to its store representation.
func (p SignalPosting) Signal() store.Signal {
	return store.Signal{
		Status:  p.Status,
		Summary: p.Summary,
		SavedBy: p.SavedBy,
	}
}

// ReportPosting is the inbound body for POST /reports.
type ReportPosting struct {
	TaskID     string `json:"taskId"`
	ReportType string `json:"reportType"`
	Content    string `json:"content"`
}

// Normalize applies canonical formatting before validation.
func (p *ReportPosting) Normalize() {
	if p == nil {
		return
	}
	p.TaskID = strings.TrimSpace(p.TaskID)
	p.ReportType = strings.TrimSpace(p.ReportType)
}

// Validate enforces the wire contract.
func (p ReportPosting) Validate() error {
	if p.TaskID == "" {
		return errors.New("taskId is required")
	}
	if p.ReportType == "" {
		return errors.New("reportType is required")
	}
	if strings.TrimSpace(p.Content) == "" {
		return errors.New("content is required")
	}
	return nil
}

type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

type acceptedResponse struct {
	Status     string    `json:"status"`
	ServerTime time.Time `json:"server_time"`
}

type taskResponse struct {
	TaskID        string      `json:"taskId"`
	PlanID        string      `json:"planId"`
	Status        string      `json:"status"`
	StatusReason  string      `json:"statusReason,omitempty"`
	Cursor        int         `json:"cursor"`
	LastStep      string      `json:"lastStep,omitempty"`
	RetryCounts   map[int]int `json:"retryCounts,omitempty"`
	TimeoutCounts map[int]int `json:"timeoutCounts,omitempty"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}
