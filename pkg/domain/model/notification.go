package model

import (
	"strings"
)

// NotificationRequest is an inbound "a commit happened" notification
type NotificationRequest struct {
	ID                   string
	RepositoryIdentifier string
	CommitID             string
	BranchesCSV          string
}

// Branches splits BranchesCSV into trimmed, non-empty branch tokens
func (r *NotificationRequest) Branches() []string {
	if strings.TrimSpace(r.BranchesCSV) == "" {
		return nil
	}

	var branches []string
	for _, b := range strings.Split(r.BranchesCSV, ",") {
		if b = strings.TrimSpace(b); b != "" {
			branches = append(branches, b)
		}
	}
	return branches
}

// TriggerRequest is passed to a job's polling trigger
type TriggerRequest struct {
	RequestID string   `json:"request_id"`
	Job       string   `json:"job"`
	CommitID  string   `json:"commit,omitempty"`
	Branches  []string `json:"branches,omitempty"`
}

// DispatchOutcome records what a notification did, for observability only
type DispatchOutcome struct {
	RequestID  string   `json:"request_id"`
	Triggered  []string `json:"triggered"`
	OptedOut   []string `json:"opted_out,omitempty"`
	Unreadable []string `json:"unreadable,omitempty"`
	Failed     []string `json:"failed,omitempty"`
}
