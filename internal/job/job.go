// Copyright 2026 The Harvestd Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package job

import (
	"time"
)

// Status is a job's position in its forward-only state machine:
//
//	QUEUED --(claim)--> RUNNING --(succeed)--> SUCCEEDED
//	QUEUED --(claim)--> RUNNING --(fail)-----> FAILED
//	QUEUED --(cancel)------------------------> CANCELED
//	RUNNING --(cancel, cooperative)----------> CANCELED
//
// A job never returns to an earlier state.
type Status string

const (
	StatusQueued    Status = "QUEUED"
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
	StatusCanceled  Status = "CANCELED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// Terminal reports whether a job in this status can never transition again.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// CanTransitionTo reports whether the state machine permits moving from s
// to next.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusQueued:
		return next == StatusRunning || next == StatusCanceled
	case StatusRunning:
		return next == StatusSucceeded || next == StatusFailed || next == StatusCanceled
	}
	return false
}

// Job modes ride in stats["mode"]: a quick check visits only the first page
// of a dataset's source to detect new items cheaply; a full run walks
// everything.
const (
	ModeFull       = "full"
	ModeQuickCheck = "quick_check"

	// StatsModeKey is where the mode rides inside Stats.
	StatsModeKey = "mode"
	// StatsNewItemsKey is set by quick-check runs that discovered new items.
	StatsNewItemsKey = "new_items_found"
)

// Job is one execution attempt of a dataset's extraction.
//
// Invariants: StartedAt is set iff the status has left QUEUED; FinishedAt is
// set iff the status is terminal; Progress is monotonically non-decreasing;
// CreatedAt is immutable and part of the list ordering key.
type Job struct {
	ID           string         `json:"id"`
	DatasetID    string         `json:"dataset_id"`
	TenantID     string         `json:"tenant_id"`
	Status       Status         `json:"status"`
	Progress     int            `json:"progress"`
	Stats        map[string]any `json:"stats"`
	ErrorMessage *string        `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	FinishedAt   *time.Time     `json:"finished_at,omitempty"`
}

// Mode returns the job's run mode, defaulting to a full run.
func (j *Job) Mode() string {
	if m, ok := j.Stats[StatsModeKey].(string); ok && m != "" {
		return m
	}
	return ModeFull
}
