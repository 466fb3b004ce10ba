package qbsync

import (
	"errors"
	"fmt"
)

// ActionSkipped marks policy skips (locked record, zero-total invoice,
// refund-classified transaction). The create/update/link actions come from
// the models package since they are also persisted in the operation log.
const ActionSkipped = "skipped"

var (
	// ErrDependencyCycle is returned when dependency resolution recurses past
	// its depth cap, which only happens on cyclic or corrupt billing data.
	ErrDependencyCycle = errors.New("dependency resolution exceeded depth limit")

	// ErrNotFound is returned when the billing record to sync does not exist.
	ErrNotFound = errors.New("billing record not found")
)

// Result is the terminal outcome of one SyncOne call. Errors never escape
// SyncOne; they land here as Success=false with the message preserved.
type Result struct {
	EntityType string `json:"entity_type"`
	LocalId    int    `json:"local_id"`
	Success    bool   `json:"success"`
	Action     string `json:"action"`
	RemoteId   string `json:"remote_id,omitempty"`
	Message    string `json:"message,omitempty"`
}

func (r Result) Skipped() bool {
	return r.Action == ActionSkipped
}

func skipResult(entityType string, localId int, message string) Result {
	return Result{
		EntityType: entityType,
		LocalId:    localId,
		Success:    true,
		Action:     ActionSkipped,
		Message:    message,
	}
}

func errorResult(entityType string, localId int, err error) Result {
	return Result{
		EntityType: entityType,
		LocalId:    localId,
		Success:    false,
		Message:    err.Error(),
	}
}

// BatchResult summarizes one batch. Skipped records count toward Total but
// neither Success nor Failed.
type BatchResult struct {
	EntityType string         `json:"entity_type"`
	Total      int            `json:"total"`
	Success    int            `json:"success"`
	Failed     int            `json:"failed"`
	Skipped    int            `json:"skipped"`
	Details    map[int]Result `json:"details"`
}

func newBatchResult(entityType string) *BatchResult {
	return &BatchResult{EntityType: entityType, Details: map[int]Result{}}
}

func (b *BatchResult) add(r Result) {
	b.Total++
	b.Details[r.LocalId] = r
	switch {
	case r.Skipped():
		b.Skipped++
	case r.Success:
		b.Success++
	default:
		b.Failed++
	}
}

func (b *BatchResult) String() string {
	return fmt.Sprintf("%s: total=%d success=%d failed=%d skipped=%d",
		b.EntityType, b.Total, b.Success, b.Failed, b.Skipped)
}
