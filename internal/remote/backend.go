// Package remote is the contract with the hosted relational backend and its
// blob storage, plus the HTTP and S3 implementations the daemon uses.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Resource names on the backend.
const (
	ResourceJobs               = "jobs"
	ResourceCustomers          = "customers"
	ResourceJobNotes           = "job_notes"
	ResourceJobPhotos          = "job_photos"
	ResourceJobVisits          = "job_visits"
	ResourceTimesheets         = "timesheets"
	ResourceQuotes             = "quotes"
	ResourceQuoteItems         = "quote_items"
	ResourceQuoteTemplates     = "quote_templates"
	ResourceChecklistTemplates = "checklist_templates"
	ResourceJobChecklists      = "job_checklists"
)

// Backend is the authenticated query/insert/update surface of the remote
// system. Implementations return *NetworkError when the backend could not be
// reached and *StatusError when it answered with a rejection.
type Backend interface {
	Ping(ctx context.Context) error
	// Select returns the rows matching q and the total match count before
	// pagination.
	Select(ctx context.Context, resource string, q Query) ([]json.RawMessage, int, error)
	// Get returns the row with the given id, or nil when it does not exist.
	Get(ctx context.Context, resource, id string) (json.RawMessage, error)
	Insert(ctx context.Context, resource string, row any) (json.RawMessage, error)
	Update(ctx context.Context, resource, id string, patch any) (json.RawMessage, error)
	// Delete removes the rows matching q. q must carry at least one filter.
	Delete(ctx context.Context, resource string, q Query) error
}

// ErrUnfilteredDelete guards against wiping a whole resource.
var ErrUnfilteredDelete = errors.New("delete requires at least one filter")

// NetworkError reports that the backend was unreachable, timed out or failed
// with a server-side error. Reads fall back to the cache on it.
type NetworkError struct {
	Op     string
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: backend status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// StatusError is a non-transient rejection from the backend (4xx).
type StatusError struct {
	Op      string
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: backend status %d: %s", e.Op, e.Status, e.Message)
}

// IsNetwork reports whether err is a *NetworkError.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// Decode unmarshals a row into v.
func Decode[T any](row json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(row, &v); err != nil {
		return v, fmt.Errorf("decode row: %w", err)
	}
	return v, nil
}
