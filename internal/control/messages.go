package control

import (
	"encoding/json"
	"time"

	"github.com/deltadent/ServicePro-sub000/internal/action"
	"github.com/deltadent/ServicePro-sub000/internal/model"
	"github.com/deltadent/ServicePro-sub000/internal/queue"
	"github.com/deltadent/ServicePro-sub000/internal/repo"
	intsync "github.com/deltadent/ServicePro-sub000/internal/sync"
)

type StatusRequest struct{}

type StatusResponse struct {
	Profile      string          `json:"profile"`
	Connectivity string          `json:"connectivity"`
	Syncing      bool            `json:"syncing"`
	Pending      int             `json:"pending"`
	LastSyncAt   *time.Time      `json:"last_sync_at,omitempty"`
	LastResult   *intsync.Result `json:"last_result,omitempty"`
	LastOnlineAt string          `json:"last_online_at,omitempty"`
	UptimeMs     int64           `json:"uptime_ms"`
	Dropped      uint64          `json:"dropped_events"`
}

type DrainRequest struct{}

type DrainResponse struct {
	Result intsync.Result `json:"result"`
}

// ListPendingRequest lists the whole queue, or only one job's items when
// JobID is set.
type ListPendingRequest struct {
	JobID string `json:"job_id,omitempty"`
}

// ListPendingResponse carries the items and how many are queued; for a job
// filter Count is the job's pending badge.
type ListPendingResponse struct {
	Items []queue.Item `json:"items"`
	Count int          `json:"count"`
}

// SubmitRequest carries an action payload. QueueOnly skips the direct write
// even while online.
type SubmitRequest struct {
	Type      action.Type     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	QueueOnly bool            `json:"queue_only,omitempty"`
}

type SubmitResponse struct {
	Outcome intsync.Outcome `json:"outcome"`
}

type ListJobsRequest struct {
	TechnicianID string   `json:"technician_id,omitempty"`
	CustomerID   string   `json:"customer_id,omitempty"`
	Status       []string `json:"status,omitempty"`
	From         string   `json:"from,omitempty"`
	To           string   `json:"to,omitempty"`
	Limit        int      `json:"limit,omitempty"`
	Offset       int      `json:"offset,omitempty"`
}

func (r *ListJobsRequest) filter() repo.JobFilter {
	return repo.JobFilter{
		TechnicianID: r.TechnicianID,
		CustomerID:   r.CustomerID,
		Status:       r.Status,
		From:         r.From,
		To:           r.To,
		Limit:        r.Limit,
		Offset:       r.Offset,
	}
}

type ListJobsResponse struct {
	Jobs      []model.Job `json:"jobs"`
	Count     int         `json:"count"`
	FromCache bool        `json:"from_cache"`
}

type ClearCacheRequest struct{}

type ClearCacheResponse struct{}

// WatchRequest selects event namespaces. Empty means sync and connectivity.
type WatchRequest struct {
	Namespaces []string `json:"namespaces,omitempty"`
}

// Event is a bus event as sent to watchers.
type Event struct {
	ID         string          `json:"id"`
	Profile    string          `json:"profile"`
	Kind       string          `json:"kind"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}
