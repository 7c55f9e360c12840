package repo

import (
	"context"

	"github.com/deltadent/ServicePro-sub000/internal/model"
	"github.com/deltadent/ServicePro-sub000/internal/remote"
	"github.com/deltadent/ServicePro-sub000/internal/store"
)

const jobDetailEmbed = "*,customer:customers(*),notes:job_notes(*),photos:job_photos(*),visits:job_visits(*)"

// JobFilter selects jobs. Zero fields do not filter. From and To bound
// scheduled_at inclusively.
type JobFilter struct {
	TechnicianID string
	CustomerID   string
	Status       []string
	From         string
	To           string
	Limit        int
	Offset       int
}

// Query translates f into a backend query ordered by schedule.
func (f JobFilter) Query() remote.Query {
	q := remote.Query{}
	if f.TechnicianID != "" {
		q = q.Where("technician_id", remote.OpEq, f.TechnicianID)
	}
	if f.CustomerID != "" {
		q = q.Where("customer_id", remote.OpEq, f.CustomerID)
	}
	switch len(f.Status) {
	case 0:
	case 1:
		q = q.Where("status", remote.OpEq, f.Status[0])
	default:
		q = q.Where("status", remote.OpIn, f.Status)
	}
	if f.From != "" {
		q = q.Where("scheduled_at", remote.OpGte, f.From)
	}
	if f.To != "" {
		q = q.Where("scheduled_at", remote.OpLte, f.To)
	}
	return q.OrderBy("scheduled_at", false).OrderBy("id", false).Page(f.Limit, f.Offset)
}

// Jobs reads jobs into the jobs partition and job details into jobDetails.
type Jobs struct {
	list    *Repository[model.Job]
	details *Repository[model.JobDetail]
}

func NewJobs(deps Deps) *Jobs {
	return &Jobs{
		list:    NewRepository(deps, remote.ResourceJobs, store.Jobs, "", func(j *model.Job) string { return j.ID }),
		details: NewRepository(deps, remote.ResourceJobs, store.JobDetails, jobDetailEmbed, func(d *model.JobDetail) string { return d.ID }),
	}
}

func (r *Jobs) List(ctx context.Context, f JobFilter) ListResult[model.Job] {
	return r.list.FetchList(ctx, f.Query())
}

// Detail returns a job with its customer, notes, photos and visits. Offline,
// a job known only from a list is returned without children.
func (r *Jobs) Detail(ctx context.Context, id string) DetailResult[model.JobDetail] {
	res := r.details.FetchDetail(ctx, id)
	if res.Item != nil || !res.FromCache {
		return res
	}
	if job := r.list.Cached(ctx, id); job != nil {
		res.Item = &model.JobDetail{Job: *job}
	}
	return res
}

// Get fetches the bare job row.
func (r *Jobs) Get(ctx context.Context, id string) DetailResult[model.Job] {
	return r.list.FetchDetail(ctx, id)
}

// CachedDetail returns the cached detail without touching the backend.
func (r *Jobs) CachedDetail(ctx context.Context, id string) *model.JobDetail {
	return r.details.Cached(ctx, id)
}

// UpdateCache stores job in the list partition and refreshes the job fields
// of its cached detail, keeping the children.
func (r *Jobs) UpdateCache(ctx context.Context, job model.Job) {
	r.list.UpdateCache(ctx, job)
	if d := r.details.Cached(ctx, job.ID); d != nil {
		d.Job = job
		r.details.UpdateCache(ctx, *d)
	}
}

// UpdateDetail stores d in the detail partition and its job in the list.
func (r *Jobs) UpdateDetail(ctx context.Context, d model.JobDetail) {
	r.details.UpdateCache(ctx, d)
	r.list.UpdateCache(ctx, d.Job)
}

func (r *Jobs) ClearCache(ctx context.Context) error {
	if err := r.list.ClearCache(ctx); err != nil {
		return err
	}
	return r.details.ClearCache(ctx)
}
