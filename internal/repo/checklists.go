package repo

import (
	"context"

	"github.com/deltadent/ServicePro-sub000/internal/model"
	"github.com/deltadent/ServicePro-sub000/internal/remote"
	"github.com/deltadent/ServicePro-sub000/internal/store"
)

// Checklists serves checklist templates and the checklists attached to jobs.
type Checklists struct {
	templates *Repository[model.ChecklistTemplate]
	instances *Repository[model.JobChecklist]
}

func NewChecklists(deps Deps) *Checklists {
	return &Checklists{
		templates: NewRepository(deps, remote.ResourceChecklistTemplates, store.ChecklistTemplates, "",
			func(t *model.ChecklistTemplate) string { return t.ID }),
		instances: NewRepository(deps, remote.ResourceJobChecklists, store.JobChecklists, "",
			func(c *model.JobChecklist) string { return c.ID }),
	}
}

// Templates returns the active templates ordered by name.
func (r *Checklists) Templates(ctx context.Context) ListResult[model.ChecklistTemplate] {
	q := remote.Query{}.Where("active", remote.OpEq, true).OrderBy("name", false).OrderBy("id", false)
	return r.templates.FetchList(ctx, q)
}

// ForJob returns the checklists of a job in creation order.
func (r *Checklists) ForJob(ctx context.Context, jobID string) ListResult[model.JobChecklist] {
	q := remote.Query{}.Where("job_id", remote.OpEq, jobID).OrderBy("created_at", false).OrderBy("id", false)
	return r.instances.FetchList(ctx, q)
}

func (r *Checklists) UpdateCache(ctx context.Context, c model.JobChecklist) {
	r.instances.UpdateCache(ctx, c)
}

func (r *Checklists) ClearCache(ctx context.Context) error {
	if err := r.templates.ClearCache(ctx); err != nil {
		return err
	}
	return r.instances.ClearCache(ctx)
}
