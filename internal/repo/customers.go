package repo

import (
	"context"
	"strings"

	"github.com/deltadent/ServicePro-sub000/internal/model"
	"github.com/deltadent/ServicePro-sub000/internal/remote"
	"github.com/deltadent/ServicePro-sub000/internal/store"
)

// CustomerFilter selects customers whose name contains Search,
// case-insensitively. A '*' in Search is dropped: the backend reads it as a
// wildcard while the cache would match it literally.
type CustomerFilter struct {
	Search string
	Limit  int
	Offset int
}

func (f CustomerFilter) Query() remote.Query {
	q := remote.Query{}
	if search := strings.ReplaceAll(f.Search, "*", ""); search != "" {
		q = q.Where("name", remote.OpILike, "%"+search+"%")
	}
	return q.OrderBy("name", false).OrderBy("id", false).Page(f.Limit, f.Offset)
}

type Customers struct {
	repo *Repository[model.Customer]
}

func NewCustomers(deps Deps) *Customers {
	return &Customers{
		repo: NewRepository(deps, remote.ResourceCustomers, store.Customers, "", func(c *model.Customer) string { return c.ID }),
	}
}

func (r *Customers) List(ctx context.Context, f CustomerFilter) ListResult[model.Customer] {
	return r.repo.FetchList(ctx, f.Query())
}

func (r *Customers) Detail(ctx context.Context, id string) DetailResult[model.Customer] {
	return r.repo.FetchDetail(ctx, id)
}

func (r *Customers) UpdateCache(ctx context.Context, c model.Customer) {
	r.repo.UpdateCache(ctx, c)
}

func (r *Customers) ClearCache(ctx context.Context) error {
	return r.repo.ClearCache(ctx)
}
