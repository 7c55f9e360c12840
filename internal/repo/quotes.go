package repo

import (
	"context"

	"github.com/deltadent/ServicePro-sub000/internal/model"
	"github.com/deltadent/ServicePro-sub000/internal/remote"
	"github.com/deltadent/ServicePro-sub000/internal/store"
)

const quoteEmbed = "*,items:quote_items(*)"

// QuoteFilter selects quotes. Zero fields do not filter.
type QuoteFilter struct {
	JobID      string
	CustomerID string
	Status     string
	Limit      int
	Offset     int
}

// Query orders quotes newest first.
func (f QuoteFilter) Query() remote.Query {
	q := remote.Query{}
	if f.JobID != "" {
		q = q.Where("job_id", remote.OpEq, f.JobID)
	}
	if f.CustomerID != "" {
		q = q.Where("customer_id", remote.OpEq, f.CustomerID)
	}
	if f.Status != "" {
		q = q.Where("status", remote.OpEq, f.Status)
	}
	q.Order = append(q.Order, remote.Order{Field: "created_at", Desc: true}, remote.Order{Field: "id"})
	return q.Page(f.Limit, f.Offset)
}

type Quotes struct {
	quotes    *Repository[model.Quote]
	templates *Repository[model.QuoteTemplate]
}

func NewQuotes(deps Deps) *Quotes {
	return &Quotes{
		quotes: NewRepository(deps, remote.ResourceQuotes, store.Quotes, quoteEmbed,
			func(q *model.Quote) string { return q.ID }),
		templates: NewRepository(deps, remote.ResourceQuoteTemplates, store.QuoteTemplates, "",
			func(t *model.QuoteTemplate) string { return t.ID }),
	}
}

func (r *Quotes) List(ctx context.Context, f QuoteFilter) ListResult[model.Quote] {
	return r.quotes.FetchList(ctx, f.Query())
}

func (r *Quotes) Detail(ctx context.Context, id string) DetailResult[model.Quote] {
	return r.quotes.FetchDetail(ctx, id)
}

// Templates returns every quote template ordered by name.
func (r *Quotes) Templates(ctx context.Context) ListResult[model.QuoteTemplate] {
	return r.templates.FetchList(ctx, remote.Query{}.OrderBy("name", false).OrderBy("id", false))
}

func (r *Quotes) Cached(ctx context.Context, id string) *model.Quote {
	return r.quotes.Cached(ctx, id)
}

func (r *Quotes) UpdateCache(ctx context.Context, q model.Quote) {
	r.quotes.UpdateCache(ctx, q)
}

// Evict drops a cached quote, e.g. an offline draft once the backend has
// assigned it a real id.
func (r *Quotes) Evict(ctx context.Context, id string) {
	r.quotes.Evict(ctx, id)
}

func (r *Quotes) ClearCache(ctx context.Context) error {
	if err := r.quotes.ClearCache(ctx); err != nil {
		return err
	}
	return r.templates.ClearCache(ctx)
}
