package sync

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deltadent/ServicePro-sub000/internal/action"
	"github.com/deltadent/ServicePro-sub000/internal/model"
	"github.com/deltadent/ServicePro-sub000/internal/remote"
)

// row is an insert or update body. Empty optional values are left out so the
// backend applies its defaults.
type row map[string]any

func (r row) opt(key string, v string) row {
	if v != "" {
		r[key] = v
	}
	return r
}

func (e *Engine) stamp(ts string) string {
	if ts != "" {
		return ts
	}
	return e.now().UTC().Format(time.RFC3339)
}

func (e *Engine) applyNote(ctx context.Context, a action.Note) (EntitySynced, error) {
	raw, err := e.backend.Insert(ctx, remote.ResourceJobNotes,
		row{"job_id": a.Job, "body": a.Body}.opt("author_id", a.AuthorID).opt("created_at", a.CreatedAt))
	if err != nil {
		return EntitySynced{}, fmt.Errorf("insert note: %w", err)
	}
	note, err := remote.Decode[model.Note](raw)
	if err != nil {
		return EntitySynced{}, err
	}
	e.appendToDetail(ctx, a.Job, func(d *model.JobDetail) { d.Notes = append(d.Notes, note) })
	return EntitySynced{Type: action.TypeNote, ID: note.ID, JobID: a.Job, Record: note}, nil
}

func (e *Engine) applyPhoto(ctx context.Context, a action.Photo) (EntitySynced, error) {
	contentType := a.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(a.Data)
	}
	key := remote.PhotoKey(a.Job, uuid.NewString(), a.FileName)
	url, err := e.blobs.Put(ctx, key, bytes.NewReader(a.Data), int64(len(a.Data)), contentType)
	if err != nil {
		return EntitySynced{}, fmt.Errorf("upload photo: %w", err)
	}
	raw, err := e.backend.Insert(ctx, remote.ResourceJobPhotos,
		row{"job_id": a.Job, "url": url}.opt("caption", a.Caption).opt("taken_at", a.TakenAt))
	if err != nil {
		return EntitySynced{}, fmt.Errorf("insert photo: %w", err)
	}
	photo, err := remote.Decode[model.Photo](raw)
	if err != nil {
		return EntitySynced{}, err
	}
	e.appendToDetail(ctx, a.Job, func(d *model.JobDetail) { d.Photos = append(d.Photos, photo) })
	return EntitySynced{Type: action.TypePhoto, ID: photo.ID, JobID: a.Job, Record: photo}, nil
}

// applyCheck records a timesheet entry under the job's open visit, creating
// the visit first when there is none.
func (e *Engine) applyCheck(ctx context.Context, a action.Check) (EntitySynced, error) {
	visit, err := e.openVisit(ctx, a.Job)
	if err != nil {
		return EntitySynced{}, err
	}
	if visit == nil {
		raw, err := e.backend.Insert(ctx, remote.ResourceJobVisits,
			row{"job_id": a.Job, "started_at": a.Timestamp}.opt("technician_id", a.TechnicianID))
		if err != nil {
			return EntitySynced{}, fmt.Errorf("create visit: %w", err)
		}
		v, err := remote.Decode[model.Visit](raw)
		if err != nil {
			return EntitySynced{}, err
		}
		visit = &v
		e.logger.Info("visit created", zap.String("job_id", a.Job), zap.String("visit_id", v.ID))
	}

	entry := row{
		"visit_id":  visit.ID,
		"job_id":    a.Job,
		"event":     a.Event,
		"timestamp": a.Timestamp,
	}.opt("technician_id", a.TechnicianID)
	if a.Lat != nil && a.Lng != nil {
		entry["lat"], entry["lng"] = *a.Lat, *a.Lng
	}
	raw, err := e.backend.Insert(ctx, remote.ResourceTimesheets, entry)
	if err != nil {
		return EntitySynced{}, fmt.Errorf("insert timesheet: %w", err)
	}
	ts, err := remote.Decode[model.TimesheetEntry](raw)
	if err != nil {
		return EntitySynced{}, err
	}

	if a.Event == model.CheckOut {
		if _, err := e.backend.Update(ctx, remote.ResourceJobVisits, visit.ID, row{"ended_at": a.Timestamp}); err != nil {
			return EntitySynced{}, fmt.Errorf("close visit: %w", err)
		}
	}

	e.refreshJob(ctx, a.Job)
	return EntitySynced{Type: action.TypeCheck, ID: ts.ID, JobID: a.Job, Record: ts}, nil
}

// openVisit returns the job's latest visit if it has not ended.
func (e *Engine) openVisit(ctx context.Context, jobID string) (*model.Visit, error) {
	q := remote.Query{Limit: 1}.Where("job_id", remote.OpEq, jobID)
	q.Order = []remote.Order{{Field: "started_at", Desc: true}, {Field: "id", Desc: true}}
	rows, _, err := e.backend.Select(ctx, remote.ResourceJobVisits, q)
	if err != nil {
		return nil, fmt.Errorf("find visit: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	v, err := remote.Decode[model.Visit](rows[0])
	if err != nil {
		return nil, err
	}
	if v.EndedAt != nil {
		return nil, nil
	}
	return &v, nil
}

// refreshJob re-reads a job and its detail after a write that changed them.
// The write already happened, so failures are only logged.
func (e *Engine) refreshJob(ctx context.Context, jobID string) {
	res := e.repos.Jobs.Detail(ctx, jobID)
	if res.FromCache || res.Item == nil {
		e.logger.Warn("could not refresh job after write", zap.String("job_id", jobID))
		return
	}
	e.repos.Jobs.UpdateDetail(ctx, *res.Item)
}

func (e *Engine) appendToDetail(ctx context.Context, jobID string, fn func(*model.JobDetail)) {
	d := e.repos.Jobs.CachedDetail(ctx, jobID)
	if d == nil {
		return
	}
	fn(d)
	e.repos.Jobs.UpdateDetail(ctx, *d)
}

func (e *Engine) insertQuoteItems(ctx context.Context, quoteID string, items []model.QuoteItem) ([]model.QuoteItem, error) {
	out := make([]model.QuoteItem, 0, len(items))
	for i, it := range items {
		raw, err := e.backend.Insert(ctx, remote.ResourceQuoteItems, row{
			"quote_id":    quoteID,
			"description": it.Description,
			"quantity":    it.Quantity,
			"unit_price":  it.UnitPrice,
			"sort_order":  i,
		})
		if err != nil {
			return nil, fmt.Errorf("insert quote item %d: %w", i, err)
		}
		item, err := remote.Decode[model.QuoteItem](raw)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func (e *Engine) applyQuoteCreate(ctx context.Context, a action.QuoteCreate) (EntitySynced, error) {
	body := row{
		"customer_id": a.CustomerID,
		"title":       a.Title,
		"tax_rate":    a.TaxRate,
		"status":      model.QuoteDraft,
	}.opt("job_id", a.Job).opt("notes", a.Notes)
	raw, err := e.backend.Insert(ctx, remote.ResourceQuotes, body)
	if err != nil {
		return EntitySynced{}, fmt.Errorf("insert quote: %w", err)
	}
	quote, err := remote.Decode[model.Quote](raw)
	if err != nil {
		return EntitySynced{}, err
	}

	items, err := e.insertQuoteItems(ctx, quote.ID, a.Items)
	if err != nil {
		// Drop the half-written quote so a replay starts clean.
		if derr := e.backend.Delete(ctx, remote.ResourceQuotes, remote.Query{}.Where("id", remote.OpEq, quote.ID)); derr != nil {
			e.logger.Warn("failed to remove partial quote", zap.String("quote_id", quote.ID), zap.Error(derr))
		}
		return EntitySynced{}, err
	}
	quote.Items = items

	e.repos.Quotes.Evict(ctx, a.LocalID)
	quote = e.refreshQuote(ctx, quote)
	return EntitySynced{Type: action.TypeQuoteCreate, ID: quote.ID, JobID: a.Job, Record: quote}, nil
}

func (e *Engine) applyQuoteUpdate(ctx context.Context, a action.QuoteUpdate) (EntitySynced, error) {
	patch := row{}
	if a.Title != nil {
		patch["title"] = *a.Title
	}
	if a.Notes != nil {
		patch["notes"] = *a.Notes
	}
	if a.TaxRate != nil {
		patch["tax_rate"] = *a.TaxRate
	}

	var quote model.Quote
	if len(patch) > 0 {
		raw, err := e.backend.Update(ctx, remote.ResourceQuotes, a.QuoteID, patch)
		if err != nil {
			return EntitySynced{}, fmt.Errorf("update quote: %w", err)
		}
		if quote, err = remote.Decode[model.Quote](raw); err != nil {
			return EntitySynced{}, err
		}
	} else if cached := e.repos.Quotes.Cached(ctx, a.QuoteID); cached != nil {
		quote = *cached
	} else {
		quote.ID = a.QuoteID
	}

	if a.Items != nil {
		if err := e.backend.Delete(ctx, remote.ResourceQuoteItems, remote.Query{}.Where("quote_id", remote.OpEq, a.QuoteID)); err != nil {
			return EntitySynced{}, fmt.Errorf("replace quote items: %w", err)
		}
		items, err := e.insertQuoteItems(ctx, a.QuoteID, a.Items)
		if err != nil {
			return EntitySynced{}, err
		}
		quote.Items = items
	}

	quote = e.refreshQuote(ctx, quote)
	return EntitySynced{Type: action.TypeQuoteUpdate, ID: quote.ID, JobID: jobOf(quote), Record: quote}, nil
}

func (e *Engine) applyQuoteApprove(ctx context.Context, a action.QuoteApprove) (EntitySynced, error) {
	patch := row{"status": model.QuoteApproved, "approved_at": e.stamp(a.ApprovedAt)}.opt("approved_by", a.ApprovedBy)
	return e.transitionQuote(ctx, action.TypeQuoteApprove, a.QuoteID, patch)
}

func (e *Engine) applyQuoteDecline(ctx context.Context, a action.QuoteDecline) (EntitySynced, error) {
	patch := row{"status": model.QuoteDeclined, "declined_at": e.stamp(a.DeclinedAt)}.opt("decline_reason", a.Reason)
	return e.transitionQuote(ctx, action.TypeQuoteDecline, a.QuoteID, patch)
}

func (e *Engine) applyQuoteSend(ctx context.Context, a action.QuoteSend) (EntitySynced, error) {
	patch := row{"status": model.QuoteSent, "sent_at": e.stamp(a.SentAt), "sent_to": a.Email}
	return e.transitionQuote(ctx, action.TypeQuoteSend, a.QuoteID, patch)
}

func (e *Engine) transitionQuote(ctx context.Context, t action.Type, id string, patch row) (EntitySynced, error) {
	raw, err := e.backend.Update(ctx, remote.ResourceQuotes, id, patch)
	if err != nil {
		return EntitySynced{}, fmt.Errorf("update quote status: %w", err)
	}
	quote, err := remote.Decode[model.Quote](raw)
	if err != nil {
		return EntitySynced{}, err
	}
	if cached := e.repos.Quotes.Cached(ctx, id); cached != nil && quote.Items == nil {
		quote.Items = cached.Items
	}
	quote = e.refreshQuote(ctx, quote)
	return EntitySynced{Type: t, ID: quote.ID, JobID: jobOf(quote), Record: quote}, nil
}

// refreshQuote re-reads the quote with its items and caches it. When the
// read fails the locally assembled copy is cached instead.
func (e *Engine) refreshQuote(ctx context.Context, fallback model.Quote) model.Quote {
	res := e.repos.Quotes.Detail(ctx, fallback.ID)
	if !res.FromCache && res.Item != nil {
		if res.Item.Items == nil && fallback.Items != nil {
			res.Item.Items = fallback.Items
			e.repos.Quotes.UpdateCache(ctx, *res.Item)
		}
		return *res.Item
	}
	e.repos.Quotes.UpdateCache(ctx, fallback)
	return fallback
}

func jobOf(q model.Quote) string {
	if q.JobID == nil {
		return ""
	}
	return *q.JobID
}
