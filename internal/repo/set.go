package repo

import (
	"context"
	"errors"
)

// Set bundles every repository of a profile.
type Set struct {
	Jobs       *Jobs
	Customers  *Customers
	Checklists *Checklists
	Quotes     *Quotes
}

func NewSet(deps Deps) *Set {
	return &Set{
		Jobs:       NewJobs(deps),
		Customers:  NewCustomers(deps),
		Checklists: NewChecklists(deps),
		Quotes:     NewQuotes(deps),
	}
}

// ClearAll empties every entity partition. The queue and meta are untouched.
func (s *Set) ClearAll(ctx context.Context) error {
	return errors.Join(
		s.Jobs.ClearCache(ctx),
		s.Customers.ClearCache(ctx),
		s.Checklists.ClearCache(ctx),
		s.Quotes.ClearCache(ctx),
	)
}
