// Package model defines the entity records mirrored from the remote backend.
// Records are snapshots: the cache replaces them wholesale on every write.
package model

// Job is a scheduled unit of field work.
type Job struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Description  string  `json:"description,omitempty"`
	Status       string  `json:"status"`
	Priority     string  `json:"priority,omitempty"`
	CustomerID   string  `json:"customer_id"`
	TechnicianID *string `json:"technician_id"`
	ScheduledAt  *string `json:"scheduled_at"`
	CompletedAt  *string `json:"completed_at,omitempty"`
	Address      string  `json:"address,omitempty"`
	CreatedAt    string  `json:"created_at,omitempty"`
	UpdatedAt    string  `json:"updated_at,omitempty"`
}

// Job statuses.
const (
	JobScheduled  = "scheduled"
	JobInProgress = "in_progress"
	JobCompleted  = "completed"
	JobCancelled  = "cancelled"
)

// JobDetail is a job together with the child records shown on its detail screen.
type JobDetail struct {
	Job
	Customer *Customer `json:"customer,omitempty"`
	Notes    []Note    `json:"notes"`
	Photos   []Photo   `json:"photos"`
	Visits   []Visit   `json:"visits"`
}

// Customer is a client account.
type Customer struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Address   string `json:"address,omitempty"`
	VATNumber string `json:"vat_number,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Note is a free-text entry on a job.
type Note struct {
	ID        string `json:"id"`
	JobID     string `json:"job_id"`
	Body      string `json:"body"`
	AuthorID  string `json:"author_id,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Photo is an uploaded image attached to a job.
type Photo struct {
	ID        string `json:"id"`
	JobID     string `json:"job_id"`
	URL       string `json:"url"`
	Caption   string `json:"caption,omitempty"`
	TakenAt   string `json:"taken_at,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Visit groups the check-in/check-out timesheet entries of one trip to a job.
type Visit struct {
	ID           string  `json:"id"`
	JobID        string  `json:"job_id"`
	TechnicianID string  `json:"technician_id,omitempty"`
	StartedAt    string  `json:"started_at"`
	EndedAt      *string `json:"ended_at"`
	CreatedAt    string  `json:"created_at,omitempty"`
}

// TimesheetEntry records a single check-in or check-out.
type TimesheetEntry struct {
	ID           string   `json:"id"`
	VisitID      string   `json:"visit_id"`
	JobID        string   `json:"job_id"`
	TechnicianID string   `json:"technician_id,omitempty"`
	Event        string   `json:"event"`
	Timestamp    string   `json:"timestamp"`
	Lat          *float64 `json:"lat,omitempty"`
	Lng          *float64 `json:"lng,omitempty"`
}

// Timesheet events.
const (
	CheckIn  = "check_in"
	CheckOut = "check_out"
)

// ChecklistTemplate is a reusable list of items a technician works through.
type ChecklistTemplate struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Active bool            `json:"active"`
	Items  []ChecklistItem `json:"items"`
}

// ChecklistItem is one line of a checklist.
type ChecklistItem struct {
	ID        string  `json:"id"`
	Label     string  `json:"label"`
	Required  bool    `json:"required,omitempty"`
	Done      bool    `json:"done,omitempty"`
	DoneAt    *string `json:"done_at,omitempty"`
	Comment   string  `json:"comment,omitempty"`
	SortOrder int     `json:"sort_order,omitempty"`
}

// JobChecklist is a template instantiated on a job.
type JobChecklist struct {
	ID         string          `json:"id"`
	JobID      string          `json:"job_id"`
	TemplateID string          `json:"template_id"`
	Name       string          `json:"name"`
	Items      []ChecklistItem `json:"items"`
	CreatedAt  string          `json:"created_at,omitempty"`
}

// Quote is a priced proposal sent to a customer.
type Quote struct {
	ID            string      `json:"id"`
	JobID         *string     `json:"job_id"`
	CustomerID    string      `json:"customer_id"`
	Title         string      `json:"title"`
	Notes         string      `json:"notes,omitempty"`
	Status        string      `json:"status"`
	TaxRate       float64     `json:"tax_rate"`
	Items         []QuoteItem `json:"items"`
	SentAt        *string     `json:"sent_at,omitempty"`
	SentTo        string      `json:"sent_to,omitempty"`
	ApprovedAt    *string     `json:"approved_at,omitempty"`
	ApprovedBy    string      `json:"approved_by,omitempty"`
	DeclinedAt    *string     `json:"declined_at,omitempty"`
	DeclineReason string      `json:"decline_reason,omitempty"`
	CreatedAt     string      `json:"created_at,omitempty"`
	UpdatedAt     string      `json:"updated_at,omitempty"`
}

// Quote statuses.
const (
	QuoteDraft    = "draft"
	QuoteSent     = "sent"
	QuoteApproved = "approved"
	QuoteDeclined = "declined"
)

// QuoteItem is a priced line of a quote.
type QuoteItem struct {
	ID          string  `json:"id,omitempty"`
	QuoteID     string  `json:"quote_id,omitempty"`
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	SortOrder   int     `json:"sort_order"`
}

// QuoteTemplate is a saved set of quote items.
type QuoteTemplate struct {
	ID    string      `json:"id"`
	Name  string      `json:"name"`
	Items []QuoteItem `json:"items"`
}

// Subtotal returns the untaxed sum of the quote's lines.
func (q *Quote) Subtotal() float64 {
	var sum float64
	for _, it := range q.Items {
		sum += it.Quantity * it.UnitPrice
	}
	return sum
}

// Total returns the subtotal with tax applied.
func (q *Quote) Total() float64 {
	return q.Subtotal() * (1 + q.TaxRate/100)
}
