// Package action defines the closed set of user actions that can be queued
// while offline and replayed against the backend.
package action

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/deltadent/ServicePro-sub000/internal/model"
)

// Type identifies an action kind. It is persisted with every queue item.
type Type string

const (
	TypeNote         Type = "NOTE"
	TypePhoto        Type = "PHOTO"
	TypeCheck        Type = "CHECK"
	TypeQuoteCreate  Type = "QUOTE_CREATE"
	TypeQuoteUpdate  Type = "QUOTE_UPDATE"
	TypeQuoteApprove Type = "QUOTE_APPROVE"
	TypeQuoteDecline Type = "QUOTE_DECLINE"
	TypeQuoteSend    Type = "QUOTE_SEND"
)

// Types returns every known action type.
func Types() []Type {
	return []Type{TypeNote, TypePhoto, TypeCheck, TypeQuoteCreate, TypeQuoteUpdate, TypeQuoteApprove, TypeQuoteDecline, TypeQuoteSend}
}

// ParseType accepts a type name case-insensitively.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Types() {
		if t == known {
			return t, nil
		}
	}
	return "", &ValidationError{Type: Type(s), Reason: "unknown action type"}
}

// Action is one of the payload structs below. The set is closed.
type Action interface {
	Type() Type
	// JobID is the job the action belongs to, or "" when it has none.
	JobID() string
	Validate() error
	sealed()
}

// ValidationError reports an action whose payload cannot be replayed.
type ValidationError struct {
	Type   Type
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid %s action: %s", e.Type, e.Reason)
	}
	return fmt.Sprintf("invalid %s action: %s %s", e.Type, e.Field, e.Reason)
}

func required(t Type, field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Type: t, Field: field, Reason: "is required"}
	}
	return nil
}

func timestamp(t Type, field, value string, optional bool) error {
	if value == "" {
		if optional {
			return nil
		}
		return &ValidationError{Type: t, Field: field, Reason: "is required"}
	}
	if _, err := time.Parse(time.RFC3339, value); err != nil {
		return &ValidationError{Type: t, Field: field, Reason: "must be an RFC 3339 timestamp"}
	}
	return nil
}

// Note adds a free-text note to a job.
type Note struct {
	Job       string `json:"job_id"`
	Body      string `json:"body"`
	AuthorID  string `json:"author_id,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

func (Note) Type() Type      { return TypeNote }
func (a Note) JobID() string { return a.Job }
func (Note) sealed()         {}

func (a Note) Validate() error {
	if err := required(TypeNote, "job_id", a.Job); err != nil {
		return err
	}
	if err := required(TypeNote, "body", a.Body); err != nil {
		return err
	}
	return timestamp(TypeNote, "created_at", a.CreatedAt, true)
}

// Photo attaches an image to a job. Data travels base64-encoded in JSON.
type Photo struct {
	Job         string `json:"job_id"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type,omitempty"`
	Data        []byte `json:"data"`
	Caption     string `json:"caption,omitempty"`
	TakenAt     string `json:"taken_at,omitempty"`
}

func (Photo) Type() Type      { return TypePhoto }
func (a Photo) JobID() string { return a.Job }
func (Photo) sealed()         {}

func (a Photo) Validate() error {
	if err := required(TypePhoto, "job_id", a.Job); err != nil {
		return err
	}
	if err := required(TypePhoto, "file_name", a.FileName); err != nil {
		return err
	}
	if len(a.Data) == 0 {
		return &ValidationError{Type: TypePhoto, Field: "data", Reason: "is required"}
	}
	return timestamp(TypePhoto, "taken_at", a.TakenAt, true)
}

// Check records a technician arriving at or leaving a job site.
type Check struct {
	Job          string   `json:"job_id"`
	Event        string   `json:"event"`
	Timestamp    string   `json:"timestamp"`
	TechnicianID string   `json:"technician_id,omitempty"`
	Lat          *float64 `json:"lat,omitempty"`
	Lng          *float64 `json:"lng,omitempty"`
}

func (Check) Type() Type      { return TypeCheck }
func (a Check) JobID() string { return a.Job }
func (Check) sealed()         {}

func (a Check) Validate() error {
	if err := required(TypeCheck, "job_id", a.Job); err != nil {
		return err
	}
	if a.Event != model.CheckIn && a.Event != model.CheckOut {
		return &ValidationError{Type: TypeCheck, Field: "event", Reason: "must be check_in or check_out"}
	}
	return timestamp(TypeCheck, "timestamp", a.Timestamp, false)
}

// QuoteCreate creates a quote drafted offline under a client-side LocalID.
type QuoteCreate struct {
	LocalID    string            `json:"local_id"`
	Job        string            `json:"job_id,omitempty"`
	CustomerID string            `json:"customer_id"`
	Title      string            `json:"title"`
	Notes      string            `json:"notes,omitempty"`
	TaxRate    float64           `json:"tax_rate"`
	Items      []model.QuoteItem `json:"items"`
}

func (QuoteCreate) Type() Type      { return TypeQuoteCreate }
func (a QuoteCreate) JobID() string { return a.Job }
func (QuoteCreate) sealed()         {}

func (a QuoteCreate) Validate() error {
	if err := required(TypeQuoteCreate, "local_id", a.LocalID); err != nil {
		return err
	}
	if err := required(TypeQuoteCreate, "customer_id", a.CustomerID); err != nil {
		return err
	}
	if len(a.Items) == 0 {
		return &ValidationError{Type: TypeQuoteCreate, Field: "items", Reason: "must not be empty"}
	}
	return validItems(TypeQuoteCreate, a.Items)
}

func validItems(t Type, items []model.QuoteItem) error {
	for i, it := range items {
		if strings.TrimSpace(it.Description) == "" {
			return &ValidationError{Type: t, Field: fmt.Sprintf("items[%d].description", i), Reason: "is required"}
		}
		if it.Quantity <= 0 {
			return &ValidationError{Type: t, Field: fmt.Sprintf("items[%d].quantity", i), Reason: "must be positive"}
		}
	}
	return nil
}

// QuoteUpdate edits a quote. Nil fields are left unchanged; a non-nil Items
// replaces every line of the quote and must not be empty, since a queued
// update loses the difference between no items and an empty list.
type QuoteUpdate struct {
	QuoteID string            `json:"quote_id"`
	Title   *string           `json:"title,omitempty"`
	Notes   *string           `json:"notes,omitempty"`
	TaxRate *float64          `json:"tax_rate,omitempty"`
	Items   []model.QuoteItem `json:"items,omitempty"`
}

func (QuoteUpdate) Type() Type    { return TypeQuoteUpdate }
func (QuoteUpdate) JobID() string { return "" }
func (QuoteUpdate) sealed()       {}

func (a QuoteUpdate) Validate() error {
	if err := required(TypeQuoteUpdate, "quote_id", a.QuoteID); err != nil {
		return err
	}
	if a.Items != nil && len(a.Items) == 0 {
		return &ValidationError{Type: TypeQuoteUpdate, Field: "items", Reason: "must not be empty"}
	}
	return validItems(TypeQuoteUpdate, a.Items)
}

// QuoteApprove marks a quote approved by the customer.
type QuoteApprove struct {
	QuoteID    string `json:"quote_id"`
	ApprovedBy string `json:"approved_by,omitempty"`
	ApprovedAt string `json:"approved_at,omitempty"`
}

func (QuoteApprove) Type() Type    { return TypeQuoteApprove }
func (QuoteApprove) JobID() string { return "" }
func (QuoteApprove) sealed()       {}

func (a QuoteApprove) Validate() error {
	if err := required(TypeQuoteApprove, "quote_id", a.QuoteID); err != nil {
		return err
	}
	return timestamp(TypeQuoteApprove, "approved_at", a.ApprovedAt, true)
}

// QuoteDecline marks a quote declined.
type QuoteDecline struct {
	QuoteID    string `json:"quote_id"`
	Reason     string `json:"reason,omitempty"`
	DeclinedAt string `json:"declined_at,omitempty"`
}

func (QuoteDecline) Type() Type    { return TypeQuoteDecline }
func (QuoteDecline) JobID() string { return "" }
func (QuoteDecline) sealed()       {}

func (a QuoteDecline) Validate() error {
	if err := required(TypeQuoteDecline, "quote_id", a.QuoteID); err != nil {
		return err
	}
	return timestamp(TypeQuoteDecline, "declined_at", a.DeclinedAt, true)
}

// QuoteSend records a quote emailed to the customer.
type QuoteSend struct {
	QuoteID string `json:"quote_id"`
	Email   string `json:"email"`
	SentAt  string `json:"sent_at,omitempty"`
}

func (QuoteSend) Type() Type    { return TypeQuoteSend }
func (QuoteSend) JobID() string { return "" }
func (QuoteSend) sealed()       {}

func (a QuoteSend) Validate() error {
	if err := required(TypeQuoteSend, "quote_id", a.QuoteID); err != nil {
		return err
	}
	if !strings.Contains(a.Email, "@") {
		return &ValidationError{Type: TypeQuoteSend, Field: "email", Reason: "must be an email address"}
	}
	return timestamp(TypeQuoteSend, "sent_at", a.SentAt, true)
}

// Decode parses payload as the action of type t and validates it. Unknown
// types, malformed JSON and invalid payloads all yield *ValidationError.
func Decode(t Type, payload json.RawMessage) (Action, error) {
	var a Action
	var err error
	switch t {
	case TypeNote:
		a, err = decodeAs[Note](payload)
	case TypePhoto:
		a, err = decodeAs[Photo](payload)
	case TypeCheck:
		a, err = decodeAs[Check](payload)
	case TypeQuoteCreate:
		a, err = decodeAs[QuoteCreate](payload)
	case TypeQuoteUpdate:
		a, err = decodeAs[QuoteUpdate](payload)
	case TypeQuoteApprove:
		a, err = decodeAs[QuoteApprove](payload)
	case TypeQuoteDecline:
		a, err = decodeAs[QuoteDecline](payload)
	case TypeQuoteSend:
		a, err = decodeAs[QuoteSend](payload)
	default:
		return nil, &ValidationError{Type: t, Reason: "unknown action type"}
	}
	if err != nil {
		return nil, &ValidationError{Type: t, Reason: "malformed payload: " + err.Error()}
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

func decodeAs[T Action](payload json.RawMessage) (T, error) {
	var v T
	err := json.Unmarshal(payload, &v)
	return v, err
}
