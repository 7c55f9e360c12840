package action

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/deltadent/ServicePro-sub000/internal/model"
)

func TestDecodeEveryType(t *testing.T) {
	tests := []struct {
		typ     Type
		payload string
		jobID   string
	}{
		{TypeNote, `{"job_id":"j1","body":"gate code 1234"}`, "j1"},
		{TypePhoto, `{"job_id":"j1","file_name":"a.jpg","data":"aGVsbG8="}`, "j1"},
		{TypeCheck, `{"job_id":"j1","event":"check_in","timestamp":"2024-01-01T09:00:00Z"}`, "j1"},
		{TypeQuoteCreate, `{"local_id":"local-1","job_id":"j1","customer_id":"c1","title":"Boiler","tax_rate":20,"items":[{"description":"Valve","quantity":1,"unit_price":40}]}`, "j1"},
		{TypeQuoteUpdate, `{"quote_id":"q1","title":"Boiler v2"}`, ""},
		{TypeQuoteApprove, `{"quote_id":"q1","approved_by":"Ann"}`, ""},
		{TypeQuoteDecline, `{"quote_id":"q1","reason":"too expensive"}`, ""},
		{TypeQuoteSend, `{"quote_id":"q1","email":"ann@example.com"}`, ""},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			a, err := Decode(tt.typ, json.RawMessage(tt.payload))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if a.Type() != tt.typ {
				t.Fatalf("Type = %s", a.Type())
			}
			if a.JobID() != tt.jobID {
				t.Fatalf("JobID = %q, want %q", a.JobID(), tt.jobID)
			}
		})
	}
	if len(tests) != len(Types()) {
		t.Fatalf("table covers %d types, %d exist", len(tests), len(Types()))
	}
}

func TestDecodePhotoData(t *testing.T) {
	a, err := Decode(TypePhoto, json.RawMessage(`{"job_id":"j1","file_name":"a.jpg","data":"aGVsbG8="}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p := a.(Photo); string(p.Data) != "hello" {
		t.Fatalf("Data = %q", p.Data)
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name    string
		typ     Type
		payload string
		field   string
	}{
		{"unknown type", Type("INVOICE"), `{}`, ""},
		{"malformed json", TypeNote, `{"job_id":`, ""},
		{"wrong shape", TypeNote, `["j1"]`, ""},
		{"note without body", TypeNote, `{"job_id":"j1","body":"  "}`, "body"},
		{"photo without data", TypePhoto, `{"job_id":"j1","file_name":"a.jpg"}`, "data"},
		{"check bad event", TypeCheck, `{"job_id":"j1","event":"lunch","timestamp":"2024-01-01T09:00:00Z"}`, "event"},
		{"check bad timestamp", TypeCheck, `{"job_id":"j1","event":"check_out","timestamp":"yesterday"}`, "timestamp"},
		{"check without job", TypeCheck, `{"event":"check_in","timestamp":"2024-01-01T09:00:00Z"}`, "job_id"},
		{"quote without items", TypeQuoteCreate, `{"local_id":"l1","customer_id":"c1","items":[]}`, "items"},
		{"quote zero quantity", TypeQuoteCreate, `{"local_id":"l1","customer_id":"c1","items":[{"description":"x","quantity":0}]}`, "items[0].quantity"},
		{"update without id", TypeQuoteUpdate, `{"title":"x"}`, "quote_id"},
		{"update with empty items", TypeQuoteUpdate, `{"quote_id":"q1","items":[]}`, "items"},
		{"send bad email", TypeQuoteSend, `{"quote_id":"q1","email":"nobody"}`, "email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.typ, json.RawMessage(tt.payload))
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want *ValidationError", err)
			}
			if ve.Field != tt.field {
				t.Fatalf("Field = %q, want %q (%v)", ve.Field, tt.field, err)
			}
		})
	}
}

func TestParseType(t *testing.T) {
	got, err := ParseType(" quote_send ")
	if err != nil || got != TypeQuoteSend {
		t.Fatalf("ParseType = %q, %v", got, err)
	}
	if _, err := ParseType("nope"); err == nil {
		t.Fatal("expected error")
	}
}

func TestQuoteUpdateItemsOptional(t *testing.T) {
	title := "New title"
	a := QuoteUpdate{QuoteID: "q1", Title: &title}
	if err := a.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	a.Items = []model.QuoteItem{{Description: "", Quantity: 1}}
	if err := a.Validate(); err == nil {
		t.Fatal("expected invalid item to be rejected")
	}
	a.Items = []model.QuoteItem{}
	if err := a.Validate(); err == nil {
		t.Fatal("expected empty item list to be rejected")
	}
}
