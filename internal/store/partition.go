package store

// Partition names a logical table of the local store.
type Partition string

const (
	Jobs               Partition = "jobs"
	JobDetails         Partition = "jobDetails"
	Customers          Partition = "customers"
	JobChecklists      Partition = "jobChecklists"
	ChecklistTemplates Partition = "checklistTemplates"
	Quotes             Partition = "quotes"
	QuoteTemplates     Partition = "quoteTemplates"
	Queues             Partition = "queues"
	Meta               Partition = "meta"
)

// schema declares the SQL table behind a partition and its secondary indexes,
// keyed by index name with the JSON path they cover. It must agree with the
// migrations.
type schema struct {
	table   string
	indexes map[string]string
}

var schemas = map[Partition]schema{
	Jobs: {table: "jobs", indexes: map[string]string{
		"technician_id": "$.technician_id",
		"customer_id":   "$.customer_id",
		"status":        "$.status",
		"scheduled_at":  "$.scheduled_at",
	}},
	JobDetails:         {table: "job_details", indexes: map[string]string{"customer_id": "$.customer_id"}},
	Customers:          {table: "customers", indexes: map[string]string{"name": "$.name"}},
	JobChecklists:      {table: "job_checklists", indexes: map[string]string{"job_id": "$.job_id"}},
	ChecklistTemplates: {table: "checklist_templates"},
	Quotes: {table: "quotes", indexes: map[string]string{
		"job_id":      "$.job_id",
		"customer_id": "$.customer_id",
		"status":      "$.status",
	}},
	QuoteTemplates: {table: "quote_templates"},
	Queues: {table: "queues", indexes: map[string]string{
		"job_id": "$.job_id",
		"type":   "$.type",
	}},
	Meta: {table: "meta"},
}

// Partitions returns every partition the store knows about.
func Partitions() []Partition {
	return []Partition{Jobs, JobDetails, Customers, JobChecklists, ChecklistTemplates, Quotes, QuoteTemplates, Queues, Meta}
}

func lookup(p Partition) (schema, error) {
	s, ok := schemas[p]
	if !ok {
		return schema{}, &StoreError{Op: "lookup", Partition: p, Err: ErrUnknownPartition}
	}
	return s, nil
}

func lookupIndex(p Partition, index string) (schema, string, error) {
	s, err := lookup(p)
	if err != nil {
		return schema{}, "", err
	}
	path, ok := s.indexes[index]
	if !ok {
		return schema{}, "", &StoreError{Op: "index " + index, Partition: p, Err: ErrUnknownPartition}
	}
	return s, path, nil
}
