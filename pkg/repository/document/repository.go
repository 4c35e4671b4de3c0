package document

import (
	"fmt"
	"strings"
)

// Reserved document fields.
const (
	// IDField is the store-assigned identifier. It is a hex string outside the engine and a
	// primitive.ObjectID inside it.
	IDField = "_id"
	// InsertedField holds {at: <UTC time>} and is written once, on insert.
	InsertedField = "__inserted__"
	// UpdatedField holds {at: <UTC time>} and is overwritten on every update.
	UpdatedField = "__updated__"
	// AuditAtField is the timestamp key inside the audit envelopes.
	AuditAtField = "at"
)

// Document is an open mapping of field name to value.
type Document map[string]interface{}

// Filter represents field-based matching criteria. Values are either literals (equality) or
// operator maps such as {"$ne": v}.
type Filter map[string]interface{}

// Sort specifies field and direction for sorting results.
type Sort struct {
	Field string
	Order SortOrder
}

// SortOrder defines the direction of sorting.
type SortOrder string

const (
	SortAsc  SortOrder = "ASC"
	SortDesc SortOrder = "DESC"
)

// Projection lists the fields returned by a read. ExcludeID drops _id from results.
// A nil *Projection returns whole documents.
type Projection struct {
	Fields    []string
	ExcludeID bool
}

// Resource is the per-repository configuration: where documents live and which fields,
// if any, form a uniqueness constraint.
type Resource struct {
	Database     string
	Subject      string
	VerifyInsert bool
	KeyFields    []string
}

// NewResource validates and returns a Resource. The reserved _id field may not be a key field.
func NewResource(database, subject string, verifyInsert bool, keyFields ...string) (Resource, error) {
	r := Resource{
		Database:     strings.TrimSpace(database),
		Subject:      strings.TrimSpace(subject),
		VerifyInsert: verifyInsert,
	}
	if r.Database == "" {
		return Resource{}, fmt.Errorf("%w: database is required", ErrValidation)
	}
	if r.Subject == "" {
		return Resource{}, fmt.Errorf("%w: subject is required", ErrValidation)
	}
	for _, field := range keyFields {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		if field == IDField {
			return Resource{}, fmt.Errorf("%w: reserved field %q cannot be part of the key fields", ErrValidation, IDField)
		}
		r.KeyFields = append(r.KeyFields, field)
	}
	return r, nil
}

// ParseKeyFields splits a comma separated key field list such as "document,branch".
func ParseKeyFields(list string) []string {
	if strings.TrimSpace(list) == "" {
		return nil
	}
	parts := strings.Split(list, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Namespace returns "database.subject", mostly for logs and metrics labels.
func (r Resource) Namespace() string {
	return r.Database + "." + r.Subject
}

func (r Resource) checksUniqueness() bool {
	return r.VerifyInsert && len(r.KeyFields) > 0
}
