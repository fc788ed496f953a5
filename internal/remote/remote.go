// Package remote defines the record-store contract the sync engine and the
// migration talk to, plus the codec between domain entities and record field maps.
package remote

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/kennelsync/internal/errs"
)

// EntityType names a remote record collection.
type EntityType string

const (
	TypePersistentDog       EntityType = "PersistentDog"
	TypeVisit               EntityType = "Visit"
	TypeFeedingRecord       EntityType = "FeedingRecord"
	TypeMedicationRecord    EntityType = "MedicationRecord"
	TypePottyRecord         EntityType = "PottyRecord"
	TypeScheduledMedication EntityType = "ScheduledMedication"
	TypeLegacyDog           EntityType = "Dog"
	TypeActivityLog         EntityType = "ActivityLog"
)

// ChildTypes are the per-visit record collections, keyed by the visit_id field.
var ChildTypes = []EntityType{
	TypeFeedingRecord,
	TypeMedicationRecord,
	TypePottyRecord,
	TypeScheduledMedication,
}

// Valid reports whether t is a known collection.
func (t EntityType) Valid() bool {
	switch t {
	case TypePersistentDog, TypeVisit, TypeFeedingRecord, TypeMedicationRecord,
		TypePottyRecord, TypeScheduledMedication, TypeLegacyDog, TypeActivityLog:
		return true
	}
	return false
}

// IsChild reports whether t is a per-visit record collection.
func (t EntityType) IsChild() bool {
	for _, c := range ChildTypes {
		if c == t {
			return true
		}
	}
	return false
}

// Ref addresses one record.
type Ref struct {
	Type EntityType
	ID   uuid.UUID
}

func (r Ref) String() string { return fmt.Sprintf("%s/%s", r.Type, r.ID) }

// Record is a remote row: metadata plus an untyped field map.
// Field values are JSON-shaped (string, float64, bool, nil, []any, map[string]any).
type Record struct {
	ID                uuid.UUID
	Type              EntityType
	Fields            map[string]any
	IsDeleted         bool
	ModifiedBy        string
	ModificationCount int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Ref returns the record address.
func (r Record) Ref() Ref { return Ref{Type: r.Type, ID: r.ID} }

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := r
	out.Fields = cloneMap(r.Fields)
	return out
}

// Predicate selects records of one type. Empty IDs and Where match everything.
// Where compares the textual form of a field with the given value.
type Predicate struct {
	IDs            []uuid.UUID
	Where          map[string]string
	IncludeDeleted bool
}

// ByIDs selects the given records, tombstones excluded.
func ByIDs(ids ...uuid.UUID) Predicate { return Predicate{IDs: ids} }

// ByField selects records whose field equals value.
func ByField(field, value string) Predicate {
	return Predicate{Where: map[string]string{field: value}}
}

// Match reports whether r satisfies p.
func (p Predicate) Match(r Record) bool {
	if r.IsDeleted && !p.IncludeDeleted {
		return false
	}
	if len(p.IDs) > 0 {
		found := false
		for _, id := range p.IDs {
			if id == r.ID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for k, want := range p.Where {
		v, ok := r.Fields[k]
		if !ok || FieldText(v) != want {
			return false
		}
	}
	return true
}

// FieldText renders a field value the way a SQL ->> operator would.
func FieldText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		if x {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// Patch is a partial update: Set overwrites only the named fields, Deleted toggles the tombstone.
type Patch struct {
	Ref
	Set        map[string]any
	Deleted    *bool
	ModifiedBy string
}

// Store is the remote record store.
//
// Errors are drawn from the errs remote taxonomy: ErrNotAuthenticated,
// ErrRecordNotFound, ErrPermissionDenied, ErrTransient, ErrQuotaExceeded.
type Store interface {
	// Query returns records of type t matching p.
	Query(ctx context.Context, t EntityType, p Predicate) ([]Record, error)
	// QueryModifiedSince returns records of type t updated after since, tombstones included.
	QueryModifiedSince(ctx context.Context, t EntityType, since time.Time) ([]Record, error)
	// Create inserts a record under the caller-chosen id.
	Create(ctx context.Context, r Record) (Record, error)
	// Update replaces the record's fields and tombstone flag.
	Update(ctx context.Context, r Record) (Record, error)
	// Delete removes the record permanently.
	Delete(ctx context.Context, ref Ref) error
}

// Patcher is implemented by stores that can update a subset of fields.
type Patcher interface {
	Patch(ctx context.Context, p Patch) (Record, error)
}

// ApplyPatch writes p through s. Stores without partial updates get a re-read
// followed by a full Update, which can lose a concurrent write to another field.
func ApplyPatch(ctx context.Context, s Store, p Patch) (Record, error) {
	if pt, ok := s.(Patcher); ok {
		return pt.Patch(ctx, p)
	}
	recs, err := s.Query(ctx, p.Type, Predicate{IDs: []uuid.UUID{p.ID}, IncludeDeleted: true})
	if err != nil {
		return Record{}, err
	}
	if len(recs) == 0 {
		return Record{}, fmt.Errorf("%s: %w", p.Ref, errs.ErrRecordNotFound)
	}
	fields, err := NormalizeFields(p.Set)
	if err != nil {
		return Record{}, err
	}
	r := recs[0]
	if r.Fields == nil {
		r.Fields = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		r.Fields[k] = v
	}
	if p.Deleted != nil {
		r.IsDeleted = *p.Deleted
	}
	r.ModifiedBy = p.ModifiedBy
	return s.Update(ctx, r)
}

// Bool returns a pointer to b, for Patch.Deleted.
func Bool(b bool) *bool { return &b }

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return cloneMap(x)
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = cloneValue(x[i])
		}
		return out
	default:
		return v
	}
}
