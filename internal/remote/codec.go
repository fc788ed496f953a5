package remote

import (
	"encoding/json"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/kennelsync/internal/model"
)

// NormalizeFields converts typed values into their JSON shape so that stores
// hold and compare the same representation regardless of the caller.
func NormalizeFields(in map[string]any) (map[string]any, error) {
	if in == nil {
		return map[string]any{}, nil
	}
	b, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal fields: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	return out, nil
}

// Encode turns an entity into a record field map.
func Encode(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return out, nil
}

// Decode fills v from a record field map.
func Decode(fields map[string]any, v any) error {
	b, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

func newRecord(t EntityType, id uuid.UUID, v any) (Record, error) {
	fields, err := Encode(v)
	if err != nil {
		return Record{}, fmt.Errorf("%s: %w", t, err)
	}
	return Record{ID: id, Type: t, Fields: fields}, nil
}

func expect(r Record, t EntityType) error {
	if r.Type != t {
		return fmt.Errorf("record %s: want type %s", r.Ref(), t)
	}
	return nil
}

// DogRecord encodes a profile.
func DogRecord(d model.PersistentDog) (Record, error) {
	return newRecord(TypePersistentDog, d.ID, d)
}

// DogFromRecord decodes a profile.
func DogFromRecord(r Record) (model.PersistentDog, error) {
	var d model.PersistentDog
	if err := expect(r, TypePersistentDog); err != nil {
		return d, err
	}
	if err := Decode(r.Fields, &d); err != nil {
		return d, fmt.Errorf("dog %s: %w", r.ID, err)
	}
	d.ID, d.CreatedAt, d.UpdatedAt = r.ID, r.CreatedAt, r.UpdatedAt
	return d, nil
}

// VisitRecord encodes the scalar part of a visit. Record collections are not included.
func VisitRecord(v model.Visit) (Record, error) {
	r, err := newRecord(TypeVisit, v.ID, v)
	r.IsDeleted = v.IsDeleted
	return r, err
}

// VisitFromRecord decodes a visit without its record collections.
func VisitFromRecord(r Record) (model.Visit, error) {
	var v model.Visit
	if err := expect(r, TypeVisit); err != nil {
		return v, err
	}
	if err := Decode(r.Fields, &v); err != nil {
		return v, fmt.Errorf("visit %s: %w", r.ID, err)
	}
	v.ID, v.IsDeleted, v.CreatedAt, v.UpdatedAt = r.ID, r.IsDeleted, r.CreatedAt, r.UpdatedAt
	return v, nil
}

// FeedingRecordOf encodes a feeding entry.
func FeedingRecordOf(f model.FeedingRecord) (Record, error) {
	return newRecord(TypeFeedingRecord, f.ID, f)
}

// FeedingFromRecord decodes a feeding entry.
func FeedingFromRecord(r Record) (model.FeedingRecord, error) {
	var f model.FeedingRecord
	if err := expect(r, TypeFeedingRecord); err != nil {
		return f, err
	}
	err := Decode(r.Fields, &f)
	f.ID = r.ID
	return f, err
}

// MedicationRecordOf encodes a medication entry.
func MedicationRecordOf(m model.MedicationRecord) (Record, error) {
	return newRecord(TypeMedicationRecord, m.ID, m)
}

// MedicationFromRecord decodes a medication entry.
func MedicationFromRecord(r Record) (model.MedicationRecord, error) {
	var m model.MedicationRecord
	if err := expect(r, TypeMedicationRecord); err != nil {
		return m, err
	}
	err := Decode(r.Fields, &m)
	m.ID = r.ID
	return m, err
}

// PottyRecordOf encodes a potty entry.
func PottyRecordOf(p model.PottyRecord) (Record, error) {
	return newRecord(TypePottyRecord, p.ID, p)
}

// PottyFromRecord decodes a potty entry.
func PottyFromRecord(r Record) (model.PottyRecord, error) {
	var p model.PottyRecord
	if err := expect(r, TypePottyRecord); err != nil {
		return p, err
	}
	err := Decode(r.Fields, &p)
	p.ID = r.ID
	return p, err
}

// ScheduledRecordOf encodes a scheduled dose.
func ScheduledRecordOf(s model.ScheduledMedication) (Record, error) {
	return newRecord(TypeScheduledMedication, s.ID, s)
}

// ScheduledFromRecord decodes a scheduled dose.
func ScheduledFromRecord(r Record) (model.ScheduledMedication, error) {
	var s model.ScheduledMedication
	if err := expect(r, TypeScheduledMedication); err != nil {
		return s, err
	}
	err := Decode(r.Fields, &s)
	s.ID = r.ID
	return s, err
}

// LegacyFromRecord decodes a pre-migration aggregate.
func LegacyFromRecord(r Record) (model.LegacyDog, error) {
	var l model.LegacyDog
	if err := expect(r, TypeLegacyDog); err != nil {
		return l, err
	}
	if err := Decode(r.Fields, &l); err != nil {
		return l, fmt.Errorf("legacy dog %s: %w", r.ID, err)
	}
	l.ID, l.IsDeleted, l.CreatedAt, l.UpdatedAt = r.ID, r.IsDeleted, r.CreatedAt, r.UpdatedAt
	return l, nil
}

// LegacyRecord encodes a pre-migration aggregate. Used to seed stores.
func LegacyRecord(l model.LegacyDog) (Record, error) {
	r, err := newRecord(TypeLegacyDog, l.ID, l)
	r.IsDeleted = l.IsDeleted
	return r, err
}

// ActivityRecordOf encodes an audit entry.
func ActivityRecordOf(a model.ActivityLogRecord) (Record, error) {
	return newRecord(TypeActivityLog, a.ID, a)
}

// ChildVisitID extracts the visit_id field of a child record.
func ChildVisitID(r Record) (uuid.UUID, error) {
	s, _ := r.Fields["visit_id"].(string)
	id, err := uuid.FromString(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("record %s: bad visit_id: %w", r.Ref(), err)
	}
	return id, nil
}
