package syncengine

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/kennelsync/internal/errs"
	"github.com/and161185/kennelsync/internal/model"
	"github.com/and161185/kennelsync/internal/remote"
)

func addChild[T any](ctx context.Context, e *Engine, k childKind[T], action string, visitID uuid.UUID, rec T, encode func(T) (remote.Record, error), detail string) *Operation {
	return e.submit(ctx, mutation{
		action:  action,
		visitID: visitID,
		target:  k.id(rec),
		detail:  detail,
		apply:   func() (func(), error) { return appendChild(e, k, visitID, rec) },
		write: func(ctx context.Context) error {
			r, err := encode(rec)
			if err != nil {
				return err
			}
			return e.createRemote(ctx, r)
		},
	})
}

// deleteChild tombstones the remote record so incremental fetches on other
// devices see the removal.
func deleteChild[T any](ctx context.Context, e *Engine, k childKind[T], action string, t remote.EntityType, visitID, id uuid.UUID) *Operation {
	return e.submit(ctx, mutation{
		action:  action,
		visitID: visitID,
		target:  id,
		detail:  k.name + " deleted",
		apply:   func() (func(), error) { return removeChild(e, k, visitID, id) },
		write: func(ctx context.Context) error {
			return e.patchRemote(ctx, remote.Ref{Type: t, ID: id}, nil, remote.Bool(true))
		},
	})
}

// AddFeedingRecord logs a meal on the visit. Operation.Target is the record id.
func (e *Engine) AddFeedingRecord(ctx context.Context, visitID uuid.UUID, typ model.FeedingType, notes string) *Operation {
	if !typ.Valid() {
		return failedOperation(uuid.Nil, fmt.Errorf("feeding type %q: %w", typ, errs.ErrValidation))
	}
	rec := model.FeedingRecord{
		ID:         newID(),
		VisitID:    visitID,
		Timestamp:  e.now(),
		Type:       typ,
		Notes:      notes,
		RecordedBy: e.actor.Name,
	}
	return addChild(ctx, e, feedings, model.ActionAddFeeding, visitID, rec, remote.FeedingRecordOf, "feeding: "+string(typ))
}

// DeleteFeedingRecord removes a feeding entry.
func (e *Engine) DeleteFeedingRecord(ctx context.Context, visitID, recordID uuid.UUID) *Operation {
	return deleteChild(ctx, e, feedings, model.ActionDeleteFeeding, remote.TypeFeedingRecord, visitID, recordID)
}

// AddMedicationRecord logs a given medication. medicationID refers to the dog's catalog and may be nil.
func (e *Engine) AddMedicationRecord(ctx context.Context, visitID, medicationID uuid.UUID, name, notes string) *Operation {
	if name == "" {
		return failedOperation(uuid.Nil, fmt.Errorf("medication name is required: %w", errs.ErrValidation))
	}
	rec := model.MedicationRecord{
		ID:           newID(),
		VisitID:      visitID,
		Timestamp:    e.now(),
		MedicationID: medicationID,
		Name:         name,
		Notes:        notes,
		RecordedBy:   e.actor.Name,
	}
	return addChild(ctx, e, medications, model.ActionAddMedication, visitID, rec, remote.MedicationRecordOf, "medication: "+name)
}

// DeleteMedicationRecord removes a medication entry.
func (e *Engine) DeleteMedicationRecord(ctx context.Context, visitID, recordID uuid.UUID) *Operation {
	return deleteChild(ctx, e, medications, model.ActionDeleteMedication, remote.TypeMedicationRecord, visitID, recordID)
}

// AddPottyRecord logs a potty break.
func (e *Engine) AddPottyRecord(ctx context.Context, visitID uuid.UUID, typ model.PottyType, notes string) *Operation {
	if !typ.Valid() {
		return failedOperation(uuid.Nil, fmt.Errorf("potty type %q: %w", typ, errs.ErrValidation))
	}
	rec := model.PottyRecord{
		ID:         newID(),
		VisitID:    visitID,
		Timestamp:  e.now(),
		Type:       typ,
		Notes:      notes,
		RecordedBy: e.actor.Name,
	}
	return addChild(ctx, e, potties, model.ActionAddPotty, visitID, rec, remote.PottyRecordOf, "potty: "+string(typ))
}

// DeletePottyRecord removes a potty entry.
func (e *Engine) DeletePottyRecord(ctx context.Context, visitID, recordID uuid.UUID) *Operation {
	return deleteChild(ctx, e, potties, model.ActionDeletePotty, remote.TypePottyRecord, visitID, recordID)
}

// AddScheduledMedication plans a pending dose.
func (e *Engine) AddScheduledMedication(ctx context.Context, visitID, medicationID uuid.UUID, at time.Time, notes string) *Operation {
	dose := model.ScheduledMedication{
		ID:           newID(),
		VisitID:      visitID,
		MedicationID: medicationID,
		ScheduledAt:  at,
		Status:       model.DosePending,
		Notes:        notes,
	}
	return addChild(ctx, e, doses, model.ActionScheduleDose, visitID, dose, remote.ScheduledRecordOf, "dose scheduled for "+at.Format(time.RFC3339))
}

// SetScheduledMedicationStatus marks a dose given, skipped or pending again.
func (e *Engine) SetScheduledMedicationStatus(ctx context.Context, visitID, doseID uuid.UUID, status model.DoseStatus) *Operation {
	if !status.Valid() {
		return failedOperation(doseID, fmt.Errorf("dose status %q: %w", status, errs.ErrValidation))
	}
	get := func(v *model.Visit) model.DoseStatus {
		if i := indexOf(doses, v.ScheduledMedications, doseID); i >= 0 {
			return v.ScheduledMedications[i].Status
		}
		return ""
	}
	set := func(v *model.Visit, s model.DoseStatus) {
		if i := indexOf(doses, v.ScheduledMedications, doseID); i >= 0 {
			v.ScheduledMedications[i].Status = s
		}
	}
	return e.submit(ctx, mutation{
		action:  model.ActionSetDoseStatus,
		visitID: visitID,
		target:  doseID,
		detail:  "dose " + string(status),
		apply: func() (func(), error) {
			d, ok := e.subject(visitID, uuid.Nil)
			if !ok || indexOf(doses, d.Visit.ScheduledMedications, doseID) < 0 {
				return nil, notCached(doses.name, doseID)
			}
			return updateVisit(e, visitID, get, set, status)
		},
		write: func(ctx context.Context) error {
			ref := remote.Ref{Type: remote.TypeScheduledMedication, ID: doseID}
			return e.patchRemote(ctx, ref, map[string]any{"status": status}, nil)
		},
	})
}
