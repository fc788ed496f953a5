package syncengine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/kennelsync/internal/audit"
	"github.com/and161185/kennelsync/internal/errs"
	"github.com/and161185/kennelsync/internal/localstate"
	"github.com/and161185/kennelsync/internal/model"
	"github.com/and161185/kennelsync/internal/remote"
	"github.com/and161185/kennelsync/internal/remote/memstore"
)

func TestStart_RequiresMigratedSchema(t *testing.T) {
	fs := afero.NewMemMapFs()
	local := localstate.NewFile(fs, "/kennel/state.json")
	log := zaptest.NewLogger(t)
	al := audit.New(fs, audit.Config{Path: "/kennel/activity.log"}, nil, log)
	defer al.Close()
	e := New(memstore.New(), local, al, Config{Logger: log})
	defer e.Close()

	err := e.Start(context.Background())
	require.ErrorIs(t, err, errs.ErrMigrationRequired)

	op := e.AddPottyRecord(context.Background(), uuid.Must(uuid.NewV4()), model.PottyPee, "")
	require.ErrorIs(t, op.Err(), ErrNotStarted)
}

func TestAddPottyRecord_Success(t *testing.T) {
	f := newFixture(t)
	_, visitID := f.seed("Max", time.Hour)
	f.seedPotty(visitID, 2)
	f.refresh()
	require.Len(t, f.find(visitID).Visit.PottyRecords, 2)

	op := f.e.AddPottyRecord(f.ctx, visitID, model.PottyPoop, "after walk")
	require.Len(t, f.find(visitID).Visit.PottyRecords, 3)
	require.NoError(t, op.Err())

	got := f.find(visitID).Visit.PottyRecords
	require.Len(t, got, 3)
	require.Equal(t, 3, f.count(remote.TypePottyRecord, map[string]string{"visit_id": visitID.String()}))
	r, ok := f.mem.Get(remote.Ref{Type: remote.TypePottyRecord, ID: op.Target})
	require.True(t, ok)
	require.Equal(t, "staff-1", r.ModifiedBy)
	require.Empty(t, f.e.LastError())
}

func TestAddPottyRecord_FailureRollsBack(t *testing.T) {
	f := newFixture(t)
	_, visitID := f.seed("Max", time.Hour)
	f.seedPotty(visitID, 2)
	f.refresh()

	f.failOn(memstore.OpCreate, remote.TypePottyRecord, errs.ErrTransient)
	op := f.e.AddPottyRecord(f.ctx, visitID, model.PottyPee, "")
	require.ErrorIs(t, op.Err(), errs.ErrTransient)

	require.Len(t, f.find(visitID).Visit.PottyRecords, 2)
	require.NotEmpty(t, f.e.LastError())
	require.Equal(t, 2, f.count(remote.TypePottyRecord, nil))
}

func TestAddFeedingRecord_OptimisticThenRollback(t *testing.T) {
	f := newFixture(t)
	_, visitID := f.seed("Max", time.Hour)
	f.refresh()

	release := make(chan struct{})
	f.mem.SetFault(func(op memstore.Op, ref remote.Ref) error {
		if op == memstore.OpCreate && ref.Type == remote.TypeFeedingRecord {
			<-release
			return errs.ErrTransient
		}
		return nil
	})

	op := f.e.AddFeedingRecord(f.ctx, visitID, model.FeedingBreakfast, "")
	feedings := f.find(visitID).Visit.Feedings
	require.Len(t, feedings, 1)
	require.Equal(t, model.FeedingBreakfast, feedings[0].Type)
	require.Equal(t, op.Target, feedings[0].ID)

	select {
	case <-op.Done():
		t.Fatal("operation settled before the remote write returned")
	default:
	}
	close(release)

	require.Error(t, op.Err())
	require.Empty(t, f.find(visitID).Visit.Feedings)
	require.NotEmpty(t, f.e.LastError())

	log, err := f.e.GetActivityLog()
	require.NoError(t, err)
	require.Contains(t, log, model.ActionAddFeeding)
	require.Contains(t, log, "rolled back")
}

func TestAddFeedingRecord_Validation(t *testing.T) {
	f := newFixture(t)
	_, visitID := f.seed("Max", time.Hour)
	f.refresh()

	op := f.e.AddFeedingRecord(f.ctx, visitID, model.FeedingType("brunch"), "")
	require.ErrorIs(t, op.Err(), errs.ErrValidation)

	op = f.e.AddFeedingRecord(f.ctx, uuid.Must(uuid.NewV4()), model.FeedingDinner, "")
	require.ErrorIs(t, op.Err(), errs.ErrRecordNotFound)
	require.Empty(t, f.e.LastError())
}

func TestDeleteChildRecord_TombstonesRemote(t *testing.T) {
	f := newFixture(t)
	_, visitID := f.seed("Max", time.Hour)
	f.seedPotty(visitID, 1)
	f.refresh()
	rec := f.find(visitID).Visit.PottyRecords[0]

	op := f.e.DeletePottyRecord(f.ctx, visitID, rec.ID)
	require.Empty(t, f.find(visitID).Visit.PottyRecords)
	require.NoError(t, op.Err())

	r, ok := f.mem.Get(remote.Ref{Type: remote.TypePottyRecord, ID: rec.ID})
	require.True(t, ok)
	require.True(t, r.IsDeleted)
}

func TestDeleteChildRecord_FailureRestoresPosition(t *testing.T) {
	f := newFixture(t)
	_, visitID := f.seed("Max", time.Hour)
	f.seedPotty(visitID, 3)
	f.refresh()
	before := f.find(visitID).Visit.PottyRecords

	f.failOn(memstore.OpPatch, remote.TypePottyRecord, errs.ErrPermissionDenied)
	op := f.e.DeletePottyRecord(f.ctx, visitID, before[1].ID)
	require.ErrorIs(t, op.Err(), errs.ErrPermissionDenied)
	require.Equal(t, before, f.find(visitID).Visit.PottyRecords)
}

func TestCheckIn_NewDog(t *testing.T) {
	f := newFixture(t)

	op := f.e.CheckIn(f.ctx, CheckInRequest{
		Dog:     model.PersistentDog{Name: "Bella", OwnerName: "Ann", OwnerPhone: "555-0101"},
		Details: VisitDetails{NeedsWalking: true},
	})
	d := f.find(op.Target)
	require.Equal(t, "Bella", d.Dog.Name)
	require.True(t, d.IsCurrentlyPresent(f.clock.Now()))
	require.NoError(t, op.Err())

	require.Equal(t, 1, f.mem.Len(remote.TypePersistentDog))
	v, ok := f.mem.Get(remote.Ref{Type: remote.TypeVisit, ID: op.Target})
	require.True(t, ok)
	require.Equal(t, d.DogID().String(), v.Fields["dog_id"])
	require.Equal(t, true, v.Fields["needs_walking"])

	again := f.e.CheckIn(f.ctx, CheckInRequest{
		Dog: model.PersistentDog{Name: "bella ", OwnerName: "ANN", OwnerPhone: "(555) 0101"},
	})
	require.ErrorIs(t, again.Err(), errs.ErrAlreadyPresent)
	present, err := f.e.Present()
	require.NoError(t, err)
	require.Len(t, present, 1)
}

func TestCheckIn_ReturningDogReusesProfile(t *testing.T) {
	f := newFixture(t)
	dogID, visitID := f.seed("Rex", 2*time.Hour)
	f.refresh()
	require.NoError(t, f.e.CheckOut(f.ctx, visitID, time.Time{}).Err())

	f.clock.Advance(time.Minute)
	op := f.e.CheckIn(f.ctx, CheckInRequest{Dog: model.PersistentDog{ID: dogID}})
	require.NoError(t, op.Err())

	require.Equal(t, 1, f.mem.Len(remote.TypePersistentDog))
	d := f.find(op.Target)
	require.Equal(t, dogID, d.DogID())
	require.Equal(t, "Rex", d.Dog.Name)
	require.NotNil(t, d.Dog.LastVisitAt)
	require.True(t, d.Dog.LastVisitAt.Equal(f.clock.Now()))
}

func TestCheckIn_VisitFailureRemovesNewProfile(t *testing.T) {
	f := newFixture(t)
	f.failOn(memstore.OpCreate, remote.TypeVisit, errs.ErrQuotaExceeded)

	op := f.e.CheckIn(f.ctx, CheckInRequest{Dog: model.PersistentDog{Name: "Bella"}})
	require.ErrorIs(t, op.Err(), errs.ErrQuotaExceeded)

	present, err := f.e.Present()
	require.NoError(t, err)
	require.Empty(t, present)
	require.Zero(t, f.mem.Len(remote.TypePersistentDog))
	require.Zero(t, f.mem.Len(remote.TypeVisit))
}

func TestCheckIn_RequiresName(t *testing.T) {
	f := newFixture(t)
	op := f.e.CheckIn(f.ctx, CheckInRequest{Dog: model.PersistentDog{Name: "  "}})
	require.ErrorIs(t, op.Err(), errs.ErrValidation)
}

func TestCheckOut(t *testing.T) {
	f := newFixture(t)
	_, visitID := f.seed("Max", time.Hour)
	f.refresh()

	op := f.e.CheckOut(f.ctx, visitID, time.Time{})
	require.NoError(t, op.Err())
	d := f.find(visitID)
	require.NotNil(t, d.Visit.DepartureAt)
	require.False(t, d.IsCurrentlyPresent(f.clock.Now()))

	again := f.e.CheckOut(f.ctx, visitID, time.Time{})
	require.ErrorIs(t, again.Err(), errs.ErrValidation)
}

func TestCheckOut_FailureRestoresDeparture(t *testing.T) {
	f := newFixture(t)
	_, visitID := f.seed("Max", time.Hour)
	f.refresh()

	f.failOn(memstore.OpPatch, remote.TypeVisit, errs.ErrTransient)
	require.Error(t, f.e.CheckOut(f.ctx, visitID, time.Time{}).Err())
	require.Nil(t, f.find(visitID).Visit.DepartureAt)
}

// gateStore holds patches carrying notes "slow" until released, then fails them.
type gateStore struct {
	*memstore.Store
	release chan struct{}
}

func (g *gateStore) Patch(ctx context.Context, p remote.Patch) (remote.Record, error) {
	if p.Set["notes"] == "slow" {
		<-g.release
		return remote.Record{}, errs.ErrTransient
	}
	return g.Store.Patch(ctx, p)
}

func TestRollback_KeepsNewerLocalWrite(t *testing.T) {
	gate := &gateStore{release: make(chan struct{})}
	f := newFixtureWith(t, func(m *memstore.Store) remote.Store {
		gate.Store = m
		return gate
	})
	_, visitID := f.seed("Max", time.Hour)
	f.refresh()

	slow := f.e.UpdateVisitDetails(f.ctx, visitID, VisitDetails{Notes: "slow"})
	fast := f.e.UpdateVisitDetails(f.ctx, visitID, VisitDetails{Notes: "fast"})
	require.NoError(t, fast.Err())
	close(gate.release)
	require.Error(t, slow.Err())

	require.Equal(t, "fast", f.find(visitID).Visit.Notes)
}

func TestExtendBoarding(t *testing.T) {
	f := newFixture(t)
	_, visitID := f.seed("Max", time.Hour)
	f.refresh()

	until := f.clock.Now().Add(72 * time.Hour)
	require.NoError(t, f.e.ExtendBoarding(f.ctx, visitID, until).Err())
	v := f.find(visitID).Visit
	require.True(t, v.IsBoarding)
	require.True(t, v.BoardingEndAt.Equal(until))

	rec, ok := f.mem.Get(remote.Ref{Type: remote.TypeVisit, ID: visitID})
	require.True(t, ok)
	require.Equal(t, true, rec.Fields["is_boarding"])

	bad := f.e.ExtendBoarding(f.ctx, visitID, f.clock.Now().Add(-48*time.Hour))
	require.ErrorIs(t, bad.Err(), errs.ErrValidation)
}

func TestSoftDeleteVisit(t *testing.T) {
	f := newFixture(t)
	_, visitID := f.seed("Max", time.Hour)
	_, other := f.seed("Bella", time.Hour)
	f.refresh()
	_, err := f.e.LoadHistory(f.ctx)
	require.NoError(t, err)

	require.NoError(t, f.e.SoftDeleteVisit(f.ctx, visitID).Err())

	present, err := f.e.Present()
	require.NoError(t, err)
	require.False(t, inPresent(present, visitID))
	require.True(t, inPresent(present, other))

	st, err := f.e.State()
	require.NoError(t, err)
	var found bool
	for _, d := range st.AllHistory {
		if d.ID() == visitID {
			found = true
			require.True(t, d.Visit.IsDeleted)
		}
	}
	require.True(t, found)

	rec, ok := f.mem.Get(remote.Ref{Type: remote.TypeVisit, ID: visitID})
	require.True(t, ok)
	require.True(t, rec.IsDeleted)
}

func TestSoftDeleteVisit_FailureRestores(t *testing.T) {
	f := newFixture(t)
	_, visitID := f.seed("Max", time.Hour)
	f.refresh()

	f.failOn(memstore.OpPatch, remote.TypeVisit, errs.ErrTransient)
	require.Error(t, f.e.SoftDeleteVisit(f.ctx, visitID).Err())
	f.find(visitID)
}

func TestPermanentDeleteDog(t *testing.T) {
	f := newFixture(t)
	dogID, visitID := f.seed("Max", time.Hour)
	_, other := f.seed("Bella", time.Hour)
	f.seedPotty(visitID, 2)

	// an older, soft-deleted stay of the same dog
	old := model.Visit{ID: uuid.Must(uuid.NewV4()), DogID: dogID, ArrivalAt: f.clock.Now().Add(-72 * time.Hour)}
	vr, err := remote.VisitRecord(old)
	require.NoError(t, err)
	vr.IsDeleted = true
	_, err = f.mem.Create(f.ctx, vr)
	require.NoError(t, err)
	f.seedPotty(old.ID, 1)

	f.refresh()
	_, err = f.e.LoadHistory(f.ctx)
	require.NoError(t, err)

	require.NoError(t, f.e.PermanentDeleteDog(f.ctx, dogID).Err())

	st, err := f.e.State()
	require.NoError(t, err)
	for _, d := range append(st.Present, st.AllHistory...) {
		require.NotEqual(t, dogID, d.DogID())
	}
	require.True(t, inPresent(st.Present, other))

	_, ok := f.mem.Get(remote.Ref{Type: remote.TypePersistentDog, ID: dogID})
	require.False(t, ok)
	require.Zero(t, f.count(remote.TypeVisit, map[string]string{"dog_id": dogID.String()}))
	require.Zero(t, f.count(remote.TypePottyRecord, map[string]string{"visit_id": visitID.String()}))
	require.Zero(t, f.count(remote.TypePottyRecord, map[string]string{"visit_id": old.ID.String()}))
}

func TestPermanentDeleteDog_FailureRestoresEntries(t *testing.T) {
	f := newFixture(t)
	dogID, first := f.seed("Max", time.Hour)
	f.refresh()
	before, err := f.e.Present()
	require.NoError(t, err)

	f.failOn(memstore.OpDelete, remote.TypePersistentDog, errs.ErrPermissionDenied)
	require.ErrorIs(t, f.e.PermanentDeleteDog(f.ctx, dogID).Err(), errs.ErrPermissionDenied)

	after, err := f.e.Present()
	require.NoError(t, err)
	require.Equal(t, before, after)
	require.True(t, inPresent(after, first))
}

func TestUpdateProfile_PropagatesToEveryVisit(t *testing.T) {
	f := newFixture(t)
	dogID, visitID := f.seed("Max", time.Hour)
	f.refresh()

	op := f.e.UpdateProfile(f.ctx, dogID, ProfileDetails{
		Name:       "Maximus",
		OwnerName:  "Jo",
		OwnerPhone: "555-0199",
		Allergies:  "chicken",
	})
	require.NoError(t, op.Err())
	d := f.find(visitID)
	require.Equal(t, "Maximus", d.Dog.Name)
	require.Equal(t, "chicken", d.Dog.Allergies)

	rec, ok := f.mem.Get(remote.Ref{Type: remote.TypePersistentDog, ID: dogID})
	require.True(t, ok)
	require.Equal(t, "Maximus", rec.Fields["name"])
}

// plainStore hides the memstore Patch method.
type plainStore struct{ remote.Store }

func TestUpdateVaccinations_WithoutPatcher(t *testing.T) {
	f := newFixtureWith(t, func(m *memstore.Store) remote.Store { return plainStore{m} })
	dogID, visitID := f.seed("Max", time.Hour)
	f.refresh()

	exp := f.clock.Now().Add(365 * 24 * time.Hour).Truncate(time.Second)
	vacs := []model.Vaccination{{Name: "rabies", ExpiresAt: exp}}
	require.NoError(t, f.e.UpdateVaccinations(f.ctx, dogID, vacs).Err())
	require.Equal(t, vacs, f.find(visitID).Dog.Vaccinations)

	rec, ok := f.mem.Get(remote.Ref{Type: remote.TypePersistentDog, ID: dogID})
	require.True(t, ok)
	require.Equal(t, "Max", rec.Fields["name"])
	dog, err := remote.DogFromRecord(rec)
	require.NoError(t, err)
	require.Len(t, dog.Vaccinations, 1)
	require.True(t, dog.Vaccinations[0].ExpiresAt.Equal(exp))
}

func TestUpdatePhoto(t *testing.T) {
	f := newFixture(t)
	dogID, visitID := f.seed("Max", time.Hour)
	f.refresh()

	photo := []byte{0xff, 0xd8, 0xff, 0xe0}
	op := f.e.UpdatePhoto(f.ctx, dogID, photo)
	photo[0] = 0
	require.NoError(t, op.Err())
	require.Equal(t, []byte{0xff, 0xd8, 0xff, 0xe0}, f.find(visitID).Dog.ProfilePhoto)

	log, err := f.e.GetActivityLog()
	require.NoError(t, err)
	require.Contains(t, log, model.ActionUpdatePhoto)
}

func TestDeleteFeedingAndMedicationRecords(t *testing.T) {
	f := newFixture(t)
	_, visitID := f.seed("Max", time.Hour)
	f.refresh()

	feed := f.e.AddFeedingRecord(f.ctx, visitID, model.FeedingBreakfast, "")
	require.NoError(t, feed.Err())
	med := f.e.AddMedicationRecord(f.ctx, visitID, uuid.Nil, "Apoquel", "with food")
	require.NoError(t, med.Err())
	v := f.find(visitID).Visit
	require.Len(t, v.Feedings, 1)
	require.Len(t, v.MedicationRecords, 1)

	require.NoError(t, f.e.DeleteFeedingRecord(f.ctx, visitID, v.Feedings[0].ID).Err())
	require.NoError(t, f.e.DeleteMedicationRecord(f.ctx, visitID, v.MedicationRecords[0].ID).Err())
	v = f.find(visitID).Visit
	require.Empty(t, v.Feedings)
	require.Empty(t, v.MedicationRecords)

	r, ok := f.mem.Get(remote.Ref{Type: remote.TypeMedicationRecord, ID: med.Target})
	require.True(t, ok)
	require.True(t, r.IsDeleted)

	op := f.e.DeleteFeedingRecord(f.ctx, visitID, uuid.Must(uuid.NewV4()))
	require.ErrorIs(t, op.Err(), errs.ErrRecordNotFound)
}

func TestMedicationCatalogAndDoses(t *testing.T) {
	f := newFixture(t)
	dogID, visitID := f.seed("Max", time.Hour)
	f.refresh()

	require.NoError(t, f.e.UpdateMedicationCatalog(f.ctx, dogID, []model.Medication{{Name: "Apoquel"}}).Err())
	meds := f.find(visitID).Dog.Medications
	require.Len(t, meds, 1)
	require.NotEqual(t, uuid.Nil, meds[0].ID)
	require.Equal(t, model.MedicationDaily, meds[0].Type)

	at := f.clock.Now().Add(2 * time.Hour)
	dose := f.e.AddScheduledMedication(f.ctx, visitID, meds[0].ID, at, "with food")
	require.NoError(t, dose.Err())
	doses := f.find(visitID).Visit.ScheduledMedications
	require.Len(t, doses, 1)
	require.Equal(t, model.DosePending, doses[0].Status)

	require.NoError(t, f.e.SetScheduledMedicationStatus(f.ctx, visitID, dose.Target, model.DoseGiven).Err())
	require.Equal(t, model.DoseGiven, f.find(visitID).Visit.ScheduledMedications[0].Status)

	given := f.e.AddMedicationRecord(f.ctx, visitID, meds[0].ID, "Apoquel", "")
	require.NoError(t, given.Err())
	require.Len(t, f.find(visitID).Visit.MedicationRecords, 1)
	require.Equal(t, 1, f.count(remote.TypeMedicationRecord, nil))
}

func TestNotAuthenticated_LocksSession(t *testing.T) {
	f := newFixture(t)
	_, visitID := f.seed("Max", time.Hour)
	f.refresh()

	f.failOn(memstore.OpCreate, remote.TypeFeedingRecord, errs.ErrNotAuthenticated)
	require.ErrorIs(t, f.e.AddFeedingRecord(f.ctx, visitID, model.FeedingLunch, "").Err(), errs.ErrNotAuthenticated)

	f.mem.SetFault(nil)
	op := f.e.AddFeedingRecord(f.ctx, visitID, model.FeedingLunch, "")
	require.ErrorIs(t, op.Err(), errs.ErrNotAuthenticated)
	_, err := f.e.Refresh(f.ctx)
	require.ErrorIs(t, err, errs.ErrNotAuthenticated)
	require.Empty(t, f.find(visitID).Visit.Feedings)

	f.e.ResumeSession()
	require.NoError(t, f.e.AddFeedingRecord(f.ctx, visitID, model.FeedingLunch, "").Err())
	require.Len(t, f.find(visitID).Visit.Feedings, 1)
}

func TestLastError_IsSticky(t *testing.T) {
	f := newFixture(t)
	_, visitID := f.seed("Max", time.Hour)
	f.refresh()

	f.mem.SetFault(func(memstore.Op, remote.Ref) error { return errors.New("first") })
	require.Error(t, f.e.AddPottyRecord(f.ctx, visitID, model.PottyPee, "").Err())
	f.mem.SetFault(func(memstore.Op, remote.Ref) error { return errors.New("second") })
	require.Error(t, f.e.AddPottyRecord(f.ctx, visitID, model.PottyPee, "").Err())
	require.Contains(t, f.e.LastError(), "first")

	f.e.ClearError()
	require.Empty(t, f.e.LastError())
}

func TestChangesSignal(t *testing.T) {
	f := newFixture(t)
	_, visitID := f.seed("Max", time.Hour)
	f.refresh()
	drain(f.e.Changes())

	op := f.e.AddPottyRecord(f.ctx, visitID, model.PottyPee, "")
	select {
	case <-f.e.Changes():
	case <-time.After(time.Second):
		t.Fatal("no change signal after a mutation")
	}
	require.NoError(t, op.Err())
}

func drain(ch <-chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func TestActivityLog(t *testing.T) {
	f := newFixture(t)
	dogID, visitID := f.seed("Max", time.Hour)
	f.refresh()

	require.NoError(t, f.e.AddPottyRecord(f.ctx, visitID, model.PottyPee, "").Err())
	require.NoError(t, f.e.CheckOut(f.ctx, visitID, time.Time{}).Err())

	require.Eventually(t, func() bool {
		s, err := f.e.GetActivityLog()
		return err == nil && strings.Count(s, "\n") == 2
	}, time.Second, 10*time.Millisecond)

	s, err := f.e.GetActivityLog()
	require.NoError(t, err)
	require.Contains(t, s, model.ActionAddPotty)
	require.Contains(t, s, model.ActionCheckOut)
	require.Contains(t, s, "Max("+dogID.String()+")")
	require.Contains(t, s, "Kim(staff-1)")

	require.NoError(t, f.e.ClearActivityLog())
	s, err = f.e.GetActivityLog()
	require.NoError(t, err)
	require.Empty(t, s)
}

func TestClose_RejectsMutations(t *testing.T) {
	f := newFixture(t)
	_, visitID := f.seed("Max", time.Hour)
	f.refresh()
	f.e.Close()

	op := f.e.AddPottyRecord(f.ctx, visitID, model.PottyPee, "")
	require.ErrorIs(t, op.Err(), errs.ErrClosed)
}

func TestMutationAdvancesSyncCursor(t *testing.T) {
	f := newFixture(t)
	_, visitID := f.seed("Max", time.Hour)
	f.refresh()

	f.clock.Advance(time.Minute)
	require.NoError(t, f.e.AddPottyRecord(f.ctx, visitID, model.PottyPee, "").Err())
	st, err := f.local.Load()
	require.NoError(t, err)
	require.True(t, st.LastSyncTime.Equal(f.clock.Now()))
}
