package convert

import (
	"testing"
	"time"

	u "github.com/gofrs/uuid/v5"

	model "github.com/and161185/kennelsync/internal/model"
	"github.com/and161185/kennelsync/internal/remote"
)

func mustUUID(t *testing.T, s string) u.UUID {
	t.Helper()
	id, err := u.FromString(s)
	if err != nil {
		t.Fatalf("bad uuid %q: %v", s, err)
	}
	return id
}

func TestRecordRoundtrip(t *testing.T) {
	t.Parallel()

	id := mustUUID(t, "11111111-1111-1111-1111-111111111111")
	at := time.Date(2025, 2, 3, 4, 5, 6, 789000000, time.UTC)
	in := remote.Record{
		ID:                id,
		Type:              remote.TypeVisit,
		Fields:            map[string]any{"notes": "hi", "is_boarding": true, "n": float64(2)},
		IsDeleted:         true,
		ModifiedBy:        "kim",
		ModificationCount: 7,
		CreatedAt:         at,
		UpdatedAt:         at.Add(time.Second),
	}

	msg, err := ToProtoRecord(in)
	if err != nil {
		t.Fatalf("to proto: %v", err)
	}
	out, err := FromProtoRecord(msg)
	if err != nil {
		t.Fatalf("from proto: %v", err)
	}
	if out.ID != id || out.Type != remote.TypeVisit || !out.IsDeleted || out.ModifiedBy != "kim" {
		t.Fatalf("metadata mismatch: %+v", out)
	}
	if out.ModificationCount != 7 {
		t.Fatalf("count = %d", out.ModificationCount)
	}
	if !out.CreatedAt.Equal(at) || !out.UpdatedAt.Equal(at.Add(time.Second)) {
		t.Fatalf("timestamps mismatch: %v %v", out.CreatedAt, out.UpdatedAt)
	}
	if out.Fields["notes"] != "hi" || out.Fields["is_boarding"] != true {
		t.Fatalf("fields mismatch: %v", out.Fields)
	}
}

func TestFromProtoRecords_BadType(t *testing.T) {
	t.Parallel()

	msg, err := ToProtoRecords([]remote.Record{{ID: u.Must(u.NewV4()), Type: "Cat"}})
	if err != nil {
		t.Fatalf("to proto: %v", err)
	}
	if _, err := FromProtoRecords(msg); err == nil {
		t.Fatalf("expected error for unknown type")
	}
}

func TestQueryRoundtrip(t *testing.T) {
	t.Parallel()

	id := mustUUID(t, "22222222-2222-2222-2222-222222222222")
	msg, err := ToProtoQuery(remote.TypeFeedingRecord, remote.Predicate{
		IDs:            []u.UUID{id},
		Where:          map[string]string{"visit_id": "abc"},
		IncludeDeleted: true,
	})
	if err != nil {
		t.Fatalf("to proto: %v", err)
	}
	typ, p, err := FromProtoQuery(msg)
	if err != nil {
		t.Fatalf("from proto: %v", err)
	}
	if typ != remote.TypeFeedingRecord || len(p.IDs) != 1 || p.IDs[0] != id {
		t.Fatalf("bad query: %v %+v", typ, p)
	}
	if p.Where["visit_id"] != "abc" || !p.IncludeDeleted {
		t.Fatalf("bad predicate: %+v", p)
	}
}

func TestPatchRoundtrip(t *testing.T) {
	t.Parallel()

	ref := remote.Ref{Type: remote.TypePersistentDog, ID: mustUUID(t, "33333333-3333-3333-3333-333333333333")}
	msg, err := ToProtoPatch(remote.Patch{Ref: ref, Set: map[string]any{"allergies": "corn"}, Deleted: remote.Bool(false), ModifiedBy: "kim"})
	if err != nil {
		t.Fatalf("to proto: %v", err)
	}
	p, err := FromProtoPatch(msg)
	if err != nil {
		t.Fatalf("from proto: %v", err)
	}
	if p.Ref != ref || p.Set["allergies"] != "corn" || p.Deleted == nil || *p.Deleted || p.ModifiedBy != "kim" {
		t.Fatalf("bad patch: %+v", p)
	}

	msg, _ = ToProtoPatch(remote.Patch{Ref: ref})
	p, _ = FromProtoPatch(msg)
	if p.Deleted != nil {
		t.Fatalf("absent deleted must stay nil")
	}
}

func TestModifiedSinceZero(t *testing.T) {
	t.Parallel()

	msg, err := ToProtoModifiedSince(remote.TypeVisit, time.Time{})
	if err != nil {
		t.Fatalf("to proto: %v", err)
	}
	_, since, err := FromProtoModifiedSince(msg)
	if err != nil || !since.IsZero() {
		t.Fatalf("zero since: %v %v", since, err)
	}
}

func TestLoginResponseRoundtrip(t *testing.T) {
	t.Parallel()

	exp := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	in := LoginResult{
		Tokens: model.Tokens{AccessToken: "tok", ExpiresAt: exp},
		Staff:  model.Staff{ID: mustUUID(t, "44444444-4444-4444-4444-444444444444"), Username: "kim", DisplayName: "Kim", Role: model.RoleStaff},
	}
	msg, err := ToProtoLoginResponse(in)
	if err != nil {
		t.Fatalf("to proto: %v", err)
	}
	out, err := FromProtoLoginResponse(msg)
	if err != nil {
		t.Fatalf("from proto: %v", err)
	}
	if out.Tokens.AccessToken != "tok" || !out.Tokens.ExpiresAt.Equal(exp) || out.Staff.Role != model.RoleStaff || out.Staff.DisplayName != "Kim" {
		t.Fatalf("mismatch: %+v", out)
	}
}
