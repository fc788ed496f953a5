// Package convert maps domain values to and from the structpb documents
// exchanged over the RecordStore service.
package convert

import (
	"fmt"
	"time"

	u "github.com/gofrs/uuid/v5"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/kennelsync/internal/model"
	"github.com/and161185/kennelsync/internal/remote"
)

// --- helpers ---

func ts(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTS(v any) (time.Time, error) {
	s, _ := v.(string)
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func parseID(v any) (u.UUID, error) {
	s, _ := v.(string)
	id, err := u.FromString(s)
	if err != nil {
		return u.Nil, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return id, nil
}

func str(m map[string]any, k string) string {
	s, _ := m[k].(string)
	return s
}

func boolean(m map[string]any, k string) bool {
	b, _ := m[k].(bool)
	return b
}

func toStruct(m map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("to struct: %w", err)
	}
	return s, nil
}

// --- Record ---

func recordMap(r remote.Record) map[string]any {
	fields := r.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	return map[string]any{
		"id":                 r.ID.String(),
		"type":               string(r.Type),
		"fields":             fields,
		"is_deleted":         r.IsDeleted,
		"modified_by":        r.ModifiedBy,
		"modification_count": float64(r.ModificationCount),
		"created_at":         ts(r.CreatedAt),
		"updated_at":         ts(r.UpdatedAt),
	}
}

func recordFromMap(m map[string]any) (remote.Record, error) {
	var r remote.Record
	if m == nil {
		return r, fmt.Errorf("nil record")
	}
	id, err := parseID(m["id"])
	if err != nil {
		return r, err
	}
	t := remote.EntityType(str(m, "type"))
	if !t.Valid() {
		return r, fmt.Errorf("unknown entity type %q", t)
	}
	created, err := parseTS(m["created_at"])
	if err != nil {
		return r, fmt.Errorf("created_at: %w", err)
	}
	updated, err := parseTS(m["updated_at"])
	if err != nil {
		return r, fmt.Errorf("updated_at: %w", err)
	}
	fields, _ := m["fields"].(map[string]any)
	if fields == nil {
		fields = map[string]any{}
	}
	count, _ := m["modification_count"].(float64)
	return remote.Record{
		ID:                id,
		Type:              t,
		Fields:            fields,
		IsDeleted:         boolean(m, "is_deleted"),
		ModifiedBy:        str(m, "modified_by"),
		ModificationCount: int64(count),
		CreatedAt:         created,
		UpdatedAt:         updated,
	}, nil
}

// ToProtoRecord wraps one record in a {"record": ...} document.
func ToProtoRecord(r remote.Record) (*structpb.Struct, error) {
	return toStruct(map[string]any{"record": recordMap(r)})
}

// FromProtoRecord unwraps a {"record": ...} document.
func FromProtoRecord(in *structpb.Struct) (remote.Record, error) {
	if in == nil {
		return remote.Record{}, fmt.Errorf("nil message")
	}
	m, _ := in.AsMap()["record"].(map[string]any)
	return recordFromMap(m)
}

// ToProtoRecords wraps records in a {"records": [...]} document.
func ToProtoRecords(rs []remote.Record) (*structpb.Struct, error) {
	list := make([]any, 0, len(rs))
	for _, r := range rs {
		list = append(list, recordMap(r))
	}
	return toStruct(map[string]any{"records": list})
}

// FromProtoRecords unwraps a {"records": [...]} document.
func FromProtoRecords(in *structpb.Struct) ([]remote.Record, error) {
	if in == nil {
		return nil, fmt.Errorf("nil message")
	}
	list, _ := in.AsMap()["records"].([]any)
	out := make([]remote.Record, 0, len(list))
	for i, it := range list {
		m, _ := it.(map[string]any)
		r, err := recordFromMap(m)
		if err != nil {
			return nil, fmt.Errorf("record[%d]: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// --- Query ---

// ToProtoQuery encodes a Query request.
func ToProtoQuery(t remote.EntityType, p remote.Predicate) (*structpb.Struct, error) {
	ids := make([]any, 0, len(p.IDs))
	for _, id := range p.IDs {
		ids = append(ids, id.String())
	}
	where := make(map[string]any, len(p.Where))
	for k, v := range p.Where {
		where[k] = v
	}
	return toStruct(map[string]any{
		"type":            string(t),
		"ids":             ids,
		"where":           where,
		"include_deleted": p.IncludeDeleted,
	})
}

// FromProtoQuery decodes a Query request.
func FromProtoQuery(in *structpb.Struct) (remote.EntityType, remote.Predicate, error) {
	var p remote.Predicate
	if in == nil {
		return "", p, fmt.Errorf("nil message")
	}
	m := in.AsMap()
	t := remote.EntityType(str(m, "type"))
	if !t.Valid() {
		return "", p, fmt.Errorf("unknown entity type %q", t)
	}
	ids, _ := m["ids"].([]any)
	for i, v := range ids {
		id, err := parseID(v)
		if err != nil {
			return "", p, fmt.Errorf("ids[%d]: %w", i, err)
		}
		p.IDs = append(p.IDs, id)
	}
	if where, ok := m["where"].(map[string]any); ok && len(where) > 0 {
		p.Where = make(map[string]string, len(where))
		for k, v := range where {
			p.Where[k] = remote.FieldText(v)
		}
	}
	p.IncludeDeleted = boolean(m, "include_deleted")
	return t, p, nil
}

// ToProtoModifiedSince encodes a QueryModifiedSince request.
func ToProtoModifiedSince(t remote.EntityType, since time.Time) (*structpb.Struct, error) {
	return toStruct(map[string]any{"type": string(t), "since": ts(since)})
}

// FromProtoModifiedSince decodes a QueryModifiedSince request.
func FromProtoModifiedSince(in *structpb.Struct) (remote.EntityType, time.Time, error) {
	if in == nil {
		return "", time.Time{}, fmt.Errorf("nil message")
	}
	m := in.AsMap()
	t := remote.EntityType(str(m, "type"))
	if !t.Valid() {
		return "", time.Time{}, fmt.Errorf("unknown entity type %q", t)
	}
	since, err := parseTS(m["since"])
	if err != nil {
		return "", time.Time{}, fmt.Errorf("since: %w", err)
	}
	return t, since, nil
}

// --- Patch / Delete ---

// ToProtoPatch encodes a Patch request. Set values must already be JSON-shaped.
func ToProtoPatch(p remote.Patch) (*structpb.Struct, error) {
	set := p.Set
	if set == nil {
		set = map[string]any{}
	}
	m := map[string]any{
		"type":        string(p.Type),
		"id":          p.ID.String(),
		"set":         set,
		"modified_by": p.ModifiedBy,
	}
	if p.Deleted != nil {
		m["deleted"] = *p.Deleted
	}
	return toStruct(m)
}

// FromProtoPatch decodes a Patch request.
func FromProtoPatch(in *structpb.Struct) (remote.Patch, error) {
	var p remote.Patch
	if in == nil {
		return p, fmt.Errorf("nil message")
	}
	m := in.AsMap()
	ref, err := refFromMap(m)
	if err != nil {
		return p, err
	}
	p.Ref = ref
	p.Set, _ = m["set"].(map[string]any)
	if d, ok := m["deleted"].(bool); ok {
		p.Deleted = &d
	}
	p.ModifiedBy = str(m, "modified_by")
	return p, nil
}

// ToProtoRef encodes a Delete request.
func ToProtoRef(ref remote.Ref) (*structpb.Struct, error) {
	return toStruct(map[string]any{"type": string(ref.Type), "id": ref.ID.String()})
}

// FromProtoRef decodes a Delete request.
func FromProtoRef(in *structpb.Struct) (remote.Ref, error) {
	if in == nil {
		return remote.Ref{}, fmt.Errorf("nil message")
	}
	return refFromMap(in.AsMap())
}

func refFromMap(m map[string]any) (remote.Ref, error) {
	t := remote.EntityType(str(m, "type"))
	if !t.Valid() {
		return remote.Ref{}, fmt.Errorf("unknown entity type %q", t)
	}
	id, err := parseID(m["id"])
	if err != nil {
		return remote.Ref{}, err
	}
	return remote.Ref{Type: t, ID: id}, nil
}

// --- Login ---

// LoginResult is what a successful Login returns to the client.
type LoginResult struct {
	Tokens model.Tokens
	Staff  model.Staff
}

// ToProtoLoginRequest encodes credentials.
func ToProtoLoginRequest(username, password string) (*structpb.Struct, error) {
	return toStruct(map[string]any{"username": username, "password": password})
}

// FromProtoLoginRequest decodes credentials.
func FromProtoLoginRequest(in *structpb.Struct) (username, password string) {
	if in == nil {
		return "", ""
	}
	m := in.AsMap()
	return str(m, "username"), str(m, "password")
}

// ToProtoLoginResponse encodes the issued token and the staff identity.
func ToProtoLoginResponse(res LoginResult) (*structpb.Struct, error) {
	return toStruct(map[string]any{
		"access_token": res.Tokens.AccessToken,
		"expires_at":   ts(res.Tokens.ExpiresAt),
		"staff_id":     res.Staff.ID.String(),
		"username":     res.Staff.Username,
		"display_name": res.Staff.DisplayName,
		"role":         string(res.Staff.Role),
	})
}

// FromProtoLoginResponse decodes a Login response.
func FromProtoLoginResponse(in *structpb.Struct) (LoginResult, error) {
	var res LoginResult
	if in == nil {
		return res, fmt.Errorf("nil message")
	}
	m := in.AsMap()
	res.Tokens.AccessToken = str(m, "access_token")
	if res.Tokens.AccessToken == "" {
		return res, fmt.Errorf("empty access token")
	}
	exp, err := parseTS(m["expires_at"])
	if err != nil {
		return res, fmt.Errorf("expires_at: %w", err)
	}
	res.Tokens.ExpiresAt = exp
	id, err := parseID(m["staff_id"])
	if err != nil {
		return res, err
	}
	res.Staff = model.Staff{
		ID:          id,
		Username:    str(m, "username"),
		DisplayName: str(m, "display_name"),
		Role:        model.Role(str(m, "role")),
	}
	return res, nil
}
