// Package grpcserver exposes the kennel record store over gRPC.
package grpcserver

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/kennelsync/internal/api"
	"github.com/and161185/kennelsync/internal/convert"
	"github.com/and161185/kennelsync/internal/errs"
	"github.com/and161185/kennelsync/internal/service"
)

// Server wires services into RecordStore handlers.
type Server struct {
	auth    service.AuthService
	records service.RecordService
	log     *zap.Logger
}

var _ api.RecordStoreServer = (*Server)(nil)

// New constructs a gRPC server with injected services.
func New(auth service.AuthService, records service.RecordService, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{auth: auth, records: records, log: log}
}

// PublicMethods lists the full method names that need no bearer token.
func PublicMethods() []string { return []string{api.FullMethod(api.MethodLogin)} }

// toStatus maps service errors onto gRPC codes the client store understands.
func (s *Server) toStatus(op string, err error) error {
	switch {
	case errors.Is(err, errs.ErrUnauthorized), errors.Is(err, errs.ErrNotAuthenticated):
		return status.Error(codes.Unauthenticated, "bad credentials")
	case errors.Is(err, errs.ErrRecordNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, errs.ErrPermissionDenied):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, errs.ErrRateLimited):
		return status.Error(codes.ResourceExhausted, "rate limited")
	case errors.Is(err, errs.ErrQuotaExceeded):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, errs.ErrAlreadyExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, errs.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, op)
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, op)
	default:
		s.log.Error("request failed", zap.String("op", op), zap.Error(err))
		return status.Errorf(codes.Internal, "%s failed", op)
	}
}

func (s *Server) principal(ctx context.Context) (service.Principal, error) {
	p, ok := PrincipalFromCtx(ctx)
	if !ok {
		return service.Principal{}, status.Error(codes.Unauthenticated, "no auth")
	}
	return p, nil
}

func badRequest(err error) error { return status.Error(codes.InvalidArgument, err.Error()) }

// Login authenticates a staff member and returns an access token.
func (s *Server) Login(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	username, password := convert.FromProtoLoginRequest(in)
	if username == "" || password == "" {
		return nil, status.Error(codes.InvalidArgument, "empty username/password")
	}
	tok, st, err := s.auth.LoginWithIP(ctx, username, password, remoteAddr(ctx))
	if err != nil {
		return nil, s.toStatus("login", err)
	}
	return convert.ToProtoLoginResponse(convert.LoginResult{Tokens: tok, Staff: st})
}

// Query returns records of one type matching a predicate.
func (s *Server) Query(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	p, err := s.principal(ctx)
	if err != nil {
		return nil, err
	}
	t, pred, err := convert.FromProtoQuery(in)
	if err != nil {
		return nil, badRequest(err)
	}
	recs, err := s.records.Query(ctx, p, t, pred)
	if err != nil {
		return nil, s.toStatus("query", err)
	}
	return convert.ToProtoRecords(recs)
}

// QueryModifiedSince returns records of one type updated after a timestamp.
func (s *Server) QueryModifiedSince(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	p, err := s.principal(ctx)
	if err != nil {
		return nil, err
	}
	t, since, err := convert.FromProtoModifiedSince(in)
	if err != nil {
		return nil, badRequest(err)
	}
	recs, err := s.records.QueryModifiedSince(ctx, p, t, since)
	if err != nil {
		return nil, s.toStatus("query modified since", err)
	}
	return convert.ToProtoRecords(recs)
}

// Create inserts a record under the client-chosen id.
func (s *Server) Create(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	p, err := s.principal(ctx)
	if err != nil {
		return nil, err
	}
	r, err := convert.FromProtoRecord(in)
	if err != nil {
		return nil, badRequest(err)
	}
	out, err := s.records.Create(ctx, p, r)
	if err != nil {
		return nil, s.toStatus("create", err)
	}
	return convert.ToProtoRecord(out)
}

// Update replaces a record's fields and tombstone.
func (s *Server) Update(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	p, err := s.principal(ctx)
	if err != nil {
		return nil, err
	}
	r, err := convert.FromProtoRecord(in)
	if err != nil {
		return nil, badRequest(err)
	}
	out, err := s.records.Update(ctx, p, r)
	if err != nil {
		return nil, s.toStatus("update", err)
	}
	return convert.ToProtoRecord(out)
}

// Patch merges a partial update into a record.
func (s *Server) Patch(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	p, err := s.principal(ctx)
	if err != nil {
		return nil, err
	}
	patch, err := convert.FromProtoPatch(in)
	if err != nil {
		return nil, badRequest(err)
	}
	out, err := s.records.Patch(ctx, p, patch)
	if err != nil {
		return nil, s.toStatus("patch", err)
	}
	return convert.ToProtoRecord(out)
}

// Delete removes a record permanently.
func (s *Server) Delete(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	p, err := s.principal(ctx)
	if err != nil {
		return nil, err
	}
	ref, err := convert.FromProtoRef(in)
	if err != nil {
		return nil, badRequest(err)
	}
	if err := s.records.Delete(ctx, p, ref); err != nil {
		return nil, s.toStatus("delete", err)
	}
	return &structpb.Struct{}, nil
}
