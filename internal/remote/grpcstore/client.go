// Package grpcstore is the remote.Store implementation speaking the
// kennel.store.v1.RecordStore gRPC service.
package grpcstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	retry "github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/kennelsync/internal/api"
	"github.com/and161185/kennelsync/internal/convert"
	"github.com/and161185/kennelsync/internal/errs"
	"github.com/and161185/kennelsync/internal/remote"
)

const (
	DefaultTimeout     = 15 * time.Second
	DefaultReadRetries = 2
	defaultBackoff     = 200 * time.Millisecond
)

// Client talks to a RecordStore server over an established connection.
type Client struct {
	cc          grpc.ClientConnInterface
	log         *zap.Logger
	timeout     time.Duration
	readRetries uint64
	backoff     time.Duration
}

var (
	_ remote.Store   = (*Client)(nil)
	_ remote.Patcher = (*Client)(nil)
)

// New wraps cc. Reads are retried readRetries times on transient failures,
// writes are never retried.
func New(cc grpc.ClientConnInterface, log *zap.Logger, timeout time.Duration, readRetries int) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if readRetries < 0 {
		readRetries = 0
	}
	return &Client{cc: cc, log: log, timeout: timeout, readRetries: uint64(readRetries), backoff: defaultBackoff}
}

func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct) (*structpb.Struct, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	out, err := api.Invoke(ctx, c.cc, method, in)
	if err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

func (c *Client) read(ctx context.Context, method string, in *structpb.Struct) (*structpb.Struct, error) {
	var out *structpb.Struct
	b := retry.WithMaxRetries(c.readRetries, retry.NewExponential(c.backoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		res, err := c.invoke(ctx, method, in)
		if err != nil {
			if errors.Is(err, errs.ErrTransient) {
				c.log.Debug("retrying read", zap.String("method", method), zap.Error(err))
				return retry.RetryableError(err)
			}
			return err
		}
		out = res
		return nil
	})
	return out, err
}

// Login exchanges credentials for an access token.
func (c *Client) Login(ctx context.Context, username, password string) (convert.LoginResult, error) {
	in, err := convert.ToProtoLoginRequest(username, password)
	if err != nil {
		return convert.LoginResult{}, err
	}
	out, err := c.invoke(ctx, api.MethodLogin, in)
	if err != nil {
		return convert.LoginResult{}, err
	}
	return convert.FromProtoLoginResponse(out)
}

// Query implements remote.Store.
func (c *Client) Query(ctx context.Context, t remote.EntityType, p remote.Predicate) ([]remote.Record, error) {
	in, err := convert.ToProtoQuery(t, p)
	if err != nil {
		return nil, err
	}
	out, err := c.read(ctx, api.MethodQuery, in)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", t, err)
	}
	return convert.FromProtoRecords(out)
}

// QueryModifiedSince implements remote.Store.
func (c *Client) QueryModifiedSince(ctx context.Context, t remote.EntityType, since time.Time) ([]remote.Record, error) {
	in, err := convert.ToProtoModifiedSince(t, since)
	if err != nil {
		return nil, err
	}
	out, err := c.read(ctx, api.MethodQueryModifiedSince, in)
	if err != nil {
		return nil, fmt.Errorf("query %s since %s: %w", t, since.Format(time.RFC3339), err)
	}
	return convert.FromProtoRecords(out)
}

func (c *Client) write(ctx context.Context, method string, r remote.Record) (remote.Record, error) {
	fields, err := remote.NormalizeFields(r.Fields)
	if err != nil {
		return remote.Record{}, err
	}
	r.Fields = fields
	in, err := convert.ToProtoRecord(r)
	if err != nil {
		return remote.Record{}, err
	}
	out, err := c.invoke(ctx, method, in)
	if err != nil {
		return remote.Record{}, fmt.Errorf("%s %s: %w", method, r.Ref(), err)
	}
	return convert.FromProtoRecord(out)
}

// Create implements remote.Store.
func (c *Client) Create(ctx context.Context, r remote.Record) (remote.Record, error) {
	return c.write(ctx, api.MethodCreate, r)
}

// Update implements remote.Store.
func (c *Client) Update(ctx context.Context, r remote.Record) (remote.Record, error) {
	return c.write(ctx, api.MethodUpdate, r)
}

// Patch implements remote.Patcher.
func (c *Client) Patch(ctx context.Context, p remote.Patch) (remote.Record, error) {
	set, err := remote.NormalizeFields(p.Set)
	if err != nil {
		return remote.Record{}, err
	}
	p.Set = set
	in, err := convert.ToProtoPatch(p)
	if err != nil {
		return remote.Record{}, err
	}
	out, err := c.invoke(ctx, api.MethodPatch, in)
	if err != nil {
		return remote.Record{}, fmt.Errorf("patch %s: %w", p.Ref, err)
	}
	return convert.FromProtoRecord(out)
}

// Delete implements remote.Store.
func (c *Client) Delete(ctx context.Context, ref remote.Ref) error {
	in, err := convert.ToProtoRef(ref)
	if err != nil {
		return err
	}
	if _, err := c.invoke(ctx, api.MethodDelete, in); err != nil {
		return fmt.Errorf("delete %s: %w", ref, err)
	}
	return nil
}

// mapError translates gRPC status codes into the remote error taxonomy.
func mapError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("%w: %v", errs.ErrTransient, err)
		}
		return err
	}
	msg := st.Message()
	switch st.Code() {
	case codes.Unauthenticated:
		return fmt.Errorf("%w: %s", errs.ErrNotAuthenticated, msg)
	case codes.NotFound:
		return fmt.Errorf("%w: %s", errs.ErrRecordNotFound, msg)
	case codes.PermissionDenied:
		return fmt.Errorf("%w: %s", errs.ErrPermissionDenied, msg)
	case codes.ResourceExhausted:
		return fmt.Errorf("%w: %s", errs.ErrQuotaExceeded, msg)
	case codes.AlreadyExists:
		return fmt.Errorf("%w: %s", errs.ErrAlreadyExists, msg)
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", errs.ErrValidation, msg)
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.Internal, codes.Unknown, codes.Canceled:
		return fmt.Errorf("%w: %s: %s", errs.ErrTransient, st.Code(), msg)
	default:
		return fmt.Errorf("%s: %s", st.Code(), msg)
	}
}
