package grpcserver

import (
	"context"
	"errors"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/and161185/kennelsync/internal/service"
)

// callFields describes the call for log lines: method, peer and, once
// authenticated, the staff member.
func callFields(ctx context.Context, method string) []zap.Field {
	fields := []zap.Field{
		zap.String("method", method),
		zap.String("peer", remoteAddr(ctx)),
	}
	if p, ok := PrincipalFromCtx(ctx); ok {
		fields = append(fields, zap.Stringer("staff", p.ID), zap.String("role", string(p.Role)))
	}
	return fields
}

// logLevel picks the level for a finished call. Expected client outcomes stay at info.
func logLevel(code codes.Code) zapcore.Level {
	switch code {
	case codes.OK, codes.NotFound, codes.AlreadyExists:
		return zapcore.InfoLevel
	case codes.Internal, codes.Unknown, codes.DataLoss:
		return zapcore.ErrorLevel
	}
	return zapcore.WarnLevel
}

// LoggingUnary logs one line per call. Record payloads are never logged.
func LoggingUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		code := status.Code(err)

		fields := append(callFields(ctx, info.FullMethod),
			zap.Stringer("code", code),
			zap.Duration("elapsed", time.Since(start)),
		)
		if err != nil {
			fields = append(fields, zap.Error(err))
		}
		if ce := log.Check(logLevel(code), "rpc"); ce != nil {
			ce.Write(fields...)
		}
		return resp, err
	}
}

// RecoverUnary turns a handler panic into codes.Internal and logs the stack.
func RecoverUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("handler panic", append(callFields(ctx, info.FullMethod),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()),
				)...)
				resp, err = nil, status.Error(codes.Internal, "internal error")
			}
		}()
		return next(ctx, req)
	}
}

// AuthUnary verifies the bearer token of every call except the public
// methods and puts the principal into the handler context.
func AuthUnary(auth service.AuthService, public ...string) grpc.UnaryServerInterceptor {
	open := make(map[string]bool, len(public))
	for _, m := range public {
		open[m] = true
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if open[info.FullMethod] {
			return next(ctx, req)
		}
		tok, err := bearerTokenFromMD(ctx)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		p, err := auth.Authenticate(tok)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid or expired token")
		}
		return next(WithPrincipal(ctx, p), req)
	}
}

func bearerTokenFromMD(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errors.New("no metadata")
	}
	for _, v := range md.Get("authorization") {
		v = strings.TrimSpace(v)
		if len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
			if t := strings.TrimSpace(v[7:]); t != "" {
				return t, nil
			}
		}
	}
	return "", errors.New("no bearer token")
}

func remoteAddr(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return ""
}
