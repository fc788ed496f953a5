package grpcstore

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"os"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// DialConfig selects transport security and the bearer token.
type DialConfig struct {
	CAFile     string // PEM bundle; empty means system roots
	SkipVerify bool   // dev only
	Plaintext  bool   // no TLS at all, local dev only
	Token      string // access token sent as "authorization: Bearer ..."
}

type bearerCreds struct {
	token  string
	secure bool
}

func (b bearerCreds) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + b.token}, nil
}
func (b bearerCreds) RequireTransportSecurity() bool { return b.secure }

func loadTLS(caPath string, skipVerify bool) (credentials.TransportCredentials, error) {
	if skipVerify {
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true}), nil //nolint:gosec // opt-in dev flag
	}
	if caPath == "" {
		return credentials.NewClientTLSFromCert(nil, ""), nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return credentials.NewTLS(&tls.Config{RootCAs: pool}), nil
}

// Dial creates a client connection. The connection is lazy: no I/O happens until the first call.
func Dial(addr string, cfg DialConfig, extra ...grpc.DialOption) (*grpc.ClientConn, error) {
	var creds credentials.TransportCredentials
	if cfg.Plaintext {
		creds = insecure.NewCredentials()
	} else {
		c, err := loadTLS(cfg.CAFile, cfg.SkipVerify)
		if err != nil {
			return nil, err
		}
		creds = c
	}
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithUnaryInterceptor(grpc_prometheus.UnaryClientInterceptor),
	}
	if cfg.Token != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(bearerCreds{token: cfg.Token, secure: !cfg.Plaintext}))
	}
	opts = append(opts, extra...)
	return grpc.NewClient(addr, opts...)
}
