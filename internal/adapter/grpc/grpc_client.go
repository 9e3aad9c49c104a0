package grpc

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/SamuelSilva2021/opamenu-ecosistema-sub006/configs"
)

var ErrBadCACert = errors.New("unable to parse CA cert")

// Dial connects to the access-control service with the shared backoff and
// TLS material from config.
func Dial(ctx context.Context, cfg configs.Config) (*grpc.ClientConn, error) {
	ac := cfg.AccessControl
	if ac.Timeout <= 0 {
		ac.Timeout = 5 * time.Second
	}

	opts := []grpc.DialOption{
		grpc.WithConnectParams(grpc.ConnectParams{
			Backoff: backoff.Config{
				BaseDelay:  200 * time.Millisecond,
				Multiplier: 1.6,
				Jitter:     0.2,
				MaxDelay:   5 * time.Second,
			},
			MinConnectTimeout: ac.Timeout,
		}),
		grpc.WithDefaultServiceConfig(`{"loadBalancingPolicy":"round_robin"}`),
	}

	if ac.UseTLS {
		var creds credentials.TransportCredentials
		if ac.CACertPath != "" {
			pem, err := os.ReadFile(ac.CACertPath)
			if err != nil {
				return nil, err
			}
			pool := x509.NewCertPool()
			if ok := pool.AppendCertsFromPEM(pem); !ok {
				return nil, ErrBadCACert
			}
			tlsCfg := &tls.Config{RootCAs: pool}
			if ac.ServerName != "" {
				tlsCfg.ServerName = ac.ServerName
			}
			creds = credentials.NewTLS(tlsCfg)
		} else {
			// System CA
			creds = credentials.NewClientTLSFromCert(nil, ac.ServerName)
		}
		opts = append(opts, grpc.WithTransportCredentials(creds))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	if ac.MaxRecvBytes > 0 {
		opts = append(opts, grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(ac.MaxRecvBytes)))
	}
	if ac.MaxSendBytes > 0 {
		opts = append(opts, grpc.WithDefaultCallOptions(grpc.MaxCallSendMsgSize(ac.MaxSendBytes)))
	}

	dialCtx, cancel := context.WithTimeout(ctx, ac.Timeout)
	defer cancel()

	return grpc.DialContext(dialCtx, ac.Target, opts...)
}
