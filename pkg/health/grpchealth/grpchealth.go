// Package grpchealth exposes the probe verdicts through the standard
// grpc.health.v1.Health service: "" is liveness, "ready" readiness and "ha"
// the HA verdict.
package grpchealth

import (
    "context"
    "crypto/tls"
    "fmt"
    "net"
    "time"

    "github.com/rs/zerolog"
    "google.golang.org/grpc"
    "google.golang.org/grpc/codes"
    "google.golang.org/grpc/credentials"
    ghealth "google.golang.org/grpc/health"
    healthpb "google.golang.org/grpc/health/grpc_health_v1"
    "google.golang.org/grpc/status"

    probe "github.com/amirimatin/cluster-probe/pkg/health"
    "github.com/amirimatin/cluster-probe/pkg/internal/logutil"
    "github.com/amirimatin/cluster-probe/pkg/observability/tracing"
)

const (
    ServiceLive  = ""
    ServiceReady = "ready"
    ServiceHA    = "ha"
)

// Server serves grpc.health.v1. Check evaluates afresh on every call; Watch
// streams statuses refreshed every Interval.
type Server struct {
    bind     string
    checker  *probe.Checker
    interval time.Duration
    log      *zerolog.Logger
    tlsCfg   *tls.Config
    srv      *grpc.Server
    hs       *ghealth.Server
    lis      net.Listener
    done     chan struct{}
    err      error
}

// NewServer builds a server; interval <= 0 defaults to 5s.
func NewServer(bind string, c *probe.Checker, interval time.Duration, logger *zerolog.Logger) *Server {
    if interval <= 0 { interval = 5 * time.Second }
    return &Server{bind: bind, checker: c, interval: interval, log: logutil.Named(logger, "grpc-health"), hs: ghealth.NewServer()}
}

// UseTLS enables TLS for the gRPC server using the provided config.
func (s *Server) UseTLS(cfg *tls.Config) *Server { s.tlsCfg = cfg; return s }

// Start binds and serves in the background until ctx ends.
func (s *Server) Start(ctx context.Context) error {
    lis, err := net.Listen("tcp", s.bind)
    if err != nil { return fmt.Errorf("%w: listen %s: %v", probe.ErrTransport, s.bind, err) }
    s.lis = lis
    var opts []grpc.ServerOption
    if s.tlsCfg != nil { opts = append(opts, grpc.Creds(credentials.NewTLS(s.tlsCfg))) }
    s.srv = grpc.NewServer(opts...)
    healthpb.RegisterHealthServer(s.srv, &checkServer{Server: s.hs, s: s})
    done := make(chan struct{})
    s.done = done

    go s.refresh(ctx, done)
    go func() {
        select {
        case <-ctx.Done():
            s.Stop()
        case <-done:
        }
    }()
    srv := s.srv
    go func() {
        s.err = srv.Serve(lis)
        close(done)
    }()
    logutil.Infof(s.log, "gRPC health listening on %s", lis.Addr())
    return nil
}

// Wait blocks until the server stops; it may be called repeatedly.
func (s *Server) Wait() error {
    if s.done == nil { return nil }
    <-s.done
    return s.err
}

func (s *Server) Addr() string {
    if s.lis != nil { return s.lis.Addr().String() }
    return s.bind
}

func (s *Server) Stop() {
    if s.srv == nil { return }
    s.hs.Shutdown()
    s.srv.GracefulStop()
}

// evaluate maps a probe verdict onto a serving status.
func (s *Server) evaluate(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
    ctx, end := tracing.StartSpan(ctx, "grpc.health."+service)
    defer end()
    var (
        okay bool
        err  error
    )
    switch service {
    case ServiceLive:
        var r probe.Result
        r, err = s.checker.Live(ctx)
        okay = r.OK
    case ServiceReady:
        var r probe.Result
        r, err = s.checker.Ready(ctx)
        okay = r.OK
    case ServiceHA:
        v, herr := s.checker.HA(ctx, "")
        okay, err = v.Safe, herr
    default:
        return healthpb.HealthCheckResponse_SERVICE_UNKNOWN, status.Errorf(codes.NotFound, "unknown service %q", service)
    }
    if err != nil {
        logutil.Warnf(s.log, "check %q: %v", service, err)
        return healthpb.HealthCheckResponse_NOT_SERVING, nil
    }
    if okay { return healthpb.HealthCheckResponse_SERVING, nil }
    return healthpb.HealthCheckResponse_NOT_SERVING, nil
}

func (s *Server) refresh(ctx context.Context, done <-chan struct{}) {
    t := time.NewTicker(s.interval)
    defer t.Stop()
    for {
        for _, svc := range []string{ServiceLive, ServiceReady, ServiceHA} {
            st, _ := s.evaluate(ctx, svc)
            s.hs.SetServingStatus(svc, st)
        }
        select {
        case <-ctx.Done():
            return
        case <-done:
            return
        case <-t.C:
        }
    }
}

// checkServer answers Check from a fresh evaluation and leaves Watch and
// List to the polled grpc health server.
type checkServer struct {
    *ghealth.Server
    s *Server
}

func (c *checkServer) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
    st, err := c.s.evaluate(ctx, req.GetService())
    if err != nil { return nil, err }
    return &healthpb.HealthCheckResponse{Status: st}, nil
}
