// Package bootstrap assembles a probe from a config.Config: seed resolution,
// the management source, the HTTP probe server and the optional gRPC health
// server.
package bootstrap

import (
    "context"
    "crypto/tls"
    "errors"
    "fmt"
    "os"
    "time"

    "github.com/rs/zerolog"
    "golang.org/x/sync/errgroup"

    "github.com/amirimatin/cluster-probe/pkg/config"
    "github.com/amirimatin/cluster-probe/pkg/discovery"
    dFile "github.com/amirimatin/cluster-probe/pkg/discovery/file"
    "github.com/amirimatin/cluster-probe/pkg/discovery/wka"
    "github.com/amirimatin/cluster-probe/pkg/ha"
    "github.com/amirimatin/cluster-probe/pkg/health"
    "github.com/amirimatin/cluster-probe/pkg/health/grpchealth"
    "github.com/amirimatin/cluster-probe/pkg/internal/logutil"
    "github.com/amirimatin/cluster-probe/pkg/management"
    "github.com/amirimatin/cluster-probe/pkg/management/local"
    "github.com/amirimatin/cluster-probe/pkg/management/rest"
    "github.com/amirimatin/cluster-probe/pkg/membership"
    ml "github.com/amirimatin/cluster-probe/pkg/membership/memberlist"
    "github.com/amirimatin/cluster-probe/pkg/observability/metrics"
    "github.com/amirimatin/cluster-probe/pkg/registry"
)

// Options carries collaborators that cannot come from the environment.
type Options struct {
    // Registry replaces the embedded registry, e.g. when an application
    // hosts the probe next to its own partitioned services.
    Registry registry.Registry
    // Lookup overrides DNS resolution for seeds.
    Lookup wka.Lookup
    Logger *zerolog.Logger
}

// Probe is an assembled, not yet serving, probe.
type Probe struct {
    cfg   config.Config
    log   *zerolog.Logger
    group *errgroup.Group

    // Seed is the first resolved WKA address; nil when no seeds were configured.
    Seed       *wka.ResolvedAddress
    Membership membership.Membership
    Registry   *registry.Memory
    Source     management.Source
    Checker    *health.Checker
    HTTP       *health.Server
    GRPC       *grpchealth.Server
}

// Build resolves seeds, starts membership when the embedded registry is used
// and wires the servers. It blocks while seeds are being resolved.
func Build(ctx context.Context, cfg config.Config, opts Options) (*Probe, error) {
    if err := cfg.Validate(); err != nil { return nil, err }
    metrics.Register()
    p := &Probe{cfg: cfg, log: logutil.Named(opts.Logger, "bootstrap")}

    seed, err := resolveSeeds(ctx, cfg, opts)
    switch {
    case errors.Is(err, wka.ErrNoSeeds):
        logutil.Infof(p.log, "no seeds configured; skipping WKA resolution")
    case err != nil:
        return nil, err
    default:
        p.Seed = &seed
        logutil.Infof(p.log, "seed %s resolved to %v after %d attempt(s)", seed.Seed, seed.Addrs, seed.Attempts)
    }

    self := membership.MemberInfo{PID: os.Getpid(), Role: cfg.Role, StorageEnabled: cfg.Storage, Identity: cfg.Identity}
    if h, err := os.Hostname(); err == nil { self.Host = h }

    var localSrc, remoteSrc management.Source
    if cfg.Mode != config.ModeREST {
        reg := opts.Registry
        if reg == nil {
            if reg, err = p.embedded(ctx, self, opts.Logger); err != nil { return nil, err }
        }
        localSrc = local.New(reg, cfg.ClusterVersion, opts.Logger)
    }
    if cfg.Mode != config.ModeLocal && cfg.ManagementURL != "" {
        cliTLS, err := cfg.ClientTLS(cfg.ManagementURL).Client()
        if err != nil { return nil, fmt.Errorf("management tls: %w", err) }
        if remoteSrc, err = rest.New(rest.Options{URL: cfg.ManagementURL, Timeout: cfg.ManagementTimeout, TLS: cliTLS, Logger: opts.Logger}); err != nil {
            return nil, err
        }
    }
    p.Source = management.Select(cfg.ClusterVersion, cfg.MinLocalVersion, localSrc, remoteSrc)
    if p.Source == nil { return nil, fmt.Errorf("bootstrap: no management source for mode %q", cfg.Mode) }
    logutil.Infof(p.log, "management source: %s", p.Source.Kind())

    var gossip membership.HealthReporter
    if p.Membership != nil {
        self = mergeSelf(self, p.Membership.Local())
        gossip, _ = p.Membership.(membership.HealthReporter)
    }
    p.Checker = health.NewChecker(health.CheckerOptions{
        Source:         p.Source,
        Exclusions:     ha.ParseExclusions(cfg.AllowEndangered),
        Identity:       cfg.Identity,
        Self:           self,
        Gossip:         gossip,
        MaxGossipScore: cfg.MaxGossipScore,
        Logger:         opts.Logger,
    })

    srvTLS, err := serverTLS(cfg)
    if err != nil { return nil, err }
    p.HTTP = health.NewServer(cfg.HealthAddr, p.Checker, opts.Logger)
    if srvTLS != nil { p.HTTP.UseTLS(srvTLS) }
    if cfg.GRPCAddr != "" {
        p.GRPC = grpchealth.NewServer(cfg.GRPCAddr, p.Checker, cfg.GRPCRefresh, opts.Logger)
        if srvTLS != nil { p.GRPC.UseTLS(srvTLS) }
    }
    return p, nil
}

// Start binds the servers and returns; Wait blocks until they stop.
func (p *Probe) Start(ctx context.Context) error {
    g, ctx := errgroup.WithContext(ctx)
    if err := p.HTTP.Start(ctx); err != nil { return err }
    g.Go(p.HTTP.Wait)
    if p.GRPC != nil {
        if err := p.GRPC.Start(ctx); err != nil {
            _ = p.HTTP.Stop(context.Background())
            return err
        }
        g.Go(p.GRPC.Wait)
    }
    if p.Registry != nil {
        g.Go(func() error {
            p.Registry.Watch(ctx)
            return nil
        })
    }
    p.group = g
    return nil
}

func (p *Probe) Wait() error {
    if p.group == nil { return nil }
    return p.group.Wait()
}

// Run serves until ctx ends or a server fails.
func (p *Probe) Run(ctx context.Context) error {
    if err := p.Start(ctx); err != nil { return err }
    return p.Wait()
}

// Close leaves the membership, if any.
func (p *Probe) Close() error {
    if p.Membership == nil { return nil }
    if err := p.Membership.Leave(); err != nil { logutil.Warnf(p.log, "leave: %v", err) }
    return p.Membership.Stop()
}

func resolveSeeds(ctx context.Context, cfg config.Config, opts Options) (wka.ResolvedAddress, error) {
    refs := discovery.Static(cfg.Seeds).Seeds()
    if len(refs) == 0 && cfg.SeedsFile != "" {
        refs = dFile.New(dFile.Options{Path: cfg.SeedsFile, Logger: opts.Logger}).Seeds()
    }
    r := wka.New(wka.Options{RetryInterval: cfg.RetryInterval, Timeout: cfg.ResolveTimeout, Lookup: opts.Lookup, Logger: opts.Logger})
    return r.Resolve(ctx, discovery.FromRefs(refs, cfg.WKAPort))
}

// embedded starts memberlist, joins the resolved seed and returns a registry
// holding the declared services.
func (p *Probe) embedded(ctx context.Context, self membership.MemberInfo, logger *zerolog.Logger) (registry.Registry, error) {
    id := p.cfg.NodeID
    if id == "" { id = fmt.Sprintf("%s-%d", self.Host, self.PID) }
    ms, err := ml.New(ml.Options{NodeID: id, Bind: p.cfg.MemberBind, Advertise: p.cfg.MemberAdv, Self: self, Logger: logger})
    if err != nil { return nil, err }
    if err := ms.Start(ctx); err != nil { return nil, fmt.Errorf("membership: %w", err) }
    if p.Seed != nil {
        if err := ms.Join(p.Seed.Addrs); err != nil { logutil.Warnf(p.log, "join %v: %v", p.Seed.Addrs, err) }
    }
    p.Membership = ms

    reg := registry.NewMemory(registry.Options{Membership: ms, Logger: logger})
    svcs, _ := config.ParseServices(p.cfg.Services)
    for _, s := range svcs { reg.Put(s) }
    p.Registry = reg
    return reg, nil
}

func serverTLS(cfg config.Config) (*tls.Config, error) {
    if cfg.Insecure { return nil, nil }
    c, err := cfg.TLS().ServerHotReload(time.Minute)
    if err != nil { return nil, fmt.Errorf("probe tls: %w", err) }
    return c, nil
}

// mergeSelf takes the host membership advertises so the co-location guard
// compares like with like.
func mergeSelf(self, joined membership.MemberInfo) membership.MemberInfo {
    if joined.Host != "" { self.Host = joined.Host }
    if joined.ID != "" { self.ID = joined.ID }
    return self
}
