// Package wka resolves well-known seed addresses before a member joins the
// cluster. Every attempt walks the whole seed list; attempts are separated by
// a fixed interval until one seed resolves or the timeout expires.
package wka

import (
    "context"
    "errors"
    "fmt"
    "net"
    "strconv"
    "strings"
    "time"

    retry "github.com/avast/retry-go/v4"
    "github.com/rs/zerolog"

    "github.com/amirimatin/cluster-probe/pkg/discovery"
    "github.com/amirimatin/cluster-probe/pkg/internal/logutil"
    "github.com/amirimatin/cluster-probe/pkg/observability/metrics"
    "github.com/amirimatin/cluster-probe/pkg/observability/tracing"
)

const (
    DefaultRetryInterval = 2 * time.Second
    DefaultTimeout       = 6 * time.Minute
)

// Lookup is the subset of *net.Resolver used for seed resolution.
type Lookup interface {
    LookupHost(ctx context.Context, host string) ([]string, error)
    LookupSRV(ctx context.Context, service, proto, name string) (string, []*net.SRV, error)
}

// Options configures a Resolver.
type Options struct {
    RetryInterval time.Duration
    Timeout       time.Duration
    // Lookup defaults to net.DefaultResolver.
    Lookup Lookup
    Logger *zerolog.Logger
}

// ResolvedAddress is the first seed that resolved and its socket addresses.
type ResolvedAddress struct {
    Seed     discovery.SeedAddress
    Addrs    []string
    Attempts int
    Elapsed  time.Duration
}

// Addr returns the first resolved host:port.
func (r ResolvedAddress) Addr() string {
    if len(r.Addrs) == 0 { return "" }
    return r.Addrs[0]
}

// Resolver runs the fixed-interval resolution loop.
type Resolver struct {
    opts Options
    log  *zerolog.Logger
}

// New returns a Resolver with defaults applied.
func New(opts Options) *Resolver {
    if opts.RetryInterval <= 0 { opts.RetryInterval = DefaultRetryInterval }
    if opts.Timeout <= 0 { opts.Timeout = DefaultTimeout }
    if opts.Lookup == nil { opts.Lookup = net.DefaultResolver }
    return &Resolver{opts: opts, log: logutil.Named(opts.Logger, "wka")}
}

// Resolve blocks until a seed resolves, the timeout elapses, or ctx is
// cancelled. An empty seed list returns ErrNoSeeds immediately.
func (r *Resolver) Resolve(ctx context.Context, seeds []discovery.SeedAddress) (ResolvedAddress, error) {
    if len(seeds) == 0 { return ResolvedAddress{}, ErrNoSeeds }
    ctx, end := tracing.StartSpan(ctx, "wka.resolve")
    defer end()

    start := time.Now()
    tctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
    defer cancel()

    var (
        out      ResolvedAddress
        attempts int
        last     error
    )
    err := retry.Do(
        func() error {
            attempts++
            metrics.WKAAttempts.Inc()
            seed, addrs, err := r.attempt(tctx, seeds)
            if err != nil {
                last = err
                return err
            }
            out = ResolvedAddress{Seed: seed, Addrs: addrs}
            return nil
        },
        retry.Context(tctx),
        retry.Attempts(0),
        retry.Delay(r.opts.RetryInterval),
        retry.DelayType(retry.FixedDelay),
        retry.LastErrorOnly(true),
        retry.OnRetry(func(n uint, err error) {
            logutil.Debugf(r.log, "attempt %d: %v; retrying in %s", n+1, err, r.opts.RetryInterval)
        }),
    )
    elapsed := time.Since(start)
    if err == nil {
        out.Attempts, out.Elapsed = attempts, elapsed
        metrics.WKAResolutions.WithLabelValues("ok").Inc()
        logutil.Infof(r.log, "resolved seed %s to %v after %d attempts", out.Seed, out.Addrs, attempts)
        return out, nil
    }
    if ctx.Err() != nil {
        metrics.WKAResolutions.WithLabelValues("cancelled").Inc()
        return ResolvedAddress{}, ctx.Err()
    }
    metrics.WKAResolutions.WithLabelValues("timeout").Inc()
    terr := &ResolutionTimeoutError{Elapsed: elapsed, Attempts: attempts, Seeds: seeds, Last: last}
    tracing.RecordError(ctx, terr)
    logutil.Errorf(r.log, "%v", terr)
    return ResolvedAddress{}, terr
}

// attempt tries every seed once, in order, returning the first that resolves.
func (r *Resolver) attempt(ctx context.Context, seeds []discovery.SeedAddress) (discovery.SeedAddress, []string, error) {
    var errs []error
    for _, s := range seeds {
        if err := ctx.Err(); err != nil { return s, nil, err }
        addrs, err := r.resolveSeed(ctx, s)
        if err == nil && len(addrs) > 0 { return s, addrs, nil }
        if err == nil { err = fmt.Errorf("%s: no addresses", s) }
        errs = append(errs, err)
    }
    return discovery.SeedAddress{}, nil, errors.Join(errs...)
}

func (r *Resolver) resolveSeed(ctx context.Context, s discovery.SeedAddress) ([]string, error) {
    if ip := net.ParseIP(s.Host); ip != nil {
        return []string{net.JoinHostPort(ip.String(), strconv.Itoa(s.Port))}, nil
    }
    if s.IsSRV() {
        return r.lookupSRV(ctx, s.Host)
    }
    return r.lookupHost(ctx, s.Host, s.Port)
}

func (r *Resolver) lookupSRV(ctx context.Context, fqdn string) ([]string, error) {
    svc, proto, domain := parseSRVName(fqdn)
    if svc == "" || proto == "" || domain == "" { return nil, fmt.Errorf("%s: malformed SRV name", fqdn) }
    _, recs, err := r.opts.Lookup.LookupSRV(ctx, svc, proto, domain)
    if err != nil { return nil, err }
    out := make([]string, 0, len(recs))
    for _, a := range recs {
        host := strings.TrimSuffix(a.Target, ".")
        out = append(out, net.JoinHostPort(host, strconv.Itoa(int(a.Port))))
    }
    return out, nil
}

func (r *Resolver) lookupHost(ctx context.Context, host string, port int) ([]string, error) {
    ips, err := r.opts.Lookup.LookupHost(ctx, host)
    if err != nil { return nil, err }
    out := make([]string, 0, len(ips))
    for _, ip := range ips {
        out = append(out, net.JoinHostPort(ip, strconv.Itoa(port)))
    }
    return out, nil
}

// parseSRVName splits _service._proto.name.
func parseSRVName(fqdn string) (service, proto, name string) {
    parts := strings.SplitN(fqdn, ".", 3)
    if len(parts) < 3 { return "", "", "" }
    return strings.TrimPrefix(parts[0], "_"), strings.TrimPrefix(parts[1], "_"), parts[2]
}
