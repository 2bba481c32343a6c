package health

import (
    "context"
    "fmt"
    "strings"

    "github.com/rs/zerolog"

    "github.com/amirimatin/cluster-probe/pkg/ha"
    "github.com/amirimatin/cluster-probe/pkg/internal/logutil"
    "github.com/amirimatin/cluster-probe/pkg/management"
    "github.com/amirimatin/cluster-probe/pkg/membership"
    "github.com/amirimatin/cluster-probe/pkg/observability/metrics"
)

// CheckerOptions configures a Checker.
type CheckerOptions struct {
    Source     management.Source
    Exclusions ha.Exclusions
    // Identity scopes suspend and resume requests.
    Identity string
    // Self identifies this process (host and PID) for the co-location guard
    // while the local member has not joined yet.
    Self membership.MemberInfo
    // Gossip, when set, is sampled on every liveness check. A score above
    // MaxGossipScore fails liveness; MaxGossipScore <= 0 only records it.
    Gossip         membership.HealthReporter
    MaxGossipScore int
    Logger         *zerolog.Logger
}

// Checker turns fresh snapshots into probe decisions. It keeps no state
// between calls.
type Checker struct {
    src  management.Source
    ex   ha.Exclusions
    id   string
    self membership.MemberInfo
    gsp  membership.HealthReporter
    gmax int
    log  *zerolog.Logger
}

func NewChecker(opts CheckerOptions) *Checker {
    return &Checker{
        src:  opts.Source,
        ex:   opts.Exclusions,
        id:   opts.Identity,
        self: opts.Self,
        gsp:  opts.Gossip,
        gmax: opts.MaxGossipScore,
        log:  logutil.Named(opts.Logger, "checker"),
    }
}

// Result is a probe decision with a short explanation.
type Result struct {
    OK     bool
    Detail string
}

func ok() Result                 { return Result{OK: true, Detail: "OK"} }
func fail(f string, a ...any) Result { return Result{Detail: fmt.Sprintf(f, a...)} }

// Ready is true once the local member joined a running cluster and every
// service it stores data for is running.
func (c *Checker) Ready(ctx context.Context) (Result, error) {
    snap, err := management.Take(ctx, c.src)
    if err != nil { return Result{}, err }
    switch {
    case !snap.Cluster.Running:
        return fail("cluster not running"), nil
    case !snap.Joined:
        return fail("local member has not joined"), nil
    }
    var stopped []string
    for _, s := range snap.Services {
        if s.StorageEnabled && !s.Running { stopped = append(stopped, s.Name) }
    }
    if len(stopped) > 0 { return fail("services not running: %s", strings.Join(stopped, ", ")), nil }
    return ok(), nil
}

// Live is true while the management source answers, the cluster runs, and
// the local member either joined or races a lower-PID member on its host.
func (c *Checker) Live(ctx context.Context) (Result, error) {
    snap, err := management.Take(ctx, c.src)
    if err != nil { return Result{}, err }
    if !snap.Cluster.Running { return fail("cluster not running"), nil }
    if c.gsp != nil {
        score := c.gsp.HealthScore()
        metrics.GossipHealth.Set(float64(score))
        if c.gmax > 0 && score > c.gmax { return fail("gossip health degraded, score %d > %d", score, c.gmax), nil }
    }
    if snap.Joined { return ok(), nil }
    if membership.IsClusterMember(c.self, snap.Members) {
        logutil.Debugf(c.log, "local member not joined; lower pid member present on %s", c.self.Host)
        return ok(), nil
    }
    return fail("local member has not joined"), nil
}

// HA evaluates the whole snapshot, or one service when name is set.
func (c *Checker) HA(ctx context.Context, name string) (ha.Verdict, error) {
    snap, err := management.Take(ctx, c.src)
    if err != nil { return ha.Verdict{}, err }
    if name != "" { return ha.EvaluateService(snap, name, c.ex) }
    v := ha.Evaluate(snap, c.ex)
    if v.Safe { metrics.HASafe.Set(1) } else { metrics.HASafe.Set(0) }
    metrics.UnsafeServices.Set(float64(len(v.Reasons)))
    if !v.Safe { logutil.Infof(c.log, "HA check %s", v) }
    return v, nil
}

// Status returns the weakest HA status name lower-cased, or "n/a".
func (c *Checker) Status(ctx context.Context) (string, error) {
    snap, err := management.Take(ctx, c.src)
    if err != nil { return "", err }
    if s := management.WeakestHAStatus(snap.Services); s != "" { return strings.ToLower(s), nil }
    return "n/a", nil
}

// Suspend applies the identity-scoped suspend plan for service ("" = all).
func (c *Checker) Suspend(ctx context.Context, service string) (ha.Plan, error) {
    snap, err := management.Take(ctx, c.src)
    if err != nil { return ha.Plan{}, err }
    plan, err := ha.SuspendPlan(snap, service, c.id)
    if err != nil { return plan, err }
    return plan, c.apply(ctx, plan, "suspend", c.src.Suspend)
}

// Resume applies the identity-scoped resume plan for service ("" = all).
func (c *Checker) Resume(ctx context.Context, service string) (ha.Plan, error) {
    snap, err := management.Take(ctx, c.src)
    if err != nil { return ha.Plan{}, err }
    plan, err := ha.ResumePlan(snap, service, c.id)
    if err != nil { return plan, err }
    return plan, c.apply(ctx, plan, "resume", c.src.Resume)
}

func (c *Checker) apply(ctx context.Context, plan ha.Plan, verb string, fn func(context.Context, string, string) error) error {
    for name, why := range plan.Skipped {
        logutil.Infof(c.log, "%s skipped %s: %s", verb, name, why)
    }
    for _, name := range plan.Apply {
        if err := fn(ctx, name, c.id); err != nil { return fmt.Errorf("%s %s: %w", verb, name, err) }
        metrics.SuspendActions.WithLabelValues(verb).Inc()
    }
    return nil
}
