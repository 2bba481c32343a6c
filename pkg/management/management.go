// Package management describes the cluster management capability the probe
// consumes and builds immutable per-request snapshots from it.
package management

import (
    "context"
    "errors"
    "fmt"
    "strings"
    "time"

    "github.com/amirimatin/cluster-probe/pkg/membership"
    "github.com/amirimatin/cluster-probe/pkg/observability/metrics"
    "github.com/amirimatin/cluster-probe/pkg/observability/tracing"
    "github.com/amirimatin/cluster-probe/pkg/registry"
)

// ClusterInfo is the cluster-level document.
type ClusterInfo struct {
    Name          string
    Version       string
    Running       bool
    LocalMemberID string
}

// ServiceStatus is one service as seen from the local member.
type ServiceStatus struct {
    Name    string
    Type    string
    Running bool

    // StorageEnabled reports whether the local member stores data for the service.
    StorageEnabled bool

    PartitionCount        int
    BackupCount           int
    ServiceNodeCount      int
    RemainingDistribution int
    HAStatus              string
    HAStatusCode          int
    Coordinated           bool
    // OwnedPrimary is -1 when the source cannot tell.
    OwnedPrimary          int
    PersistenceIdle       bool

    // Owners holds the suspend identities of ownership-enabled members.
    Owners []string

    Suspended   bool
    SuspendedBy string
    Endangered  bool
}

// Source is the management capability. Implementations are chosen once at
// construction and queried fresh on every call.
type Source interface {
    Kind() string
    Cluster(ctx context.Context) (ClusterInfo, error)
    Members(ctx context.Context) ([]membership.MemberInfo, error)
    // LocalMember returns ErrNotFound when the local member has not joined.
    LocalMember(ctx context.Context) (membership.MemberInfo, error)
    Services(ctx context.Context) ([]ServiceStatus, error)
    Endangered(ctx context.Context, service string) (bool, error)
    Suspended(ctx context.Context, service string) (bool, error)
    Suspend(ctx context.Context, service, identity string) error
    Resume(ctx context.Context, service, identity string) error
}

// Snapshot is a point-in-time view; nothing mutates it after Take returns.
type Snapshot struct {
    Cluster  ClusterInfo
    Local    membership.MemberInfo
    Joined   bool
    Members  []membership.MemberInfo
    Services []ServiceStatus
    TakenAt  time.Time
}

// Service returns the named service or ErrNotFound.
func (s *Snapshot) Service(name string) (ServiceStatus, error) {
    for _, svc := range s.Services {
        if svc.Name == name { return svc, nil }
    }
    return ServiceStatus{}, fmt.Errorf("%w: service %q", ErrNotFound, name)
}

// Take queries src once for every part of the snapshot; per-service flags
// come from the Services answer, not from further calls. A missing local
// member yields Joined=false rather than an error.
func Take(ctx context.Context, src Source) (*Snapshot, error) {
    ctx, end := tracing.StartSpan(ctx, "management.snapshot")
    defer end()
    snap, err := take(ctx, src)
    if err != nil {
        metrics.ManagementErrors.WithLabelValues(src.Kind()).Inc()
        tracing.RecordError(ctx, err)
        return nil, err
    }
    metrics.ClusterMembers.Set(float64(len(snap.Members)))
    return snap, nil
}

func take(ctx context.Context, src Source) (*Snapshot, error) {
    cl, err := src.Cluster(ctx)
    if err != nil { return nil, unavailable("cluster", err) }
    snap := &Snapshot{Cluster: cl, TakenAt: time.Now()}
    if snap.Members, err = src.Members(ctx); err != nil { return nil, unavailable("members", err) }
    local, err := src.LocalMember(ctx)
    switch {
    case err == nil:
        snap.Local, snap.Joined = local, true
    case isNotFound(err):
    default:
        return nil, unavailable("local member", err)
    }
    svcs, err := src.Services(ctx)
    if err != nil { return nil, unavailable("services", err) }
    // Derived from the same Services answer so the snapshot stays point in time.
    for i := range svcs { svcs[i].Endangered = Endangered(svcs[i]) }
    snap.Services = svcs
    return snap, nil
}

// Endangered is the shared endangered rule: only a service with more than one
// storage member and a non-zero backup count can be endangered, and then only
// when its HA status says so.
func Endangered(s ServiceStatus) bool {
    if s.ServiceNodeCount <= 1 || s.BackupCount <= 0 { return false }
    return strings.EqualFold(s.HAStatus, registry.StatusEndangered)
}

// WeakestHAStatus returns the lowest ranked HA status across services, or ""
// when no service reports one.
func WeakestHAStatus(svcs []ServiceStatus) string {
    weakest, rank := "", -1
    for _, s := range svcs {
        code := registry.StatusCode(strings.ToUpper(s.HAStatus))
        if code < 0 { continue }
        if rank < 0 || code < rank { weakest, rank = registry.StatusName(code), code }
    }
    return weakest
}

func unavailable(what string, err error) error {
    if errors.Is(err, ErrUnavailable) { return fmt.Errorf("%s: %w", what, err) }
    return fmt.Errorf("%w: %s: %v", ErrUnavailable, what, err)
}
