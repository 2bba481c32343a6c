package registry

import (
    "context"
    "fmt"
    "sort"
    "sync"

    "github.com/rs/zerolog"

    "github.com/amirimatin/cluster-probe/pkg/internal/logutil"
    "github.com/amirimatin/cluster-probe/pkg/membership"
    "github.com/amirimatin/cluster-probe/pkg/observability/metrics"
)

// Service is the mutable state of one partitioned service.
type Service struct {
    Name           string
    Type           string
    PartitionCount int
    BackupCount    int

    // StorageMembers restricts ownership to these member IDs. Nil means every
    // storage-enabled member in the current view.
    StorageMembers []string
    // Backups holds in-sync backup copies per partition. Nil means every
    // partition holds as many backups as the member count allows.
    Backups []int
    // PrimaryOwners holds the owning member ID per partition. Nil spreads
    // partitions round-robin over the sorted storage members.
    PrimaryOwners []string

    RemainingDistribution int
    // Coordinator is the distribution coordinator's member ID; empty selects
    // the lowest-ID storage member. NoCoordinator leaves the service without one.
    Coordinator       string
    NoCoordinator     bool
    PersistenceActive bool
    Stopped           bool

    Suspended   bool
    SuspendedBy string
}

// Options configures a Memory registry. Either Membership or Local/Members
// provide the member view.
type Options struct {
    Membership membership.Membership
    Local      membership.MemberInfo
    Members    []membership.MemberInfo
    Logger     *zerolog.Logger
}

// Memory is a Registry kept in process memory.
type Memory struct {
    opts     Options
    log      *zerolog.Logger
    mu       sync.RWMutex
    running  bool
    services map[string]*Service
}

var _ Registry = (*Memory)(nil)

// NewMemory returns a running registry with no services.
func NewMemory(opts Options) *Memory {
    return &Memory{
        opts:     opts,
        log:      logutil.Named(opts.Logger, "registry"),
        running:  true,
        services: make(map[string]*Service),
    }
}

// Put adds or replaces a service definition.
func (r *Memory) Put(s Service) {
    r.mu.Lock()
    defer r.mu.Unlock()
    cp := s
    r.services[s.Name] = &cp
}

// Update mutates a service in place under the registry lock.
func (r *Memory) Update(name string, fn func(*Service)) error {
    r.mu.Lock()
    defer r.mu.Unlock()
    s, ok := r.services[name]
    if !ok { return fmt.Errorf("%w: %s", ErrUnknownService, name) }
    fn(s)
    return nil
}

func (r *Memory) Remove(name string) {
    r.mu.Lock()
    delete(r.services, name)
    r.mu.Unlock()
}

// SetRunning flips the cluster running flag.
func (r *Memory) SetRunning(v bool) {
    r.mu.Lock()
    r.running = v
    r.mu.Unlock()
}

func (r *Memory) Running() bool {
    r.mu.RLock()
    defer r.mu.RUnlock()
    return r.running
}

func (r *Memory) LocalMember() (membership.MemberInfo, bool) {
    if ms := r.opts.Membership; ms != nil {
        l := ms.Local()
        return l, l.ID != ""
    }
    r.mu.RLock()
    defer r.mu.RUnlock()
    l := r.opts.Local
    return l, l.ID != ""
}

func (r *Memory) Members() []membership.MemberInfo {
    if ms := r.opts.Membership; ms != nil { return ms.Members() }
    r.mu.RLock()
    defer r.mu.RUnlock()
    return append([]membership.MemberInfo(nil), r.opts.Members...)
}

// SetMembers replaces the static member view.
func (r *Memory) SetMembers(local membership.MemberInfo, all []membership.MemberInfo) {
    r.mu.Lock()
    r.opts.Local = local
    r.opts.Members = append([]membership.MemberInfo(nil), all...)
    r.mu.Unlock()
}

func (r *Memory) ServiceNames() []string {
    r.mu.RLock()
    defer r.mu.RUnlock()
    names := make([]string, 0, len(r.services))
    for n := range r.services { names = append(names, n) }
    sort.Strings(names)
    return names
}

func (r *Memory) Service(name string) (ServiceInfo, error) {
    members := r.Members()
    local, _ := r.LocalMember()
    r.mu.RLock()
    defer r.mu.RUnlock()
    s, ok := r.services[name]
    if !ok { return ServiceInfo{}, fmt.Errorf("%w: %s", ErrUnknownService, name) }
    return derive(s, local, members), nil
}

func (r *Memory) Suspend(name, identity string) error {
    r.mu.Lock()
    defer r.mu.Unlock()
    s, ok := r.services[name]
    if !ok { return fmt.Errorf("%w: %s", ErrUnknownService, name) }
    if s.Suspended { return nil }
    s.Suspended, s.SuspendedBy = true, identity
    logutil.Infof(r.log, "service %s suspended by %q", name, identity)
    return nil
}

func (r *Memory) Resume(name string) error {
    r.mu.Lock()
    defer r.mu.Unlock()
    s, ok := r.services[name]
    if !ok { return fmt.Errorf("%w: %s", ErrUnknownService, name) }
    if !s.Suspended { return nil }
    s.Suspended, s.SuspendedBy = false, ""
    logutil.Infof(r.log, "service %s resumed", name)
    return nil
}

// Watch follows membership events until ctx ends or the event channel
// closes, logging changes and tracking the member count.
func (r *Memory) Watch(ctx context.Context) {
    ms := r.opts.Membership
    if ms == nil { return }
    evts := ms.Events()
    for {
        select {
        case <-ctx.Done():
            return
        case e, ok := <-evts:
            if !ok { return }
            logutil.Infof(r.log, "member %s %s (%s pid %d)", e.Member.ID, e.Type, e.Member.Host, e.Member.PID)
            metrics.ClusterMembers.Set(float64(len(ms.Members())))
        }
    }
}

func derive(s *Service, local membership.MemberInfo, members []membership.MemberInfo) ServiceInfo {
    storage := storageMembers(s, members)
    info := ServiceInfo{
        Name:                  s.Name,
        Type:                  s.Type,
        Running:               !s.Stopped,
        Suspended:             s.Suspended,
        SuspendedBy:           s.SuspendedBy,
        PartitionCount:        s.PartitionCount,
        BackupCount:           s.BackupCount,
        ServiceNodeCount:      len(storage),
        RemainingDistribution: s.RemainingDistribution,
        PersistenceIdle:       !s.PersistenceActive,
        StorageMembers:        ids(storage),
    }
    for _, m := range storage {
        if m.ID == local.ID { info.LocalStorage = true }
    }
    if !s.NoCoordinator {
        info.Coordinator = s.Coordinator
        if info.Coordinator == "" && len(storage) > 0 { info.Coordinator = storage[0].ID }
    }
    info.OwnedPrimary = ownedPrimary(s, storage, local.ID)
    info.HAStatus = haStatus(s, storage)
    info.HAStatusCode = StatusCode(info.HAStatus)
    return info
}

// storageMembers returns the ownership-enabled members sorted by ID.
func storageMembers(s *Service, members []membership.MemberInfo) []membership.MemberInfo {
    allow := map[string]bool{}
    for _, id := range s.StorageMembers { allow[id] = true }
    var out []membership.MemberInfo
    for _, m := range members {
        if s.StorageMembers != nil {
            if allow[m.ID] { out = append(out, m) }
            continue
        }
        if m.StorageEnabled { out = append(out, m) }
    }
    sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
    return out
}

func ownedPrimary(s *Service, storage []membership.MemberInfo, localID string) int {
    n := 0
    if s.PrimaryOwners != nil {
        for _, id := range s.PrimaryOwners {
            if id == localID { n++ }
        }
        return n
    }
    for p := 0; p < s.PartitionCount && len(storage) > 0; p++ {
        if storage[p%len(storage)].ID == localID { n++ }
    }
    return n
}

func haStatus(s *Service, storage []membership.MemberInfo) string {
    nodes := len(storage)
    if nodes <= 1 || s.BackupCount == 0 { return StatusEndangered }
    // Each backup needs its own member besides the primary owner.
    if nodes-1 < s.BackupCount { return StatusEndangered }
    for _, b := range s.Backups {
        if b < s.BackupCount { return StatusEndangered }
    }
    hosts := map[string]struct{}{}
    for _, m := range storage { hosts[m.Host] = struct{}{} }
    if len(hosts) > 1 { return StatusMachineSafe }
    return StatusNodeSafe
}

func ids(ms []membership.MemberInfo) []string {
    out := make([]string, len(ms))
    for i, m := range ms { out[i] = m.ID }
    return out
}
