// Package memberlist implements membership.Membership on hashicorp/memberlist.
// Each node gossips its PID, host, role, storage flag and suspend identity as
// JSON node metadata so every member can build the same cluster view.
package memberlist

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "net"
    "os"
    "strconv"
    "sync"
    "time"

    "github.com/hashicorp/memberlist"
    "github.com/rs/zerolog"

    "github.com/amirimatin/cluster-probe/pkg/internal/logutil"
    base "github.com/amirimatin/cluster-probe/pkg/membership"
)

// ErrMetaTooLarge is returned by Start when the encoded node metadata does not
// fit into a gossip message.
var ErrMetaTooLarge = errors.New("memberlist: node metadata too large")

// Options configures the memberlist-based membership implementation.
type Options struct {
    // NodeID is the unique node identifier.
    NodeID string

    // Bind is the bind address in host:port form (e.g. ":7946" or "0.0.0.0:7946").
    Bind string

    // Advertise is the address peers use to reach this node. Empty derives it from Bind.
    Advertise string

    // Self describes the local member; PID defaults to os.Getpid().
    Self base.MemberInfo

    Logger *zerolog.Logger

    // Tuning parameters (optional). Zero means use defaults.
    ProbeInterval time.Duration
    ProbeTimeout  time.Duration
    SuspicionMult int
}

type impl struct {
    mu     sync.RWMutex
    opts   Options
    log    *zerolog.Logger
    ml     *memberlist.Memberlist
    evts   chan base.Event
    closed bool
}

var (
    _ base.Membership     = (*impl)(nil)
    _ base.HealthReporter = (*impl)(nil)
)

// New constructs a memberlist-backed membership.
func New(opts Options) (base.Membership, error) {
    if opts.NodeID == "" { return nil, fmt.Errorf("memberlist: empty NodeID") }
    if opts.Bind == "" { return nil, fmt.Errorf("memberlist: empty Bind address") }
    if opts.Self.PID == 0 { opts.Self.PID = os.Getpid() }
    return &impl{
        opts: opts,
        log:  logutil.Named(opts.Logger, "memberlist"),
        evts: make(chan base.Event, 64),
    }, nil
}

// Start creates and launches the underlying memberlist instance.
func (m *impl) Start(ctx context.Context) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    if m.ml != nil { return nil }

    cfg := memberlist.DefaultLANConfig()
    cfg.Name = m.opts.NodeID
    host, port, err := splitHostPort(m.opts.Bind)
    if err != nil { return err }
    cfg.BindAddr, cfg.BindPort = host, port
    if m.opts.Advertise != "" {
        ahost, aport, err := splitHostPort(m.opts.Advertise)
        if err != nil { return err }
        cfg.AdvertiseAddr, cfg.AdvertisePort = ahost, aport
    }
    if m.opts.ProbeInterval > 0 { cfg.ProbeInterval = m.opts.ProbeInterval }
    if m.opts.ProbeTimeout > 0 { cfg.ProbeTimeout = m.opts.ProbeTimeout }
    if m.opts.SuspicionMult > 0 { cfg.SuspicionMult = m.opts.SuspicionMult }
    cfg.LogOutput = m.log

    self := m.opts.Self
    if self.Host == "" {
        if m.opts.Advertise != "" { self.Host, _, _ = net.SplitHostPort(m.opts.Advertise) } else { self.Host = host }
    }
    meta, err := json.Marshal(self.ToMeta())
    if err != nil { return fmt.Errorf("memberlist: encode meta: %w", err) }
    if len(meta) > memberlist.MetaMaxSize {
        return fmt.Errorf("%w: %d bytes, limit %d", ErrMetaTooLarge, len(meta), memberlist.MetaMaxSize)
    }
    cfg.Events = &eventDelegate{emit: m.emit}
    cfg.Delegate = &nodeDelegate{meta: meta}

    ml, err := memberlist.Create(cfg)
    if err != nil { return err }
    m.ml = ml
    logutil.Infof(m.log, "member %s started on %s (pid %d)", cfg.Name, ml.LocalNode().Address(), self.PID)

    go func() {
        <-ctx.Done()
        _ = m.Stop()
    }()
    return nil
}

func (m *impl) Join(seeds []string) error {
    m.mu.RLock()
    ml := m.ml
    m.mu.RUnlock()
    if ml == nil { return fmt.Errorf("memberlist: not started") }
    if len(seeds) == 0 { return nil }
    n, err := ml.Join(seeds)
    logutil.Infof(m.log, "joined %d of %d seeds", n, len(seeds))
    return err
}

func (m *impl) Local() base.MemberInfo {
    m.mu.RLock()
    defer m.mu.RUnlock()
    if m.ml == nil { return base.MemberInfo{} }
    return toMember(m.ml.LocalNode())
}

func (m *impl) Members() []base.MemberInfo {
    m.mu.RLock()
    defer m.mu.RUnlock()
    if m.ml == nil { return nil }
    nodes := m.ml.Members()
    out := make([]base.MemberInfo, 0, len(nodes))
    for _, n := range nodes { out = append(out, toMember(n)) }
    return out
}

func (m *impl) Events() <-chan base.Event { return m.evts }

func (m *impl) Leave() error {
    m.mu.RLock()
    ml := m.ml
    m.mu.RUnlock()
    if ml == nil { return nil }
    return ml.Leave(time.Second)
}

func (m *impl) Stop() error {
    m.mu.Lock()
    defer m.mu.Unlock()
    if m.closed { return nil }
    m.closed = true
    if m.ml != nil {
        _ = m.ml.Shutdown()
        m.ml = nil
    }
    close(m.evts)
    return nil
}

// HealthScore returns memberlist's awareness score (0 is healthy, higher is
// degraded) or -1 before Start.
func (m *impl) HealthScore() int {
    m.mu.RLock()
    defer m.mu.RUnlock()
    if m.ml == nil { return -1 }
    return m.ml.GetHealthScore()
}

func toMember(n *memberlist.Node) base.MemberInfo {
    meta := map[string]string{}
    if len(n.Meta) > 0 { _ = json.Unmarshal(n.Meta, &meta) }
    return base.FromMeta(n.Name, net.JoinHostPort(n.Addr.String(), strconv.Itoa(int(n.Port))), meta)
}

type eventDelegate struct{ emit func(e base.Event) }

func (d *eventDelegate) NotifyJoin(n *memberlist.Node)   { d.notify(base.EventJoin, n) }
func (d *eventDelegate) NotifyLeave(n *memberlist.Node)  { d.notify(base.EventLeave, n) }
func (d *eventDelegate) NotifyUpdate(n *memberlist.Node) { d.notify(base.EventJoin, n) }

func (d *eventDelegate) notify(t base.EventType, n *memberlist.Node) {
    if d.emit == nil || n == nil { return }
    d.emit(base.Event{Type: t, Member: toMember(n), At: time.Now()})
}

func (m *impl) emit(e base.Event) {
    // emit can race with Stop closing the channel
    defer func() { recover() }()
    select {
    case m.evts <- e:
    default:
        logutil.Warnf(m.log, "dropping %s event for %s: channel full", e.Type, e.Member.ID)
    }
}

func splitHostPort(addr string) (string, int, error) {
    host, ps, err := net.SplitHostPort(addr)
    if err != nil { return "", 0, fmt.Errorf("memberlist: invalid address %q: %w", addr, err) }
    p, err := strconv.Atoi(ps)
    if err != nil || p < 0 || p > 65535 { return "", 0, fmt.Errorf("memberlist: invalid port %q", ps) }
    return host, p, nil
}

// nodeDelegate gossips the static node metadata.
type nodeDelegate struct{ meta []byte }

// NodeMeta never truncates: a cut JSON object would decode to nothing.
func (d *nodeDelegate) NodeMeta(limit int) []byte {
    if len(d.meta) > limit { return nil }
    return d.meta
}

func (d *nodeDelegate) NotifyMsg([]byte)                       {}
func (d *nodeDelegate) GetBroadcasts(int, int) [][]byte        { return nil }
func (d *nodeDelegate) LocalState(join bool) []byte            { return nil }
func (d *nodeDelegate) MergeRemoteState(buf []byte, join bool) {}
