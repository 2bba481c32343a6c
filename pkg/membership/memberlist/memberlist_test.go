package memberlist

import (
    "context"
    "errors"
    "strings"
    "testing"
    "time"

    base "github.com/amirimatin/cluster-probe/pkg/membership"
)

func TestMemberlist_StartLocalCarriesMeta(t *testing.T) {
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    m, err := New(Options{
        NodeID: "t1", Bind: "127.0.0.1:0", ProbeInterval: 100 * time.Millisecond,
        Self: base.MemberInfo{PID: 77, Role: "storage", StorageEnabled: true, Identity: "foo"},
    })
    if err != nil { t.Fatalf("new: %v", err) }
    if err := m.Start(ctx); err != nil { t.Fatalf("start: %v", err) }
    defer m.Stop()

    local := m.Local()
    if local.ID != "t1" || local.PID != 77 || !local.StorageEnabled || local.Identity != "foo" {
        t.Fatalf("unexpected local member %+v", local)
    }
    if local.Host != "127.0.0.1" {
        t.Fatalf("host = %q", local.Host)
    }
}

func TestMemberlist_OversizedMetaRejected(t *testing.T) {
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    m, err := New(Options{
        NodeID: "big", Bind: "127.0.0.1:0",
        Self:   base.MemberInfo{PID: 5, Role: strings.Repeat("r", 600)},
    })
    if err != nil { t.Fatalf("new: %v", err) }
    defer m.Stop()
    if err := m.Start(ctx); !errors.Is(err, ErrMetaTooLarge) {
        t.Fatalf("expected ErrMetaTooLarge, got %v", err)
    }
}

func TestMemberlist_HealthScore(t *testing.T) {
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    m, err := New(Options{NodeID: "hs", Bind: "127.0.0.1:0"})
    if err != nil { t.Fatalf("new: %v", err) }
    hr := m.(base.HealthReporter)
    if got := hr.HealthScore(); got != -1 {
        t.Fatalf("score before start = %d, want -1", got)
    }
    if err := m.Start(ctx); err != nil { t.Fatalf("start: %v", err) }
    defer m.Stop()
    if got := hr.HealthScore(); got != 0 {
        t.Fatalf("score of a fresh single node = %d, want 0", got)
    }
}

func TestMemberlist_MultiNodeJoinLeave(t *testing.T) {
    ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
    defer cancel()

    n1, addr1 := startNode(t, ctx, "n1", 10)
    defer n1.Stop()
    n2, _ := startNode(t, ctx, "n2", 20)
    defer n2.Stop()
    if err := n2.Join([]string{addr1}); err != nil { t.Fatalf("n2 join: %v", err) }
    n3, _ := startNode(t, ctx, "n3", 30)
    defer n3.Stop()
    if err := n3.Join([]string{addr1}); err != nil { t.Fatalf("n3 join: %v", err) }

    awaitMembers(t, n1, 3, 5*time.Second)
    awaitMembers(t, n3, 3, 5*time.Second)

    // all nodes share 127.0.0.1, so the guard follows PID order
    all := n3.Members()
    if !base.IsClusterMember(n3.Local(), all) {
        t.Fatalf("n3 (pid 30) should be guarded by n1 (pid 10)")
    }
    if base.IsClusterMember(n1.Local(), n1.Members()) {
        t.Fatalf("n1 has the lowest pid")
    }

    _ = n2.Leave()
    _ = n2.Stop()
    awaitMembers(t, n1, 2, 5*time.Second)
    awaitMembers(t, n3, 2, 5*time.Second)
}

func startNode(t *testing.T, ctx context.Context, id string, pid int) (base.Membership, string) {
    t.Helper()
    m, err := New(Options{NodeID: id, Bind: "127.0.0.1:0", ProbeInterval: 100 * time.Millisecond, SuspicionMult: 2,
        Self: base.MemberInfo{PID: pid, StorageEnabled: true}})
    if err != nil { t.Fatalf("new %s: %v", id, err) }
    if err := m.Start(ctx); err != nil { t.Fatalf("start %s: %v", id, err) }
    la := m.Local().Addr
    if la == "" { t.Fatalf("local addr empty for %s", id) }
    return m, la
}

func awaitMembers(t *testing.T, m base.Membership, want int, timeout time.Duration) {
    t.Helper()
    deadline := time.Now().Add(timeout)
    for {
        got := m.Members()
        if len(got) == want { return }
        if time.Now().After(deadline) {
            t.Fatalf("members timeout: got=%d want=%d list=%v", len(got), want, got)
        }
        time.Sleep(100 * time.Millisecond)
    }
}
