package ha

import (
    "errors"
    "testing"

    "github.com/amirimatin/cluster-probe/pkg/management"
)

// apply mimics a source: suspend records the first identity, resume clears it.
func apply(snap *management.Snapshot, p Plan, suspend bool, identity string) {
    for _, name := range p.Apply {
        for i := range snap.Services {
            s := &snap.Services[i]
            if s.Name != name { continue }
            switch {
            case suspend && !s.Suspended:
                s.Suspended, s.SuspendedBy = true, identity
            case !suspend:
                s.Suspended, s.SuspendedBy = false, ""
            }
        }
    }
}

func owned(name string, owners ...string) management.ServiceStatus {
    s := healthy(name)
    s.Owners = owners
    return s
}

func TestSuspendAllOnlyTouchesOwnIdentity(t *testing.T) {
    snap := snapshot(owned("fooSvc", "foo", "foo"), owned("barSvc", "bar"), owned("shared", "foo", "bar"), owned("proxy"))
    p, err := SuspendPlan(snap, "", "foo")
    if err != nil { t.Fatal(err) }
    if len(p.Apply) != 1 || p.Apply[0] != "fooSvc" {
        t.Fatalf("unexpected plan %+v", p)
    }
    if p.Skipped["shared"] == "" || p.Skipped["proxy"] == "" || p.Skipped["barSvc"] == "" {
        t.Fatalf("skips not recorded: %+v", p.Skipped)
    }
}

func TestCrossIdentityIsolation(t *testing.T) {
    snap := snapshot(owned("fooSvc", "foo"), owned("barSvc", "bar"))
    for _, id := range []string{"foo", "bar"} {
        p, _ := SuspendPlan(snap, "", id)
        apply(snap, p, true, id)
    }
    for _, pair := range [][2]string{{"foo", "bar"}, {"bar", "foo"}} {
        own, other := pair[0], pair[1]
        ok, err := SuspendedFor(snap, own+"Svc", other)
        if err != nil || ok {
            t.Fatalf("%s must not see %sSvc as suspended by it", other, own)
        }
        if ok, _ := SuspendedFor(snap, own+"Svc", own); !ok {
            t.Fatalf("%sSvc should be suspended by %s", own, own)
        }
    }

    // bar resuming everything leaves foo's suspension in place
    p, _ := ResumePlan(snap, "", "bar")
    apply(snap, p, false, "bar")
    fooSvc, _ := snap.Service("fooSvc")
    barSvc, _ := snap.Service("barSvc")
    if !fooSvc.Suspended || barSvc.Suspended {
        t.Fatalf("bar crossed identities: foo=%v bar=%v", fooSvc.Suspended, barSvc.Suspended)
    }

    // naming foo's service explicitly does not help bar either
    p, _ = ResumePlan(snap, "fooSvc", "bar")
    if len(p.Apply) != 0 || p.Skipped["fooSvc"] != "suspended by foo" {
        t.Fatalf("unexpected named plan %+v", p)
    }
    p, _ = ResumePlan(snap, "fooSvc", "foo")
    if len(p.Apply) != 1 {
        t.Fatalf("owner should resume its own service: %+v", p)
    }
}

func TestNamedRequests(t *testing.T) {
    snap := snapshot(owned("shared", "foo", "bar"))
    p, err := SuspendPlan(snap, "shared", "foo")
    if err != nil || len(p.Apply) != 1 {
        t.Fatalf("named suspend should apply regardless of owners: %+v %v", p, err)
    }
    if _, err := SuspendPlan(snap, "missing", "foo"); !errors.Is(err, management.ErrNotFound) {
        t.Fatalf("expected ErrNotFound, got %v", err)
    }
    if _, err := ResumePlan(snap, "missing", "foo"); !errors.Is(err, management.ErrNotFound) {
        t.Fatalf("expected ErrNotFound, got %v", err)
    }
    if _, err := SuspendedFor(snap, "missing", "foo"); !errors.Is(err, management.ErrNotFound) {
        t.Fatalf("expected ErrNotFound, got %v", err)
    }
}

func TestResumeAllUnknownSuspender(t *testing.T) {
    a := owned("a", "foo")
    a.Suspended = true
    b := owned("b", "foo", "bar")
    b.Suspended = true
    p, _ := ResumePlan(snapshot(a, b), "", "foo")
    if len(p.Apply) != 1 || p.Apply[0] != "a" || p.Skipped["b"] != "suspender unknown" {
        t.Fatalf("unexpected plan %+v", p)
    }
}

func TestSuspendIsIdempotent(t *testing.T) {
    snap := snapshot(owned("fooSvc", "foo"))
    p, _ := SuspendPlan(snap, "", "foo")
    apply(snap, p, true, "foo")
    p, _ = SuspendPlan(snap, "", "foo")
    if len(p.Apply) != 0 || p.Skipped["fooSvc"] != "already suspended" {
        t.Fatalf("second suspend-all should be a no-op: %+v", p)
    }
}
