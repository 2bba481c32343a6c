package ha

import (
    "errors"
    "strings"
    "testing"

    "github.com/amirimatin/cluster-probe/pkg/management"
)

func healthy(name string) management.ServiceStatus {
    return management.ServiceStatus{
        Name: name, StorageEnabled: true, PartitionCount: 7, BackupCount: 1, ServiceNodeCount: 2,
        HAStatus: "NODE_SAFE", Coordinated: true, OwnedPrimary: 4, PersistenceIdle: true,
        Owners: []string{"foo", "foo"},
    }
}

func snapshot(svcs ...management.ServiceStatus) *management.Snapshot {
    return &management.Snapshot{Services: svcs}
}

func TestEndangeredThenExcluded(t *testing.T) {
    bad := healthy("dist")
    bad.Endangered = true
    snap := snapshot(healthy("other"), bad)

    v := Evaluate(snap, nil)
    if v.Safe || len(v.Reasons) != 1 || !strings.Contains(v.Reasons["dist"], "endangered") {
        t.Fatalf("expected unsafe because of dist, got %v", v)
    }
    v = Evaluate(snap, ParseExclusions(" dist , x"))
    if !v.Safe {
        t.Fatalf("excluded service must not count, got %v", v)
    }
}

func TestExcludedServiceStillNeedsCoordinator(t *testing.T) {
    s := healthy("dist")
    s.Endangered = true
    s.Coordinated = false
    ex := ParseExclusions("dist")
    v := Evaluate(snapshot(s), ex)
    if v.Safe || v.Reasons["dist"] != "no distribution coordinator" {
        t.Fatalf("expected coordinator reason only, got %v", v)
    }
    if v, _ := EvaluateService(snapshot(s), "dist", ex); v.Safe {
        t.Fatalf("scoped verdict should also be unsafe")
    }
}

func TestStorageDisabledNeverCounts(t *testing.T) {
    s := healthy("dist")
    s.StorageEnabled = false
    s.Endangered = true
    s.Coordinated = false
    if v := Evaluate(snapshot(s), nil); !v.Safe {
        t.Fatalf("storage-disabled service counted: %v", v)
    }
}

func TestOtherUnsafeConditions(t *testing.T) {
    redistributing := healthy("a")
    redistributing.RemainingDistribution = 3
    redistributing.Endangered = true
    orphan := healthy("b")
    orphan.Coordinated = false
    partial := healthy("c")
    partial.ServiceNodeCount, partial.OwnedPrimary = 1, 3
    busy := healthy("d")
    busy.PersistenceIdle = false
    unknownOwnership := healthy("e")
    unknownOwnership.ServiceNodeCount, unknownOwnership.OwnedPrimary = 1, -1

    v := Evaluate(snapshot(redistributing, orphan, partial, busy, unknownOwnership), nil)
    want := map[string]string{
        "a": "redistributing",
        "b": "coordinator",
        "c": "3 of 7",
        "d": "persistence",
    }
    if v.Safe || len(v.Reasons) != len(want) {
        t.Fatalf("unexpected verdict %v", v)
    }
    for n, frag := range want {
        if !strings.Contains(v.Reasons[n], frag) {
            t.Fatalf("%s: reason %q lacks %q", n, v.Reasons[n], frag)
        }
    }
    if strings.Contains(v.Reasons["a"], "endangered") {
        t.Fatalf("redistribution supersedes the endangered reason: %q", v.Reasons["a"])
    }
    if got := v.Unsafe(); strings.Join(got, ",") != "a,b,c,d" {
        t.Fatalf("unsafe order %v", got)
    }
}

func TestSingleMemberOwningAllIsSafe(t *testing.T) {
    s := healthy("dist")
    s.ServiceNodeCount, s.OwnedPrimary = 1, 7
    if v := Evaluate(snapshot(s), nil); !v.Safe {
        t.Fatalf("got %v", v)
    }
}

func TestEvaluateService(t *testing.T) {
    bad := healthy("dist")
    bad.Endangered = true
    snap := snapshot(healthy("ok"), bad)
    if v, _ := EvaluateService(snap, "ok", nil); !v.Safe {
        t.Fatalf("ok should be safe")
    }
    if v, _ := EvaluateService(snap, "dist", nil); v.Safe {
        t.Fatalf("dist should be unsafe")
    }
    if v, _ := EvaluateService(snap, "dist", ParseExclusions("dist")); !v.Safe {
        t.Fatalf("excluded dist should be safe")
    }
    if _, err := EvaluateService(snap, "missing", nil); !errors.Is(err, management.ErrNotFound) {
        t.Fatalf("expected ErrNotFound, got %v", err)
    }
}

func TestVerdictString(t *testing.T) {
    v := Verdict{Safe: false, Reasons: map[string]string{"b": "x", "a": "y"}}
    if v.String() != "unsafe: a: y, b: x" {
        t.Fatalf("got %q", v.String())
    }
    if (Verdict{Safe: true}).String() != "safe" {
        t.Fatalf("safe string wrong")
    }
}
