package registry

import (
    "errors"
    "testing"

    "github.com/amirimatin/cluster-probe/pkg/membership"
)

func twoMembers() (membership.MemberInfo, []membership.MemberInfo) {
    a := membership.MemberInfo{ID: "a", Host: "10.0.0.1", PID: 1, StorageEnabled: true, Identity: "foo"}
    b := membership.MemberInfo{ID: "b", Host: "10.0.0.2", PID: 2, StorageEnabled: true, Identity: "foo"}
    return a, []membership.MemberInfo{a, b}
}

func TestDeriveHealthyTwoMembers(t *testing.T) {
    local, all := twoMembers()
    r := NewMemory(Options{Local: local, Members: all})
    r.Put(Service{Name: "dist", Type: "DistributedCache", PartitionCount: 7, BackupCount: 1})

    info, err := r.Service("dist")
    if err != nil { t.Fatalf("service: %v", err) }
    if info.ServiceNodeCount != 2 || !info.LocalStorage || info.HAStatus != StatusMachineSafe {
        t.Fatalf("unexpected info %+v", info)
    }
    if info.OwnedPrimary != 4 || info.Coordinator != "a" || !info.PersistenceIdle || !info.Running {
        t.Fatalf("unexpected distribution %+v", info)
    }
}

func TestDeriveMissingBackupIsEndangered(t *testing.T) {
    local, all := twoMembers()
    r := NewMemory(Options{Local: local, Members: all})
    r.Put(Service{Name: "dist", PartitionCount: 3, BackupCount: 1, Backups: []int{1, 0, 1}})
    info, _ := r.Service("dist")
    if info.HAStatus != StatusEndangered || info.HAStatusCode != 0 {
        t.Fatalf("expected endangered, got %+v", info)
    }
}

func TestDeriveTooFewMembersForBackupCount(t *testing.T) {
    local, all := twoMembers()
    r := NewMemory(Options{Local: local, Members: all})
    r.Put(Service{Name: "dist", PartitionCount: 3, BackupCount: 2})
    info, _ := r.Service("dist")
    if info.HAStatus != StatusEndangered || info.ServiceNodeCount != 2 {
        t.Fatalf("two members cannot hold two backups, expected endangered; got %+v", info)
    }

    r.Put(Service{Name: "dist", PartitionCount: 2, BackupCount: 2, Backups: []int{1, 1}})
    if info, _ = r.Service("dist"); info.HAStatus != StatusEndangered {
        t.Fatalf("one backup of two configured must be endangered, got %s", info.HAStatus)
    }

    third := all[1]
    third.ID, third.Host = "c", "h3"
    r.SetMembers(local, append(all, third))
    r.Put(Service{Name: "dist", PartitionCount: 3, BackupCount: 2})
    if info, _ = r.Service("dist"); info.HAStatus != StatusMachineSafe {
        t.Fatalf("three members on three hosts should be machine safe, got %s", info.HAStatus)
    }
}

func TestStorageDisabledLocalMember(t *testing.T) {
    local, all := twoMembers()
    local.StorageEnabled = false
    all[0] = local
    r := NewMemory(Options{Local: local, Members: all})
    r.Put(Service{Name: "dist", PartitionCount: 3, BackupCount: 1})
    info, _ := r.Service("dist")
    if info.LocalStorage || info.ServiceNodeCount != 1 || info.OwnedPrimary != 0 {
        t.Fatalf("unexpected info %+v", info)
    }
}

func TestSuspendResumeKeepsFirstIdentity(t *testing.T) {
    local, all := twoMembers()
    r := NewMemory(Options{Local: local, Members: all})
    r.Put(Service{Name: "dist", PartitionCount: 1, BackupCount: 1})

    if err := r.Suspend("dist", "foo"); err != nil { t.Fatal(err) }
    if err := r.Suspend("dist", "bar"); err != nil { t.Fatal(err) }
    info, _ := r.Service("dist")
    if !info.Suspended || info.SuspendedBy != "foo" {
        t.Fatalf("unexpected suspend state %+v", info)
    }
    if err := r.Resume("dist"); err != nil { t.Fatal(err) }
    info, _ = r.Service("dist")
    if info.Suspended || info.SuspendedBy != "" {
        t.Fatalf("resume did not clear state %+v", info)
    }
}

func TestUnknownService(t *testing.T) {
    r := NewMemory(Options{})
    if _, err := r.Service("nope"); !errors.Is(err, ErrUnknownService) {
        t.Fatalf("got %v", err)
    }
    if err := r.Suspend("nope", "x"); !errors.Is(err, ErrUnknownService) {
        t.Fatalf("got %v", err)
    }
    if _, joined := r.LocalMember(); joined {
        t.Fatalf("empty local member must not count as joined")
    }
}

func TestStatusCodeRoundTrip(t *testing.T) {
    for c := 0; c <= 4; c++ {
        if StatusCode(StatusName(c)) != c {
            t.Fatalf("code %d did not round trip", c)
        }
    }
    if StatusCode("BOGUS") != -1 || StatusName(9) != "" {
        t.Fatalf("unknown values must not map")
    }
}
