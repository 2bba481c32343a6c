package local

import (
    "context"
    "errors"
    "testing"

    "github.com/amirimatin/cluster-probe/pkg/management"
    "github.com/amirimatin/cluster-probe/pkg/membership"
    "github.com/amirimatin/cluster-probe/pkg/registry"
)

func newRegistry() *registry.Memory {
    a := membership.MemberInfo{ID: "a", Host: "h1", PID: 1, StorageEnabled: true, Identity: "foo"}
    b := membership.MemberInfo{ID: "b", Host: "h2", PID: 2, StorageEnabled: true, Identity: "bar"}
    r := registry.NewMemory(registry.Options{Local: a, Members: []membership.MemberInfo{a, b}})
    r.Put(registry.Service{Name: "dist", Type: "DistributedCache", PartitionCount: 3, BackupCount: 1, Backups: []int{1, 0, 1}})
    r.Put(registry.Service{Name: "safe", Type: "DistributedCache", PartitionCount: 3, BackupCount: 1})
    return r
}

func TestSnapshotFromRegistry(t *testing.T) {
    src := New(newRegistry(), "14.1.1", nil)
    snap, err := management.Take(context.Background(), src)
    if err != nil { t.Fatalf("take: %v", err) }
    if !snap.Joined || snap.Local.ID != "a" || len(snap.Members) != 2 || snap.Cluster.Version != "14.1.1" {
        t.Fatalf("unexpected snapshot %+v", snap)
    }
    dist, _ := snap.Service("dist")
    safe, _ := snap.Service("safe")
    if !dist.Endangered || safe.Endangered {
        t.Fatalf("endangered flags wrong: dist=%v safe=%v", dist.Endangered, safe.Endangered)
    }
    if len(dist.Owners) != 2 || dist.Owners[0] != "foo" || dist.Owners[1] != "bar" {
        t.Fatalf("owners = %v", dist.Owners)
    }
    if !dist.StorageEnabled || !dist.Coordinated {
        t.Fatalf("unexpected status %+v", dist)
    }
}

func TestUnknownServiceIsNotFound(t *testing.T) {
    src := New(newRegistry(), "", nil)
    if _, err := src.Endangered(context.Background(), "nope"); !errors.Is(err, management.ErrNotFound) {
        t.Fatalf("got %v", err)
    }
    if err := src.Suspend(context.Background(), "nope", "foo"); !errors.Is(err, management.ErrNotFound) {
        t.Fatalf("got %v", err)
    }
}

func TestSuspendResume(t *testing.T) {
    src := New(newRegistry(), "", nil)
    ctx := context.Background()
    if err := src.Suspend(ctx, "dist", "foo"); err != nil { t.Fatal(err) }
    if ok, _ := src.Suspended(ctx, "dist"); !ok {
        t.Fatalf("expected suspended")
    }
    if err := src.Resume(ctx, "dist", "foo"); err != nil { t.Fatal(err) }
    if ok, _ := src.Suspended(ctx, "dist"); ok {
        t.Fatalf("expected resumed")
    }
}

type panicky struct{ registry.Registry }

func (panicky) Running() bool                { panic("engine gone") }
func (panicky) Members() []membership.MemberInfo { panic("engine gone") }

type failing struct{ *registry.Memory }

func (failing) ServiceNames() []string { return []string{"dist"} }
func (failing) Service(string) (registry.ServiceInfo, error) {
    return registry.ServiceInfo{}, registry.ErrNotRunning
}

func TestPanicsBecomeUnavailable(t *testing.T) {
    src := New(panicky{newRegistry()}, "", nil)
    if _, err := src.Cluster(context.Background()); !errors.Is(err, management.ErrUnavailable) {
        t.Fatalf("got %v", err)
    }
    if _, err := management.Take(context.Background(), src); !errors.Is(err, management.ErrUnavailable) {
        t.Fatalf("got %v", err)
    }
}

func TestRegistryErrorsBecomeUnavailable(t *testing.T) {
    src := New(failing{newRegistry()}, "", nil)
    if _, err := src.Services(context.Background()); !errors.Is(err, management.ErrUnavailable) {
        t.Fatalf("got %v", err)
    }
}

func TestNotJoined(t *testing.T) {
    src := New(registry.NewMemory(registry.Options{}), "", nil)
    if _, err := src.LocalMember(context.Background()); !errors.Is(err, management.ErrNotFound) {
        t.Fatalf("got %v", err)
    }
}
