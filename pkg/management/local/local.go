// Package local answers management queries from the in-process registry.
package local

import (
    "context"
    "errors"
    "fmt"

    "github.com/rs/zerolog"

    "github.com/amirimatin/cluster-probe/pkg/internal/logutil"
    "github.com/amirimatin/cluster-probe/pkg/management"
    "github.com/amirimatin/cluster-probe/pkg/membership"
    "github.com/amirimatin/cluster-probe/pkg/registry"
)

// Source wraps a registry. Registry errors and panics become
// management.ErrUnavailable; unknown services become management.ErrNotFound.
type Source struct {
    reg     registry.Registry
    version string
    log     *zerolog.Logger
}

var _ management.Source = (*Source)(nil)

// New returns a Source over reg. version is reported in the cluster document.
func New(reg registry.Registry, version string, logger *zerolog.Logger) *Source {
    return &Source{reg: reg, version: version, log: logutil.Named(logger, "mgmt-local")}
}

func (s *Source) Kind() string { return "local" }

func (s *Source) Cluster(ctx context.Context) (out management.ClusterInfo, err error) {
    err = s.guard("cluster", func() error {
        out = management.ClusterInfo{Version: s.version, Running: s.reg.Running()}
        if l, ok := s.reg.LocalMember(); ok { out.LocalMemberID = l.ID }
        return nil
    })
    return out, err
}

func (s *Source) Members(ctx context.Context) (out []membership.MemberInfo, err error) {
    err = s.guard("members", func() error {
        out = s.reg.Members()
        return nil
    })
    return out, err
}

func (s *Source) LocalMember(ctx context.Context) (out membership.MemberInfo, err error) {
    err = s.guard("local member", func() error {
        l, ok := s.reg.LocalMember()
        if !ok { return fmt.Errorf("%w: local member not joined", management.ErrNotFound) }
        out = l
        return nil
    })
    return out, err
}

func (s *Source) Services(ctx context.Context) (out []management.ServiceStatus, err error) {
    err = s.guard("services", func() error {
        identities := map[string]string{}
        for _, m := range s.reg.Members() { identities[m.ID] = m.Identity }
        for _, name := range s.reg.ServiceNames() {
            info, err := s.reg.Service(name)
            if errors.Is(err, registry.ErrUnknownService) { continue }
            if err != nil { return err }
            out = append(out, toStatus(info, identities))
        }
        return nil
    })
    return out, err
}

func (s *Source) Endangered(ctx context.Context, name string) (out bool, err error) {
    err = s.guard("endangered", func() error {
        info, err := s.reg.Service(name)
        if err != nil { return err }
        out = management.Endangered(toStatus(info, nil))
        return nil
    })
    return out, err
}

func (s *Source) Suspended(ctx context.Context, name string) (out bool, err error) {
    err = s.guard("suspended", func() error {
        info, err := s.reg.Service(name)
        if err != nil { return err }
        out = info.Suspended
        return nil
    })
    return out, err
}

func (s *Source) Suspend(ctx context.Context, name, identity string) error {
    return s.guard("suspend", func() error { return s.reg.Suspend(name, identity) })
}

func (s *Source) Resume(ctx context.Context, name, identity string) error {
    return s.guard("resume", func() error { return s.reg.Resume(name) })
}

// guard runs fn, mapping registry errors and panics onto management errors.
func (s *Source) guard(op string, fn func() error) (err error) {
    defer func() {
        if r := recover(); r != nil {
            logutil.Errorf(s.log, "%s: registry panic: %v", op, r)
            err = fmt.Errorf("%w: %s: panic: %v", management.ErrUnavailable, op, r)
        }
    }()
    err = fn()
    switch {
    case err == nil:
        return nil
    case errors.Is(err, registry.ErrUnknownService), errors.Is(err, management.ErrNotFound):
        return fmt.Errorf("%w: %v", management.ErrNotFound, err)
    default:
        return fmt.Errorf("%w: %s: %v", management.ErrUnavailable, op, err)
    }
}

func toStatus(info registry.ServiceInfo, identities map[string]string) management.ServiceStatus {
    st := management.ServiceStatus{
        Name:                  info.Name,
        Type:                  info.Type,
        Running:               info.Running,
        StorageEnabled:        info.LocalStorage,
        PartitionCount:        info.PartitionCount,
        BackupCount:           info.BackupCount,
        ServiceNodeCount:      info.ServiceNodeCount,
        RemainingDistribution: info.RemainingDistribution,
        HAStatus:              info.HAStatus,
        HAStatusCode:          info.HAStatusCode,
        Coordinated:           info.Coordinator != "",
        OwnedPrimary:          info.OwnedPrimary,
        PersistenceIdle:       info.PersistenceIdle,
        Suspended:             info.Suspended,
        SuspendedBy:           info.SuspendedBy,
    }
    for _, id := range info.StorageMembers {
        st.Owners = append(st.Owners, identities[id])
    }
    return st
}
