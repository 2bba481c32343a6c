package ha

import (
    "github.com/amirimatin/cluster-probe/pkg/management"
)

// Plan lists the services a suspend or resume request applies to, plus the
// ones it deliberately leaves alone.
type Plan struct {
    Apply   []string
    Skipped map[string]string
}

// SuspendPlan scopes a suspend request. A named service is suspended as
// asked. Without a name, every storage service whose ownership-enabled
// members all carry identity is suspended; a service shared with any other
// identity is left alone.
func SuspendPlan(snap *management.Snapshot, service, identity string) (Plan, error) {
    p := Plan{Skipped: map[string]string{}}
    if service != "" {
        if _, err := snap.Service(service); err != nil { return p, err }
        p.Apply = []string{service}
        return p, nil
    }
    for _, s := range snap.Services {
        switch {
        case len(s.Owners) == 0:
            p.Skipped[s.Name] = "not storage enabled"
        case s.Suspended:
            p.Skipped[s.Name] = "already suspended"
        case !ownedBy(s, identity):
            p.Skipped[s.Name] = "shared with other identities"
        default:
            p.Apply = append(p.Apply, s.Name)
        }
    }
    return p, nil
}

// ResumePlan scopes a resume request. A service suspended under a different
// identity is never resumed, named or not. Without a name, services suspended
// by identity are resumed, as are suspended services with no recorded
// suspender whose owners all carry identity.
func ResumePlan(snap *management.Snapshot, service, identity string) (Plan, error) {
    p := Plan{Skipped: map[string]string{}}
    if service != "" {
        s, err := snap.Service(service)
        if err != nil { return p, err }
        if s.Suspended && s.SuspendedBy != "" && s.SuspendedBy != identity {
            p.Skipped[service] = "suspended by " + s.SuspendedBy
            return p, nil
        }
        p.Apply = []string{service}
        return p, nil
    }
    for _, s := range snap.Services {
        switch {
        case !s.Suspended:
        case s.SuspendedBy == identity && identity != "":
            p.Apply = append(p.Apply, s.Name)
        case s.SuspendedBy == "" && len(s.Owners) > 0 && ownedBy(s, identity):
            p.Apply = append(p.Apply, s.Name)
        case s.SuspendedBy == "":
            p.Skipped[s.Name] = "suspender unknown"
        default:
            p.Skipped[s.Name] = "suspended by " + s.SuspendedBy
        }
    }
    return p, nil
}

// SuspendedFor reports whether service is suspended under identity.
func SuspendedFor(snap *management.Snapshot, service, identity string) (bool, error) {
    s, err := snap.Service(service)
    if err != nil { return false, err }
    return s.Suspended && s.SuspendedBy == identity, nil
}

func ownedBy(s management.ServiceStatus, identity string) bool {
    for _, o := range s.Owners {
        if o != identity { return false }
    }
    return true
}
