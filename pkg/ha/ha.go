// Package ha decides whether the local member can be disrupted without risking
// data, and which services a suspend or resume request may touch.
package ha

import (
    "fmt"
    "sort"
    "strings"

    "github.com/amirimatin/cluster-probe/pkg/management"
)

// Exclusions names services ignored by the HA verdict.
type Exclusions map[string]struct{}

// ParseExclusions reads a comma-separated service list.
func ParseExclusions(csv string) Exclusions {
    ex := Exclusions{}
    for _, s := range strings.Split(csv, ",") {
        if s = strings.TrimSpace(s); s != "" { ex[s] = struct{}{} }
    }
    return ex
}

func (e Exclusions) Has(name string) bool {
    _, ok := e[name]
    return ok
}

// Verdict is the derived HA decision. Reasons maps each unsafe service to
// why it is unsafe.
type Verdict struct {
    Safe    bool
    Reasons map[string]string
}

// Unsafe lists the unsafe services in name order.
func (v Verdict) Unsafe() []string {
    out := make([]string, 0, len(v.Reasons))
    for n := range v.Reasons { out = append(out, n) }
    sort.Strings(out)
    return out
}

func (v Verdict) String() string {
    if v.Safe { return "safe" }
    parts := make([]string, 0, len(v.Reasons))
    for _, n := range v.Unsafe() { parts = append(parts, n+": "+v.Reasons[n]) }
    return "unsafe: " + strings.Join(parts, ", ")
}

// Evaluate checks every service that stores data on the local member.
// Storage-disabled services never make the verdict unsafe. Excluded services
// are still required to have a distribution coordinator.
func Evaluate(snap *management.Snapshot, ex Exclusions) Verdict {
    v := Verdict{Safe: true, Reasons: map[string]string{}}
    for _, s := range snap.Services {
        if r := check(s, ex); r != "" {
            v.Safe = false
            v.Reasons[s.Name] = r
        }
    }
    return v
}

// EvaluateService is Evaluate restricted to one service.
func EvaluateService(snap *management.Snapshot, name string, ex Exclusions) (Verdict, error) {
    s, err := snap.Service(name)
    if err != nil { return Verdict{}, err }
    v := Verdict{Safe: true, Reasons: map[string]string{}}
    if r := check(s, ex); r != "" {
        v.Safe = false
        v.Reasons[name] = r
    }
    return v, nil
}

const noCoordinator = "no distribution coordinator"

func check(s management.ServiceStatus, ex Exclusions) string {
    switch {
    case !s.StorageEnabled:
        return ""
    case ex.Has(s.Name) && !s.Coordinated:
        return noCoordinator
    case ex.Has(s.Name):
        return ""
    }
    return reason(s)
}

func reason(s management.ServiceStatus) string {
    var rs []string
    if s.RemainingDistribution > 0 {
        rs = append(rs, fmt.Sprintf("redistributing, %d transfers remaining", s.RemainingDistribution))
    } else if s.Endangered {
        rs = append(rs, "endangered, status "+s.HAStatus)
    }
    if !s.Coordinated {
        rs = append(rs, noCoordinator)
    }
    if s.ServiceNodeCount == 1 && s.OwnedPrimary >= 0 && s.OwnedPrimary != s.PartitionCount {
        rs = append(rs, fmt.Sprintf("sole storage member owns %d of %d primary partitions", s.OwnedPrimary, s.PartitionCount))
    }
    if !s.PersistenceIdle {
        rs = append(rs, "persistence not idle")
    }
    return strings.Join(rs, "; ")
}
