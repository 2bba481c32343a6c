// Package registry is the in-process management registry a cluster member
// exposes to its own probe: the member view plus per-service partition
// distribution state and suspend flags.
package registry

import (
    "errors"

    "github.com/amirimatin/cluster-probe/pkg/membership"
)

var (
    ErrUnknownService = errors.New("registry: unknown service")
    ErrNotRunning     = errors.New("registry: cluster not running")
)

// HA status names in increasing order of safety.
const (
    StatusEndangered  = "ENDANGERED"
    StatusNodeSafe    = "NODE_SAFE"
    StatusMachineSafe = "MACHINE_SAFE"
    StatusRackSafe    = "RACK_SAFE"
    StatusSiteSafe    = "SITE_SAFE"
)

// ServiceInfo is the derived, point-in-time view of one service as seen by
// the local member.
type ServiceInfo struct {
    Name    string
    Type    string
    Running bool

    Suspended   bool
    SuspendedBy string

    // LocalStorage is true when the local member stores data for the service.
    LocalStorage bool

    PartitionCount        int
    BackupCount           int
    ServiceNodeCount      int
    RemainingDistribution int
    HAStatus              string
    HAStatusCode          int
    Coordinator           string
    OwnedPrimary          int
    PersistenceIdle       bool

    // StorageMembers lists the IDs of ownership-enabled members.
    StorageMembers []string
}

// Registry is what an in-process management source queries.
type Registry interface {
    Running() bool
    // LocalMember returns the local member and whether it has joined.
    LocalMember() (membership.MemberInfo, bool)
    Members() []membership.MemberInfo
    ServiceNames() []string
    Service(name string) (ServiceInfo, error)
    Suspend(name, identity string) error
    Resume(name string) error
}

// StatusCode maps an HA status name to its rank; unknown names rank -1.
func StatusCode(name string) int {
    switch name {
    case StatusEndangered:
        return 0
    case StatusNodeSafe:
        return 1
    case StatusMachineSafe:
        return 2
    case StatusRackSafe:
        return 3
    case StatusSiteSafe:
        return 4
    }
    return -1
}

// StatusName is the inverse of StatusCode.
func StatusName(code int) string {
    names := []string{StatusEndangered, StatusNodeSafe, StatusMachineSafe, StatusRackSafe, StatusSiteSafe}
    if code < 0 || code >= len(names) { return "" }
    return names[code]
}
