package membership

// IsClusterMember reports whether another member on the local member's host
// has a strictly lower PID. The lowest-PID process on a host is treated as
// the canonical first member there, so a later process racing it on the same
// host can rely on that member for liveness. A false result means the local
// process is the canonical one (or alone) and must use other signals.
func IsClusterMember(local MemberInfo, all []MemberInfo) bool {
    if local.Host == "" || local.PID <= 0 { return false }
    for _, m := range all {
        if m.ID != "" && m.ID == local.ID { continue }
        if m.Host == local.Host && m.PID > 0 && m.PID < local.PID {
            return true
        }
    }
    return false
}
