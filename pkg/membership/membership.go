package membership

import (
    "context"
    "net"
    "strconv"
    "time"
)

// Well-known Meta keys gossiped with each member.
const (
    MetaPID        = "pid"
    MetaHost       = "host"
    MetaRole       = "role"
    MetaStorage    = "storage"
    MetaIdentity   = "identity"
    MetaManagement = "mgmt"
)

// MemberInfo describes a cluster member as observed by the membership layer.
// The typed fields mirror Meta entries so members built by hand and members
// decoded from gossip look the same.
type MemberInfo struct {
    ID             string
    Addr           string
    Host           string
    PID            int
    Role           string
    StorageEnabled bool
    Identity       string
    Meta           map[string]string
}

// FromMeta builds a MemberInfo from gossiped metadata. Host falls back to
// the host part of addr.
func FromMeta(id, addr string, meta map[string]string) MemberInfo {
    m := MemberInfo{ID: id, Addr: addr, Meta: meta}
    m.Host = meta[MetaHost]
    if m.Host == "" {
        if h, _, err := net.SplitHostPort(addr); err == nil { m.Host = h }
    }
    m.PID, _ = strconv.Atoi(meta[MetaPID])
    m.Role = meta[MetaRole]
    m.StorageEnabled, _ = strconv.ParseBool(meta[MetaStorage])
    m.Identity = meta[MetaIdentity]
    return m
}

// ToMeta renders the typed fields into a metadata map, keeping extra keys.
func (m MemberInfo) ToMeta() map[string]string {
    out := make(map[string]string, len(m.Meta)+5)
    for k, v := range m.Meta { out[k] = v }
    if m.Host != "" { out[MetaHost] = m.Host }
    if m.PID > 0 { out[MetaPID] = strconv.Itoa(m.PID) }
    if m.Role != "" { out[MetaRole] = m.Role }
    out[MetaStorage] = strconv.FormatBool(m.StorageEnabled)
    if m.Identity != "" { out[MetaIdentity] = m.Identity }
    return out
}

type EventType string

const (
    // EventJoin indicates a member joined or became visible.
    EventJoin   EventType = "join"
    // EventLeave indicates a member left the cluster.
    EventLeave  EventType = "leave"
    // EventFailed indicates membership marked the node as failed/unreachable.
    EventFailed EventType = "failed"
)

// Event is the translated membership change notification.
type Event struct {
    Type   EventType
    Member MemberInfo
    At     time.Time
}

// Membership is the abstraction over the gossip layer that tells a member
// who else is in the cluster.
type Membership interface {
    Start(ctx context.Context) error
    Join(seeds []string) error
    Local() MemberInfo
    Members() []MemberInfo
    Events() <-chan Event
    Leave() error
    Stop() error
}
