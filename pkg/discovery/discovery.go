package discovery

import (
    "net"
    "strconv"
    "strings"
)

// Discovery abstracts how seed references are provided.
type Discovery interface {
    Seeds() []string
}

// SeedAddress is a host reference awaiting resolution. Host may be an IP
// literal, a hostname, or an SRV name of the form _service._proto.domain.
type SeedAddress struct {
    Host string
    Port int
}

func (s SeedAddress) String() string {
    if s.Port == 0 { return s.Host }
    return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// IsSRV reports whether Host looks like an SRV record name.
func (s SeedAddress) IsSRV() bool {
    return strings.HasPrefix(s.Host, "_") && strings.Contains(s.Host, "._")
}

// ParseSeed turns "host", "host:port" or "[v6]:port" into a SeedAddress.
// A missing or malformed port falls back to defaultPort.
func ParseSeed(ref string, defaultPort int) (SeedAddress, bool) {
    ref = strings.TrimSpace(ref)
    if ref == "" { return SeedAddress{}, false }
    if host, port, err := net.SplitHostPort(ref); err == nil {
        p, err := strconv.Atoi(port)
        if err != nil || p <= 0 || p > 65535 { p = defaultPort }
        return SeedAddress{Host: host, Port: p}, host != ""
    }
    return SeedAddress{Host: strings.Trim(ref, "[]"), Port: defaultPort}, true
}

// ParseSeeds converts a comma-separated list of host references into seeds,
// dropping blanks and duplicates while keeping the configured order.
func ParseSeeds(csv string, defaultPort int) []SeedAddress {
    return FromRefs(strings.Split(csv, ","), defaultPort)
}

// FromRefs is ParseSeeds for references already split, e.g. by a Discovery.
func FromRefs(refs []string, defaultPort int) []SeedAddress {
    seen := make(map[SeedAddress]struct{})
    var out []SeedAddress
    for _, r := range refs {
        s, ok := ParseSeed(r, defaultPort)
        if !ok { continue }
        if _, dup := seen[s]; dup { continue }
        seen[s] = struct{}{}
        out = append(out, s)
    }
    return out
}

type static struct{ seeds []string }

func (s *static) Seeds() []string { return append([]string(nil), s.seeds...) }

// Static returns a Discovery that always yields the entries of csv.
func Static(csv string) Discovery {
    var cleaned []string
    for _, v := range strings.Split(csv, ",") {
        v = strings.TrimSpace(v)
        if v != "" { cleaned = append(cleaned, v) }
    }
    return &static{seeds: cleaned}
}
