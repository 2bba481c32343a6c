// Package rest answers management queries over a hypermedia management REST
// API: the cluster document links to the members and services collections
// and each service links to its partition assignment document.
package rest

import (
    "bytes"
    "context"
    "crypto/tls"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net/http"
    "net/url"
    "strings"
    "time"

    "github.com/rs/zerolog"
    "golang.org/x/sync/errgroup"

    "github.com/amirimatin/cluster-probe/pkg/internal/logutil"
    "github.com/amirimatin/cluster-probe/pkg/management"
    "github.com/amirimatin/cluster-probe/pkg/membership"
    "github.com/amirimatin/cluster-probe/pkg/observability/tracing"
    "github.com/amirimatin/cluster-probe/pkg/registry"
)

// Options configures a REST source.
type Options struct {
    // URL of the cluster document, e.g. http://127.0.0.1:30000/management/coherence/cluster.
    URL     string
    Timeout time.Duration
    TLS     *tls.Config
    Logger  *zerolog.Logger
}

// Source is a management.Source backed by HTTP calls. Every method issues
// fresh requests; non-2xx answers are errors.
type Source struct {
    base  *url.URL
    httpc *http.Client
    log   *zerolog.Logger
}

var _ management.Source = (*Source)(nil)

// DefaultPath is the cluster document path under a management root.
const DefaultPath = "/management/coherence/cluster"

// New validates the URL and builds the HTTP client.
func New(opts Options) (*Source, error) {
    if opts.URL == "" { return nil, fmt.Errorf("rest: empty management URL") }
    u, err := url.Parse(opts.URL)
    if err != nil { return nil, fmt.Errorf("rest: invalid management URL %q: %w", opts.URL, err) }
    if u.Scheme == "" || u.Host == "" { return nil, fmt.Errorf("rest: management URL %q needs scheme and host", opts.URL) }
    if u.Path == "" || u.Path == "/" { u.Path = DefaultPath }
    if opts.Timeout <= 0 { opts.Timeout = 5 * time.Second }
    tr := &http.Transport{TLSClientConfig: opts.TLS}
    return &Source{
        base:  u,
        httpc: &http.Client{Timeout: opts.Timeout, Transport: tr},
        log:   logutil.Named(opts.Logger, "mgmt-rest"),
    }, nil
}

func (s *Source) Kind() string { return "rest" }

func (s *Source) Cluster(ctx context.Context) (management.ClusterInfo, error) {
    d, err := s.get(ctx, s.base.String())
    if err != nil { return management.ClusterInfo{}, err }
    return management.ClusterInfo{
        Name:          d.str("clusterName", "name"),
        Version:       d.str("version"),
        Running:       d.flag(false, "running"),
        LocalMemberID: d.str("localMemberId", "memberId"),
    }, nil
}

func (s *Source) Members(ctx context.Context) ([]membership.MemberInfo, error) {
    cl, err := s.get(ctx, s.base.String())
    if err != nil { return nil, err }
    return s.members(ctx, cl)
}

func (s *Source) members(ctx context.Context, cl doc) ([]membership.MemberInfo, error) {
    href := cl.link(relMembers)
    if href == "" { return nil, nil }
    d, err := s.get(ctx, href)
    if err != nil { return nil, err }
    items := d.items()
    out := make([]membership.MemberInfo, 0, len(items))
    for _, it := range items { out = append(out, toMember(it)) }
    return out, nil
}

func (s *Source) LocalMember(ctx context.Context) (membership.MemberInfo, error) {
    cl, err := s.get(ctx, s.base.String())
    if err != nil { return membership.MemberInfo{}, asUnavailable(err) }
    id := cl.str("localMemberId", "memberId")
    if id == "" { return membership.MemberInfo{}, fmt.Errorf("%w: local member not joined", management.ErrNotFound) }
    ms, err := s.members(ctx, cl)
    if err != nil { return membership.MemberInfo{}, asUnavailable(err) }
    for _, m := range ms {
        if m.ID == id { return m, nil }
    }
    return membership.MemberInfo{}, fmt.Errorf("%w: local member %s not in member list", management.ErrNotFound, id)
}

func (s *Source) Services(ctx context.Context) ([]management.ServiceStatus, error) {
    ctx, end := tracing.StartSpan(ctx, "rest.services")
    defer end()
    cl, err := s.get(ctx, s.base.String())
    if err != nil { return nil, err }
    members, err := s.members(ctx, cl)
    if err != nil { return nil, err }
    items, err := s.serviceItems(ctx, cl)
    if err != nil { return nil, err }

    out := make([]management.ServiceStatus, len(items))
    g, gctx := errgroup.WithContext(ctx)
    for i, it := range items {
        g.Go(func() error {
            st, err := s.status(gctx, it, cl.str("localMemberId", "memberId"), members)
            out[i] = st
            return err
        })
    }
    if err := g.Wait(); err != nil { return nil, err }
    return out, nil
}

func (s *Source) Endangered(ctx context.Context, name string) (bool, error) {
    st, err := s.service(ctx, name)
    if err != nil { return false, err }
    return management.Endangered(st), nil
}

func (s *Source) Suspended(ctx context.Context, name string) (bool, error) {
    cl, err := s.get(ctx, s.base.String())
    if err != nil { return false, err }
    it, err := s.findService(ctx, cl, name)
    if err != nil { return false, err }
    return it.flag(false, "suspended", "quorumSuspended"), nil
}

func (s *Source) Suspend(ctx context.Context, name, identity string) error {
    return s.action(ctx, name, "suspend", identity)
}

func (s *Source) Resume(ctx context.Context, name, identity string) error {
    return s.action(ctx, name, "resume", identity)
}

func (s *Source) action(ctx context.Context, name, verb, identity string) error {
    ctx, end := tracing.StartSpan(ctx, "rest."+verb)
    defer end()
    cl, err := s.get(ctx, s.base.String())
    if err != nil { return err }
    it, err := s.findService(ctx, cl, name)
    if err != nil { return err }
    self := it.link(relSelf)
    if self == "" { self = strings.TrimSuffix(cl.link(relServices), "/") + "/" + url.PathEscape(name) }
    body, _ := json.Marshal(map[string]string{"identity": identity})
    _, err = s.do(ctx, http.MethodPut, strings.TrimSuffix(self, "/")+"/"+verb, body)
    if err == nil { logutil.Infof(s.log, "%s %s (identity %q)", verb, name, identity) }
    return err
}

// service builds the full status of one named service.
func (s *Source) service(ctx context.Context, name string) (management.ServiceStatus, error) {
    cl, err := s.get(ctx, s.base.String())
    if err != nil { return management.ServiceStatus{}, err }
    it, err := s.findService(ctx, cl, name)
    if err != nil { return management.ServiceStatus{}, err }
    members, err := s.members(ctx, cl)
    if err != nil { return management.ServiceStatus{}, err }
    return s.status(ctx, it, cl.str("localMemberId", "memberId"), members)
}

func (s *Source) serviceItems(ctx context.Context, cl doc) ([]doc, error) {
    href := cl.link(relServices)
    if href == "" { return nil, nil }
    d, err := s.get(ctx, href)
    if err != nil { return nil, err }
    return d.items(), nil
}

func (s *Source) findService(ctx context.Context, cl doc, name string) (doc, error) {
    items, err := s.serviceItems(ctx, cl)
    if err != nil { return nil, err }
    for _, it := range items {
        if it.str("name") == name { return it, nil }
    }
    return nil, fmt.Errorf("%w: service %q", management.ErrNotFound, name)
}

// status merges the service item with its partition document and, when
// linked, its per-member ownership collection.
func (s *Source) status(ctx context.Context, it doc, localID string, members []membership.MemberInfo) (management.ServiceStatus, error) {
    st := management.ServiceStatus{
        Name:             it.str("name"),
        Type:             it.str("type"),
        Running:          it.flag(true, "running"),
        StorageEnabled:   it.flag(false, "storageEnabled"),
        PartitionCount:   it.numOr(0, "partitionsAll", "partitionCount"),
        BackupCount:      it.numOr(0, "backupCount"),
        ServiceNodeCount: it.numOr(0, "storageEnabledCount", "serviceNodeCount"),
        HAStatus:         strings.ToUpper(it.str("statusHA", "haStatus")),
        OwnedPrimary:     -1,
        Coordinated:      true,
        PersistenceIdle:  true,
        Suspended:        it.flag(false, "suspended", "quorumSuspended"),
        SuspendedBy:      it.str("suspendedBy"),
    }
    if ps := it.str("persistenceStatus"); ps != "" { st.PersistenceIdle = strings.EqualFold(ps, "idle") }

    if href := it.link(relPartition); href != "" {
        p, err := s.get(ctx, href)
        if err != nil { return st, err }
        if v := strings.ToUpper(p.str("haStatus", "statusHA")); v != "" { st.HAStatus = v }
        st.HAStatusCode = p.numOr(registry.StatusCode(st.HAStatus), "haStatusCode")
        if st.HAStatus == "" { st.HAStatus = registry.StatusName(st.HAStatusCode) }
        st.BackupCount = p.numOr(st.BackupCount, "backupCount")
        st.ServiceNodeCount = p.numOr(st.ServiceNodeCount, "serviceNodeCount")
        st.PartitionCount = p.numOr(st.PartitionCount, "partitionCount")
        st.RemainingDistribution = p.numOr(0, "remainingDistributionCount")
        if c, ok := p.num("coordinatorId"); ok { st.Coordinated = c > 0 }
    } else {
        st.HAStatusCode = registry.StatusCode(st.HAStatus)
    }

    if href := it.link(relMembers); href != "" {
        d, err := s.get(ctx, href)
        if err != nil { return st, err }
        ident := map[string]string{}
        for _, m := range members { ident[m.ID] = m.Identity }
        st.StorageEnabled, st.OwnedPrimary = false, 0
        for _, sm := range d.items() {
            id := sm.str("nodeId", "id")
            if !sm.flag(true, "ownershipEnabled", "storageEnabled") { continue }
            st.Owners = append(st.Owners, ident[id])
            if id == localID {
                st.StorageEnabled = true
                st.OwnedPrimary = sm.numOr(0, "ownedPartitionsPrimary")
            }
        }
    }
    return st, nil
}

func toMember(it doc) membership.MemberInfo {
    id := it.str("nodeId", "id")
    m := membership.MemberInfo{
        ID:             id,
        Host:           it.str("address", "host"),
        Role:           it.str("roleName", "role"),
        StorageEnabled: it.flag(false, "storageEnabled"),
        Identity:       it.str("identity"),
    }
    m.PID, _ = it.num("processName", "pid")
    if p, ok := it.num("port"); ok && m.Host != "" { m.Addr = fmt.Sprintf("%s:%d", m.Host, p) }
    return m
}

// asUnavailable keeps a missing document from reading as "not joined".
func asUnavailable(err error) error {
    if errors.Is(err, management.ErrNotFound) { return fmt.Errorf("%w: %v", management.ErrUnavailable, err) }
    return err
}

func (s *Source) get(ctx context.Context, href string) (doc, error) {
    b, err := s.do(ctx, http.MethodGet, href, nil)
    if err != nil { return nil, err }
    d, err := decodeDoc(b)
    if err != nil { return nil, fmt.Errorf("%w: decode %s: %v", management.ErrUnavailable, href, err) }
    return d, nil
}

func (s *Source) do(ctx context.Context, method, href string, body []byte) ([]byte, error) {
    u, err := s.base.Parse(href)
    if err != nil { return nil, fmt.Errorf("%w: bad link %q: %v", management.ErrUnavailable, href, err) }
    var rd io.Reader
    if body != nil { rd = bytes.NewReader(body) }
    req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
    if err != nil { return nil, err }
    req.Header.Set("Accept", "application/json")
    if body != nil { req.Header.Set("Content-Type", "application/json") }
    resp, err := s.httpc.Do(req)
    if err != nil { return nil, fmt.Errorf("%w: %s %s: %v", management.ErrUnavailable, method, u.Path, err) }
    defer resp.Body.Close()
    b, err := io.ReadAll(resp.Body)
    if err != nil { return nil, fmt.Errorf("%w: read %s: %v", management.ErrUnavailable, u.Path, err) }
    switch {
    case resp.StatusCode == http.StatusNotFound:
        return nil, fmt.Errorf("%w: %s %s", management.ErrNotFound, method, u.Path)
    case resp.StatusCode < 200 || resp.StatusCode > 299:
        return nil, fmt.Errorf("%w: %s %s: status %d: %s", management.ErrUnavailable, method, u.Path, resp.StatusCode, strings.TrimSpace(string(b)))
    }
    return b, nil
}
