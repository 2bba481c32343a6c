package health

import (
    "context"
    "crypto/tls"
    "fmt"
    "io"
    "net/http"
    "strings"
    "time"
)

// Client calls a probe endpoint, e.g. from an orchestrator exec hook.
type Client struct {
    base  string
    httpc *http.Client
}

// NewClient targets addr ("host:port" or a full URL). A non-nil tlsCfg
// switches to https.
func NewClient(addr string, timeout time.Duration, tlsCfg *tls.Config) *Client {
    if timeout <= 0 { timeout = 3 * time.Second }
    base := addr
    if !strings.Contains(addr, "://") {
        scheme := "http"
        if tlsCfg != nil { scheme = "https" }
        base = scheme + "://" + addr
    }
    return &Client{
        base:  strings.TrimRight(base, "/"),
        httpc: &http.Client{Timeout: timeout, Transport: &http.Transport{TLSClientConfig: tlsCfg}},
    }
}

// Response is a probe answer.
type Response struct {
    Code int
    Body string
}

func (r Response) OK() bool { return r.Code == http.StatusOK }

// Get issues GET on a probe route such as "/ready" or "/ha/dist".
func (c *Client) Get(ctx context.Context, route string) (Response, error) {
    return c.do(ctx, http.MethodGet, route)
}

// Put issues PUT on a control route such as "/suspend".
func (c *Client) Put(ctx context.Context, route string) (Response, error) {
    return c.do(ctx, http.MethodPut, route)
}

func (c *Client) do(ctx context.Context, method, route string) (Response, error) {
    req, err := http.NewRequestWithContext(ctx, method, c.base+"/"+strings.TrimLeft(route, "/"), nil)
    if err != nil { return Response{}, err }
    resp, err := c.httpc.Do(req)
    if err != nil { return Response{}, fmt.Errorf("%w: %v", ErrTransport, err) }
    defer resp.Body.Close()
    b, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
    if err != nil { return Response{}, fmt.Errorf("%w: read body: %v", ErrTransport, err) }
    return Response{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}, nil
}
