// Package health serves the probe routes orchestrators poll: readiness,
// liveness, HA, status and the suspend/resume controls.
package health

import (
    "context"
    "crypto/tls"
    "errors"
    "fmt"
    "net"
    "net/http"
    "strconv"
    "time"

    "github.com/prometheus/client_golang/prometheus/promhttp"
    "github.com/rs/zerolog"

    "github.com/amirimatin/cluster-probe/pkg/ha"
    "github.com/amirimatin/cluster-probe/pkg/internal/logutil"
    "github.com/amirimatin/cluster-probe/pkg/management"
    "github.com/amirimatin/cluster-probe/pkg/observability/metrics"
    "github.com/amirimatin/cluster-probe/pkg/observability/tracing"
)

// DefaultPort is the probe port used when none is configured.
const DefaultPort = 6676

// Server is the probe HTTP(S) server.
type Server struct {
    bind    string
    checker *Checker
    log     *zerolog.Logger
    tlsCfg  *tls.Config
    srv     *http.Server
    ln      net.Listener
    done    chan struct{}
    err     error
}

// NewServer binds to the given TCP address (e.g. ":6676") once started.
func NewServer(bind string, c *Checker, logger *zerolog.Logger) *Server {
    return &Server{bind: bind, checker: c, log: logutil.Named(logger, "health")}
}

// UseTLS switches the server to TLS with the given config. Without it the
// server speaks plain HTTP only.
func (s *Server) UseTLS(cfg *tls.Config) *Server { s.tlsCfg = cfg; return s }

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
    mux := http.NewServeMux()
    s.route(mux, "GET /ready", "ready", s.probe(s.checker.Ready))
    s.route(mux, "GET /healthz", "health", s.probe(s.checker.Live))
    s.route(mux, "GET /health", "health", s.probe(s.checker.Live))
    s.route(mux, "GET /ha", "ha", s.haHandler)
    s.route(mux, "GET /ha/{service}", "ha", s.haHandler)
    s.route(mux, "GET /status", "status", s.statusHandler)
    s.route(mux, "PUT /suspend", "suspend", s.actionHandler(s.checker.Suspend))
    s.route(mux, "PUT /suspend/{service}", "suspend", s.actionHandler(s.checker.Suspend))
    s.route(mux, "PUT /resume", "resume", s.actionHandler(s.checker.Resume))
    s.route(mux, "PUT /resume/{service}", "resume", s.actionHandler(s.checker.Resume))
    mux.Handle("GET /metrics", promhttp.Handler())
    return mux
}

// Start binds the listener and serves in the background until ctx ends.
// A bind failure is returned as ErrTransport.
func (s *Server) Start(ctx context.Context) error {
    ln, err := net.Listen("tcp", s.bind)
    if err != nil { return fmt.Errorf("%w: listen %s: %v", ErrTransport, s.bind, err) }
    if s.tlsCfg != nil {
        ln = handshakeOnRead{tls.NewListener(ln, s.tlsCfg)}
    }
    s.ln = ln
    s.srv = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
    done := make(chan struct{})
    s.done = done
    logutil.Infof(s.log, "probe endpoint listening on %s (tls=%v)", ln.Addr(), s.tlsCfg != nil)

    go func() {
        select {
        case <-ctx.Done():
            _ = s.Stop(context.Background())
        case <-done:
        }
    }()
    srv := s.srv
    go func() {
        err := srv.Serve(ln)
        if errors.Is(err, http.ErrServerClosed) { err = nil }
        if err != nil { logutil.Errorf(s.log, "server error: %v", err) }
        s.err = err
        close(done)
    }()
    return nil
}

// Wait blocks until the server stops; nil after a graceful shutdown. It may
// be called any number of times.
func (s *Server) Wait() error {
    if s.done == nil { return nil }
    <-s.done
    return s.err
}

// Addr returns the bound address once started, else the configured one.
func (s *Server) Addr() string {
    if s.ln != nil { return s.ln.Addr().String() }
    return s.bind
}

// Stop attempts a graceful shutdown with a short timeout.
func (s *Server) Stop(ctx context.Context) error {
    if s.srv == nil { return nil }
    c, cancel := context.WithTimeout(ctx, 2*time.Second)
    defer cancel()
    return s.srv.Shutdown(c)
}

// route wraps h with panic recovery, metrics, tracing and text/plain output.
func (s *Server) route(mux *http.ServeMux, pattern, name string, h http.HandlerFunc) {
    mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
        ctx, end := tracing.StartSpan(r.Context(), "http."+name)
        defer func() {
            if p := recover(); p != nil {
                logutil.Errorf(s.log, "%s %s panicked: %v", r.Method, r.URL.Path, p)
                if !rec.wrote { writeText(rec, http.StatusInternalServerError, fmt.Sprintf("internal error: %v", p)) }
            }
            end()
            metrics.ProbeRequests.WithLabelValues(name, strconv.Itoa(rec.code)).Inc()
            metrics.ProbeLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
            logutil.Debugf(s.log, "%s %s -> %d in %s", r.Method, r.URL.Path, rec.code, time.Since(start))
        }()
        h(rec, r.WithContext(ctx))
    })
}

// probe serves a boolean check: 200 when OK, 400 when not or when the
// management query failed.
func (s *Server) probe(check func(context.Context) (Result, error)) http.HandlerFunc {
    return func(w http.ResponseWriter, r *http.Request) {
        res, err := check(r.Context())
        if err != nil {
            tracing.RecordError(r.Context(), err)
            logutil.Warnf(s.log, "%s: %v", r.URL.Path, err)
            writeText(w, http.StatusBadRequest, err.Error())
            return
        }
        if !res.OK {
            writeText(w, http.StatusBadRequest, res.Detail)
            return
        }
        writeText(w, http.StatusOK, "OK")
    }
}

func (s *Server) haHandler(w http.ResponseWriter, r *http.Request) {
    v, err := s.checker.HA(r.Context(), r.PathValue("service"))
    switch {
    case errors.Is(err, management.ErrNotFound):
        writeText(w, http.StatusNotFound, err.Error())
    case err != nil:
        logutil.Warnf(s.log, "%s: %v", r.URL.Path, err)
        writeText(w, http.StatusBadRequest, err.Error())
    case !v.Safe:
        writeText(w, http.StatusBadRequest, v.String())
    default:
        writeText(w, http.StatusOK, "OK")
    }
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
    st, err := s.checker.Status(r.Context())
    if err != nil {
        logutil.Warnf(s.log, "%s: %v", r.URL.Path, err)
        writeText(w, http.StatusBadRequest, err.Error())
        return
    }
    writeText(w, http.StatusOK, st)
}

func (s *Server) actionHandler(act func(context.Context, string) (ha.Plan, error)) http.HandlerFunc {
    return func(w http.ResponseWriter, r *http.Request) {
        _, err := act(r.Context(), r.PathValue("service"))
        switch {
        case errors.Is(err, management.ErrNotFound):
            writeText(w, http.StatusNotFound, err.Error())
        case err != nil:
            logutil.Errorf(s.log, "%s: %v", r.URL.Path, err)
            writeText(w, http.StatusInternalServerError, err.Error())
        default:
            writeText(w, http.StatusOK, "OK")
        }
    }
}

func writeText(w http.ResponseWriter, code int, body string) {
    w.Header().Set("Content-Type", "text/plain; charset=utf-8")
    w.WriteHeader(code)
    _, _ = w.Write([]byte(body))
}

type statusRecorder struct {
    http.ResponseWriter
    code  int
    wrote bool
}

func (r *statusRecorder) WriteHeader(code int) {
    r.code, r.wrote = code, true
    r.ResponseWriter.WriteHeader(code)
}

// handshakeOnRead hides the *tls.Conn type from net/http so the handshake
// runs inside the first read. A client speaking plain HTTP then fails the
// handshake and the connection is closed without any HTTP response.
type handshakeOnRead struct{ net.Listener }

func (l handshakeOnRead) Accept() (net.Conn, error) {
    c, err := l.Listener.Accept()
    if err != nil { return nil, err }
    return opaqueConn{c}, nil
}

type opaqueConn struct{ net.Conn }
