package cli

import (
    "context"
    "errors"
    "fmt"
    "os"
    "os/signal"
    "strings"
    "syscall"
    "time"

    "github.com/spf13/cobra"
    "github.com/spf13/pflag"

    "github.com/amirimatin/cluster-probe/pkg/bootstrap"
    "github.com/amirimatin/cluster-probe/pkg/config"
    "github.com/amirimatin/cluster-probe/pkg/discovery"
    dFile "github.com/amirimatin/cluster-probe/pkg/discovery/file"
    "github.com/amirimatin/cluster-probe/pkg/discovery/wka"
    "github.com/amirimatin/cluster-probe/pkg/health"
    "github.com/amirimatin/cluster-probe/pkg/internal/logutil"
    "github.com/amirimatin/cluster-probe/pkg/observability/tracing"
    "github.com/amirimatin/cluster-probe/pkg/version"
)

// ErrProbeFailed is returned when a probe answers with a non-200 status.
var ErrProbeFailed = errors.New("probe failed")

// AddAll attaches run/resolve/probe/version to the provided root command.
func AddAll(root *cobra.Command) {
    root.AddCommand(NewRunCmd())
    root.AddCommand(NewResolveCmd())
    root.AddCommand(NewProbeCmd())
    root.AddCommand(NewVersionCmd())
}

// NewRunCmd returns the "run" command which serves the probe endpoints.
// Flags default to the PROBE_* environment.
func NewRunCmd() *cobra.Command {
    cfg, loadErr := config.Load()
    cmd := &cobra.Command{
        Use:   "run",
        Short: "Resolve seeds and serve the health, HA and suspend endpoints",
        RunE: func(cmd *cobra.Command, args []string) error {
            if loadErr != nil { return loadErr }
            logger := logutil.New(os.Stderr, cfg.LogFormat == "json", cfg.LogLevel)
            logutil.SetDefault(logger)
            ctx, cancel := signalContext()
            defer cancel()

            if cfg.Trace {
                shutdown, err := tracing.Setup(true)
                if err != nil {
                    logutil.Warnf(&logger, "tracing setup error: %v", err)
                } else {
                    defer func() { _ = shutdown(context.Background()) }()
                }
            }

            p, err := bootstrap.Build(ctx, cfg, bootstrap.Options{Logger: &logger})
            if err != nil { return err }
            defer p.Close()
            return p.Run(ctx)
        },
    }
    f := cmd.Flags()
    seedFlags(f, &cfg)
    f.StringVar(&cfg.HealthAddr, "health-addr", cfg.HealthAddr, "probe HTTP(S) listen address")
    f.StringVar(&cfg.GRPCAddr, "grpc-addr", cfg.GRPCAddr, "gRPC health listen address (empty disables)")
    f.StringVar(&cfg.Mode, "management", cfg.Mode, "management source: auto|local|rest")
    f.StringVar(&cfg.ManagementURL, "management-url", cfg.ManagementURL, "management REST URL (rest/auto modes)")
    f.DurationVar(&cfg.ManagementTimeout, "management-timeout", cfg.ManagementTimeout, "management REST request timeout")
    f.StringVar(&cfg.ClusterVersion, "cluster-version", cfg.ClusterVersion, "cluster version used to pick the management source")
    f.StringVar(&cfg.MinLocalVersion, "min-local-version", cfg.MinLocalVersion, "minimum cluster version for in-process management")
    f.StringVar(&cfg.AllowEndangered, "allow-endangered", cfg.AllowEndangered, "comma-separated services excluded from the HA check")
    f.StringVar(&cfg.Identity, "identity", cfg.Identity, "suspend identity")
    f.StringVar(&cfg.NodeID, "id", cfg.NodeID, "member id of the embedded registry (default host-pid)")
    f.StringVar(&cfg.MemberBind, "mem-bind", cfg.MemberBind, "membership bind addr (host:port)")
    f.StringVar(&cfg.MemberAdv, "mem-adv", cfg.MemberAdv, "membership advertise addr (host:port, optional)")
    f.StringVar(&cfg.Role, "role", cfg.Role, "member role")
    f.BoolVar(&cfg.Storage, "storage", cfg.Storage, "member stores partitions")
    f.StringVar(&cfg.Services, "services", cfg.Services, "embedded services: name[:partitions[:backups]],...")
    f.IntVar(&cfg.MaxGossipScore, "max-gossip-score", cfg.MaxGossipScore, "fail liveness above this membership health score (0 disables)")
    tlsFlags(f, &cfg)
    f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug|info|warn|error")
    f.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: console|json")
    f.BoolVar(&cfg.Trace, "trace", cfg.Trace, "enable OpenTelemetry stdout tracing (dev)")
    return cmd
}

// NewResolveCmd runs the WKA resolver standalone and prints the result.
func NewResolveCmd() *cobra.Command {
    cfg, loadErr := config.Load()
    cmd := &cobra.Command{
        Use:   "resolve",
        Short: "Resolve the well-known seed addresses and print the first that resolves",
        RunE: func(cmd *cobra.Command, args []string) error {
            if loadErr != nil { return loadErr }
            ctx, cancel := signalContext()
            defer cancel()
            refs := discovery.Static(cfg.Seeds).Seeds()
            if len(refs) == 0 && cfg.SeedsFile != "" {
                refs = dFile.New(dFile.Options{Path: cfg.SeedsFile}).Seeds()
            }
            r := wka.New(wka.Options{RetryInterval: cfg.RetryInterval, Timeout: cfg.ResolveTimeout})
            res, err := r.Resolve(ctx, discovery.FromRefs(refs, cfg.WKAPort))
            if err != nil { return err }
            fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (attempts=%d, elapsed=%s)\n",
                res.Seed, strings.Join(res.Addrs, ","), res.Attempts, res.Elapsed.Round(time.Millisecond))
            return nil
        },
    }
    seedFlags(cmd.Flags(), &cfg)
    return cmd
}

// NewProbeCmd returns "probe" with one subcommand per endpoint route.
func NewProbeCmd() *cobra.Command {
    cfg, _ := config.Load()
    var (
        addr    string
        timeout time.Duration
    )
    parent := &cobra.Command{Use: "probe", Short: "Query a running probe endpoint"}
    pf := parent.PersistentFlags()
    pf.StringVar(&addr, "addr", "127.0.0.1:6676", "probe address (host:port or URL)")
    pf.DurationVar(&timeout, "timeout", 3*time.Second, "request timeout")
    tlsFlags(pf, &cfg)

    route := func(use, short, path string, put bool, takesService bool) *cobra.Command {
        c := &cobra.Command{
            Use:   use,
            Short: short,
            Args:  cobra.NoArgs,
            RunE: func(cmd *cobra.Command, args []string) error {
                cliTLS, err := cfg.ClientTLS(addr).Client()
                if err != nil { return fmt.Errorf("tls client config: %w", err) }
                p := path
                if len(args) == 1 { p += "/" + args[0] }
                ctx, cancel := context.WithTimeout(context.Background(), timeout)
                defer cancel()
                client := health.NewClient(addr, timeout, cliTLS)
                var resp health.Response
                if put { resp, err = client.Put(ctx, p) } else { resp, err = client.Get(ctx, p) }
                if err != nil { return err }
                fmt.Fprintln(cmd.OutOrStdout(), resp.Body)
                if !resp.OK() { return fmt.Errorf("%w: %s returned %d", ErrProbeFailed, p, resp.Code) }
                return nil
            },
        }
        if takesService { c.Args = cobra.MaximumNArgs(1) }
        return c
    }
    parent.AddCommand(
        route("ready", "Readiness check", "/ready", false, false),
        route("health", "Liveness check", "/health", false, false),
        route("ha [service]", "HA check, optionally for one service", "/ha", false, true),
        route("status", "Weakest HA status", "/status", false, false),
        route("suspend [service]", "Suspend services for the configured identity", "/suspend", true, true),
        route("resume [service]", "Resume services suspended by the configured identity", "/resume", true, true),
    )
    return parent
}

// NewVersionCmd returns "version check <version> <minimum>".
func NewVersionCmd() *cobra.Command {
    parent := &cobra.Command{Use: "version", Short: "Version helpers"}
    parent.AddCommand(&cobra.Command{
        Use:   "check <version> <minimum>",
        Short: "Exit non-zero unless version is at least minimum",
        Args:  cobra.ExactArgs(2),
        RunE: func(cmd *cobra.Command, args []string) error {
            ok := version.Check(args[0], args[1])
            fmt.Fprintln(cmd.OutOrStdout(), ok)
            if !ok { return fmt.Errorf("version %s is older than %s", version.Parse(args[0]), version.Parse(args[1])) }
            return nil
        },
    })
    return parent
}

func seedFlags(f *pflag.FlagSet, cfg *config.Config) {
    f.StringVar(&cfg.Seeds, "wka", cfg.Seeds, "comma-separated seed addresses or SRV names (overrides the seeds file)")
    f.StringVar(&cfg.SeedsFile, "wka-file", cfg.SeedsFile, "path or glob to a seeds file (one per line or CSV)")
    f.IntVar(&cfg.WKAPort, "wka-port", cfg.WKAPort, "default port for seeds without one")
    f.DurationVar(&cfg.RetryInterval, "retry-interval", cfg.RetryInterval, "delay between resolution attempts")
    f.DurationVar(&cfg.ResolveTimeout, "resolve-timeout", cfg.ResolveTimeout, "give up resolving after this long")
}

func tlsFlags(f *pflag.FlagSet, cfg *config.Config) {
    f.BoolVar(&cfg.Insecure, "insecure", cfg.Insecure, "plain HTTP; set --insecure=false for HTTPS")
    f.StringVar(&cfg.TLSCA, "tls-ca", cfg.TLSCA, "path to CA bundle (PEM)")
    f.StringVar(&cfg.TLSCert, "tls-cert", cfg.TLSCert, "path to certificate (PEM)")
    f.StringVar(&cfg.TLSKey, "tls-key", cfg.TLSKey, "path to private key (PEM)")
    f.StringVar(&cfg.TLSKeyPassword, "tls-key-password-file", cfg.TLSKeyPassword, "file holding the private key password")
    f.StringVar(&cfg.TLSKeystore, "tls-keystore", cfg.TLSKeystore, "path to PKCS#12 keystore")
    f.StringVar(&cfg.TLSKeystorePassword, "tls-keystore-password-file", cfg.TLSKeystorePassword, "file holding the keystore password")
    f.StringVar(&cfg.TLSTrustStore, "tls-truststore", cfg.TLSTrustStore, "path to PKCS#12 trust store")
    f.StringVar(&cfg.TLSTrustPassword, "tls-truststore-password-file", cfg.TLSTrustPassword, "file holding the trust store password")
    f.BoolVar(&cfg.TLSTwoWay, "tls-two-way", cfg.TLSTwoWay, "require and verify client certificates")
    f.BoolVar(&cfg.TLSSkipVerify, "tls-skip-verify", cfg.TLSSkipVerify, "skip server cert verification (DEV ONLY)")
    f.StringVar(&cfg.TLSServerName, "tls-server-name", cfg.TLSServerName, "expected server name (for TLS validation)")
}

func signalContext() (context.Context, context.CancelFunc) {
    return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
