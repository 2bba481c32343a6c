// Package config loads probe settings from PROBE_* environment variables.
// Command line flags override the loaded values.
package config

import (
    "fmt"
    "strconv"
    "strings"
    "time"

    "github.com/vrischmann/envconfig"

    "github.com/amirimatin/cluster-probe/pkg/registry"
    "github.com/amirimatin/cluster-probe/pkg/security/tlsconfig"
)

// Management modes.
const (
    ModeAuto  = "auto"
    ModeLocal = "local"
    ModeREST  = "rest"
)

// Config holds every probe input.
type Config struct {
    // Seeds is a comma-separated seed override (host[:port] or SRV names).
    Seeds          string        `envconfig:"PROBE_WKA,optional"`
    SeedsFile      string        `envconfig:"PROBE_WKA_FILE,optional"`
    WKAPort        int           `envconfig:"PROBE_WKA_PORT,default=7574"`
    RetryInterval  time.Duration `envconfig:"PROBE_DNS_RETRY_INTERVAL,default=2s"`
    ResolveTimeout time.Duration `envconfig:"PROBE_DNS_TIMEOUT,default=6m"`

    HealthAddr     string        `envconfig:"PROBE_HEALTH_ADDR,default=:6676"`
    GRPCAddr       string        `envconfig:"PROBE_GRPC_HEALTH_ADDR,optional"`
    GRPCRefresh    time.Duration `envconfig:"PROBE_GRPC_REFRESH,default=5s"`

    Mode              string        `envconfig:"PROBE_MANAGEMENT,default=auto"`
    ClusterVersion    string        `envconfig:"PROBE_CLUSTER_VERSION,optional"`
    MinLocalVersion   string        `envconfig:"PROBE_MIN_LOCAL_VERSION,default=12.2.1.4.0"`
    ManagementURL     string        `envconfig:"PROBE_MANAGEMENT_URL,optional"`
    ManagementTimeout time.Duration `envconfig:"PROBE_MANAGEMENT_TIMEOUT,default=5s"`

    AllowEndangered string `envconfig:"PROBE_ALLOW_ENDANGERED,optional"`
    Identity        string `envconfig:"PROBE_SUSPEND_IDENTITY,optional"`

    // Embedded registry: membership and declared services.
    NodeID     string `envconfig:"PROBE_NODE_ID,optional"`
    MemberBind string `envconfig:"PROBE_MEMBER_BIND,default=:7946"`
    MemberAdv  string `envconfig:"PROBE_MEMBER_ADVERTISE,optional"`
    Role       string `envconfig:"PROBE_ROLE,optional"`
    Storage    bool   `envconfig:"PROBE_STORAGE_ENABLED,default=true"`
    Services   string `envconfig:"PROBE_SERVICES,optional"`
    // MaxGossipScore fails liveness above this membership health score; 0 disables.
    MaxGossipScore int `envconfig:"PROBE_MAX_GOSSIP_SCORE,default=0"`

    // Insecure serves plain HTTP; set it to false to serve HTTPS.
    Insecure bool `envconfig:"PROBE_INSECURE,default=true"`

    TLSCA               string `envconfig:"PROBE_TLS_CA,optional"`
    TLSCert             string `envconfig:"PROBE_TLS_CERT,optional"`
    TLSKey              string `envconfig:"PROBE_TLS_KEY,optional"`
    TLSKeyPassword      string `envconfig:"PROBE_TLS_KEY_PASSWORD_FILE,optional"`
    TLSKeystore         string `envconfig:"PROBE_TLS_KEYSTORE,optional"`
    TLSKeystorePassword string `envconfig:"PROBE_TLS_KEYSTORE_PASSWORD_FILE,optional"`
    TLSTrustStore       string `envconfig:"PROBE_TLS_TRUSTSTORE,optional"`
    TLSTrustPassword    string `envconfig:"PROBE_TLS_TRUSTSTORE_PASSWORD_FILE,optional"`
    TLSTwoWay           bool   `envconfig:"PROBE_TLS_TWO_WAY,default=false"`
    TLSSkipVerify       bool   `envconfig:"PROBE_TLS_SKIP_VERIFY,default=false"`
    TLSServerName       string `envconfig:"PROBE_TLS_SERVER_NAME,optional"`

    LogLevel  string `envconfig:"PROBE_LOG_LEVEL,default=info"`
    LogFormat string `envconfig:"PROBE_LOG_FORMAT,default=console"`
    Trace     bool   `envconfig:"PROBE_TRACE,default=false"`
}

// Load reads the environment.
func Load() (Config, error) {
    var c Config
    if err := envconfig.Init(&c); err != nil { return c, fmt.Errorf("config: %w", err) }
    return c, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
    switch c.Mode {
    case ModeAuto, ModeLocal:
    case ModeREST:
        if c.ManagementURL == "" { return fmt.Errorf("config: management mode %q needs a management URL", c.Mode) }
    default:
        return fmt.Errorf("config: unknown management mode %q", c.Mode)
    }
    if c.WKAPort <= 0 || c.WKAPort > 65535 { return fmt.Errorf("config: invalid WKA port %d", c.WKAPort) }
    if _, err := ParseServices(c.Services); err != nil { return err }
    return nil
}

// TLS maps the TLS settings onto tlsconfig options; TLS is on unless Insecure.
func (c Config) TLS() tlsconfig.Options {
    return tlsconfig.Options{
        Enable:                 !c.Insecure,
        CAFile:                 c.TLSCA,
        CertFile:               c.TLSCert,
        KeyFile:                c.TLSKey,
        KeyPasswordFile:        c.TLSKeyPassword,
        KeystoreFile:           c.TLSKeystore,
        KeystorePasswordFile:   c.TLSKeystorePassword,
        TrustStoreFile:         c.TLSTrustStore,
        TrustStorePasswordFile: c.TLSTrustPassword,
        TwoWay:                 c.TLSTwoWay,
        InsecureSkipVerify:     c.TLSSkipVerify,
        ServerName:             c.TLSServerName,
    }
}

// ClientTLS is TLS for calls to target: enabled when the probe itself is
// secure or target is an https URL.
func (c Config) ClientTLS(target string) tlsconfig.Options {
    o := c.TLS()
    if strings.HasPrefix(strings.ToLower(target), "https://") { o.Enable = true }
    return o
}

// ParseServices reads "name[:partitions[:backups]]" entries separated by
// commas. Partitions default to 257 and backups to 1.
func ParseServices(csv string) ([]registry.Service, error) {
    var out []registry.Service
    for _, part := range strings.Split(csv, ",") {
        part = strings.TrimSpace(part)
        if part == "" { continue }
        f := strings.Split(part, ":")
        if len(f) > 3 || f[0] == "" { return nil, fmt.Errorf("config: invalid service %q", part) }
        s := registry.Service{Name: f[0], Type: "DistributedCache", PartitionCount: 257, BackupCount: 1}
        var err error
        if len(f) > 1 {
            if s.PartitionCount, err = strconv.Atoi(f[1]); err != nil || s.PartitionCount <= 0 {
                return nil, fmt.Errorf("config: invalid partition count in %q", part)
            }
        }
        if len(f) > 2 {
            if s.BackupCount, err = strconv.Atoi(f[2]); err != nil || s.BackupCount < 0 {
                return nil, fmt.Errorf("config: invalid backup count in %q", part)
            }
        }
        out = append(out, s)
    }
    return out, nil
}
