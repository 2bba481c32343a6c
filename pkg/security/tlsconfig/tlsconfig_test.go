package tlsconfig

import (
    "crypto/tls"
    "errors"
    "io"
    "net"
    "os"
    "path/filepath"
    "testing"
    "time"

    "github.com/amirimatin/cluster-probe/pkg/internal/testutil"
)

func TestDisabledReturnsNil(t *testing.T) {
    cfg, err := Options{}.Server()
    if err != nil || cfg != nil {
        t.Fatalf("disabled server config should be nil, got %v %v", cfg, err)
    }
    cfg, err = Options{}.Client()
    if err != nil || cfg != nil {
        t.Fatalf("disabled client config should be nil, got %v %v", cfg, err)
    }
}

func TestServerNeedsCertificate(t *testing.T) {
    if _, err := (Options{Enable: true}).Server(); !errors.Is(err, ErrNoCertificate) {
        t.Fatalf("expected ErrNoCertificate, got %v", err)
    }
}

func TestTwoWayNeedsTrustStore(t *testing.T) {
    c := testutil.MakeCerts(t, t.TempDir())
    _, err := Options{Enable: true, CertFile: c.ServerCert, KeyFile: c.ServerKey, TwoWay: true}.Server()
    if !errors.Is(err, ErrNoTrustStore) {
        t.Fatalf("expected ErrNoTrustStore, got %v", err)
    }
}

func TestServerVariants(t *testing.T) {
    c := testutil.MakeCerts(t, t.TempDir())
    cases := map[string]Options{
        "pem":           {CertFile: c.ServerCert, KeyFile: c.ServerKey, CAFile: c.CA},
        "encrypted-pem": {CertFile: c.ServerCert, KeyFile: c.EncryptedServerKey, KeyPasswordFile: c.PasswordFile, CAFile: c.CA},
        "pkcs12":        {KeystoreFile: c.ServerKeystore, KeystorePasswordFile: c.PasswordFile, TrustStoreFile: c.TrustStore, TrustStorePasswordFile: c.PasswordFile},
    }
    for name, o := range cases {
        o.Enable, o.TwoWay = true, true
        cfg, err := o.Server()
        if err != nil { t.Fatalf("%s: %v", name, err) }
        if cfg.ClientAuth != tls.RequireAndVerifyClientCert || cfg.ClientCAs == nil || len(cfg.Certificates) != 1 {
            t.Fatalf("%s: unexpected config", name)
        }
    }
}

func TestWrongKeystorePassword(t *testing.T) {
    dir := t.TempDir()
    c := testutil.MakeCerts(t, dir)
    bad := filepath.Join(dir, "bad-password")
    if err := os.WriteFile(bad, []byte("wrong\n"), 0o600); err != nil { t.Fatal(err) }
    _, err := Options{Enable: true, KeystoreFile: c.ServerKeystore, KeystorePasswordFile: bad}.Server()
    if err == nil {
        t.Fatalf("expected keystore decode error")
    }
}

func TestTwoWayHandshake(t *testing.T) {
    c := testutil.MakeCerts(t, t.TempDir())
    srvCfg, err := Options{Enable: true, KeystoreFile: c.ServerKeystore, KeystorePasswordFile: c.PasswordFile,
        CAFile: c.CA, TwoWay: true}.ServerHotReload(time.Minute)
    if err != nil { t.Fatalf("server: %v", err) }

    ln, err := tls.Listen("tcp", "127.0.0.1:0", srvCfg)
    if err != nil { t.Fatal(err) }
    defer ln.Close()
    go func() {
        for {
            conn, err := ln.Accept()
            if err != nil { return }
            go func() {
                defer conn.Close()
                if err := conn.(*tls.Conn).Handshake(); err != nil { return }
                _, _ = conn.Write([]byte("ok"))
            }()
        }
    }()

    dial := func(o Options) error {
        o.Enable = true
        cfg, err := o.Client()
        if err != nil { return err }
        conn, err := tls.DialWithDialer(&net.Dialer{Timeout: 2 * time.Second}, "tcp", ln.Addr().String(), cfg)
        if err != nil { return err }
        defer conn.Close()
        _ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
        b := make([]byte, 2)
        _, err = io.ReadFull(conn, b)
        return err
    }

    if err := dial(Options{CAFile: c.CA, CertFile: c.ClientCert, KeyFile: c.ClientKey}); err != nil {
        t.Fatalf("trusted client rejected: %v", err)
    }
    if err := dial(Options{TrustStoreFile: c.TrustStore, TrustStorePasswordFile: c.PasswordFile,
        KeystoreFile: c.ClientKeystore, KeystorePasswordFile: c.PasswordFile}); err != nil {
        t.Fatalf("pkcs12 client rejected: %v", err)
    }
    if err := dial(Options{CAFile: c.CA}); err == nil {
        t.Fatalf("client without certificate was accepted")
    }
    if err := dial(Options{CAFile: c.CA, CertFile: c.RogueCert, KeyFile: c.RogueKey}); err == nil {
        t.Fatalf("client with untrusted certificate was accepted")
    }
}
