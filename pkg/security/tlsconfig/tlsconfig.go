// Package tlsconfig builds server and client TLS configurations from PEM
// files or PKCS#12 keystores whose passwords live in side-car files.
package tlsconfig

import (
    "crypto/tls"
    "crypto/x509"
    "encoding/pem"
    "errors"
    "fmt"
    "os"
    "strings"
    "sync"
    "time"

    "software.sslmate.com/src/go-pkcs12"
)

var (
    ErrNoCertificate = errors.New("tls: certificate and key (or keystore) required when TLS enabled")
    ErrNoTrustStore  = errors.New("tls: trust store required for two-way TLS")
)

// Options defines TLS configuration inputs. A PKCS#12 keystore takes
// precedence over a PEM cert/key pair; a PKCS#12 trust store is merged with
// the PEM CA bundle.
type Options struct {
    Enable bool

    CAFile                 string
    TrustStoreFile         string
    TrustStorePasswordFile string

    CertFile        string
    KeyFile         string
    KeyPasswordFile string

    KeystoreFile         string
    KeystorePasswordFile string

    // TwoWay requires and verifies client certificates on servers.
    TwoWay             bool
    InsecureSkipVerify bool
    ServerName         string
}

// Server returns a tls.Config for servers if enabled, otherwise nil.
func (o Options) Server() (*tls.Config, error) {
    if !o.Enable { return nil, nil }
    cert, err := o.certificate()
    if err != nil { return nil, err }
    if cert == nil { return nil, ErrNoCertificate }
    cfg, err := o.serverBase()
    if err != nil { return nil, err }
    cfg.Certificates = []tls.Certificate{*cert}
    return cfg, nil
}

// ServerHotReload is Server with the certificate re-read from disk at most
// every ttl, so rotated secrets are picked up without a restart.
func (o Options) ServerHotReload(ttl time.Duration) (*tls.Config, error) {
    if !o.Enable { return nil, nil }
    if ttl <= 0 { ttl = 10 * time.Second }
    first, err := o.certificate()
    if err != nil { return nil, err }
    if first == nil { return nil, ErrNoCertificate }
    cfg, err := o.serverBase()
    if err != nil { return nil, err }
    var (
        mu       sync.Mutex
        cached   = first
        lastLoad = time.Now()
    )
    cfg.GetCertificate = func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
        mu.Lock()
        defer mu.Unlock()
        if time.Since(lastLoad) < ttl { return cached, nil }
        c, err := o.certificate()
        if err != nil || c == nil { return cached, nil }
        cached, lastLoad = c, time.Now()
        return cached, nil
    }
    return cfg, nil
}

func (o Options) serverBase() (*tls.Config, error) {
    cfg := &tls.Config{MinVersion: tls.VersionTLS12}
    pool, err := o.trustPool()
    if err != nil { return nil, err }
    switch {
    case o.TwoWay && pool == nil:
        return nil, ErrNoTrustStore
    case o.TwoWay:
        cfg.ClientCAs = pool
        cfg.ClientAuth = tls.RequireAndVerifyClientCert
    case pool != nil:
        cfg.ClientCAs = pool
        cfg.ClientAuth = tls.VerifyClientCertIfGiven
    }
    return cfg, nil
}

// Client returns a tls.Config for clients if enabled, otherwise nil.
func (o Options) Client() (*tls.Config, error) {
    if !o.Enable { return nil, nil }
    cfg := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: o.InsecureSkipVerify} //nolint:gosec
    if o.ServerName != "" { cfg.ServerName = o.ServerName }
    pool, err := o.trustPool()
    if err != nil { return nil, err }
    cfg.RootCAs = pool
    cert, err := o.certificate()
    if err != nil { return nil, err }
    if cert != nil { cfg.Certificates = []tls.Certificate{*cert} }
    return cfg, nil
}

// certificate loads the keystore or PEM pair; nil when neither is configured.
func (o Options) certificate() (*tls.Certificate, error) {
    if o.KeystoreFile != "" {
        data, err := os.ReadFile(o.KeystoreFile)
        if err != nil { return nil, fmt.Errorf("tls: read keystore: %w", err) }
        pw, err := readPassword(o.KeystorePasswordFile)
        if err != nil { return nil, err }
        key, leaf, chain, err := pkcs12.DecodeChain(data, pw)
        if err != nil { return nil, fmt.Errorf("tls: decode keystore %s: %w", o.KeystoreFile, err) }
        c := &tls.Certificate{PrivateKey: key, Leaf: leaf, Certificate: [][]byte{leaf.Raw}}
        for _, ca := range chain { c.Certificate = append(c.Certificate, ca.Raw) }
        return c, nil
    }
    if o.CertFile == "" || o.KeyFile == "" { return nil, nil }
    certPEM, err := os.ReadFile(o.CertFile)
    if err != nil { return nil, fmt.Errorf("tls: read certificate: %w", err) }
    keyPEM, err := os.ReadFile(o.KeyFile)
    if err != nil { return nil, fmt.Errorf("tls: read key: %w", err) }
    if o.KeyPasswordFile != "" {
        if keyPEM, err = decryptKey(keyPEM, o.KeyPasswordFile); err != nil { return nil, err }
    }
    c, err := tls.X509KeyPair(certPEM, keyPEM)
    if err != nil { return nil, fmt.Errorf("tls: load key pair: %w", err) }
    return &c, nil
}

// decryptKey unwraps a legacy password-protected PEM key.
func decryptKey(keyPEM []byte, passwordFile string) ([]byte, error) {
    pw, err := readPassword(passwordFile)
    if err != nil { return nil, err }
    block, _ := pem.Decode(keyPEM)
    if block == nil { return nil, errors.New("tls: key file is not PEM") }
    //nolint:staticcheck
    if !x509.IsEncryptedPEMBlock(block) { return keyPEM, nil }
    //nolint:staticcheck
    der, err := x509.DecryptPEMBlock(block, []byte(pw))
    if err != nil { return nil, fmt.Errorf("tls: decrypt key: %w", err) }
    return pem.EncodeToMemory(&pem.Block{Type: block.Type, Bytes: der}), nil
}

// trustPool merges the PEM CA bundle and the PKCS#12 trust store; nil when
// neither is configured.
func (o Options) trustPool() (*x509.CertPool, error) {
    if o.CAFile == "" && o.TrustStoreFile == "" { return nil, nil }
    pool := x509.NewCertPool()
    if o.CAFile != "" {
        ca, err := os.ReadFile(o.CAFile)
        if err != nil { return nil, fmt.Errorf("tls: read CA: %w", err) }
        if !pool.AppendCertsFromPEM(ca) { return nil, fmt.Errorf("tls: no certificates in %s", o.CAFile) }
    }
    if o.TrustStoreFile != "" {
        data, err := os.ReadFile(o.TrustStoreFile)
        if err != nil { return nil, fmt.Errorf("tls: read trust store: %w", err) }
        pw, err := readPassword(o.TrustStorePasswordFile)
        if err != nil { return nil, err }
        certs, err := pkcs12.DecodeTrustStore(data, pw)
        if err != nil { return nil, fmt.Errorf("tls: decode trust store %s: %w", o.TrustStoreFile, err) }
        for _, c := range certs { pool.AddCert(c) }
    }
    return pool, nil
}

// readPassword returns the first line of a password file; no file means an
// empty password.
func readPassword(path string) (string, error) {
    if path == "" { return "", nil }
    b, err := os.ReadFile(path)
    if err != nil { return "", fmt.Errorf("tls: read password file: %w", err) }
    return strings.TrimRight(strings.SplitN(string(b), "\n", 2)[0], "\r"), nil
}
