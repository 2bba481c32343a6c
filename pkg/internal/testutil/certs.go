// Package testutil generates throwaway PKI material for tests.
package testutil

import (
    "crypto/ecdsa"
    "crypto/elliptic"
    "crypto/rand"
    "crypto/x509"
    "crypto/x509/pkix"
    "encoding/pem"
    "math/big"
    "net"
    "os"
    "path/filepath"
    "testing"
    "time"

    "software.sslmate.com/src/go-pkcs12"
)

// Password is written to every password file.
const Password = "changeit"

// Certs holds file paths for a CA, a server and a client identity in both PEM
// and PKCS#12 form.
type Certs struct {
    CA string

    ServerCert, ServerKey string
    ClientCert, ClientKey string

    // EncryptedServerKey is ServerKey protected with Password.
    EncryptedServerKey string

    ServerKeystore, ClientKeystore string
    TrustStore                     string
    PasswordFile                   string

    // Rogue is a client pair signed by an unrelated CA.
    RogueCert, RogueKey string
}

// MakeCerts writes a fresh PKI into dir.
func MakeCerts(t *testing.T, dir string) Certs {
    t.Helper()
    var c Certs
    caKey, caCert := selfSigned(t, "probe-test-ca")
    c.CA = filepath.Join(dir, "ca.crt")
    WritePEM(t, c.CA, "CERTIFICATE", caCert.Raw)

    srvKey, srvCert := leaf(t, "probe-server", caKey, caCert, false)
    c.ServerCert, c.ServerKey = writePair(t, dir, "server", srvKey, srvCert)
    cliKey, cliCert := leaf(t, "probe-client", caKey, caCert, true)
    c.ClientCert, c.ClientKey = writePair(t, dir, "client", cliKey, cliCert)

    c.PasswordFile = filepath.Join(dir, "password")
    if err := os.WriteFile(c.PasswordFile, []byte(Password+"\n"), 0o600); err != nil { t.Fatal(err) }

    der, err := x509.MarshalECPrivateKey(srvKey)
    if err != nil { t.Fatal(err) }
    //nolint:staticcheck
    block, err := x509.EncryptPEMBlock(rand.Reader, "EC PRIVATE KEY", der, []byte(Password), x509.PEMCipherAES256)
    if err != nil { t.Fatal(err) }
    c.EncryptedServerKey = filepath.Join(dir, "server-enc.key")
    if err := os.WriteFile(c.EncryptedServerKey, pem.EncodeToMemory(block), 0o600); err != nil { t.Fatal(err) }

    c.ServerKeystore = writeKeystore(t, filepath.Join(dir, "server.p12"), srvKey, srvCert, caCert)
    c.ClientKeystore = writeKeystore(t, filepath.Join(dir, "client.p12"), cliKey, cliCert, caCert)
    ts, err := pkcs12.Modern.EncodeTrustStore([]*x509.Certificate{caCert}, Password)
    if err != nil { t.Fatal(err) }
    c.TrustStore = filepath.Join(dir, "truststore.p12")
    if err := os.WriteFile(c.TrustStore, ts, 0o600); err != nil { t.Fatal(err) }

    rogueCAKey, rogueCA := selfSigned(t, "rogue-ca")
    rk, rc := leaf(t, "rogue-client", rogueCAKey, rogueCA, true)
    c.RogueCert, c.RogueKey = writePair(t, dir, "rogue", rk, rc)
    return c
}

func selfSigned(t *testing.T, cn string) (*ecdsa.PrivateKey, *x509.Certificate) {
    t.Helper()
    key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
    if err != nil { t.Fatal(err) }
    tpl := &x509.Certificate{
        SerialNumber: big.NewInt(1), Subject: pkix.Name{CommonName: cn},
        NotBefore: time.Now().Add(-time.Hour), NotAfter: time.Now().Add(48 * time.Hour),
        KeyUsage: x509.KeyUsageCertSign | x509.KeyUsageCRLSign, IsCA: true, BasicConstraintsValid: true,
    }
    der, err := x509.CreateCertificate(rand.Reader, tpl, tpl, &key.PublicKey, key)
    if err != nil { t.Fatal(err) }
    cert, err := x509.ParseCertificate(der)
    if err != nil { t.Fatal(err) }
    return key, cert
}

func leaf(t *testing.T, cn string, caKey *ecdsa.PrivateKey, ca *x509.Certificate, client bool) (*ecdsa.PrivateKey, *x509.Certificate) {
    t.Helper()
    key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
    if err != nil { t.Fatal(err) }
    tpl := &x509.Certificate{
        SerialNumber: big.NewInt(time.Now().UnixNano()), Subject: pkix.Name{CommonName: cn},
        NotBefore: time.Now().Add(-time.Hour), NotAfter: time.Now().Add(24 * time.Hour),
        KeyUsage:    x509.KeyUsageDigitalSignature,
        IPAddresses: []net.IP{net.ParseIP("127.0.0.1")},
        DNSNames:    []string{"localhost"},
    }
    if client {
        tpl.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}
    } else {
        tpl.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}
    }
    der, err := x509.CreateCertificate(rand.Reader, tpl, ca, &key.PublicKey, caKey)
    if err != nil { t.Fatal(err) }
    cert, err := x509.ParseCertificate(der)
    if err != nil { t.Fatal(err) }
    return key, cert
}

func writePair(t *testing.T, dir, name string, key *ecdsa.PrivateKey, cert *x509.Certificate) (string, string) {
    t.Helper()
    crt := filepath.Join(dir, name+".crt")
    kf := filepath.Join(dir, name+".key")
    WritePEM(t, crt, "CERTIFICATE", cert.Raw)
    der, err := x509.MarshalECPrivateKey(key)
    if err != nil { t.Fatal(err) }
    WritePEM(t, kf, "EC PRIVATE KEY", der)
    return crt, kf
}

func writeKeystore(t *testing.T, path string, key *ecdsa.PrivateKey, cert, ca *x509.Certificate) string {
    t.Helper()
    data, err := pkcs12.Modern.Encode(key, cert, []*x509.Certificate{ca}, Password)
    if err != nil { t.Fatal(err) }
    if err := os.WriteFile(path, data, 0o600); err != nil { t.Fatal(err) }
    return path
}

// WritePEM writes a single PEM block to path.
func WritePEM(t *testing.T, path, typ string, der []byte) {
    t.Helper()
    if err := os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: typ, Bytes: der}), 0o600); err != nil {
        t.Fatalf("write %s: %v", path, err)
    }
}
