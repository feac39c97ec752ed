package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	cryptotls "crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeSelfSigned writes a self-signed certificate and key into dir and
// returns their paths. The certificate doubles as its own CA.
func writeSelfSigned(t *testing.T, dir string) (certFile, keyFile string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "localhost"},
		DNSNames:              []string{"localhost"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}

	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")
	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatalf("write cert: %v", err)
	}
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	return certFile, keyFile
}

func TestConfig_Validate(t *testing.T) {
	dir := t.TempDir()
	cert, key := writeSelfSigned(t, dir)

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"disabled", Config{}, false},
		{"disabled ignores paths", Config{CertFile: "/missing"}, false},
		{"cert and key", Config{Enabled: true, CertFile: cert, KeyFile: key}, false},
		{"ca only", Config{Enabled: true, CAFile: cert}, false},
		{"cert without key", Config{Enabled: true, CertFile: cert}, true},
		{"missing file", Config{Enabled: true, CertFile: cert, KeyFile: filepath.Join(dir, "nope.pem")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewServerTLSConfig(t *testing.T) {
	cert, key := writeSelfSigned(t, t.TempDir())

	plain, err := NewServerTLSConfig(Config{Enabled: true, CertFile: cert, KeyFile: key})
	if err != nil {
		t.Fatalf("NewServerTLSConfig() error = %v", err)
	}
	if plain.MinVersion != cryptotls.VersionTLS13 {
		t.Errorf("MinVersion = %x, want TLS 1.3", plain.MinVersion)
	}
	if plain.ClientAuth != cryptotls.NoClientCert {
		t.Errorf("ClientAuth = %v, want NoClientCert", plain.ClientAuth)
	}

	mutual, err := NewServerTLSConfig(Config{Enabled: true, CertFile: cert, KeyFile: key, CAFile: cert})
	if err != nil {
		t.Fatalf("NewServerTLSConfig() error = %v", err)
	}
	if mutual.ClientAuth != cryptotls.RequireAndVerifyClientCert || mutual.ClientCAs == nil {
		t.Errorf("mutual config does not verify clients: %+v", mutual)
	}

	if _, err := NewServerTLSConfig(Config{Enabled: true}); err == nil {
		t.Error("NewServerTLSConfig() should require a certificate")
	}
}

func TestNewClientTLSConfig(t *testing.T) {
	dir := t.TempDir()
	cert, key := writeSelfSigned(t, dir)

	cfg, err := NewClientTLSConfig(Config{Enabled: true, CertFile: cert, KeyFile: key, CAFile: cert})
	if err != nil {
		t.Fatalf("NewClientTLSConfig() error = %v", err)
	}
	if len(cfg.Certificates) != 1 || cfg.RootCAs == nil {
		t.Errorf("client config = %+v", cfg)
	}

	bad := filepath.Join(dir, "bad.pem")
	os.WriteFile(bad, []byte("not a certificate"), 0o600)
	if _, err := NewClientTLSConfig(Config{Enabled: true, CAFile: bad}); err == nil {
		t.Error("NewClientTLSConfig() should reject an unparsable CA")
	}
}

func TestConfig_Mutual(t *testing.T) {
	if (Config{Enabled: true}).Mutual() {
		t.Error("Mutual() without CA should be false")
	}
	if !(Config{Enabled: true, CAFile: "ca.pem"}).Mutual() {
		t.Error("Mutual() with CA should be true")
	}
	if (Config{CAFile: "ca.pem"}).Mutual() {
		t.Error("Mutual() when disabled should be false")
	}
}
