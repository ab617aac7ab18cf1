package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	standardtls "crypto/tls"
	"crypto/x509"
	"slices"
	"testing"
	"time"
)

func parseLeaf(t *testing.T, cert *standardtls.Certificate) *x509.Certificate {
	t.Helper()
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		t.Fatalf("failed to parse certificate: %v", err)
	}
	return leaf
}

func TestGenerateSelfSignedCert(t *testing.T) {
	t.Parallel()

	cert, err := GenerateSelfSignedCert()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	leaf := parseLeaf(t, cert)

	if leaf.Subject.CommonName != "localhost" {
		t.Errorf("CN: got %q, want %q", leaf.Subject.CommonName, "localhost")
	}
	if !slices.Contains(leaf.DNSNames, "localhost") {
		t.Errorf("DNS SANs: %v does not contain localhost", leaf.DNSNames)
	}
	if len(leaf.IPAddresses) != 1 || leaf.IPAddresses[0].String() != "127.0.0.1" {
		t.Errorf("IP SANs: got %v, want [127.0.0.1]", leaf.IPAddresses)
	}

	validFor := leaf.NotAfter.Sub(leaf.NotBefore)
	if want := 365 * 24 * time.Hour; validFor < want-time.Hour || validFor > want+time.Hour {
		t.Errorf("validity: got %v, want about %v", validFor, want)
	}

	ecKey, ok := leaf.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		t.Fatal("public key is not ECDSA")
	}
	if ecKey.Curve != elliptic.P256() {
		t.Errorf("curve: got %v, want P-256", ecKey.Curve.Params().Name)
	}
}

func TestGenerateSelfSignedCert_Hosts(t *testing.T) {
	t.Parallel()

	cert, err := GenerateSelfSignedCert("mail.internal", "10.0.0.5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	leaf := parseLeaf(t, cert)

	if leaf.Subject.CommonName != "mail.internal" {
		t.Errorf("CN: got %q, want %q", leaf.Subject.CommonName, "mail.internal")
	}
	if !slices.Equal(leaf.DNSNames, []string{"mail.internal"}) {
		t.Errorf("DNS SANs: got %v", leaf.DNSNames)
	}
	if len(leaf.IPAddresses) != 1 || leaf.IPAddresses[0].String() != "10.0.0.5" {
		t.Errorf("IP SANs: got %v", leaf.IPAddresses)
	}
}

func TestServerConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cert     string
		key      string
		wantErr  bool
		wantCert bool
	}{
		{name: "self signed", wantCert: true},
		{name: "missing files", cert: "/nonexistent/cert.pem", key: "/nonexistent/key.pem", wantErr: true},
		{name: "only cert", cert: "/nonexistent/cert.pem", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := ServerConfig(tt.cert, tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error: got %v, want error %v", err, tt.wantErr)
			}
			if !tt.wantCert {
				return
			}
			if len(cfg.Certificates) != 1 {
				t.Errorf("Certificates: got %d, want 1", len(cfg.Certificates))
			}
			if cfg.MinVersion != standardtls.VersionTLS12 {
				t.Errorf("MinVersion: got %d, want %d", cfg.MinVersion, standardtls.VersionTLS12)
			}
		})
	}
}

func TestClientConfig(t *testing.T) {
	t.Parallel()

	cfg := ClientConfig("smtp.gmail.com", false)
	if cfg.ServerName != "smtp.gmail.com" {
		t.Errorf("ServerName: got %q, want %q", cfg.ServerName, "smtp.gmail.com")
	}
	if cfg.InsecureSkipVerify {
		t.Error("InsecureSkipVerify should be false")
	}
	if !ClientConfig("relay", true).InsecureSkipVerify {
		t.Error("InsecureSkipVerify should be true")
	}
}
