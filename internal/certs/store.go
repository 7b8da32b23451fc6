// Package certs manages the self-signed certificates GraphToolKit apps
// authenticate with. Certificates live in a store directory as
// password-protected PFX files named by thumbprint, next to a JSON
// metadata sidecar. Thumbprints follow the Windows convention: uppercase
// hex SHA-1 of the DER certificate.
package certs

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"software.sslmate.com/src/go-pkcs12"

	"graphtoolkit/internal/audit"
)

// ExportPolicy controls whether a certificate's private key may leave the
// store as a PFX blob.
type ExportPolicy string

const (
	Exportable    ExportPolicy = "Exportable"
	NonExportable ExportPolicy = "NonExportable"
)

const certificateValidity = 365 * 24 * time.Hour

// Descriptor describes a stored certificate without exposing key material.
type Descriptor struct {
	Thumbprint   string       `json:"thumbprint"`
	Subject      string       `json:"subject"`
	NotAfter     time.Time    `json:"notAfter"`
	ExportPolicy ExportPolicy `json:"exportPolicy"`
}

// Store is a directory-backed certificate store.
type Store struct {
	dir      string
	password string
	auditLog *audit.Log
}

// NewStore opens (creating if needed) a certificate store rooted at dir.
// password protects the PFX files on disk.
func NewStore(dir, password string, auditLog *audit.Log) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("certificate store directory is required")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("could not create certificate store directory %s: %w", dir, err)
	}
	return &Store{dir: dir, password: password, auditLog: auditLog}, nil
}

// Thumbprint computes the uppercase hex SHA-1 of a DER certificate.
func Thumbprint(der []byte) string {
	sum := sha1.Sum(der)
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// FindByThumbprint returns the descriptor for an existing certificate.
// A missing thumbprint is an error; looking up the same thumbprint twice
// returns the same descriptor without side effects.
func (s *Store) FindByThumbprint(thumbprint string) (*Descriptor, error) {
	thumbprint = strings.ToUpper(thumbprint)
	meta, err := s.readMetadata(thumbprint)
	if err != nil {
		return nil, fmt.Errorf("certificate with thumbprint %s not found", thumbprint)
	}
	return meta, nil
}

// FindBySubject returns the descriptor of the first certificate whose
// subject matches, or nil when none does.
func (s *Store) FindBySubject(subject string) (*Descriptor, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("could not read certificate store: %w", err)
	}
	want := normalizeSubject(subject)
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		meta, err := s.readMetadata(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue
		}
		if meta.Subject == want {
			return meta, nil
		}
	}
	return nil, nil
}

// Resolve returns a certificate for an app registration. With a thumbprint
// it is a pure lookup. Without one it creates a fresh certificate under
// subject; an existing certificate with the same subject is fatal unless
// replaceExisting is set, in which case the old one is deleted first.
func (s *Store) Resolve(thumbprint, subject string, policy ExportPolicy, replaceExisting bool) (*Descriptor, error) {
	s.auditLog.BeginFunction("ResolveCertificate")
	defer s.auditLog.EndFunction()

	if thumbprint != "" {
		desc, err := s.FindByThumbprint(thumbprint)
		if err != nil {
			return nil, s.auditLog.Errorf("%w", err)
		}
		s.auditLog.Append(fmt.Sprintf("using existing certificate %s (%s)", desc.Thumbprint, desc.Subject), audit.SeverityInformation)
		return desc, nil
	}

	existing, err := s.FindBySubject(subject)
	if err != nil {
		return nil, s.auditLog.Errorf("%w", err)
	}
	if existing != nil {
		if !replaceExisting {
			return nil, s.auditLog.Errorf("certificate with subject %s already exists (thumbprint %s); pass the replace option to recreate it", existing.Subject, existing.Thumbprint)
		}
		s.auditLog.Append(fmt.Sprintf("replacing existing certificate %s (%s)", existing.Thumbprint, existing.Subject), audit.SeverityWarning)
		if err := s.Delete(existing.Thumbprint); err != nil {
			return nil, s.auditLog.Errorf("could not delete certificate %s: %w", existing.Thumbprint, err)
		}
	}

	return s.Create(subject, policy)
}

// Create generates a self-signed RSA-2048/SHA-256 certificate valid for one
// year with the digital signature key usage, and persists it to the store.
func (s *Store) Create(subject string, policy ExportPolicy) (*Descriptor, error) {
	s.auditLog.BeginFunction("CreateCertificate")
	defer s.auditLog.EndFunction()

	subject = normalizeSubject(subject)
	commonName := strings.TrimPrefix(subject, "CN=")

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, s.auditLog.Errorf("key generation failed: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, s.auditLog.Errorf("serial generation failed: %w", err)
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             now.Add(-5 * time.Minute),
		NotAfter:              now.Add(certificateValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		SignatureAlgorithm:    x509.SHA256WithRSA,
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, s.auditLog.Errorf("certificate creation failed: %w", err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, s.auditLog.Errorf("certificate parse failed: %w", err)
	}

	pfx, err := pkcs12.Modern.Encode(key, cert, nil, s.password)
	if err != nil {
		return nil, s.auditLog.Errorf("PFX encoding failed: %w", err)
	}

	desc := &Descriptor{
		Thumbprint:   Thumbprint(der),
		Subject:      subject,
		NotAfter:     cert.NotAfter,
		ExportPolicy: policy,
	}

	if err := os.WriteFile(s.pfxPath(desc.Thumbprint), pfx, 0600); err != nil {
		return nil, s.auditLog.Errorf("could not write PFX: %w", err)
	}
	metaBytes, err := json.Marshal(desc)
	if err != nil {
		return nil, s.auditLog.Errorf("could not encode certificate metadata: %w", err)
	}
	if err := os.WriteFile(s.metaPath(desc.Thumbprint), metaBytes, 0600); err != nil {
		return nil, s.auditLog.Errorf("could not write certificate metadata: %w", err)
	}

	s.auditLog.Append(fmt.Sprintf("created certificate %s (%s), expires %s", desc.Thumbprint, desc.Subject, desc.NotAfter.Format(time.RFC3339)), audit.SeverityInformation)
	return desc, nil
}

// Delete removes a certificate and its metadata from the store.
func (s *Store) Delete(thumbprint string) error {
	thumbprint = strings.ToUpper(thumbprint)
	if _, err := s.FindByThumbprint(thumbprint); err != nil {
		return err
	}
	if err := os.Remove(s.pfxPath(thumbprint)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not remove PFX for %s: %w", thumbprint, err)
	}
	if err := os.Remove(s.metaPath(thumbprint)); err != nil {
		return fmt.Errorf("could not remove metadata for %s: %w", thumbprint, err)
	}
	return nil
}

// RawCertificate returns the DER bytes of a stored certificate, for upload
// as an app key credential.
func (s *Store) RawCertificate(thumbprint string) ([]byte, error) {
	certs, _, err := s.decode(thumbprint)
	if err != nil {
		return nil, err
	}
	return certs[0].Raw, nil
}

// Decode returns the certificate chain and private key for credential
// construction. The export policy does not apply here: authenticating with
// the key is not exporting it.
func (s *Store) Decode(thumbprint string) ([]*x509.Certificate, crypto.PrivateKey, error) {
	return s.decode(thumbprint)
}

// ExportPFX returns the raw PFX blob for an Exportable certificate.
func (s *Store) ExportPFX(thumbprint string) ([]byte, error) {
	desc, err := s.FindByThumbprint(thumbprint)
	if err != nil {
		return nil, err
	}
	if desc.ExportPolicy == NonExportable {
		return nil, fmt.Errorf("certificate %s is marked NonExportable", desc.Thumbprint)
	}
	return os.ReadFile(s.pfxPath(desc.Thumbprint))
}

func (s *Store) decode(thumbprint string) ([]*x509.Certificate, crypto.PrivateKey, error) {
	thumbprint = strings.ToUpper(thumbprint)
	if _, err := s.FindByThumbprint(thumbprint); err != nil {
		return nil, nil, err
	}
	pfxData, err := os.ReadFile(s.pfxPath(thumbprint))
	if err != nil {
		return nil, nil, fmt.Errorf("could not read PFX for %s: %w", thumbprint, err)
	}
	key, cert, chain, err := pkcs12.DecodeChain(pfxData, s.password)
	if err != nil {
		return nil, nil, fmt.Errorf("could not decode PFX for %s: %w", thumbprint, err)
	}
	return append([]*x509.Certificate{cert}, chain...), key, nil
}

func (s *Store) readMetadata(thumbprint string) (*Descriptor, error) {
	data, err := os.ReadFile(s.metaPath(thumbprint))
	if err != nil {
		return nil, err
	}
	var desc Descriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return nil, err
	}
	return &desc, nil
}

func (s *Store) pfxPath(thumbprint string) string {
	return filepath.Join(s.dir, thumbprint+".pfx")
}

func (s *Store) metaPath(thumbprint string) string {
	return filepath.Join(s.dir, thumbprint+".json")
}

func normalizeSubject(subject string) string {
	if strings.HasPrefix(subject, "CN=") {
		return subject
	}
	return "CN=" + subject
}
