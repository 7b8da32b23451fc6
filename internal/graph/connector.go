// Package graph establishes authenticated Microsoft Graph sessions and
// wraps the SDK calls GraphToolKit needs: service principal lookups, app
// registration, consent grants, directory roles, groups and sendMail.
package graph

import (
	"context"
	"crypto"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/golang-jwt/jwt/v5"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	"software.sslmate.com/src/go-pkcs12"

	"graphtoolkit/internal/audit"
	"graphtoolkit/internal/common/logger"
	"graphtoolkit/internal/common/security"
	"graphtoolkit/internal/common/validation"
)

const defaultScope = "https://graph.microsoft.com/.default"

// Credentials carries the authentication configuration. Exactly one of
// Secret, PfxPath or Thumbprint must be set.
type Credentials struct {
	TenantID   string
	ClientID   string
	Secret     string
	PfxPath    string
	PfxPass    string
	Thumbprint string
}

// Validate checks field formats and the mutual exclusion of auth methods.
func (c Credentials) Validate() error {
	if err := validation.ValidateGUID(c.TenantID, "Tenant ID"); err != nil {
		return err
	}
	if err := validation.ValidateGUID(c.ClientID, "Client ID"); err != nil {
		return err
	}

	methods := 0
	if c.Secret != "" {
		methods++
	}
	if c.PfxPath != "" {
		methods++
	}
	if c.Thumbprint != "" {
		methods++
	}
	if methods == 0 {
		return fmt.Errorf("missing authentication: provide one of client secret, PFX file, or certificate thumbprint")
	}
	if methods > 1 {
		return fmt.Errorf("multiple authentication methods provided: use only one of client secret, PFX file, or certificate thumbprint")
	}

	if c.Thumbprint != "" {
		return validation.ValidateThumbprint(c.Thumbprint, "Certificate thumbprint")
	}
	return nil
}

// CertificateSource resolves a stored certificate to its chain and key.
// Satisfied by the certificate store.
type CertificateSource interface {
	Decode(thumbprint string) ([]*x509.Certificate, crypto.PrivateKey, error)
}

// Connector builds and caches an authenticated Graph client, rebuilding it
// only when the cached token lacks a required role.
type Connector struct {
	creds    Credentials
	certs    CertificateSource
	auditLog *audit.Log
	slogger  *slog.Logger

	mu     sync.Mutex
	cred   azcore.TokenCredential
	client *msgraphsdk.GraphServiceClient
}

// NewConnector validates the credential configuration and prepares a
// connector. No network calls happen until Connect.
func NewConnector(creds Credentials, certSource CertificateSource, auditLog *audit.Log, slogger *slog.Logger) (*Connector, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	return &Connector{
		creds:    creds,
		certs:    certSource,
		auditLog: auditLog,
		slogger:  slogger,
	}, nil
}

// Connect returns an authenticated Graph client, building it on first use.
func (c *Connector) Connect(ctx context.Context) (*msgraphsdk.GraphServiceClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Connector) connectLocked(ctx context.Context) (*msgraphsdk.GraphServiceClient, error) {
	if c.client != nil {
		return c.client, nil
	}

	c.auditLog.BeginFunction("ConnectGraph")
	defer c.auditLog.EndFunction()

	cred, err := c.buildCredential()
	if err != nil {
		return nil, c.auditLog.Errorf("authentication setup failed: %w", err)
	}

	client, err := msgraphsdk.NewGraphServiceClientWithCredentials(cred, []string{defaultScope})
	if err != nil {
		return nil, c.auditLog.Errorf("graph client initialization failed: %w", err)
	}

	c.cred = cred
	c.client = client
	c.auditLog.Append(fmt.Sprintf("graph session established for tenant %s", security.MaskGUID(c.creds.TenantID)), audit.SeverityInformation)
	return client, nil
}

func (c *Connector) buildCredential() (azcore.TokenCredential, error) {
	if c.creds.Secret != "" {
		logger.LogDebug(c.slogger, "authentication method: client secret", "secret", security.MaskSecret(c.creds.Secret))
		return azidentity.NewClientSecretCredential(c.creds.TenantID, c.creds.ClientID, c.creds.Secret, nil)
	}

	if c.creds.PfxPath != "" {
		logger.LogDebug(c.slogger, "authentication method: PFX certificate file", "path", c.creds.PfxPath)
		pfxData, err := os.ReadFile(c.creds.PfxPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read PFX file: %w", err)
		}
		key, cert, chain, err := pkcs12.DecodeChain(pfxData, c.creds.PfxPass)
		if err != nil {
			return nil, fmt.Errorf("failed to decode PFX: %w", err)
		}
		return certCredential(c.creds.TenantID, c.creds.ClientID, append([]*x509.Certificate{cert}, chain...), key)
	}

	logger.LogDebug(c.slogger, "authentication method: certificate store", "thumbprint", c.creds.Thumbprint)
	if c.certs == nil {
		return nil, fmt.Errorf("certificate store not configured")
	}
	chain, key, err := c.certs.Decode(c.creds.Thumbprint)
	if err != nil {
		return nil, err
	}
	return certCredential(c.creds.TenantID, c.creds.ClientID, chain, key)
}

func certCredential(tenantID, clientID string, chain []*x509.Certificate, key crypto.PrivateKey) (*azidentity.ClientCertificateCredential, error) {
	opts := &azidentity.ClientCertificateCredentialOptions{
		SendCertificateChain: true,
	}
	return azidentity.NewClientCertificateCredential(tenantID, clientID, chain, key, opts)
}

// Credential exposes the underlying token credential for non-Graph
// surfaces (Exchange Online IMAP), establishing the session on first use.
func (c *Connector) Credential(ctx context.Context) (azcore.TokenCredential, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.connectLocked(ctx); err != nil {
		return nil, err
	}
	return c.cred, nil
}

// EnsureScopes checks whether the current token carries every required
// application role, rebuilding the session when something is missing.
// An existing session with sufficient roles is reused unchanged.
func (c *Connector) EnsureScopes(ctx context.Context, required []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.connectLocked(ctx); err != nil {
		return err
	}

	token, err := c.cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{defaultScope}})
	if err != nil {
		return c.auditLog.Errorf("token acquisition failed: %w", err)
	}
	logger.LogDebug(c.slogger, "token acquired", "token", security.MaskAccessToken(token.Token), "expires", token.ExpiresOn)

	granted, err := tokenRoles(token.Token)
	if err != nil {
		c.auditLog.Append(fmt.Sprintf("could not inspect token roles, keeping session: %v", err), audit.SeverityWarning)
		return nil
	}

	missing := missingRoles(granted, required)
	if len(missing) == 0 {
		c.auditLog.Append("existing session covers all required roles, reusing", audit.SeverityVerbose)
		return nil
	}

	c.auditLog.Append(fmt.Sprintf("token missing roles %v, rebuilding session", missing), audit.SeverityWarning)
	c.client = nil
	c.cred = nil
	if _, err := c.connectLocked(ctx); err != nil {
		return err
	}
	return nil
}

// ProbeTenant verifies the session by fetching the organization object and
// returns the tenant ID. Any success marks the session usable.
func (c *Connector) ProbeTenant(ctx context.Context) (string, error) {
	client, err := c.Connect(ctx)
	if err != nil {
		return "", err
	}

	result, err := client.Organization().Get(ctx, nil)
	if err != nil {
		return "", c.auditLog.Errorf("organization probe failed: %w", err)
	}
	orgs := result.GetValue()
	if len(orgs) == 0 || orgs[0].GetId() == nil {
		return "", c.auditLog.Errorf("organization probe returned no tenant")
	}
	return *orgs[0].GetId(), nil
}

// tokenRoles decodes an access token without signature verification and
// returns its roles claim. Verification is Graph's job; we only need to
// read what was granted.
func tokenRoles(token string) ([]string, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, err
	}

	raw, ok := claims["roles"]
	if !ok {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected roles claim shape %T", raw)
	}

	roles := make([]string, 0, len(list))
	for _, r := range list {
		if s, ok := r.(string); ok {
			roles = append(roles, s)
		}
	}
	return roles, nil
}

func missingRoles(granted, required []string) []string {
	have := make(map[string]struct{}, len(granted))
	for _, g := range granted {
		have[g] = struct{}{}
	}
	var missing []string
	for _, r := range required {
		if _, ok := have[r]; !ok {
			missing = append(missing, r)
		}
	}
	return missing
}
