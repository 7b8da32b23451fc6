// Package mailcheck verifies that a published email app can actually reach
// its mailbox, by authenticating to Exchange Online over IMAPS with an app
// token. Diagnostic only: a failed check changes nothing in the tenant.
package mailcheck

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-sasl"

	"graphtoolkit/internal/audit"
	"graphtoolkit/internal/common/security"
)

const (
	// DefaultServer is the Exchange Online IMAPS endpoint.
	DefaultServer = "outlook.office365.com:993"

	outlookScope = "https://outlook.office365.com/.default"
)

// Result reports one verification attempt.
type Result struct {
	Server        string
	Mailbox       string
	Connected     bool
	Capabilities  []string
	Authenticated bool
}

// Verifier checks mailbox access for an app credential.
type Verifier struct {
	server   string
	cred     azcore.TokenCredential
	auditLog *audit.Log
}

// New builds a verifier against server (DefaultServer when empty).
func New(server string, cred azcore.TokenCredential, auditLog *audit.Log) *Verifier {
	if server == "" {
		server = DefaultServer
	}
	return &Verifier{server: server, cred: cred, auditLog: auditLog}
}

// Verify connects over implicit TLS, reads the server capabilities, and
// authenticates with SASL OAUTHBEARER as the given mailbox.
func (v *Verifier) Verify(ctx context.Context, mailbox string) (*Result, error) {
	v.auditLog.BeginFunction("VerifyMailbox")
	defer v.auditLog.EndFunction()

	result := &Result{Server: v.server, Mailbox: mailbox}

	host := v.server
	if i := strings.Index(host, ":"); i > 0 {
		host = host[:i]
	}

	token, err := v.cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{outlookScope}})
	if err != nil {
		return result, v.auditLog.Errorf("token acquisition for Exchange Online failed: %w", err)
	}

	options := &imapclient.Options{
		TLSConfig: &tls.Config{
			ServerName: host,
			MinVersion: tls.VersionTLS12,
		},
	}
	client, err := imapclient.DialTLS(v.server, options)
	if err != nil {
		return result, v.auditLog.Errorf("IMAPS connection to %s failed: %w", v.server, err)
	}
	defer func() { _ = client.Logout() }()

	result.Connected = true
	for cap := range client.Caps() {
		result.Capabilities = append(result.Capabilities, string(cap))
	}
	v.auditLog.Append(fmt.Sprintf("connected to %s, capabilities: %s", v.server, strings.Join(result.Capabilities, " ")), audit.SeverityVerbose)

	saslClient := sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
		Username: mailbox,
		Token:    token.Token,
	})
	if err := client.Authenticate(saslClient); err != nil {
		return result, v.auditLog.Errorf("OAUTHBEARER authentication as %s failed: %w", security.MaskEmail(mailbox), err)
	}

	result.Authenticated = true
	v.auditLog.Append(fmt.Sprintf("mailbox %s reachable with app token", security.MaskEmail(mailbox)), audit.SeverityInformation)
	return result, nil
}
