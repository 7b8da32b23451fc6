// Package registrar creates Azure AD application registrations: the
// application object with its certificate credential and permission list,
// the service principal, the OAuth2 consent grants, and any directory
// roles the scenario requires. All tenant writes go through the Directory
// interface so the sequencing logic is testable offline.
package registrar

import (
	"context"
	"fmt"
	"time"

	"graphtoolkit/internal/audit"
	"graphtoolkit/internal/common/ratelimit"
	"graphtoolkit/internal/permissions"
)

// Directory roles assigned for the audit scenario.
const (
	RoleExchangeAdministrator = "Exchange Administrator"
	RoleGlobalReader          = "Global Reader"
)

// CreatedApplication identifies a freshly created application object.
type CreatedApplication struct {
	ObjectID    string
	AppID       string
	DisplayName string
}

// Directory is the tenant write surface. The production implementation
// calls Microsoft Graph; tests use a fake.
type Directory interface {
	CreateApplication(ctx context.Context, displayName string, certDER []byte, perms *permissions.RequiredPermissionSet, signInAudience, notes string) (*CreatedApplication, error)
	CreateServicePrincipal(ctx context.Context, appID string) (objectID string, err error)
	ServicePrincipalObjectID(ctx context.Context, appID string) (objectID string, err error)
	CreateOAuth2Grant(ctx context.Context, clientSPObjectID, resourceSPObjectID, scope string) error
	EnsureDirectoryRole(ctx context.Context, displayName string) (roleObjectID string, err error)
	AddDirectoryRoleMember(ctx context.Context, roleObjectID, memberObjectID string) error
	TenantID(ctx context.Context) (string, error)
}

// CertificateReader supplies the public certificate bytes attached as the
// app's key credential.
type CertificateReader interface {
	RawCertificate(thumbprint string) ([]byte, error)
}

// AppRegistrationResult is the persisted outcome of a publish operation.
type AppRegistrationResult struct {
	DisplayName           string    `json:"displayName"`
	AppID                 string    `json:"appId"`
	ObjectID              string    `json:"objectId"`
	ServicePrincipalID    string    `json:"servicePrincipalId"`
	TenantID              string    `json:"tenantId"`
	CertificateThumbprint string    `json:"certificateThumbprint"`
	CertificateExpiry     time.Time `json:"certificateExpiry"`
	ConsentURL            string    `json:"consentUrl"`
	Notes                 string    `json:"notes,omitempty"`
}

// Initializer sequences registration steps. Failures abort immediately;
// objects created before the failure are left in place for the operator.
type Initializer struct {
	directory Directory
	certs     CertificateReader
	limiter   *ratelimit.Limiter
	auditLog  *audit.Log
}

// New wires an initializer. limiter paces consent grants; pass a disabled
// limiter to grant at full speed.
func New(directory Directory, certs CertificateReader, limiter *ratelimit.Limiter, auditLog *audit.Log) *Initializer {
	if limiter == nil {
		limiter = ratelimit.New(0)
	}
	return &Initializer{
		directory: directory,
		certs:     certs,
		limiter:   limiter,
		auditLog:  auditLog,
	}
}

// Register creates the application object with the certificate as its key
// credential and the resolved permission list attached.
func (i *Initializer) Register(ctx context.Context, displayName, certThumbprint string, perms *permissions.RequiredPermissionSet, signInAudience, notes string) (*AppRegistrationResult, error) {
	i.auditLog.BeginFunction("RegisterApplication")
	defer i.auditLog.EndFunction()

	if certThumbprint == "" {
		return nil, i.auditLog.Errorf("certificate thumbprint is required: no other authentication methods supported yet")
	}

	certDER, err := i.certs.RawCertificate(certThumbprint)
	if err != nil {
		return nil, i.auditLog.Errorf("%w", err)
	}

	if signInAudience == "" {
		signInAudience = "AzureADMyOrg"
	}

	app, err := i.directory.CreateApplication(ctx, displayName, certDER, perms, signInAudience, notes)
	if err != nil {
		return nil, i.auditLog.Errorf("application creation failed: %w", err)
	}
	i.auditLog.Append(fmt.Sprintf("application %s created (appId %s)", app.DisplayName, app.AppID), audit.SeverityInformation)

	tenantID, err := i.directory.TenantID(ctx)
	if err != nil {
		return nil, i.auditLog.Errorf("tenant lookup failed: %w", err)
	}

	return &AppRegistrationResult{
		DisplayName:           app.DisplayName,
		AppID:                 app.AppID,
		ObjectID:              app.ObjectID,
		TenantID:              tenantID,
		CertificateThumbprint: certThumbprint,
		Notes:                 notes,
	}, nil
}

// Grant creates the service principal and issues one OAuth2 permission
// grant per resource block, then fills in the admin-consent URL. Grants
// are paced by the limiter to stay under Graph's write throttling.
func (i *Initializer) Grant(ctx context.Context, app *AppRegistrationResult, perms *permissions.RequiredPermissionSet) error {
	i.auditLog.BeginFunction("GrantConsent")
	defer i.auditLog.EndFunction()

	spObjectID, err := i.directory.CreateServicePrincipal(ctx, app.AppID)
	if err != nil {
		return i.auditLog.Errorf("service principal creation failed: %w", err)
	}
	app.ServicePrincipalID = spObjectID
	i.auditLog.Append(fmt.Sprintf("service principal %s created", spObjectID), audit.SeverityInformation)

	for _, block := range perms.Blocks() {
		if err := i.limiter.Wait(ctx); err != nil {
			return i.auditLog.Errorf("grant pacing interrupted: %w", err)
		}

		resourceSPID, err := i.directory.ServicePrincipalObjectID(ctx, block.ResourceAppID)
		if err != nil {
			return i.auditLog.Errorf("resource service principal lookup for %s failed: %w", block.ResourceAppID, err)
		}

		scope := block.ScopeNames()
		if err := i.directory.CreateOAuth2Grant(ctx, spObjectID, resourceSPID, scope); err != nil {
			return i.auditLog.Errorf("oauth2 grant for %s failed: %w", block.ResourceAppID, err)
		}
		i.auditLog.Append(fmt.Sprintf("granted %q on resource %s", scope, block.ResourceAppID), audit.SeverityInformation)
	}

	app.ConsentURL = ConsentURL(app.TenantID, app.AppID)
	return nil
}

// AssignDirectoryRoles adds the service principal to each named directory
// role, activating role templates not yet present in the tenant.
func (i *Initializer) AssignDirectoryRoles(ctx context.Context, spObjectID string, roles []string) error {
	i.auditLog.BeginFunction("AssignDirectoryRoles")
	defer i.auditLog.EndFunction()

	for _, role := range roles {
		roleID, err := i.directory.EnsureDirectoryRole(ctx, role)
		if err != nil {
			return i.auditLog.Errorf("directory role %q lookup failed: %w", role, err)
		}
		if err := i.directory.AddDirectoryRoleMember(ctx, roleID, spObjectID); err != nil {
			return i.auditLog.Errorf("adding service principal to role %q failed: %w", role, err)
		}
		i.auditLog.Append(fmt.Sprintf("service principal added to directory role %q", role), audit.SeverityInformation)
	}
	return nil
}

// ConsentURL builds the admin-consent URL an operator opens to approve the
// application's permissions tenant-wide.
func ConsentURL(tenantID, appID string) string {
	return fmt.Sprintf("https://login.microsoftonline.com/%s/adminconsent?client_id=%s", tenantID, appID)
}
