package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	"github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/serviceprincipals"

	"graphtoolkit/internal/audit"
	"graphtoolkit/internal/common/retry"
	"graphtoolkit/internal/permissions"
	"graphtoolkit/internal/registrar"
)

// roleTemplateIDs maps the directory role display names this tool assigns
// to their fixed role template IDs, used to activate a role that has never
// been used in the tenant.
var roleTemplateIDs = map[string]string{
	registrar.RoleExchangeAdministrator: "29232cdf-9323-42fd-ade2-1d097af3e4de",
	registrar.RoleGlobalReader:          "f2ef992c-3afb-46b9-b7cf-a126ee74c451",
}

// Client wraps the Graph SDK with the operations GraphToolKit performs.
// Reads are retried on transient failures; writes are attempted once.
type Client struct {
	sdk        *msgraphsdk.GraphServiceClient
	auditLog   *audit.Log
	slogger    *slog.Logger
	maxRetries int
	retryDelay time.Duration
}

// NewClient wraps an authenticated SDK client.
func NewClient(sdk *msgraphsdk.GraphServiceClient, auditLog *audit.Log, slogger *slog.Logger) *Client {
	return &Client{
		sdk:        sdk,
		auditLog:   auditLog,
		slogger:    slogger,
		maxRetries: 3,
		retryDelay: 2 * time.Second,
	}
}

// ServicePrincipalByDisplayName resolves a service principal and its
// application roles by display name.
func (c *Client) ServicePrincipalByDisplayName(ctx context.Context, displayName string) (*permissions.ServicePrincipalInfo, error) {
	filter := fmt.Sprintf("displayName eq '%s'", displayName)
	requestConfig := &serviceprincipals.ServicePrincipalsRequestBuilderGetRequestConfiguration{
		QueryParameters: &serviceprincipals.ServicePrincipalsRequestBuilderGetQueryParameters{
			Filter: &filter,
			Select: []string{"id", "appId", "appRoles"},
		},
	}

	var sp models.ServicePrincipalable
	err := retry.WithBackoff(ctx, c.slogger, c.maxRetries, c.retryDelay, func() error {
		result, apiErr := c.sdk.ServicePrincipals().Get(ctx, requestConfig)
		if apiErr != nil {
			return apiErr
		}
		values := result.GetValue()
		if len(values) == 0 {
			return fmt.Errorf("service principal %q not found", displayName)
		}
		sp = values[0]
		return nil
	})
	if err != nil {
		return nil, err
	}

	info := &permissions.ServicePrincipalInfo{}
	if id := sp.GetId(); id != nil {
		info.ObjectID = *id
	}
	if appID := sp.GetAppId(); appID != nil {
		info.AppID = *appID
	}
	for _, role := range sp.GetAppRoles() {
		if role.GetId() == nil || role.GetValue() == nil {
			continue
		}
		if !containsString(role.GetAllowedMemberTypes(), "Application") {
			continue
		}
		info.AppRoles = append(info.AppRoles, permissions.AppRole{
			ID:    role.GetId().String(),
			Value: *role.GetValue(),
		})
	}
	return info, nil
}

// CreateApplication creates the application object with the certificate as
// key credential and the permission set as requiredResourceAccess.
func (c *Client) CreateApplication(ctx context.Context, displayName string, certDER []byte, perms *permissions.RequiredPermissionSet, signInAudience, notes string) (*registrar.CreatedApplication, error) {
	app := models.NewApplication()
	app.SetDisplayName(&displayName)
	app.SetSignInAudience(&signInAudience)
	if notes != "" {
		app.SetNotes(&notes)
	}

	keyCred := models.NewKeyCredential()
	credType := "AsymmetricX509Cert"
	usage := "Verify"
	keyCred.SetTypeEscaped(&credType)
	keyCred.SetUsage(&usage)
	keyCred.SetKey(certDER)
	keyCred.SetDisplayName(&displayName)
	app.SetKeyCredentials([]models.KeyCredentialable{keyCred})

	resourceAccess, err := requiredResourceAccess(perms)
	if err != nil {
		return nil, err
	}
	app.SetRequiredResourceAccess(resourceAccess)

	created, err := c.sdk.Applications().Post(ctx, app, nil)
	if err != nil {
		return nil, err
	}

	result := &registrar.CreatedApplication{DisplayName: displayName}
	if id := created.GetId(); id != nil {
		result.ObjectID = *id
	}
	if appID := created.GetAppId(); appID != nil {
		result.AppID = *appID
	}
	return result, nil
}

func requiredResourceAccess(perms *permissions.RequiredPermissionSet) ([]models.RequiredResourceAccessable, error) {
	if perms == nil {
		return nil, nil
	}
	var out []models.RequiredResourceAccessable
	for _, block := range perms.Blocks() {
		rra := models.NewRequiredResourceAccess()
		resourceAppID := block.ResourceAppID
		rra.SetResourceAppId(&resourceAppID)

		var accesses []models.ResourceAccessable
		for _, a := range block.Access {
			id, err := uuid.Parse(a.ID)
			if err != nil {
				return nil, fmt.Errorf("permission id %q is not a GUID: %w", a.ID, err)
			}
			ra := models.NewResourceAccess()
			ra.SetId(&id)
			accessType := a.Type
			ra.SetTypeEscaped(&accessType)
			accesses = append(accesses, ra)
		}
		rra.SetResourceAccess(accesses)
		out = append(out, rra)
	}
	return out, nil
}

// CreateServicePrincipal instantiates the service principal for an appId
// and returns its object ID.
func (c *Client) CreateServicePrincipal(ctx context.Context, appID string) (string, error) {
	sp := models.NewServicePrincipal()
	sp.SetAppId(&appID)

	created, err := c.sdk.ServicePrincipals().Post(ctx, sp, nil)
	if err != nil {
		return "", err
	}
	if created.GetId() == nil {
		return "", fmt.Errorf("service principal for %s created without an id", appID)
	}
	return *created.GetId(), nil
}

// ServicePrincipalObjectID looks up the object ID of an existing service
// principal by its appId.
func (c *Client) ServicePrincipalObjectID(ctx context.Context, appID string) (string, error) {
	filter := fmt.Sprintf("appId eq '%s'", appID)
	requestConfig := &serviceprincipals.ServicePrincipalsRequestBuilderGetRequestConfiguration{
		QueryParameters: &serviceprincipals.ServicePrincipalsRequestBuilderGetQueryParameters{
			Filter: &filter,
			Select: []string{"id"},
		},
	}

	var objectID string
	err := retry.WithBackoff(ctx, c.slogger, c.maxRetries, c.retryDelay, func() error {
		result, apiErr := c.sdk.ServicePrincipals().Get(ctx, requestConfig)
		if apiErr != nil {
			return apiErr
		}
		values := result.GetValue()
		if len(values) == 0 || values[0].GetId() == nil {
			return fmt.Errorf("service principal with appId %s not found", appID)
		}
		objectID = *values[0].GetId()
		return nil
	})
	return objectID, err
}

// CreateOAuth2Grant issues a tenant-wide (AllPrincipals) grant of scope
// from the client service principal to the resource service principal.
func (c *Client) CreateOAuth2Grant(ctx context.Context, clientSPObjectID, resourceSPObjectID, scope string) error {
	grant := models.NewOAuth2PermissionGrant()
	grant.SetClientId(&clientSPObjectID)
	consentType := "AllPrincipals"
	grant.SetConsentType(&consentType)
	grant.SetResourceId(&resourceSPObjectID)
	grant.SetScope(&scope)

	_, err := c.sdk.Oauth2PermissionGrants().Post(ctx, grant, nil)
	return err
}

// EnsureDirectoryRole returns the object ID of a directory role, activating
// its template when the role has never been used in the tenant.
func (c *Client) EnsureDirectoryRole(ctx context.Context, displayName string) (string, error) {
	var roleID string
	err := retry.WithBackoff(ctx, c.slogger, c.maxRetries, c.retryDelay, func() error {
		result, apiErr := c.sdk.DirectoryRoles().Get(ctx, nil)
		if apiErr != nil {
			return apiErr
		}
		for _, role := range result.GetValue() {
			if role.GetDisplayName() != nil && *role.GetDisplayName() == displayName && role.GetId() != nil {
				roleID = *role.GetId()
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if roleID != "" {
		return roleID, nil
	}

	templateID, ok := roleTemplateIDs[displayName]
	if !ok {
		return "", fmt.Errorf("directory role %q is not active and no template is known for it", displayName)
	}

	c.auditLog.Append(fmt.Sprintf("activating directory role %q from template %s", displayName, templateID), audit.SeverityInformation)
	role := models.NewDirectoryRole()
	role.SetRoleTemplateId(&templateID)
	created, err := c.sdk.DirectoryRoles().Post(ctx, role, nil)
	if err != nil {
		return "", err
	}
	if created.GetId() == nil {
		return "", fmt.Errorf("activated role %q has no id", displayName)
	}
	return *created.GetId(), nil
}

// AddDirectoryRoleMember adds a directory object to a role by reference.
func (c *Client) AddDirectoryRoleMember(ctx context.Context, roleObjectID, memberObjectID string) error {
	ref := models.NewReferenceCreate()
	odataID := "https://graph.microsoft.com/v1.0/directoryObjects/" + memberObjectID
	ref.SetOdataId(&odataID)
	return c.sdk.DirectoryRoles().ByDirectoryRoleId(roleObjectID).Members().Ref().Post(ctx, ref, nil)
}

// TenantID fetches the tenant ID from the organization object.
func (c *Client) TenantID(ctx context.Context) (string, error) {
	var tenantID string
	err := retry.WithBackoff(ctx, c.slogger, c.maxRetries, c.retryDelay, func() error {
		result, apiErr := c.sdk.Organization().Get(ctx, nil)
		if apiErr != nil {
			return apiErr
		}
		orgs := result.GetValue()
		if len(orgs) == 0 || orgs[0].GetId() == nil {
			return fmt.Errorf("organization query returned no tenant")
		}
		tenantID = *orgs[0].GetId()
		return nil
	})
	return tenantID, err
}

// CreateMailGroup creates a mail-enabled security group and returns its ID.
func (c *Client) CreateMailGroup(ctx context.Context, displayName, mailNickname string) (string, error) {
	group := models.NewGroup()
	group.SetDisplayName(&displayName)
	group.SetMailNickname(&mailNickname)
	mailEnabled := true
	securityEnabled := true
	group.SetMailEnabled(&mailEnabled)
	group.SetSecurityEnabled(&securityEnabled)
	group.SetGroupTypes([]string{})

	created, err := c.sdk.Groups().Post(ctx, group, nil)
	if err != nil {
		return "", err
	}
	if created.GetId() == nil {
		return "", fmt.Errorf("group %s created without an id", displayName)
	}
	return *created.GetId(), nil
}

// AddGroupMember adds a user (by UPN or object ID) to a group.
func (c *Client) AddGroupMember(ctx context.Context, groupID, userID string) error {
	user, err := c.sdk.Users().ByUserId(userID).Get(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not resolve user %s: %w", userID, err)
	}
	if user.GetId() == nil {
		return fmt.Errorf("user %s has no object id", userID)
	}

	ref := models.NewReferenceCreate()
	odataID := "https://graph.microsoft.com/v1.0/directoryObjects/" + *user.GetId()
	ref.SetOdataId(&odataID)
	return c.sdk.Groups().ByGroupId(groupID).Members().Ref().Post(ctx, ref, nil)
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
