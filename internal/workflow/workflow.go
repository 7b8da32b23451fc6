// Package workflow sequences the publish, send-mail and mail-group
// operations out of the lower-level components. Each workflow validates
// input, resolves permissions and certificates, writes through the
// directory, and persists the outcome to the secret store. A failing step
// aborts the workflow; nothing is rolled back.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"graphtoolkit/internal/appname"
	"graphtoolkit/internal/audit"
	"graphtoolkit/internal/certs"
	"graphtoolkit/internal/graph"
	"graphtoolkit/internal/permissions"
	"graphtoolkit/internal/registrar"
	"graphtoolkit/internal/secrets"
)

// Default permission sets per app kind.
var (
	DefaultEmailPermissions = []string{"Mail.Send"}
	DefaultAuditPermissions = []string{"AuditLog.Read.All", "Directory.Read.All"}
	DefaultMemPermissions   = []string{
		"DeviceManagementConfiguration.ReadWrite.All",
		"DeviceManagementApps.ReadWrite.All",
		"DeviceManagementManagedDevices.ReadWrite.All",
		"DeviceManagementServiceConfig.ReadWrite.All",
	}
)

// AuditAppRoles are the directory roles assigned to the audit app's
// service principal.
var AuditAppRoles = []string{registrar.RoleExchangeAdministrator, registrar.RoleGlobalReader}

// PermissionResolver maps permission names to a permission set.
type PermissionResolver interface {
	Resolve(ctx context.Context, names []string, scenario string) (*permissions.RequiredPermissionSet, error)
}

// CertificateResolver finds or creates the app's certificate.
type CertificateResolver interface {
	Resolve(thumbprint, subject string, policy certs.ExportPolicy, replaceExisting bool) (*certs.Descriptor, error)
}

// Mailer submits mail through Graph.
type Mailer interface {
	SendMail(ctx context.Context, sender string, msg graph.MailMessage) error
}

// GroupDirectory creates mail-enabled groups and populates them.
type GroupDirectory interface {
	CreateMailGroup(ctx context.Context, displayName, mailNickname string) (string, error)
	AddGroupMember(ctx context.Context, groupID, userID string) error
}

// Publisher holds the wired components a command needs. Unused fields may
// be nil for workflows that do not touch them.
type Publisher struct {
	Resolver    PermissionResolver
	Certs       CertificateResolver
	Initializer *registrar.Initializer
	Secrets     secrets.Store
	Mailer      Mailer
	Groups      GroupDirectory
	AuditLog    *audit.Log
}

// PublishParams parameterizes the three publish workflows.
type PublishParams struct {
	Prefix              string
	GraphPermissions    []string
	CertThumbprint      string
	CertSubject         string
	ReplaceCert         bool
	UserEmail           string
	IncludeDomainSuffix bool
	SignInAudience      string
	Notes               string
	OverwriteSecret     bool
}

// PublishEmailApp registers an app whose only job is sending mail as the
// configured mailbox.
func (p *Publisher) PublishEmailApp(ctx context.Context, params PublishParams) (*EmailAppResult, error) {
	p.AuditLog.BeginFunction("PublishEmailApp")
	defer p.AuditLog.EndFunction()

	perms := params.GraphPermissions
	if len(perms) == 0 {
		perms = DefaultEmailPermissions
	}

	app, resolved, err := p.publish(ctx, params, perms, "")
	if err != nil {
		return nil, err
	}

	result := &EmailAppResult{
		Kind:                  KindEmailApp,
		AppRegistrationResult: *app,
		Mailbox:               params.UserEmail,
		Permissions:           permissionNames(resolved),
	}
	if err := p.persist(ctx, app.DisplayName, result, params.OverwriteSecret); err != nil {
		return nil, err
	}
	return result, nil
}

// PublishAuditApp registers the 365Audit app: Graph + SharePoint + Exchange
// permission blocks plus the Exchange Administrator and Global Reader
// directory roles.
func (p *Publisher) PublishAuditApp(ctx context.Context, params PublishParams) (*AuditAppResult, error) {
	p.AuditLog.BeginFunction("PublishAuditApp")
	defer p.AuditLog.EndFunction()

	perms := params.GraphPermissions
	if len(perms) == 0 {
		perms = DefaultAuditPermissions
	}

	app, resolved, err := p.publish(ctx, params, perms, permissions.Scenario365Audit)
	if err != nil {
		return nil, err
	}

	if err := p.Initializer.AssignDirectoryRoles(ctx, app.ServicePrincipalID, AuditAppRoles); err != nil {
		return nil, err
	}

	result := &AuditAppResult{
		Kind:                  KindAuditApp,
		AppRegistrationResult: *app,
		Permissions:           permissionNames(resolved),
		AssignedRoles:         AuditAppRoles,
	}
	if err := p.persist(ctx, app.DisplayName, result, params.OverwriteSecret); err != nil {
		return nil, err
	}
	return result, nil
}

// PublishMemApp registers an Intune management app.
func (p *Publisher) PublishMemApp(ctx context.Context, params PublishParams) (*MemAppResult, error) {
	p.AuditLog.BeginFunction("PublishMemApp")
	defer p.AuditLog.EndFunction()

	perms := params.GraphPermissions
	if len(perms) == 0 {
		perms = DefaultMemPermissions
	}

	app, resolved, err := p.publish(ctx, params, perms, "")
	if err != nil {
		return nil, err
	}

	result := &MemAppResult{
		Kind:                  KindMemApp,
		AppRegistrationResult: *app,
		Permissions:           permissionNames(resolved),
	}
	if err := p.persist(ctx, app.DisplayName, result, params.OverwriteSecret); err != nil {
		return nil, err
	}
	return result, nil
}

// publish runs the shared registration pipeline: name, permissions,
// certificate, application, consent grants.
func (p *Publisher) publish(ctx context.Context, params PublishParams, permNames []string, scenario string) (*registrar.AppRegistrationResult, *permissions.RequiredPermissionSet, error) {
	displayName, err := appname.Build(params.Prefix, scenario, params.UserEmail, params.IncludeDomainSuffix)
	if err != nil {
		return nil, nil, p.AuditLog.Errorf("%w", err)
	}
	p.AuditLog.Append(fmt.Sprintf("app display name: %s", displayName), audit.SeverityInformation)

	resolved, err := p.Resolver.Resolve(ctx, permNames, scenario)
	if err != nil {
		return nil, nil, err
	}

	subject := params.CertSubject
	if subject == "" {
		subject = "CN=" + displayName
	}
	cert, err := p.Certs.Resolve(params.CertThumbprint, subject, certs.Exportable, params.ReplaceCert)
	if err != nil {
		return nil, nil, err
	}

	app, err := p.Initializer.Register(ctx, displayName, cert.Thumbprint, resolved, params.SignInAudience, params.Notes)
	if err != nil {
		return nil, nil, err
	}
	app.CertificateExpiry = cert.NotAfter

	if err := p.Initializer.Grant(ctx, app, resolved); err != nil {
		return nil, nil, err
	}

	return app, resolved, nil
}

// persist writes the result JSON to the secret store under CN=<AppName>.
func (p *Publisher) persist(ctx context.Context, displayName string, result any, overwrite bool) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return p.AuditLog.Errorf("could not serialize result for %s: %w", displayName, err)
	}

	name := appname.SecretName(displayName)
	if err := p.Secrets.Put(ctx, name, payload, overwrite); err != nil {
		return p.AuditLog.Errorf("%w", err)
	}
	p.AuditLog.Append(fmt.Sprintf("result stored as secret %s in vault %s", name, p.Secrets.Name()), audit.SeverityInformation)
	return nil
}

// Plan describes the changes a publish would make, without applying any.
func (p *Publisher) Plan(params PublishParams, permNames []string, scenario string, roles []string) []string {
	displayName, err := appname.Build(params.Prefix, scenario, params.UserEmail, params.IncludeDomainSuffix)
	if err != nil {
		return []string{fmt.Sprintf("invalid parameters: %v", err)}
	}

	plan := []string{
		fmt.Sprintf("register application %q", displayName),
		fmt.Sprintf("resolve Graph application permissions %s", strings.Join(permNames, ", ")),
	}
	if scenario == permissions.Scenario365Audit {
		plan = append(plan, "attach fixed SharePoint Online and Exchange Online permission blocks")
	}
	if params.CertThumbprint != "" {
		plan = append(plan, fmt.Sprintf("use existing certificate %s", params.CertThumbprint))
	} else {
		subject := params.CertSubject
		if subject == "" {
			subject = "CN=" + displayName
		}
		plan = append(plan, fmt.Sprintf("create self-signed certificate %s (1 year, RSA-2048)", subject))
	}
	plan = append(plan,
		"create service principal and grant tenant-wide OAuth2 consent per resource",
	)
	for _, role := range roles {
		plan = append(plan, fmt.Sprintf("assign directory role %q to the service principal", role))
	}
	plan = append(plan, fmt.Sprintf("store result as secret %s in vault %s", appname.SecretName(displayName), p.Secrets.Name()))
	return plan
}

// SendMailParams parameterizes the send-email workflow.
type SendMailParams struct {
	AppName string
	Mailbox string
	Message graph.MailMessage
}

// LoadAppResult retrieves a previously published app registration from the
// secret store.
func LoadAppResult(ctx context.Context, store secrets.Store, appName string) (*registrar.AppRegistrationResult, error) {
	payload, err := store.Get(ctx, appname.SecretName(appName))
	if err != nil {
		return nil, err
	}
	var result struct {
		registrar.AppRegistrationResult
	}
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("stored secret for %s is not a valid registration: %w", appName, err)
	}
	return &result.AppRegistrationResult, nil
}

// SendMail submits a message as the given mailbox through the wired mailer.
func (p *Publisher) SendMail(ctx context.Context, params SendMailParams) error {
	p.AuditLog.BeginFunction("SendMailWorkflow")
	defer p.AuditLog.EndFunction()

	if len(params.Message.To) == 0 {
		return p.AuditLog.Errorf("at least one recipient is required")
	}
	return p.Mailer.SendMail(ctx, params.Mailbox, params.Message)
}

// MailGroupParams parameterizes create-mail-group.
type MailGroupParams struct {
	Name    string
	Alias   string
	Members []string
}

// CreateMailGroup creates a mail-enabled security group and adds the given
// members. A member that cannot be added is a warning, not a failure.
func (p *Publisher) CreateMailGroup(ctx context.Context, params MailGroupParams) (string, error) {
	p.AuditLog.BeginFunction("CreateMailGroup")
	defer p.AuditLog.EndFunction()

	alias := params.Alias
	if alias == "" {
		alias = deriveAlias(params.Name)
	}

	groupID, err := p.Groups.CreateMailGroup(ctx, params.Name, alias)
	if err != nil {
		return "", p.AuditLog.Errorf("group creation failed: %w", err)
	}
	p.AuditLog.Append(fmt.Sprintf("group %s created (id %s)", params.Name, groupID), audit.SeverityInformation)

	for _, member := range params.Members {
		if err := p.Groups.AddGroupMember(ctx, groupID, member); err != nil {
			p.AuditLog.Append(fmt.Sprintf("could not add member %s: %v", member, err), audit.SeverityWarning)
			continue
		}
		p.AuditLog.Append(fmt.Sprintf("member %s added", member), audit.SeverityVerbose)
	}
	return groupID, nil
}

// deriveAlias lowercases the name and strips everything but letters,
// digits and dashes, the characters Exchange accepts in a mailNickname.
func deriveAlias(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		case r == ' ', r == '_':
			b.WriteRune('-')
		}
	}
	return b.String()
}

func permissionNames(set *permissions.RequiredPermissionSet) []string {
	var names []string
	for _, block := range set.Blocks() {
		for _, a := range block.Access {
			names = append(names, a.Name)
		}
	}
	return names
}
