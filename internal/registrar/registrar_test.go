package registrar

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"graphtoolkit/internal/audit"
	"graphtoolkit/internal/common/ratelimit"
	"graphtoolkit/internal/permissions"
)

type fakeDirectory struct {
	apps          []*CreatedApplication
	grants        []string // "clientSP|resourceSP|scope"
	roleMembers   map[string][]string
	activatedRole map[string]string // displayName -> objectID
	tenantID      string

	createAppErr error
	grantErr     error
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		roleMembers:   map[string][]string{},
		activatedRole: map[string]string{},
		tenantID:      "f0000000-0000-0000-0000-00000000000f",
	}
}

func (d *fakeDirectory) CreateApplication(_ context.Context, displayName string, certDER []byte, _ *permissions.RequiredPermissionSet, _, _ string) (*CreatedApplication, error) {
	if d.createAppErr != nil {
		return nil, d.createAppErr
	}
	if len(certDER) == 0 {
		return nil, errors.New("empty certificate")
	}
	app := &CreatedApplication{
		ObjectID:    "obj-1",
		AppID:       "a0000000-0000-0000-0000-00000000000a",
		DisplayName: displayName,
	}
	d.apps = append(d.apps, app)
	return app, nil
}

func (d *fakeDirectory) CreateServicePrincipal(_ context.Context, appID string) (string, error) {
	return "sp-for-" + appID, nil
}

func (d *fakeDirectory) ServicePrincipalObjectID(_ context.Context, appID string) (string, error) {
	return "resource-sp-" + appID, nil
}

func (d *fakeDirectory) CreateOAuth2Grant(_ context.Context, clientSP, resourceSP, scope string) error {
	if d.grantErr != nil {
		return d.grantErr
	}
	d.grants = append(d.grants, clientSP+"|"+resourceSP+"|"+scope)
	return nil
}

func (d *fakeDirectory) EnsureDirectoryRole(_ context.Context, displayName string) (string, error) {
	if id, ok := d.activatedRole[displayName]; ok {
		return id, nil
	}
	id := "role-" + strings.ReplaceAll(displayName, " ", "-")
	d.activatedRole[displayName] = id
	return id, nil
}

func (d *fakeDirectory) AddDirectoryRoleMember(_ context.Context, roleID, memberID string) error {
	d.roleMembers[roleID] = append(d.roleMembers[roleID], memberID)
	return nil
}

func (d *fakeDirectory) TenantID(context.Context) (string, error) {
	return d.tenantID, nil
}

type fakeCerts struct {
	der map[string][]byte
}

func (c *fakeCerts) RawCertificate(thumbprint string) ([]byte, error) {
	der, ok := c.der[thumbprint]
	if !ok {
		return nil, errors.New("certificate with thumbprint " + thumbprint + " not found")
	}
	return der, nil
}

func testLog() *audit.Log {
	return audit.New("test", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func permissionSet(t *testing.T, blocks ...permissions.ResourceBlock) *permissions.RequiredPermissionSet {
	t.Helper()
	set := &permissions.RequiredPermissionSet{}
	for _, b := range blocks {
		if err := set.Append(b); err != nil {
			t.Fatalf("building permission set: %v", err)
		}
	}
	return set
}

const thumbprint = "AABBCCDDEEFF00112233445566778899AABBCCDD"

func newInitializer(dir Directory, certs CertificateReader) *Initializer {
	return New(dir, certs, ratelimit.New(0), testLog())
}

func TestRegister(t *testing.T) {
	dir := newFakeDirectory()
	certs := &fakeCerts{der: map[string][]byte{thumbprint: []byte("der-bytes")}}
	init := newInitializer(dir, certs)

	perms := permissionSet(t, permissions.ResourceBlock{
		ResourceAppID: permissions.GraphResourceAppID,
		Access:        []permissions.Access{{ID: "12345", Name: "Mail.Send", Type: "Role"}},
	})

	result, err := init.Register(context.Background(), "GraphToolKit-MSN-MyDomain", thumbprint, perms, "", "managed by GraphToolKit")
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	if result.DisplayName != "GraphToolKit-MSN-MyDomain" {
		t.Errorf("displayName = %q", result.DisplayName)
	}
	if result.AppID == "" || result.ObjectID == "" {
		t.Error("app identifiers not populated")
	}
	if result.TenantID != dir.tenantID {
		t.Errorf("tenantId = %q, want %q", result.TenantID, dir.tenantID)
	}
	if result.CertificateThumbprint != thumbprint {
		t.Errorf("thumbprint = %q", result.CertificateThumbprint)
	}
}

func TestRegisterRequiresThumbprint(t *testing.T) {
	init := newInitializer(newFakeDirectory(), &fakeCerts{})

	_, err := init.Register(context.Background(), "App", "", nil, "", "")
	if err == nil {
		t.Fatal("expected error without thumbprint")
	}
	if !strings.Contains(err.Error(), "no other authentication methods supported yet") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRegisterUnknownCertificate(t *testing.T) {
	init := newInitializer(newFakeDirectory(), &fakeCerts{})

	_, err := init.Register(context.Background(), "App", thumbprint, nil, "", "")
	if err == nil {
		t.Fatal("expected error for unknown certificate")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestGrantIssuesOneGrantPerResource(t *testing.T) {
	dir := newFakeDirectory()
	certs := &fakeCerts{der: map[string][]byte{thumbprint: []byte("der")}}
	init := newInitializer(dir, certs)

	perms := permissionSet(t,
		permissions.ResourceBlock{
			ResourceAppID: permissions.GraphResourceAppID,
			Access:        []permissions.Access{{ID: "1", Name: "AuditLog.Read.All", Type: "Role"}},
		},
		permissions.ResourceBlock{
			ResourceAppID: permissions.SharePointResourceAppID,
			Access: []permissions.Access{
				{ID: "2", Name: "Sites.Read.All", Type: "Role"},
				{ID: "3", Name: "Sites.FullControl.All", Type: "Role"},
			},
		},
		permissions.ResourceBlock{
			ResourceAppID: permissions.ExchangeResourceAppID,
			Access:        []permissions.Access{{ID: "4", Name: "Exchange.ManageAsApp", Type: "Role"}},
		},
	)

	app, err := init.Register(context.Background(), "AuditApp", thumbprint, perms, "", "")
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if err := init.Grant(context.Background(), app, perms); err != nil {
		t.Fatalf("Grant() error: %v", err)
	}

	if len(dir.grants) != 3 {
		t.Fatalf("expected 3 grants, got %d", len(dir.grants))
	}
	if !strings.HasSuffix(dir.grants[1], "|Sites.Read.All Sites.FullControl.All") {
		t.Errorf("SharePoint scope not space-joined: %s", dir.grants[1])
	}
	if app.ServicePrincipalID == "" {
		t.Error("service principal ID not recorded")
	}

	wantURL := "https://login.microsoftonline.com/" + dir.tenantID + "/adminconsent?client_id=" + app.AppID
	if app.ConsentURL != wantURL {
		t.Errorf("consent URL = %q, want %q", app.ConsentURL, wantURL)
	}
}

func TestGrantFailureAborts(t *testing.T) {
	dir := newFakeDirectory()
	dir.grantErr = errors.New("forbidden")
	certs := &fakeCerts{der: map[string][]byte{thumbprint: []byte("der")}}
	init := newInitializer(dir, certs)

	perms := permissionSet(t, permissions.ResourceBlock{
		ResourceAppID: permissions.GraphResourceAppID,
		Access:        []permissions.Access{{ID: "1", Name: "Mail.Send", Type: "Role"}},
	})

	app, err := init.Register(context.Background(), "App", thumbprint, perms, "", "")
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if err := init.Grant(context.Background(), app, perms); err == nil {
		t.Fatal("expected grant failure to propagate")
	}
	if app.ConsentURL != "" {
		t.Error("consent URL set despite grant failure")
	}
}

func TestAssignDirectoryRoles(t *testing.T) {
	dir := newFakeDirectory()
	init := newInitializer(dir, &fakeCerts{})

	roles := []string{RoleExchangeAdministrator, RoleGlobalReader}
	if err := init.AssignDirectoryRoles(context.Background(), "sp-1", roles); err != nil {
		t.Fatalf("AssignDirectoryRoles() error: %v", err)
	}

	for _, role := range roles {
		roleID := dir.activatedRole[role]
		if roleID == "" {
			t.Errorf("role %q never ensured", role)
			continue
		}
		members := dir.roleMembers[roleID]
		if len(members) != 1 || members[0] != "sp-1" {
			t.Errorf("role %q members = %v, want [sp-1]", role, members)
		}
	}
}

func TestConsentURL(t *testing.T) {
	got := ConsentURL("tenant-guid", "app-guid")
	want := "https://login.microsoftonline.com/tenant-guid/adminconsent?client_id=app-guid"
	if got != want {
		t.Errorf("ConsentURL() = %q, want %q", got, want)
	}
}
