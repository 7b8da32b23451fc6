// Package permissions maps human-readable application permission names to
// the GUID pairs an app registration needs in its requiredResourceAccess
// list. Names are resolved against the tenant's Microsoft Graph service
// principal; scenario bundles add fixed SharePoint and Exchange blocks.
package permissions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"graphtoolkit/internal/audit"
)

// Well-known first-party resource application IDs. Identical in every
// tenant; only the Graph roles are looked up dynamically.
const (
	GraphResourceAppID      = "00000003-0000-0000-c000-000000000000"
	SharePointResourceAppID = "00000003-0000-0ff1-ce00-000000000000"
	ExchangeResourceAppID   = "00000002-0000-0ff1-ce00-000000000000"
)

// Scenario365Audit adds the SharePoint and Exchange blocks that the
// compliance-audit app needs on top of the Graph block.
const Scenario365Audit = "365Audit"

// Hard-coded permission IDs for the 365Audit scenario. These are fixed
// role IDs published by Microsoft, not tenant-specific values.
const (
	sharePointSitesReadAllID        = "d13f72ca-a275-4b96-b789-48ebcc4da984"
	sharePointSitesFullControlAllID = "678536fe-1083-478a-9c59-b99265e6b0d3"
	exchangeManageAsAppID           = "dc50a0fb-955a-4b4b-932c-ec6b9d0cd71d"
)

// maxResourceBlocks caps the requiredResourceAccess list. The consent
// grant path handles Graph, SharePoint and Exchange; anything beyond that
// would be silently ungrantable.
const maxResourceBlocks = 3

// ErrTooManyResources is returned when a permission set would exceed the
// supported resource count.
var ErrTooManyResources = errors.New("Too many resources in RequiredResourceAccessList.")

// AppRole is one application permission exposed by a service principal.
type AppRole struct {
	ID    string
	Value string
}

// ServicePrincipalInfo is the subset of a service principal the resolver
// and the grant path need.
type ServicePrincipalInfo struct {
	ObjectID string
	AppID    string
	AppRoles []AppRole
}

// Catalog looks up service principals in the tenant. The production
// implementation queries Microsoft Graph; tests supply a fake.
type Catalog interface {
	ServicePrincipalByDisplayName(ctx context.Context, displayName string) (*ServicePrincipalInfo, error)
}

// Access is one granted application permission within a resource block.
type Access struct {
	ID   string
	Name string
	Type string // always "Role" for application permissions
}

// ResourceBlock groups the permissions requested from one resource app.
type ResourceBlock struct {
	ResourceAppID string
	Access        []Access
}

// ScopeNames returns the space-joined permission names for an OAuth2 grant.
func (b ResourceBlock) ScopeNames() string {
	names := make([]string, 0, len(b.Access))
	for _, a := range b.Access {
		names = append(names, a.Name)
	}
	return strings.Join(names, " ")
}

// RequiredPermissionSet is an ordered list of resource blocks, keyed by
// resource app ID rather than position.
type RequiredPermissionSet struct {
	blocks []ResourceBlock
}

// Append adds a resource block, failing once the supported resource count
// is exceeded.
func (s *RequiredPermissionSet) Append(block ResourceBlock) error {
	if len(s.blocks) >= maxResourceBlocks {
		return ErrTooManyResources
	}
	s.blocks = append(s.blocks, block)
	return nil
}

// Blocks returns the resource blocks in append order.
func (s *RequiredPermissionSet) Blocks() []ResourceBlock {
	return s.blocks
}

// BlockFor returns the block for a resource app ID, if present.
func (s *RequiredPermissionSet) BlockFor(resourceAppID string) (ResourceBlock, bool) {
	for _, b := range s.blocks {
		if b.ResourceAppID == resourceAppID {
			return b, true
		}
	}
	return ResourceBlock{}, false
}

// Resolver turns permission name lists into RequiredPermissionSets using
// the tenant's service principal catalog.
type Resolver struct {
	catalog  Catalog
	auditLog *audit.Log
}

// NewResolver wires a resolver to a catalog and the run's audit log.
func NewResolver(catalog Catalog, auditLog *audit.Log) *Resolver {
	return &Resolver{catalog: catalog, auditLog: auditLog}
}

// Resolve maps Graph permission names to a permission set, optionally
// applying a scenario bundle. Names are matched case-insensitively against
// the Microsoft Graph service principal's application roles; unmatched
// names are recorded as warnings. An empty Graph access list is fatal.
func (r *Resolver) Resolve(ctx context.Context, names []string, scenario string) (*RequiredPermissionSet, error) {
	r.auditLog.BeginFunction("ResolvePermissions")
	defer r.auditLog.EndFunction()

	graphSP, err := r.catalog.ServicePrincipalByDisplayName(ctx, "Microsoft Graph")
	if err != nil {
		return nil, r.auditLog.Errorf("could not query Microsoft Graph service principal: %w", err)
	}

	access := make([]Access, 0, len(names))
	for _, name := range names {
		role, found := matchRole(graphSP.AppRoles, name)
		if !found {
			r.auditLog.Append(fmt.Sprintf("permission %q not found among Microsoft Graph application permissions, skipping", name), audit.SeverityWarning)
			continue
		}
		r.auditLog.Append(fmt.Sprintf("resolved %s to %s", role.Value, role.ID), audit.SeverityVerbose)
		access = append(access, Access{ID: role.ID, Name: role.Value, Type: "Role"})
	}

	if len(access) == 0 {
		return nil, r.auditLog.Errorf("none of the requested permissions %v matched a Microsoft Graph application permission", names)
	}

	set := &RequiredPermissionSet{}
	if err := set.Append(ResourceBlock{ResourceAppID: graphSP.AppID, Access: access}); err != nil {
		return nil, r.auditLog.Errorf("%w", err)
	}

	if scenario == Scenario365Audit {
		if err := appendAuditBlocks(set); err != nil {
			return nil, r.auditLog.Errorf("%w", err)
		}
		r.auditLog.Append("applied 365Audit scenario: SharePoint and Exchange resource blocks added", audit.SeverityInformation)
	}

	return set, nil
}

func matchRole(roles []AppRole, name string) (AppRole, bool) {
	for _, role := range roles {
		if strings.EqualFold(role.Value, name) {
			return role, true
		}
	}
	return AppRole{}, false
}

func appendAuditBlocks(set *RequiredPermissionSet) error {
	sharePoint := ResourceBlock{
		ResourceAppID: SharePointResourceAppID,
		Access: []Access{
			{ID: sharePointSitesReadAllID, Name: "Sites.Read.All", Type: "Role"},
			{ID: sharePointSitesFullControlAllID, Name: "Sites.FullControl.All", Type: "Role"},
		},
	}
	if err := set.Append(sharePoint); err != nil {
		return err
	}

	exchange := ResourceBlock{
		ResourceAppID: ExchangeResourceAppID,
		Access: []Access{
			{ID: exchangeManageAsAppID, Name: "Exchange.ManageAsApp", Type: "Role"},
		},
	}
	return set.Append(exchange)
}
