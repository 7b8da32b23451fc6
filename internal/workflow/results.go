package workflow

import "graphtoolkit/internal/registrar"

// Result kinds, written into the persisted JSON so operators and scripts
// can tell the shapes apart.
const (
	KindEmailApp = "emailApp"
	KindAuditApp = "auditApp"
	KindMemApp   = "memApp"
)

// EmailAppResult is the outcome of publish-email-app.
type EmailAppResult struct {
	Kind string `json:"kind"`
	registrar.AppRegistrationResult
	Mailbox     string   `json:"mailbox,omitempty"`
	Permissions []string `json:"permissions"`
}

// AuditAppResult is the outcome of publish-audit-app.
type AuditAppResult struct {
	Kind string `json:"kind"`
	registrar.AppRegistrationResult
	Permissions   []string `json:"permissions"`
	AssignedRoles []string `json:"assignedRoles"`
}

// MemAppResult is the outcome of publish-mem-app.
type MemAppResult struct {
	Kind string `json:"kind"`
	registrar.AppRegistrationResult
	Permissions []string `json:"permissions"`
}

// SplatFields returns the subset of a registration worth pasting into a
// follow-up shell session.
func SplatFields(r registrar.AppRegistrationResult) map[string]any {
	return map[string]any{
		"AppId":                 r.AppID,
		"TenantId":              r.TenantID,
		"CertificateThumbprint": r.CertificateThumbprint,
	}
}
