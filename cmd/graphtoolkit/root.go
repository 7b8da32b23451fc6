package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"graphtoolkit/internal/audit"
	"graphtoolkit/internal/certs"
	"graphtoolkit/internal/common/logger"
	"graphtoolkit/internal/common/ratelimit"
	"graphtoolkit/internal/graph"
	"graphtoolkit/internal/permissions"
	"graphtoolkit/internal/registrar"
	"graphtoolkit/internal/secrets"
	"graphtoolkit/internal/workflow"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	PfxPath      string
	PfxPass      string
	Thumbprint   string
	CertDir      string
	VaultName    string
	VaultAddr    string
	VaultToken   string
	VaultMount   string
	LogLevel     string
	Verbose      bool
	AuditCSV     string
}

// graphWriteRoles are the application roles the operator credential needs
// before any publish can succeed; an existing session carrying them is
// reused instead of rebuilt.
var graphWriteRoles = []string{
	"Application.ReadWrite.All",
	"AppRoleAssignment.ReadWrite.All",
	"RoleManagement.ReadWrite.Directory",
}

// grantPacingRPS keeps consent grants under Graph's write throttling.
const grantPacingRPS = 2.0

var opts globalOptions

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "graphtoolkit",
		Short:         "Publish and operate Azure AD app registrations for M365 automation",
		Long:          "graphtoolkit registers Azure AD applications with certificate credentials\nand application permissions, grants tenant-wide consent, and exercises the\nresult: sending mail, creating mail groups, verifying mailbox access.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.TenantID, "tenant-id", os.Getenv("AZURE_TENANT_ID"), "Azure AD tenant ID (GUID)")
	pf.StringVar(&opts.ClientID, "client-id", os.Getenv("AZURE_CLIENT_ID"), "operator application (client) ID (GUID)")
	pf.StringVar(&opts.ClientSecret, "client-secret", os.Getenv("AZURE_CLIENT_SECRET"), "client secret for authentication")
	pf.StringVar(&opts.PfxPath, "pfx", "", "path to a PFX certificate file for authentication")
	pf.StringVar(&opts.PfxPass, "pfx-pass", os.Getenv("GRAPHTOOLKIT_PFX_PASS"), "password for PFX files (auth and certificate store)")
	pf.StringVar(&opts.Thumbprint, "thumbprint", "", "thumbprint of a certificate in the local store for authentication")
	pf.StringVar(&opts.CertDir, "cert-dir", "", "certificate store directory (default ~/.graphtoolkit/certs)")
	pf.StringVar(&opts.VaultName, "vault-name", "GraphToolKit", "secret vault name")
	pf.StringVar(&opts.VaultAddr, "vault-addr", os.Getenv("VAULT_ADDR"), "HashiCorp Vault address (empty selects the local file vault)")
	pf.StringVar(&opts.VaultToken, "vault-token", os.Getenv("VAULT_TOKEN"), "HashiCorp Vault token")
	pf.StringVar(&opts.VaultMount, "vault-mount", "secret", "HashiCorp Vault KVv2 mount")
	pf.StringVar(&opts.LogLevel, "log-level", "info", "log level: debug, info, warn, error")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "enable verbose diagnostic output")
	pf.StringVar(&opts.AuditCSV, "audit-csv", "", "export the audit trail to this CSV file on exit")

	root.AddCommand(
		newPublishEmailAppCmd(),
		newPublishAuditAppCmd(),
		newPublishMemAppCmd(),
		newSendEmailCmd(),
		newCreateMailGroupCmd(),
		newVerifyMailboxCmd(),
		newVersionCmd(),
	)
	return root
}

// toolkit bundles the wired components for one command invocation.
type toolkit struct {
	slogger   *slog.Logger
	auditLog  *audit.Log
	certStore *certs.Store
	store     secrets.Store
	connector *graph.Connector
	client    *graph.Client
	publisher *workflow.Publisher
}

// newToolkit wires the ambient pieces: logging, the audit trail, the
// certificate store and the secret vault. Graph sessions are attached
// separately via connect, since send-email derives its credentials from a
// stored registration rather than the persistent flags.
func newToolkit(command string) (*toolkit, error) {
	slogger := logger.SetupLogger(opts.Verbose, opts.LogLevel)
	auditLog := audit.New(command, slogger)

	certDir := opts.CertDir
	if certDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("could not determine home directory: %w", err)
		}
		certDir = filepath.Join(home, ".graphtoolkit", "certs")
	}
	certStore, err := certs.NewStore(certDir, opts.PfxPass, auditLog)
	if err != nil {
		return nil, err
	}

	store, err := newSecretStore()
	if err != nil {
		return nil, err
	}

	return &toolkit{
		slogger:   slogger,
		auditLog:  auditLog,
		certStore: certStore,
		store:     store,
	}, nil
}

// flagCredentials builds the operator credentials from persistent flags.
func flagCredentials() graph.Credentials {
	return graph.Credentials{
		TenantID:   opts.TenantID,
		ClientID:   opts.ClientID,
		Secret:     opts.ClientSecret,
		PfxPath:    opts.PfxPath,
		PfxPass:    opts.PfxPass,
		Thumbprint: opts.Thumbprint,
	}
}

// connect establishes the Graph session, verifies the token carries the
// required roles, and wires the publisher.
func (tk *toolkit) connect(ctx context.Context, creds graph.Credentials, requiredRoles []string) error {
	connector, err := graph.NewConnector(creds, tk.certStore, tk.auditLog, tk.slogger)
	if err != nil {
		return err
	}
	if len(requiredRoles) > 0 {
		if err := connector.EnsureScopes(ctx, requiredRoles); err != nil {
			return err
		}
	}
	sdk, err := connector.Connect(ctx)
	if err != nil {
		return err
	}

	tk.connector = connector
	tk.client = graph.NewClient(sdk, tk.auditLog, tk.slogger)
	tk.publisher = &workflow.Publisher{
		Resolver:    permissions.NewResolver(tk.client, tk.auditLog),
		Certs:       tk.certStore,
		Initializer: registrar.New(tk.client, tk.certStore, ratelimit.New(grantPacingRPS), tk.auditLog),
		Secrets:     tk.store,
		Mailer:      tk.client,
		Groups:      tk.client,
		AuditLog:    tk.auditLog,
	}
	return nil
}

func newSecretStore() (secrets.Store, error) {
	if opts.VaultAddr != "" {
		return secrets.NewHashiVault(opts.VaultAddr, opts.VaultToken, opts.VaultMount, opts.VaultName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("could not determine home directory: %w", err)
	}
	return secrets.NewFileVault(filepath.Join(home, ".graphtoolkit", "vaults"), opts.VaultName)
}

func (tk *toolkit) close() {
	if err := tk.auditLog.End(opts.AuditCSV); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
}
