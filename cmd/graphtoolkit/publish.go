package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"graphtoolkit/internal/permissions"
	"graphtoolkit/internal/registrar"
	"graphtoolkit/internal/splat"
	"graphtoolkit/internal/workflow"
)

// publishFlags are shared by the three publish commands.
type publishFlags struct {
	Prefix           string
	GraphPermissions []string
	CertThumbprint   string
	CertSubject      string
	ReplaceCert      bool
	UserEmail        string
	NoDomainSuffix   bool
	SignInAudience   string
	Notes            string
	OverwriteSecret  bool
	AsSplat          bool
	Plan             bool
}

func (f *publishFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.Prefix, "prefix", "", "2-4 uppercase alphanumeric app name prefix (required)")
	fl.StringSliceVar(&f.GraphPermissions, "graph-permissions", nil, "Graph application permission names (defaults per command)")
	fl.StringVar(&f.CertThumbprint, "cert-thumbprint", "", "reuse an existing certificate by thumbprint instead of creating one")
	fl.StringVar(&f.CertSubject, "cert-subject", "", "certificate subject (default CN=<app name>)")
	fl.BoolVar(&f.ReplaceCert, "replace-cert", false, "replace an existing certificate with the same subject")
	fl.StringVar(&f.UserEmail, "user-email", "", "mailbox the app acts for; its local part is appended to the app name")
	fl.BoolVar(&f.NoDomainSuffix, "no-domain-suffix", false, "omit the domain segment from the app name")
	fl.StringVar(&f.SignInAudience, "sign-in-audience", "AzureADMyOrg", "signInAudience for the application object")
	fl.StringVar(&f.Notes, "notes", "", "notes attached to the application object")
	fl.BoolVar(&f.OverwriteSecret, "overwrite-secret", false, "overwrite an existing stored secret with the same name")
	fl.BoolVar(&f.AsSplat, "as-splat", false, "print the result as a PowerShell parameter splat")
	fl.BoolVar(&f.Plan, "plan", false, "print the pending changes and exit without applying")
	cobra.CheckErr(cmd.MarkFlagRequired("prefix"))
}

func (f *publishFlags) params() workflow.PublishParams {
	return workflow.PublishParams{
		Prefix:              f.Prefix,
		GraphPermissions:    f.GraphPermissions,
		CertThumbprint:      f.CertThumbprint,
		CertSubject:         f.CertSubject,
		ReplaceCert:         f.ReplaceCert,
		UserEmail:           f.UserEmail,
		IncludeDomainSuffix: !f.NoDomainSuffix,
		SignInAudience:      f.SignInAudience,
		Notes:               f.Notes,
		OverwriteSecret:     f.OverwriteSecret,
	}
}

func newPublishEmailAppCmd() *cobra.Command {
	flags := &publishFlags{}
	cmd := &cobra.Command{
		Use:   "publish-email-app",
		Short: "Register an app that sends mail as a fixed mailbox",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPublish(cmd, flags, "", workflow.DefaultEmailPermissions, nil,
				func(tk *toolkit) (*registrar.AppRegistrationResult, error) {
					result, err := tk.publisher.PublishEmailApp(cmd.Context(), flags.params())
					if err != nil {
						return nil, err
					}
					return &result.AppRegistrationResult, nil
				})
		},
	}
	flags.register(cmd)
	return cmd
}

func newPublishAuditAppCmd() *cobra.Command {
	flags := &publishFlags{}
	cmd := &cobra.Command{
		Use:   "publish-audit-app",
		Short: "Register the 365Audit app (Graph + SharePoint + Exchange permissions, admin roles)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPublish(cmd, flags, permissions.Scenario365Audit, workflow.DefaultAuditPermissions, workflow.AuditAppRoles,
				func(tk *toolkit) (*registrar.AppRegistrationResult, error) {
					result, err := tk.publisher.PublishAuditApp(cmd.Context(), flags.params())
					if err != nil {
						return nil, err
					}
					return &result.AppRegistrationResult, nil
				})
		},
	}
	flags.register(cmd)
	return cmd
}

func newPublishMemAppCmd() *cobra.Command {
	flags := &publishFlags{}
	cmd := &cobra.Command{
		Use:   "publish-mem-app",
		Short: "Register an Intune (MEM) management app",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPublish(cmd, flags, "", workflow.DefaultMemPermissions, nil,
				func(tk *toolkit) (*registrar.AppRegistrationResult, error) {
					result, err := tk.publisher.PublishMemApp(cmd.Context(), flags.params())
					if err != nil {
						return nil, err
					}
					return &result.AppRegistrationResult, nil
				})
		},
	}
	flags.register(cmd)
	return cmd
}

// runPublish handles the plan/apply split and the result output shared by
// all publish commands.
func runPublish(cmd *cobra.Command, flags *publishFlags, scenario string, defaultPerms, roles []string, apply func(*toolkit) (*registrar.AppRegistrationResult, error)) error {
	tk, err := newToolkit(cmd.Name())
	if err != nil {
		return err
	}
	defer tk.close()

	permNames := flags.GraphPermissions
	if len(permNames) == 0 {
		permNames = defaultPerms
	}

	if flags.Plan {
		// The plan needs no Graph session, only the local wiring.
		planner := &workflow.Publisher{Secrets: tk.store, AuditLog: tk.auditLog}
		fmt.Println("Pending changes:")
		for _, step := range planner.Plan(flags.params(), permNames, scenario, roles) {
			fmt.Printf("  - %s\n", step)
		}
		return nil
	}

	if err := tk.connect(cmd.Context(), flagCredentials(), graphWriteRoles); err != nil {
		return err
	}

	result, err := apply(tk)
	if err != nil {
		return err
	}

	printRegistration(result, flags.AsSplat)
	return nil
}

func printRegistration(r *registrar.AppRegistrationResult, asSplat bool) {
	fmt.Printf("Application published: %s\n", r.DisplayName)
	fmt.Printf("  App ID:      %s\n", r.AppID)
	fmt.Printf("  Object ID:   %s\n", r.ObjectID)
	fmt.Printf("  Tenant ID:   %s\n", r.TenantID)
	fmt.Printf("  Thumbprint:  %s\n", r.CertificateThumbprint)
	if !r.CertificateExpiry.IsZero() {
		fmt.Printf("  Cert expiry: %s\n", r.CertificateExpiry.Format("2006-01-02"))
	}

	fmt.Println()
	fmt.Println("Grant admin consent at:")
	color.New(color.FgCyan, color.Bold).Println("  " + r.ConsentURL)

	if asSplat {
		fmt.Println()
		color.New(color.FgGreen).Println(splat.Format(workflow.SplatFields(*r)))
	}
}
