package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"graphtoolkit/internal/common/validation"
	"graphtoolkit/internal/graph"
	"graphtoolkit/internal/mailcheck"
	"graphtoolkit/internal/workflow"
)

func newVerifyMailboxCmd() *cobra.Command {
	var (
		appName string
		mailbox string
		server  string
	)

	cmd := &cobra.Command{
		Use:   "verify-mailbox",
		Short: "Check that a published app can reach a mailbox over IMAPS",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validation.ValidateEmail(mailbox); err != nil {
				return fmt.Errorf("invalid mailbox: %w", err)
			}

			tk, err := newToolkit(cmd.Name())
			if err != nil {
				return err
			}
			defer tk.close()

			app, err := workflow.LoadAppResult(cmd.Context(), tk.store, appName)
			if err != nil {
				return err
			}

			creds := graph.Credentials{
				TenantID:   app.TenantID,
				ClientID:   app.AppID,
				Thumbprint: app.CertificateThumbprint,
			}
			connector, err := graph.NewConnector(creds, tk.certStore, tk.auditLog, tk.slogger)
			if err != nil {
				return err
			}
			cred, err := connector.Credential(cmd.Context())
			if err != nil {
				return err
			}

			verifier := mailcheck.New(server, cred, tk.auditLog)
			result, err := verifier.Verify(cmd.Context(), mailbox)
			if result != nil && result.Connected {
				fmt.Printf("Connected to %s\n", result.Server)
				fmt.Printf("Capabilities: %s\n", strings.Join(result.Capabilities, " "))
			}
			if err != nil {
				return err
			}

			color.New(color.FgGreen).Printf("Mailbox %s is reachable with app %s.\n", mailbox, appName)
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&appName, "app-name", "", "display name of the published app (required)")
	fl.StringVar(&mailbox, "mailbox", "", "mailbox to verify (required)")
	fl.StringVar(&server, "server", "", "IMAPS endpoint (default "+mailcheck.DefaultServer+")")
	cobra.CheckErr(cmd.MarkFlagRequired("app-name"))
	cobra.CheckErr(cmd.MarkFlagRequired("mailbox"))
	return cmd
}
