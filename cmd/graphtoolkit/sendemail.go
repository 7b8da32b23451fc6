package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"graphtoolkit/internal/common/validation"
	"graphtoolkit/internal/graph"
	"graphtoolkit/internal/workflow"
)

func newSendEmailCmd() *cobra.Command {
	var (
		appName     string
		mailbox     string
		to          []string
		cc          []string
		bcc         []string
		subject     string
		body        string
		bodyHTML    string
		attachments []string
	)

	cmd := &cobra.Command{
		Use:   "send-email",
		Short: "Send mail as a mailbox using a previously published email app",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validation.ValidateEmail(mailbox); err != nil {
				return fmt.Errorf("invalid mailbox: %w", err)
			}
			if err := validation.ValidateEmails(to, "To recipients"); err != nil {
				return err
			}
			if err := validation.ValidateEmails(cc, "CC recipients"); err != nil {
				return err
			}
			if err := validation.ValidateEmails(bcc, "BCC recipients"); err != nil {
				return err
			}
			for _, a := range attachments {
				if err := validation.ValidateFilePath(a, "Attachment"); err != nil {
					return err
				}
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

			// Authenticate as the published app with its stored certificate.
			creds := graph.Credentials{
				TenantID:   app.TenantID,
				ClientID:   app.AppID,
				Thumbprint: app.CertificateThumbprint,
			}
			if err := tk.connect(cmd.Context(), creds, nil); err != nil {
				return err
			}

			err = tk.publisher.SendMail(cmd.Context(), workflow.SendMailParams{
				AppName: appName,
				Mailbox: mailbox,
				Message: graph.MailMessage{
					To:          to,
					Cc:          cc,
					Bcc:         bcc,
					Subject:     subject,
					Body:        body,
					BodyHTML:    bodyHTML,
					Attachments: attachments,
				},
			})
			if err != nil {
				return err
			}

			fmt.Printf("Email sent from %s to %d recipient(s).\n", mailbox, len(to))
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&appName, "app-name", "", "display name of the published email app (required)")
	fl.StringVar(&mailbox, "mailbox", "", "sender mailbox (required)")
	fl.StringSliceVar(&to, "to", nil, "To recipients")
	fl.StringSliceVar(&cc, "cc", nil, "CC recipients")
	fl.StringSliceVar(&bcc, "bcc", nil, "BCC recipients")
	fl.StringVar(&subject, "subject", "Automated Tool Notification", "message subject")
	fl.StringVar(&body, "body", "", "plain text body")
	fl.StringVar(&bodyHTML, "body-html", "", "HTML body (takes precedence over --body)")
	fl.StringSliceVar(&attachments, "attachments", nil, "file paths to attach")
	cobra.CheckErr(cmd.MarkFlagRequired("app-name"))
	cobra.CheckErr(cmd.MarkFlagRequired("mailbox"))
	cobra.CheckErr(cmd.MarkFlagRequired("to"))
	return cmd
}
