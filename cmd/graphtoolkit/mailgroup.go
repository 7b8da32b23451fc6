package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"graphtoolkit/internal/common/validation"
	"graphtoolkit/internal/workflow"
)

func newCreateMailGroupCmd() *cobra.Command {
	var (
		name    string
		alias   string
		members []string
	)

	cmd := &cobra.Command{
		Use:   "create-mail-group",
		Short: "Create a mail-enabled security group and add members",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validation.ValidateEmails(members, "Members"); err != nil {
				return err
			}

			tk, err := newToolkit(cmd.Name())
			if err != nil {
				return err
			}
			defer tk.close()

			if err := tk.connect(cmd.Context(), flagCredentials(), nil); err != nil {
				return err
			}

			groupID, err := tk.publisher.CreateMailGroup(cmd.Context(), workflow.MailGroupParams{
				Name:    name,
				Alias:   alias,
				Members: members,
			})
			if err != nil {
				return err
			}

			fmt.Printf("Group %q created (id %s) with %d member(s).\n", name, groupID, len(members))
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&name, "name", "", "group display name (required)")
	fl.StringVar(&alias, "alias", "", "mail nickname (derived from the name when empty)")
	fl.StringSliceVar(&members, "members", nil, "member user principal names")
	cobra.CheckErr(cmd.MarkFlagRequired("name"))
	return cmd
}
