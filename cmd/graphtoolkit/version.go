package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"graphtoolkit/internal/common/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the toolkit version",
		Run: func(*cobra.Command, []string) {
			fmt.Printf("graphtoolkit %s\n", version.Get())
		},
	}
}
