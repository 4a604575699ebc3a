package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func (c *CLI) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			shared, err := a.Sessions.Current(cmd.Context())
			if err != nil {
				return err
			}
			if shared == nil {
				fmt.Fprintln(c.out, "no session")
				return nil
			}
			link, err := a.Sessions.Link(cmd.Context())
			if err != nil {
				return err
			}

			enc := json.NewEncoder(c.out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(shared); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "link: %s\n", link)
			return nil
		},
	}
}

func (c *CLI) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete",
		Short: "Delete the stored session and its keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Sessions.Delete(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "session deleted")
			return nil
		},
	}
}
