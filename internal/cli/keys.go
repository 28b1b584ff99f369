package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gatehouse-io/authz-go/internal/keys"
)

func cmdKeys() *cobra.Command {
	c := &cobra.Command{
		Use:   "keys",
		Short: "Key management",
	}
	c.AddCommand(cmdKeysNew())
	return c
}

func cmdKeysNew() *cobra.Command {
	var dir string

	c := &cobra.Command{
		Use:   "new",
		Short: "Generate an ES384 admin signing key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				base, err := configDir()
				if err != nil {
					return err
				}
				dir = filepath.Join(base, "keys")
			}
			path, thumb, err := keys.Generate(dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (kid %s)\n", path, thumb)
			return nil
		},
	}
	c.Flags().StringVar(&dir, "dir", "", "output directory, defaults to ~/.gatehouse/keys")
	return c
}
