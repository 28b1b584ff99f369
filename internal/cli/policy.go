package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func cmdPolicy() *cobra.Command {
	c := &cobra.Command{
		Use:   "policy",
		Short: "Tenant policy administration",
	}
	c.AddCommand(cmdPolicyAdd(), cmdPolicyList())
	return c
}

func cmdPolicyAdd() *cobra.Command {
	var file string
	var tenant string

	c := &cobra.Command{
		Use:   "add",
		Short: "Create a policy from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("missing policy file, use -f")
			}
			if tenant == "" {
				return fmt.Errorf("missing tenant, use --tenant")
			}
			body, err := os.ReadFile(file)
			if err != nil {
				return err
			}

			url := fmt.Sprintf("%s/admin/tenants/%s/policies", serverURL, tenant)
			client := &http.Client{Timeout: 10 * time.Second}
			resp, err := client.Post(url, "application/json", bytes.NewReader(body))
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			out, _ := io.ReadAll(resp.Body)
			if resp.StatusCode != http.StatusCreated {
				return fmt.Errorf("server returned %d: %s", resp.StatusCode, out)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	c.Flags().StringVarP(&file, "file", "f", "", "path to a policy JSON file")
	c.Flags().StringVar(&tenant, "tenant", "", "tenant id")
	return c
}

func cmdPolicyList() *cobra.Command {
	var tenant string

	c := &cobra.Command{
		Use:   "list",
		Short: "List a tenant's policies",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tenant == "" {
				return fmt.Errorf("missing tenant, use --tenant")
			}
			url := fmt.Sprintf("%s/admin/tenants/%s/policies", serverURL, tenant)
			client := &http.Client{Timeout: 10 * time.Second}
			resp, err := client.Get(url)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			out, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server returned %d: %s", resp.StatusCode, out)
			}

			var pretty bytes.Buffer
			if err := json.Indent(&pretty, out, "", "  "); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
			return nil
		},
	}
	c.Flags().StringVar(&tenant, "tenant", "", "tenant id")
	return c
}
