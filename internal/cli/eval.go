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

func cmdEval() *cobra.Command {
	var file string

	c := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate an authorization request against the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("missing request file, use -f")
			}
			body, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			if !json.Valid(body) {
				return fmt.Errorf("%s is not valid JSON", file)
			}

			client := &http.Client{Timeout: 10 * time.Second}
			resp, err := client.Post(serverURL+"/v1/evaluate", "application/json", bytes.NewReader(body))
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
	c.Flags().StringVarP(&file, "file", "f", "", "path to an authorization request JSON file")
	return c
}
