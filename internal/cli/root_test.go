package cli

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

// resetFlags puts globals and persistent flags back to their defaults so tests do not
// bleed state into each other.
func resetFlags(t *testing.T) {
	t.Helper()

	home, _ := os.UserHomeDir()
	defaultCfg := filepath.Join(home, ".gatehouse", "config.yaml")

	_ = rootCmd.PersistentFlags().Set("output", "json")
	_ = rootCmd.PersistentFlags().Set("server-url", "http://localhost:8089")
	_ = rootCmd.PersistentFlags().Set("config", defaultCfg)

	rootCmd.SetArgs([]string{})
	rootCmd.SetOut(io.Discard)
	rootCmd.SetErr(io.Discard)
}

func TestRootDefaultsAndFlags(t *testing.T) {
	resetFlags(t)

	if got, want := rootCmd.Use, "gatehouse"; got != want {
		t.Fatalf("Use = %q, want %q", got, want)
	}
	if !rootCmd.SilenceUsage {
		t.Fatalf("SilenceUsage = false, want true")
	}
	if !rootCmd.SilenceErrors {
		t.Fatalf("SilenceErrors = false, want true")
	}

	if output != "json" {
		t.Fatalf("output default = %q, want %q", output, "json")
	}
	if serverURL != "http://localhost:8089" {
		t.Fatalf("serverURL default = %q, want %q", serverURL, "http://localhost:8089")
	}

	home, _ := os.UserHomeDir()
	if want := filepath.Join(home, ".gatehouse", "config.yaml"); cfgPath != want {
		t.Fatalf("cfgPath default = %q, want %q", cfgPath, want)
	}
}

func TestRootRegistersSubcommands(t *testing.T) {
	resetFlags(t)

	want := map[string]bool{
		"run":     false,
		"eval":    false,
		"policy":  false,
		"keys":    false,
		"version": false,
	}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}
