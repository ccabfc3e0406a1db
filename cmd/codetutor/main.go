// Command codetutor turns a public source repository into a guided tutorial.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var rootCmd = &cobra.Command{
	Use:           "codetutor",
	Short:         "Generate guided tutorials from source repositories",
	Long:          "CodeTutor clones a repository, analyzes its structure and asks an LLM to explain it section by section.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default codetutor.yaml, or $CODETUTOR_CONFIG)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "codetutor:", err)
		os.Exit(1)
	}
}
