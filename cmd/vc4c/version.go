package main

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"vc4c/internal/version"
)

type versionPayload struct {
	Tool      string `json:"tool"`
	Version   string `json:"version"`
	Target    string `json:"target"`
	GoVersion string `json:"go_version"`
	GitCommit string `json:"git_commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
}

var (
	versionFormat string
	versionFull   bool
)

func init() {
	versionCmd.Flags().StringVar(&versionFormat, "format", "pretty", "output format (pretty|json)")
	versionCmd.Flags().BoolVar(&versionFull, "full", false, "include commit and build date")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the compiler version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		payload := versionPayload{
			Tool:      "vc4c",
			Version:   strings.TrimSpace(version.Version),
			Target:    version.Target,
			GoVersion: runtime.Version(),
		}
		if versionFull {
			payload.GitCommit = valueOrUnknown(strings.TrimSpace(version.GitCommit))
			payload.BuildDate = valueOrUnknown(strings.TrimSpace(version.BuildDate))
		}
		switch strings.ToLower(versionFormat) {
		case "json":
			return renderVersionJSON(cmd.OutOrStdout(), payload)
		case "pretty":
			renderVersionPretty(cmd.OutOrStdout(), payload)
			return nil
		}
		return fmt.Errorf("unsupported format %q (must be pretty or json)", versionFormat)
	},
}

func renderVersionPretty(out io.Writer, p versionPayload) {
	fmt.Fprintf(out, "vc4c %s for %s (%s)\n", version.Colored(), p.Target, p.GoVersion)
	if p.GitCommit != "" {
		fmt.Fprintf(out, "commit: %s\n", p.GitCommit)
	}
	if p.BuildDate != "" {
		fmt.Fprintf(out, "built:  %s\n", p.BuildDate)
	}
}

func renderVersionJSON(out io.Writer, p versionPayload) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}

func valueOrUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
