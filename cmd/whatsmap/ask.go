package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rahul/whatsmap/internal/agent"
	"github.com/rahul/whatsmap/internal/gateway"
)

var (
	askJSON      bool
	leadPipeline string
)

var askCmd = &cobra.Command{
	Use:   "ask [command]",
	Short: "Build a briefing for one command",
	Example: `  whatsmap ask "Emaar Beachfront price"
  whatsmap ask --json "family villas near good schools in Dubai Hills"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		resp := a.orchestrator.Submit(cmd.Context(), "cli", strings.Join(args, " "))
		return printResponse(cmd, resp)
	},
}

var leadCmd = &cobra.Command{
	Use:   "lead [name]",
	Short: "Enrich a lead: investigate, evaluate as buyer, match properties",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		name := strings.Join(args, " ")
		var resp *agent.Response
		if leadPipeline != "" {
			resp = a.orchestrator.RunPipeline(cmd.Context(), "cli", leadPipeline, name)
		} else {
			resp = a.orchestrator.Enrich(cmd.Context(), "cli", name)
		}
		return printResponse(cmd, resp)
	},
}

func init() {
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the raw response JSON")
	leadCmd.Flags().BoolVar(&askJSON, "json", false, "print the raw response JSON")
	leadCmd.Flags().StringVar(&leadPipeline, "pipeline", "", "run a named pipeline from config instead of the built-in one")
}

func printResponse(cmd *cobra.Command, resp *agent.Response) error {
	out := cmd.OutOrStdout()
	if askJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(out, gateway.Render(resp))
	}
	if !resp.OK() && resp.Failure.PartialBriefing == nil {
		return fmt.Errorf("%s", resp.Failure.Error)
	}
	return nil
}
