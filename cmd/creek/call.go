package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/creek/dispatch"
)

var callCmd = &cobra.Command{
	Use:   "call <method> [key=value | key:=json]...",
	Short: "Invoke one method and print its payload",
	Long: `Invoke a single method and print the payload to stdout.

Arguments are key=value pairs for strings, or key:=json for anything else:

  creek call analyzeLayout imagePath=/data/board.jpg
  creek call generateStylesheet 'jsonList:=["{...}","{...}"]'

A failed call prints CODE: message to stderr and exits non-zero.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCall,
}

func init() {
	callCmd.Flags().Bool("json", false, "Print the full response envelope as JSON")
	callCmd.Flags().Bool("details", false, "Print error details (tracebacks) on failure")
	rootCmd.AddCommand(callCmd)
}

// parseCallArgs turns key=value and key:=json pairs into an args map.
func parseCallArgs(pairs []string) (map[string]any, error) {
	args := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		if key, raw, ok := strings.Cut(pair, ":="); ok && !strings.Contains(key, "=") {
			var v any
			if err := json.Unmarshal([]byte(raw), &v); err != nil {
				return nil, fmt.Errorf("argument %q: invalid JSON: %w", key, err)
			}
			args[key] = v
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid argument %q (expected key=value or key:=json)", pair)
		}
		args[key] = value
	}
	return args, nil
}

func runCall(cmd *cobra.Command, args []string) error {
	callArgs, err := parseCallArgs(args[1:])
	if err != nil {
		return err
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	resp := a.dispatcher.Handle(cmd.Context(), dispatch.Request{Method: args[0], Args: callArgs})
	return printResponse(cmd, resp)
}

func printResponse(cmd *cobra.Command, resp dispatch.Response) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			return err
		}
		return resp.Err()
	}

	if resp.OK {
		fmt.Fprintln(cmd.OutOrStdout(), resp.Payload)
		return nil
	}
	if details, _ := cmd.Flags().GetBool("details"); details && resp.Details != "" {
		fmt.Fprintln(cmd.ErrOrStderr(), resp.Details)
	}
	return resp.Err()
}
