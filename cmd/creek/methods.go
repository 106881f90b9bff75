package main

import (
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/caffeineduck/creek/dispatch"
)

var methodsCmd = &cobra.Command{
	Use:   "methods",
	Short: "List the methods served on the channel",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		writeMethodTable(cmd.OutOrStdout(), dispatch.New(nil).Methods())
	},
}

func init() {
	rootCmd.AddCommand(methodsCmd)
}

func writeMethodTable(w io.Writer, methods []dispatch.Method) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"METHOD", "TARGET", "ARGUMENTS", "EMPTY RESULT"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	for _, m := range methods {
		empty := m.EmptyCode
		if empty == "" {
			empty = "-"
		}
		table.Append([]string{m.Name, m.Target(), formatParams(m.Params), empty})
	}
	table.Render()
}

func formatParams(params []dispatch.Param) string {
	if len(params) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(params))
	for _, p := range params {
		s := p.Name
		if p.Kind != dispatch.KindString {
			s += " (" + p.Kind.String() + ")"
		}
		if !p.Required {
			s += "?"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ", ")
}
