package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/caffeineduck/creek/dispatch"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive method console",
	Long: `Start an interactive console against a single interpreter.

Input lines are method calls in the same form as 'creek call':

  >>> analyzeColorStyle imagePath=/data/board.jpg
  >>> generateMagicPrompt caption="summer mood" userPrompt=linen

Built-ins: methods, intent [component], state, exit.

Features:
  - Command history (up/down arrows)
  - Line editing (left/right, backspace, delete)
  - History search (Ctrl+R)
  - Multi-line input (end line with \)`,
	Args: cobra.NoArgs,
	RunE: runRepl,
}

func init() {
	replCmd.Flags().String("history", "", "History file path (default: ~/.creek_history)")
	replCmd.Flags().StringSlice("allow-host", nil, "Allow HTTP from scripts to host (repeatable)")
	replCmd.Flags().StringSlice("mount", nil, "Mount filesystem virtual:host:mode (repeatable)")
	rootCmd.AddCommand(replCmd)
}

func runRepl(cmd *cobra.Command, args []string) error {
	if err := applyHostFlags(cmd); err != nil {
		return err
	}
	historyFile, _ := cmd.Flags().GetString("history")
	if historyFile == "" {
		home, _ := os.UserHomeDir()
		historyFile = filepath.Join(home, ".creek_history")
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()
	a.start(cmd.Context())

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            ">>> ",
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		AutoComplete:      methodCompleter(a.dispatcher),
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintf(os.Stderr, "creek %s console (type 'methods' for a list, 'exit' to quit)\n", a.runtime.Backend())

	var multiLine strings.Builder
	inMultiLine := false

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				if inMultiLine {
					multiLine.Reset()
					inMultiLine = false
					rl.SetPrompt(">>> ")
				}
				continue
			}
			if errors.Is(err, io.EOF) {
				fmt.Println()
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}

		if strings.HasSuffix(line, "\\") {
			multiLine.WriteString(strings.TrimSuffix(line, "\\"))
			multiLine.WriteString(" ")
			inMultiLine = true
			rl.SetPrompt("... ")
			continue
		}
		if inMultiLine {
			multiLine.WriteString(line)
			line = multiLine.String()
			multiLine.Reset()
			inMultiLine = false
			rl.SetPrompt(">>> ")
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}
		evalLine(cmd.Context(), a, line, rl.Stdout(), rl.Stderr())
	}
}

// evalLine runs one console line: a built-in or a method call.
func evalLine(ctx context.Context, a *app, line string, stdout, stderr io.Writer) {
	fields, err := splitFields(line)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return
	}

	switch fields[0] {
	case "methods":
		writeMethodTable(stdout, a.dispatcher.Methods())
		return
	case "state":
		fmt.Fprintln(stdout, a.runtime.State())
		return
	case "intent":
		intent := a.dispatcher.Intent()
		if len(fields) > 1 {
			intent.SetComponent(fields[1])
		}
		fmt.Fprintf(stdout, "%s (share source: %s)\n", intent.Component(), intent.ShareSource())
		return
	}

	callArgs, err := parseCallArgs(fields[1:])
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return
	}
	resp := a.dispatcher.Handle(ctx, dispatch.Request{Method: fields[0], Args: callArgs})
	if resp.OK {
		fmt.Fprintln(stdout, resp.Payload)
		return
	}
	fmt.Fprintf(stderr, "%s: %s\n", resp.Code, resp.Message)
	if resp.Details != "" {
		fmt.Fprintln(stderr, resp.Details)
	}
}

// splitFields splits on whitespace, honoring single and double quotes so
// values may contain spaces: caption="summer mood" -> caption=summer mood.
// JSON values need single quotes: 'jsonList:=["{}"]'.
func splitFields(line string) ([]string, error) {
	var (
		fields  []string
		cur     strings.Builder
		quote   rune
		started bool
	)
	for _, r := range line {
		switch {
		case quote != 0 && r == quote:
			quote = 0
		case quote != 0:
			cur.WriteRune(r)
		case r == '"' || r == '\'':
			quote = r
			started = true
		case r == ' ' || r == '\t':
			if started {
				fields = append(fields, cur.String())
				cur.Reset()
				started = false
			}
		default:
			cur.WriteRune(r)
			started = true
		}
	}
	if quote != 0 {
		return nil, errors.New("unterminated quote")
	}
	if started {
		fields = append(fields, cur.String())
	}
	if len(fields) == 0 {
		return nil, errors.New("empty input")
	}
	return fields, nil
}

func methodCompleter(d *dispatch.Dispatcher) readline.AutoCompleter {
	items := []readline.PrefixCompleterInterface{
		readline.PcItem("methods"),
		readline.PcItem("intent"),
		readline.PcItem("state"),
		readline.PcItem("exit"),
	}
	for _, m := range d.Methods() {
		var params []readline.PrefixCompleterInterface
		for _, p := range m.Params {
			params = append(params, readline.PcItem(p.Name+"="))
		}
		items = append(items, readline.PcItem(m.Name, params...))
	}
	return readline.NewPrefixCompleter(items...)
}
