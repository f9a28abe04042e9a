package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"odin/internal/ipc"
)

var (
	socketPath string
	timeout    time.Duration
	priority   bool
	limit      int
)

var rootCmd = &cobra.Command{
	Use:           "odin-ctl",
	Short:         "Control a running odin-daemon",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Capture one phrase on the current screen",
	Long: `Capture one phrase with the microphone and apply it to the current
screen (settings, help or feedback). Prints what was heard.

Examples:
  odin-ctl open settings && odin-ctl listen`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rep, err := send(ipc.Message{Cmd: ipc.CmdListen})
		if err != nil {
			return err
		}
		fmt.Println(rep.Text)
		return printData(rep.Data)
	},
}

var sayCmd = &cobra.Command{
	Use:   "say <text>",
	Short: "Speak text through the daemon",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := send(ipc.Message{Cmd: ipc.CmdSay, Text: strings.Join(args, " "), Priority: priority})
		return err
	},
}

var utterCmd = &cobra.Command{
	Use:   "utter <text>",
	Short: "Inject text as if the listener heard it",
	Long: `Inject a finalized utterance into the command dispatcher.

Examples:
  odin-ctl utter "odin search for the train station"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := send(ipc.Message{Cmd: ipc.CmdUtter, Text: strings.Join(args, " ")})
		return err
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start hands-free listening",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := send(ipc.Message{Cmd: ipc.CmdStart})
		return err
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop hands-free listening",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := send(ipc.Message{Cmd: ipc.CmdStop})
		return err
	},
}

var openCmd = &cobra.Command{
	Use:       "open <screen>",
	Short:     "Switch screens",
	ValidArgs: []string{"scanning", "map", "chat", "settings", "about", "help", "feedback"},
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := send(ipc.Message{Cmd: ipc.CmdOpen, Screen: args[0]})
		return err
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show screen, listener and preference state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rep, err := send(ipc.Message{Cmd: ipc.CmdStatus})
		if err != nil {
			return err
		}
		return printData(rep.Data)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show logged obstacles and submitted feedback",
	Long: `Print the obstacle count and the newest obstacle and feedback entries.

Examples:
  odin-ctl history -n 25`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rep, err := send(ipc.Message{Cmd: ipc.CmdHistory, Limit: limit})
		if err != nil {
			return err
		}
		return printData(rep.Data)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&socketPath, "socket", "s", ipc.DefaultSocketPath, "Control socket path")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 30*time.Second, "Request timeout")
	sayCmd.Flags().BoolVarP(&priority, "priority", "p", false, "Interrupt current speech")
	historyCmd.Flags().IntVarP(&limit, "number", "n", 10, "Entries to list")

	rootCmd.AddCommand(listenCmd, sayCmd, utterCmd, startCmd, stopCmd, openCmd, statusCmd, historyCmd)
}

func send(msg ipc.Message) (ipc.Reply, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	rep, err := ipc.Send(ctx, socketPath, msg)
	if err != nil {
		return rep, fmt.Errorf("%s: %w", msg.Cmd, err)
	}
	return rep, nil
}

func printData(raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return enc.Encode(v)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "odin-ctl:", err)
		os.Exit(1)
	}
}
