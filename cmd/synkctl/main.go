// synkctl is a companion CLI that talks to a running synkd over its
// control socket, one subcommand per command in the daemon's external
// command table.
package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/trybotster/synkd/internal/config"
	"github.com/trybotster/synkd/internal/control"
)

func main() {
	var socketPath string

	rootCmd := &cobra.Command{
		Use:   "synkctl",
		Short: "Control synkd over its local socket",
	}
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "", "control socket path (defaults to the daemon's configured path)")

	rootCmd.AddCommand(
		sessionCreateCmd(&socketPath),
		sessionDestroyCmd(&socketPath),
		sessionWriteCmd(&socketPath),
		sessionResizeCmd(&socketPath),
		sessionRestartCmd(&socketPath),
		sessionListCmd(&socketPath),
		sessionScrollbackCmd(&socketPath),
		debugPoolStatsCmd(&socketPath),
		debugPoolRoundtripCmd(&socketPath),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func resolveSocket(socketPath string) (string, error) {
	if socketPath != "" {
		return socketPath, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return "", err
	}
	return cfg.SocketPath, nil
}

func send(socketPath string, req control.Request) (control.Response, error) {
	path, err := resolveSocket(socketPath)
	if err != nil {
		return control.Response{}, err
	}
	c, err := control.Dial(path)
	if err != nil {
		return control.Response{}, err
	}
	defer c.Close()
	return c.Send(req)
}

// printResult renders resp as pretty JSON on an interactive terminal,
// compact JSON otherwise.
func printResult(resp control.Response) {
	var out []byte
	if term.IsTerminal(int(os.Stdout.Fd())) {
		out, _ = json.MarshalIndent(resp, "", "  ")
	} else {
		out, _ = json.Marshal(resp)
	}
	fmt.Println(string(out))
}

func sessionCreateCmd(socketPath *string) *cobra.Command {
	var agentType, projectPath, workingDir, branch, model, provider string

	cmd := &cobra.Command{
		Use:   "session-create",
		Short: "Create a new session",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := send(*socketPath, control.Request{
				Type:          "session_create",
				AgentType:     agentType,
				ProjectPath:   projectPath,
				WorkingDir:    workingDir,
				Branch:        branch,
				Model:         model,
				CodexProvider: provider,
			})
			if err != nil {
				return err
			}
			printResult(resp)
			return nil
		},
	}
	cmd.Flags().StringVar(&agentType, "agent-type", "terminal", "agent type (claude_code, gemini_cli, codex, openrouter, terminal)")
	cmd.Flags().StringVar(&projectPath, "project-path", "", "project path")
	cmd.Flags().StringVar(&workingDir, "working-dir", "", "working directory (defaults to project path)")
	cmd.Flags().StringVar(&branch, "branch", "", "branch name")
	cmd.Flags().StringVar(&model, "model", "", "model name")
	cmd.Flags().StringVar(&provider, "provider", "", "codex provider override (openai, openrouter)")
	return cmd
}

func sessionDestroyCmd(socketPath *string) *cobra.Command {
	var sessionID int
	cmd := &cobra.Command{
		Use:   "session-destroy",
		Short: "Destroy a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := send(*socketPath, control.Request{Type: "session_destroy", SessionID: sessionID})
			if err != nil {
				return err
			}
			printResult(resp)
			return nil
		},
	}
	cmd.Flags().IntVar(&sessionID, "session-id", 0, "session id")
	return cmd
}

func sessionWriteCmd(socketPath *string) *cobra.Command {
	var sessionID int
	var data string
	cmd := &cobra.Command{
		Use:   "session-write",
		Short: "Write data to a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := send(*socketPath, control.Request{Type: "session_write", SessionID: sessionID, Data: data})
			if err != nil {
				return err
			}
			printResult(resp)
			return nil
		},
	}
	cmd.Flags().IntVar(&sessionID, "session-id", 0, "session id")
	cmd.Flags().StringVar(&data, "data", "", "raw bytes to write")
	return cmd
}

func sessionResizeCmd(socketPath *string) *cobra.Command {
	var sessionID, cols, rows int
	cmd := &cobra.Command{
		Use:   "session-resize",
		Short: "Resize a session's terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := send(*socketPath, control.Request{Type: "session_resize", SessionID: sessionID, Cols: cols, Rows: rows})
			if err != nil {
				return err
			}
			printResult(resp)
			return nil
		},
	}
	cmd.Flags().IntVar(&sessionID, "session-id", 0, "session id")
	cmd.Flags().IntVar(&cols, "cols", 80, "columns")
	cmd.Flags().IntVar(&rows, "rows", 24, "rows")
	return cmd
}

func sessionRestartCmd(socketPath *string) *cobra.Command {
	var sessionID int
	var workingDir, branch, model, provider string
	cmd := &cobra.Command{
		Use:   "session-restart",
		Short: "Restart a session in place",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := send(*socketPath, control.Request{
				Type:          "session_restart",
				SessionID:     sessionID,
				WorkingDir:    workingDir,
				Branch:        branch,
				Model:         model,
				CodexProvider: provider,
			})
			if err != nil {
				return err
			}
			printResult(resp)
			return nil
		},
	}
	cmd.Flags().IntVar(&sessionID, "session-id", 0, "session id")
	cmd.Flags().StringVar(&workingDir, "working-dir", "", "new working directory (required)")
	cmd.Flags().StringVar(&branch, "branch", "", "branch name")
	cmd.Flags().StringVar(&model, "model", "", "model name")
	cmd.Flags().StringVar(&provider, "provider", "", "codex provider override")
	return cmd
}

func sessionListCmd(socketPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "session-list",
		Short: "List all sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := send(*socketPath, control.Request{Type: "session_list"})
			if err != nil {
				return err
			}
			printResult(resp)
			return nil
		},
	}
}

func sessionScrollbackCmd(socketPath *string) *cobra.Command {
	var sessionID int
	var raw bool
	cmd := &cobra.Command{
		Use:   "session-scrollback",
		Short: "Fetch a session's scrollback",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := send(*socketPath, control.Request{Type: "session_scrollback", SessionID: sessionID})
			if err != nil {
				return err
			}
			if raw {
				data, derr := base64.StdEncoding.DecodeString(resp.Scrollback)
				if derr != nil {
					return derr
				}
				os.Stdout.Write(data)
				return nil
			}
			printResult(resp)
			return nil
		},
	}
	cmd.Flags().IntVar(&sessionID, "session-id", 0, "session id")
	cmd.Flags().BoolVar(&raw, "raw", false, "write decoded bytes instead of the JSON envelope")
	return cmd
}

func debugPoolStatsCmd(socketPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "debug-pool-stats",
		Short: "Show pool idle/active/spawning counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := send(*socketPath, control.Request{Type: "debug_pool_stats"})
			if err != nil {
				return err
			}
			printResult(resp)
			return nil
		},
	}
}

func debugPoolRoundtripCmd(socketPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "debug-pool-roundtrip",
		Short: "Claim a PTY, echo a canary, and report it back",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := send(*socketPath, control.Request{Type: "debug_pool_roundtrip"})
			if err != nil {
				return err
			}
			printResult(resp)
			return nil
		},
	}
}
