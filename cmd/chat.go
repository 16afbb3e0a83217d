package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"mint/internal/handler"
	"mint/internal/pkg/id"
	"mint/internal/server"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the assistant in the terminal",
	Long: `Drive the orchestrator turn by turn from stdin.
Commands: /stats prints usage analytics, /reset clears them, /quit exits.`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)

	flags := chatCmd.Flags()
	flags.String("user", "local", "conversation user id")
	flags.Bool("mock", false, "use the offline mock model")
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	if mock, _ := cmd.Flags().GetBool("mock"); mock {
		cfg.AI.Provider = "mock"
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	userID, _ := cmd.Flags().GetString("user")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := server.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close(context.Background())

	return chatLoop(ctx, app.Orchestrator, app.Orchestrator, userID, os.Stdin, os.Stdout)
}

// chatLoop 逐行读取输入并处理，EOF 或 /quit 退出
func chatLoop(ctx context.Context, turns handler.TurnProcessor, metrics handler.MetricsSource, userID string, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	fmt.Fprintf(out, "Chatting as %q. Type /quit to exit.\n> ", userID)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
		case "/quit", "/exit":
			return nil
		case "/stats":
			data, err := json.MarshalIndent(metrics.Analytics(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
		case "/reset":
			metrics.ResetMetrics()
			fmt.Fprintln(out, "metrics reset")
		default:
			res, err := turns.HandleTurn(ctx, userID, id.NewRandom(), line)
			switch {
			case err != nil && res.Reply == "":
				fmt.Fprintf(out, "error: %v\n", err)
			case err != nil:
				fmt.Fprintf(out, "%s\n  [failed: %v]\n", res.Reply, err)
			default:
				fmt.Fprintln(out, res.Reply)
				if res.Usage != nil {
					fmt.Fprintf(out, "  [stage=%s tokens=%d cache_hit=%t cost=$%.6f]\n",
						res.Stage, res.Usage.TotalTokens(), res.Usage.CacheHit, res.Usage.CostUSD)
				}
			}
		}
		fmt.Fprint(out, "> ")
	}
	return scanner.Err()
}
