// Package chatcmder provides the interactive chat command.
package chatcmder

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/halfmoonlabs/engram/cmd/engram/bootstrap"
	"github.com/halfmoonlabs/engram/pkg/config"
	"github.com/halfmoonlabs/engram/pkg/dotdir"
	"github.com/halfmoonlabs/engram/pkg/logger"
)

type chatCommander struct {
	configDir string
	owner     string
	debug     bool
	noStream  bool

	logger *zap.Logger
}

const chatLongDesc string = `Start an interactive chat session with long-term memory.

Messages and replies live in a token-budgeted window. When the window
overflows, the oldest turns are archived to the local vector store and
retrieved back into context when a later message makes them relevant.

Session commands:
  /clear   Archive the current window and start fresh
  /exit    Quit

Examples:
  engram chat
  engram chat --owner alice --no-stream`

const chatShortDesc string = "Interactive chat with long-term memory"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if cmder.debug, err = cmd.Flags().GetBool("debug"); err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			if cmder.configDir, err = cmd.Flags().GetString("config-dir"); err != nil {
				return fmt.Errorf("could not get config-dir flag: %w", err)
			}
			if cmder.owner, err = cmd.Flags().GetString("owner"); err != nil {
				return fmt.Errorf("could not get owner flag: %w", err)
			}

			return cmder.run(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&cmder.noStream, "no-stream", false, "Wait for the full reply instead of streaming")

	return cmd
}

func (c *chatCommander) run(ctx context.Context) error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	v, err := config.InitViper(c.configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg, err := config.FromViper(v)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	rt, err := bootstrap.NewRuntime(ctx, cfg, c.owner, c.logger)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	// Resume the previous window, if one was saved for this owner.
	dotdirManager := dotdir.NewManager()
	saved, err := dotdirManager.LoadSession(c.owner, c.configDir)
	if err != nil {
		return fmt.Errorf("loading session state: %w", err)
	}
	if saved != nil {
		for _, t := range saved.Turns {
			rt.Window.AddTurn(t.Role, t.Content)
		}
	}
	defer func() {
		turns := rt.Window.Turns()
		state := &dotdir.SessionState{Owner: c.owner, Turns: make([]dotdir.SessionTurn, len(turns))}
		for i, t := range turns {
			state.Turns[i] = dotdir.SessionTurn{Role: t.Role, Content: t.Content}
		}
		if err := dotdirManager.SaveSession(state, c.configDir); err != nil {
			c.logger.Warn("failed to save session state", zap.Error(err))
		}
	}()

	fmt.Println()
	fmt.Printf("  Owner: %s\n", c.owner)
	if saved != nil {
		fmt.Printf("  Resuming previous session (%d turns)\n", len(saved.Turns))
	}
	fmt.Printf("  Type your message and press Enter. /clear to reset, /exit or Ctrl+D to quit.\n\n")

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("you> ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "/exit" {
			break
		}
		if input == "/clear" {
			if err := rt.Orchestrator.ClearSession(ctx, true); err != nil {
				fmt.Fprintf(os.Stderr, "  clearing session: %v\n", err)
				continue
			}
			if err := dotdirManager.ClearSession(c.configDir); err != nil {
				c.logger.Warn("failed to clear session state", zap.Error(err))
			}
			fmt.Println("  session cleared, window archived")
			continue
		}

		fmt.Print("assistant> ")
		reply, err := c.send(ctx, rt, input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "\n  %v\n", err)
			continue
		}
		if c.noStream {
			fmt.Print(reply)
		}
		fmt.Println()
		fmt.Println()
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Println()
	return nil
}

func (c *chatCommander) send(ctx context.Context, rt *bootstrap.Runtime, input string) (string, error) {
	if c.noStream {
		return rt.Orchestrator.SendMessage(ctx, input, nil)
	}
	return rt.Orchestrator.SendMessage(ctx, input, func(delta string) error {
		fmt.Print(delta)
		return nil
	})
}
