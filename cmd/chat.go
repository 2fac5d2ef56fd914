package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/orion-companion/orion/internal/engines"
	"github.com/orion-companion/orion/internal/orchestrator"
	"github.com/orion-companion/orion/internal/store"
)

func chatCmd() *cobra.Command {
	var task string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive conversation in the terminal",
		Long: "Chat with Orion from the terminal. Every turn is remembered; " +
			"type /new to end the session, /quit to exit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(task)
		},
	}
	cmd.Flags().StringVar(&task, "task", orchestrator.TaskReasoning, "task type for routing (reasoning, code, fast, multimodal)")
	return cmd
}

func runChat(task string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	user := a.cfg.UserName
	fmt.Println("Orion ready. /new starts a fresh session, /quit exits.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit", line == "/exit":
			return nil
		case line == "/new":
			if err := a.memory.EndSession(ctx, user); err != nil {
				fmt.Fprintf(os.Stderr, "end session: %v\n", err)
			} else {
				fmt.Println("Session closed.")
			}
			continue
		}

		if err := chatTurn(ctx, a, user, task, line); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
	return scanner.Err()
}

// chatTurn runs one remembered exchange: persist the prompt, assemble
// context, stream the reply, persist the reply.
func chatTurn(ctx context.Context, a *app, user, task, prompt string) error {
	if _, err := a.memory.SaveMessage(ctx, user, store.RoleUser, prompt, map[string]any{"channel": "cli"}); err != nil {
		return fmt.Errorf("save message: %w", err)
	}

	engine, err := a.orch.Route(ctx, task)
	if err != nil {
		return err
	}

	msgs := a.asm.Build(ctx, user, prompt)
	// The engine appends the prompt itself; drop the assembled user turn.
	history := msgs[:len(msgs)-1]

	var reply strings.Builder
	engine.Stream(ctx, prompt, history, func(chunk string) {
		fmt.Print(chunk)
		reply.WriteString(chunk)
	})
	fmt.Println()

	text := reply.String()
	if engines.IsErrorReply(text) {
		return fmt.Errorf("%s (via %s)", text, engine.Name())
	}

	_, err = a.memory.SaveMessage(ctx, user, store.RoleAssistant, text, map[string]any{
		"channel": "cli",
		"engine":  engine.Name(),
	})
	if err != nil {
		return fmt.Errorf("save reply: %w", err)
	}
	return nil
}
