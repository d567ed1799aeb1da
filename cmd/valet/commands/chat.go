package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/valetd/valet/pkg/valet/assistant"
)

// newChatCmd creates the `valet chat` command for conversations.
func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to the assistant",
		Long: `Send one message, or start an interactive session (no arguments).
Actions detected in your messages (tasks, reminders, notes, events, drafts,
meetings, research assignments) are created as part of the reply.

Examples:
  valet chat "add milk to my shopping list and remind me at 6pm"
  valet chat                  # interactive mode
  valet chat --voice "what's on my calendar today"`,
		RunE: runChat,
	}

	cmd.Flags().StringP("user", "u", "local", "user ID for this session")
	cmd.Flags().String("conversation", "", "conversation ID to continue")
	cmd.Flags().Bool("voice", false, "voice mode: short spoken-style replies")
	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	userID, _ := cmd.Flags().GetString("user")
	conversationID, _ := cmd.Flags().GetString("conversation")
	voice, _ := cmd.Flags().GetBool("voice")

	mode := assistant.ModeText
	if voice {
		mode = assistant.ModeVoice
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The worker runs inside the chat session too, so assignments created
	// here start processing immediately instead of waiting for `valet serve`.
	if err := rt.worker.Start(ctx); err != nil {
		return fmt.Errorf("starting worker: %w", err)
	}

	if len(args) > 0 {
		return runSingleShot(ctx, rt, userID, conversationID, strings.Join(args, " "), mode)
	}
	return runInteractive(ctx, rt, userID, conversationID, mode)
}

// runSingleShot handles one message and prints the reply.
func runSingleShot(ctx context.Context, rt *runtime, userID, conversationID, text, mode string) error {
	result, err := rt.assistant.HandleUtterance(ctx, userID, conversationID, text, mode)
	if err != nil {
		return err
	}

	fmt.Println(result.ReplyText)
	printCreatedActions(result.CreatedActions)
	return nil
}

// runInteractive runs the REPL until EOF or /quit.
func runInteractive(ctx context.Context, rt *runtime, userID, conversationID, mode string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "you> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "bye",
	})
	if err != nil {
		return fmt.Errorf("initializing readline: %w", err)
	}
	defer rl.Close()

	fmt.Printf("%s is listening. Type /quit to exit.\n\n", rt.cfg.Name)

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			return nil
		}

		result, err := rt.assistant.HandleUtterance(ctx, userID, conversationID, line, mode)
		if err != nil {
			fmt.Printf("[error] %v\n", err)
			continue
		}

		// Stay in the same conversation for the rest of the session.
		conversationID = result.ConversationID

		fmt.Printf("\n%s> %s\n", strings.ToLower(rt.cfg.Name), result.ReplyText)
		printCreatedActions(result.CreatedActions)
		fmt.Println()
	}
}

// printCreatedActions lists what the turn materialized.
func printCreatedActions(actions []assistant.CreatedAction) {
	for _, a := range actions {
		fmt.Printf("  [+] %s: %s (%s)\n", a.Type, a.Title, a.ID)
	}
}
