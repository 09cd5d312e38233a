package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sehgal-vip/travel-agent/message"
	"github.com/sehgal-vip/travel-agent/runner"
	"github.com/sehgal-vip/travel-agent/session"
)

var conversationID string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	Long: `Start an interactive conversation. Each line is one message.
Use --conversation to resume a saved trip; a new id is generated otherwise.
Type /help for commands and /quit to leave.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		id := conversationID
		if id == "" {
			id = session.NewConversationID()
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Conversation %s. Type /help for commands, /quit to leave.\n", id)
		return chatLoop(ctx, a.runner, id, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	chatCmd.Flags().StringVar(&conversationID, "conversation", "", "conversation id to resume")
}

// chatLoop reads one message per line and prints each reply in transport
// sized chunks.
func chatLoop(ctx context.Context, r *runner.Runner, id string, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		switch text {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		}

		outcome, err := r.Run(ctx, id, text)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(out, "[error] %v\n", err)
			continue
		}
		for _, reply := range outcome.Replies {
			for _, chunk := range message.Split(reply, message.MaxChunk) {
				fmt.Fprintf(out, "\n%s\n", chunk)
			}
		}
		fmt.Fprintln(out)
	}
}
