package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sirbrams/campuschat"
)

var (
	chatNoReconnect bool
)

const chatHelp = "Commands: /older  /status  /clear  /quit"

var chatCmd = &cobra.Command{
	Use:   "chat <conversation-id>",
	Short: "Join a conversation live",
	Long: "Open the conversation's chat socket, print its latest history and stream new messages.\n" +
		chatHelp,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := getClient()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		renderer := newTermRenderer(out)
		coord := campuschat.NewCoordinator(client, renderer, &campuschat.RealtimeConfig{
			AutoReconnect: !chatNoReconnect,
		})
		defer coord.Close()

		if _, err := coord.RefreshConversations(ctx); err != nil {
			fmt.Fprintln(out, errorStyle.Render("Could not load conversations: "+err.Error()))
		}
		conv, ok := coord.Directory().Lookup(args[0])
		if !ok {
			conv = campuschat.Conversation{ID: campuschat.ID(args[0]), Name: "#" + args[0]}
		}
		fmt.Fprintln(out, headerStyle.Render(conv.Name)+"  "+dimStyle.Render(chatHelp))
		logger.Debug("joining conversation", "conversation", string(conv.ID), "socket", client.RealtimeURL(string(conv.ID)))

		if err := coord.Select(ctx, conv); err != nil {
			fmt.Fprintln(out, errorStyle.Render(err.Error()))
		}

		return runChatLoop(ctx, coord, cmd.InOrStdin(), out)
	},
}

// runChatLoop reads lines until EOF, /quit or ctx is done.
func runChatLoop(ctx context.Context, coord *campuschat.Coordinator, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleChatLine(ctx, coord, line, out); quit {
				return nil
			}
		}
	}
}

func handleChatLine(ctx context.Context, coord *campuschat.Coordinator, line string, out io.Writer) bool {
	line = strings.TrimSpace(line)
	switch line {
	case "":
		return false
	case "/quit", "/exit":
		return true
	case "/older":
		if err := coord.LoadOlder(ctx); err != nil {
			fmt.Fprintln(out, errorStyle.Render(err.Error()))
		} else if conv, ok := coord.Current(); ok && coord.Pages().Exhausted(string(conv.ID)) {
			fmt.Fprintln(out, dimStyle.Render("── start of history ──"))
		}
		return false
	case "/status":
		conv, _ := coord.Current()
		fmt.Fprintf(out, "%s #%s %s, %d messages cached, page %d\n", headerStyle.Render("Status:"),
			conv.ID, coord.State(), len(coord.Messages()), coord.Pages().Current(string(conv.ID)))
		return false
	case "/clear":
		if conv, ok := coord.Current(); ok {
			coord.ClearConversation(string(conv.ID))
		}
		return false
	}
	if strings.HasPrefix(line, "/") {
		fmt.Fprintln(out, dimStyle.Render(chatHelp))
		return false
	}

	if _, err := coord.SendCurrent(ctx, line); err != nil {
		if errors.Is(err, campuschat.ErrNotOpen) {
			fmt.Fprintln(out, errorStyle.Render("Connection error: message kept locally but not sent."))
		} else {
			fmt.Fprintln(out, errorStyle.Render(err.Error()))
		}
	}
	return false
}

func init() {
	chatCmd.Flags().BoolVar(&chatNoReconnect, "no-reconnect", false, "Do not reconnect when the socket drops")
	rootCmd.AddCommand(chatCmd)
}
