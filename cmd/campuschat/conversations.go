package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sirbrams/campuschat"
)

var (
	conversationsUnread bool
	conversationsFilter string
	conversationsJSON   bool

	messagesPage        int
	messagesJSON        bool
	messagesSearch      string
	messagesSearchPages int

	sendJSON bool

	mentorsJSON bool
)

// ============================================================================
// conversations
// ============================================================================

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"ls"},
	Short:   "List your conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := getClient()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		dir := campuschat.NewDirectory(client)
		convs, err := dir.Refresh(ctx)
		if err != nil {
			return apiError(err)
		}
		convs = campuschat.Filter(convs, conversationsFilter)
		if conversationsUnread {
			unread := convs[:0]
			for _, c := range convs {
				if c.UnreadCount > 0 {
					unread = append(unread, c)
				}
			}
			convs = unread
		}

		out := cmd.OutOrStdout()
		if conversationsJSON {
			return printJSON(out, convs)
		}
		if len(convs) == 0 {
			fmt.Fprintln(out, "No conversations found.")
			return nil
		}
		for _, c := range convs {
			fmt.Fprintln(out, formatConversation(c))
		}
		fmt.Fprintf(out, "\n%d conversations, %d unread\n", len(convs), campuschat.UnreadTotal(convs))
		return nil
	},
}

// ============================================================================
// messages
// ============================================================================

var messagesCmd = &cobra.Command{
	Use:   "messages <conversation-id>",
	Short: "Show one page of a conversation's history, or search it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := getClient()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		var msgs []campuschat.Message
		if messagesSearch != "" {
			store, err := collectHistory(ctx, client, args[0], messagesSearchPages)
			if err != nil {
				return apiError(err)
			}
			msgs = store.SearchMessages(messagesSearch, args[0], 0)
			if msgs == nil {
				msgs = []campuschat.Message{}
			}
		} else {
			msgs, err = client.Messages.History(ctx, args[0], messagesPage)
			if err != nil {
				return apiError(err)
			}
		}

		out := cmd.OutOrStdout()
		if messagesJSON {
			return printJSON(out, msgs)
		}
		if len(msgs) == 0 {
			fmt.Fprintln(out, "No messages found.")
			return nil
		}
		for _, m := range msgs {
			fmt.Fprintln(out, formatMessage(m))
		}
		return nil
	},
}

// ============================================================================
// send
// ============================================================================

var sendCmd = &cobra.Command{
	Use:   "send <conversation-id> <message>",
	Short: "Send a message without opening a live session",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := getClient()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		res, err := client.Messages.Send(ctx, args[0], strings.Join(args[1:], " "))
		if err != nil {
			return apiError(err)
		}

		out := cmd.OutOrStdout()
		if sendJSON {
			return printJSON(out, res)
		}
		fmt.Fprintf(out, "Message sent to conversation %s\n", args[0])
		fmt.Fprintf(out, "  Message ID: %s\n", res.MessageID)
		fmt.Fprintf(out, "  Timestamp:  %s\n", res.Timestamp)
		return nil
	},
}

// ============================================================================
// mentors
// ============================================================================

var mentorsCmd = &cobra.Command{
	Use:   "mentors",
	Short: "List mentors you can message",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := getClient()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		mentors, err := campuschat.NewDirectory(client).Mentors(ctx)
		if err != nil {
			return apiError(err)
		}

		out := cmd.OutOrStdout()
		if mentorsJSON {
			return printJSON(out, mentors)
		}
		if len(mentors) == 0 {
			fmt.Fprintln(out, "No mentors found.")
			return nil
		}
		for _, m := range mentors {
			fmt.Fprintf(out, "%s  %s %s\n", dimStyle.Render(fmt.Sprintf("#%-5s", m.ID)),
				headerStyle.Render(valueOrDefault(m.Name, m.Username)), dimStyle.Render("@"+m.Username))
		}
		return nil
	},
}

// ============================================================================
// dm / forum
// ============================================================================

var dmCmd = &cobra.Command{
	Use:   "dm <peer-id>",
	Short: "Open (or find) a direct conversation with a mentor or student",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := getClient()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		id, err := client.Conversations.StartDirect(ctx, args[0])
		if err != nil {
			return apiError(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Conversation %s ready. Run 'campuschat chat %s' to join.\n", id, id)
		return nil
	},
}

var forumCmd = &cobra.Command{
	Use:   "forum",
	Short: "Manage forums",
}

var forumCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a forum (mentors only)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := getClient()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		id, err := client.Conversations.CreateForum(ctx, strings.Join(args, " "))
		if err != nil {
			return apiError(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Forum %s created.\n", id)
		return nil
	},
}

// ============================================================================
// Registration
// ============================================================================

func init() {
	conversationsCmd.Flags().BoolVar(&conversationsUnread, "unread", false, "Only show conversations with unread messages")
	conversationsCmd.Flags().StringVarP(&conversationsFilter, "filter", "f", "", "Filter by name or last message")
	conversationsCmd.Flags().BoolVar(&conversationsJSON, "json", false, "Output JSON")

	messagesCmd.Flags().IntVarP(&messagesPage, "page", "p", 1, "History page (1 is the most recent)")
	messagesCmd.Flags().BoolVar(&messagesJSON, "json", false, "Output JSON")
	messagesCmd.Flags().StringVarP(&messagesSearch, "search", "s", "", "Search message bodies across history instead of showing one page")
	messagesCmd.Flags().IntVar(&messagesSearchPages, "pages", 0, "History pages to search with --search (0 for all)")

	sendCmd.Flags().BoolVar(&sendJSON, "json", false, "Output JSON")

	mentorsCmd.Flags().BoolVar(&mentorsJSON, "json", false, "Output JSON")

	forumCmd.AddCommand(forumCreateCmd)

	rootCmd.AddCommand(conversationsCmd)
	rootCmd.AddCommand(messagesCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(mentorsCmd)
	rootCmd.AddCommand(dmCmd)
	rootCmd.AddCommand(forumCmd)
}
