package main

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var botJSON bool

var botCmd = &cobra.Command{
	Use:   "bot [question]",
	Short: "Ask the campus assistant",
	Long:  "Ask the campus assistant a question. Without arguments, reads questions line by line until EOF.",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := getClient()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		ask := func(q string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()
			reply, err := client.Chatbot.Ask(ctx, q)
			if err != nil {
				return apiError(err)
			}
			if botJSON {
				return printJSON(out, reply)
			}
			fmt.Fprintf(out, "%s %s\n", peerNameStyle.Render("assistant:"), reply.Response)
			return nil
		}

		if len(args) > 0 {
			return ask(strings.Join(args, " "))
		}

		sc := bufio.NewScanner(cmd.InOrStdin())
		for sc.Scan() {
			q := strings.TrimSpace(sc.Text())
			if q == "" {
				continue
			}
			if err := ask(q); err != nil {
				fmt.Fprintln(out, errorStyle.Render(err.Error()))
			}
		}
		if n := len(client.Chatbot.Transcript()); n > 0 {
			logger.Debug("assistant session ended", "session", client.Chatbot.SessionID(), "exchanges", n)
		}
		return sc.Err()
	},
}

func init() {
	botCmd.Flags().BoolVar(&botJSON, "json", false, "Output JSON")
	rootCmd.AddCommand(botCmd)
}
