package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hrygo/supportdesk/ai/observability/logging"
	"github.com/hrygo/supportdesk/ai/orchestrator"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the support pipeline from the terminal, without the HTTP server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		sessionID, _ := cmd.Flags().GetString("session")
		customer, _ := cmd.Flags().GetString("customer")
		return chat(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), sessionID, customer)
	},
}

func init() {
	chatCmd.Flags().String("session", "", "resume an existing session id")
	chatCmd.Flags().String("customer", "", "customer id or email to identify as")
}

func chat(ctx context.Context, in io.Reader, out io.Writer, sessionID, customer string) error {
	p, err := loadProfile()
	if err != nil {
		return err
	}
	// Keep the terminal for the conversation.
	logger := logging.New(os.Stderr, p.Mode, "warn")

	a, err := newApp(ctx, p, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	fmt.Fprintf(out, "%s\n(session %s, empty line or Ctrl-D to quit)\n", orchestrator.WelcomeMessage, sessionID)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			return nil
		}

		res, err := a.orchestrator.HandleMessage(ctx, orchestrator.Inbound{
			SessionID:   sessionID,
			Text:        text,
			CustomerRef: customer,
		})
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		if res.Reply != "" {
			fmt.Fprintln(out, res.Reply)
		}
		fmt.Fprintf(out, "[%s | %s | %d tokens]\n", res.ActiveSpecialist, res.EscalationState, res.TurnUsage.TotalTokens)
		if res.IsHumanTakeover && res.Reply == "" {
			fmt.Fprintln(out, "(a human agent has this conversation)")
		}
	}
}
