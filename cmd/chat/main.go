package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/moodline/backend/internal/app"
	"github.com/zhouzirui/moodline/backend/internal/config"
	"github.com/zhouzirui/moodline/backend/internal/service/chat"
	"github.com/zhouzirui/moodline/backend/internal/service/dialogue"
)

// ChatOptions carries the injectable dependencies of the REPL.
type ChatOptions struct {
	Service     *chat.Service
	ExitPhrases chat.ExitPhrases
	JSON        bool
	Stdin       io.Reader
	Stdout      io.Writer
	Stderr      io.Writer
}

var jsonFlag bool

var rootCmd = &cobra.Command{
	Use:   "moodline-chat",
	Short: "Chat in the terminal; the session report is printed when you leave",
	RunE:  runChat,
}

func init() {
	rootCmd.Flags().BoolVar(&jsonFlag, "json", false, "Print the final report as JSON")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	engine, err := app.NewEngine(ctx, cfg)
	if err != nil {
		return err
	}
	archiver, err := app.NewArchive(ctx, cfg.Archive)
	if err != nil {
		return err
	}

	return runChatWithOptions(ctx, ChatOptions{
		Service:     chat.NewService(engine, archiver),
		ExitPhrases: chat.ExitPhrases(cfg.Session.ExitPhrases),
		JSON:        jsonFlag,
	})
}

// runChatWithOptions runs one session until an exit phrase or EOF, then
// closes it and prints the report.
func runChatWithOptions(ctx context.Context, opts ChatOptions) error {
	stdin := opts.Stdin
	if stdin == nil {
		stdin = os.Stdin
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	session, err := opts.Service.CreateSession(ctx)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	fmt.Fprintln(stdout, strings.Repeat("=", 70))
	fmt.Fprintln(stdout, "moodline chat")
	fmt.Fprintf(stdout, "Type %s to end the conversation and generate the report.\n", quoteList(opts.ExitPhrases))
	fmt.Fprintln(stdout, strings.Repeat("=", 70))

	// pending holds a message whose reply failed; only that text retries it
	var pending string

	scanner := bufio.NewScanner(stdin)
	for {
		fmt.Fprint(stdout, "\nYou: ")
		if !scanner.Scan() {
			fmt.Fprintln(stdout, "\nChat ended. Generating report.")
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if opts.ExitPhrases.Match(input) {
			fmt.Fprintln(stdout, "Bot: Thank you for sharing your thoughts! Generating your report now.")
			break
		}

		exchange, err := opts.Service.SendMessage(ctx, session.ID, input)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(stderr, "Error: %v\n", err)
			if errors.Is(err, dialogue.ErrResponseUnavailable) {
				pending = input
			}
			if pending != "" && (errors.Is(err, dialogue.ErrResponseUnavailable) || errors.Is(err, dialogue.ErrReplyPending)) {
				fmt.Fprintf(stderr, "The reply to %q is still pending. Send that same message again to retry.\n", pending)
			}
			continue
		}
		pending = ""

		sentiment := exchange.UserTurn.SentimentOrUnknown()
		fmt.Fprintf(stdout, "  [sentiment: %s, score %.3f]\n", sentiment.Label, sentiment.Score)
		fmt.Fprintf(stdout, "Bot: %s\n", exchange.AssistantTurn.Text)
	}

	report, err := opts.Service.CloseSession(ctx, session.ID)
	if err != nil && !errors.Is(err, dialogue.ErrReportMalformed) {
		return fmt.Errorf("generate report: %w", err)
	}

	if opts.JSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	fmt.Fprint(stdout, renderReport(report))
	return nil
}

func quoteList(phrases []string) string {
	quoted := make([]string, len(phrases))
	for i, p := range phrases {
		quoted[i] = "'" + p + "'"
	}
	return strings.Join(quoted, " or ")
}
