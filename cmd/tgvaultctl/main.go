package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/tgvault/internal/config"
	"github.com/matheus3301/tgvault/internal/paths"
	"github.com/matheus3301/tgvault/internal/storage"
	"github.com/matheus3301/tgvault/internal/storage/factory"
	"github.com/matheus3301/tgvault/internal/storage/transfer"
)

func main() {
	configFlag := flag.String("config", paths.ConfigPath(), "path to config file")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := factory.Open(ctx, cfg.Storage)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot open archive: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	switch args[0] {
	case "status":
		cmdStatus(ctx, store, *jsonFlag)
	case "conversations":
		cmdConversations(ctx, store, *jsonFlag)
	case "messages":
		cmdMessages(ctx, store, args[1:], *jsonFlag)
	case "stats":
		cmdStats(ctx, store, *jsonFlag)
	case "migrate":
		cmdMigrate(cfg, store, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: tgvaultctl [--config <path>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                         Per-conversation sync progress")
	fmt.Fprintln(os.Stderr, "  conversations                  List archived conversations")
	fmt.Fprintln(os.Stderr, "  messages --conversation <id>   Show recent messages")
	fmt.Fprintln(os.Stderr, "  stats                          Archive totals")
	fmt.Fprintln(os.Stderr, "  migrate --to-backend <name>    Copy the archive to another backend")
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func cmdStatus(ctx context.Context, store storage.Store, asJSON bool) {
	statuses, err := store.ListSyncStatus(ctx)
	if err != nil {
		fatal(err)
	}
	if asJSON {
		printJSON(statuses)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CONVERSATION\tCURSOR\tLAST RUN\tFAILURES\tLAST ERROR")
	for _, s := range statuses {
		fmt.Fprintf(w, "%d\t%d\t%s\t%d\t%s\n",
			s.ConversationID, s.Cursor, formatMillis(s.LastRunAt), s.FailureCount, s.LastError)
	}
	_ = w.Flush()
}

func cmdConversations(ctx context.Context, store storage.Store, asJSON bool) {
	convs, err := store.ListConversations(ctx, 1000, 0)
	if err != nil {
		fatal(err)
	}
	if asJSON {
		printJSON(convs)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tTITLE\tUSERNAME")
	for _, c := range convs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", c.ID, c.Kind, c.Title, c.Username)
	}
	_ = w.Flush()
}

func cmdMessages(ctx context.Context, store storage.Store, args []string, asJSON bool) {
	fs := flag.NewFlagSet("messages", flag.ExitOnError)
	convFlag := fs.Int64("conversation", 0, "conversation id")
	limitFlag := fs.Int("limit", 50, "number of messages")
	searchFlag := fs.String("search", "", "show only messages containing this text")
	_ = fs.Parse(args)

	if *convFlag == 0 && *searchFlag == "" {
		fmt.Fprintln(os.Stderr, "usage: tgvaultctl messages --conversation <id> [--limit <n>] [--search <text>]")
		os.Exit(1)
	}

	var msgs []storage.Message
	var err error
	if *searchFlag != "" {
		msgs, err = store.SearchMessages(ctx, *convFlag, *searchFlag, *limitFlag)
	} else {
		msgs, err = store.ListRecentMessages(ctx, *convFlag, *limitFlag)
	}
	if err != nil {
		fatal(err)
	}
	if asJSON {
		printJSON(msgs)
		return
	}

	for _, m := range msgs {
		marker := ""
		if m.Deleted {
			marker = " [deleted]"
		} else if m.EditedAt > 0 {
			marker = " [edited]"
		}
		body := m.Body
		if m.HasAttachment {
			body += " [attachment]"
		}
		fmt.Printf("%s  %s  %s%s\n",
			formatMillis(m.SentAt), strconv.FormatInt(m.SenderID, 10), body, marker)
	}

	if *searchFlag != "" {
		total, err := store.CountMessages(ctx, *convFlag, *searchFlag)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("%d of %d matches shown\n", len(msgs), total)
	}
}

// cmdMigrate copies the archive into another backend, then verifies row
// counts. Runs with its own context so a long copy isn't cut short.
func cmdMigrate(cfg *config.Config, src storage.Store, args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	backendFlag := fs.String("to-backend", "postgres", "target backend (sqlite or postgres)")
	dsnFlag := fs.String("to-dsn", "", "target Postgres DSN")
	pathFlag := fs.String("to-path", "", "target SQLite database path")
	_ = fs.Parse(args)

	target := config.StorageConfig{
		Backend:  *backendFlag,
		SQLite:   config.SQLiteConfig{Path: *pathFlag},
		Postgres: config.PostgresConfig{DSN: *dsnFlag},
	}
	if (target.Backend == "postgres" && target.Postgres.DSN == "") ||
		(target.Backend == "sqlite" && target.SQLite.Path == "") {
		fmt.Fprintln(os.Stderr, "usage: tgvaultctl migrate --to-backend postgres --to-dsn <dsn>")
		fmt.Fprintln(os.Stderr, "       tgvaultctl migrate --to-backend sqlite --to-path <file>")
		os.Exit(1)
	}

	ctx := context.Background()
	dst, err := factory.Open(ctx, target)
	if err != nil {
		fatal(fmt.Errorf("cannot open target: %w", err))
	}
	defer func() { _ = dst.Close() }()

	if _, err := dst.Migrate(ctx); err != nil {
		fatal(fmt.Errorf("target schema: %w", err))
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		fatal(err)
	}
	res, err := transfer.Copy(ctx, src, dst, logger)
	if err != nil {
		fatal(err)
	}
	if err := transfer.Verify(ctx, src, dst); err != nil {
		fatal(fmt.Errorf("verification: %w", err))
	}
	if err := dst.SetMetadata(ctx, "migrated_at", time.Now().UTC().Format(time.RFC3339)); err != nil {
		fatal(err)
	}
	if err := dst.SetMetadata(ctx, "migrated_from", cfg.Storage.Backend); err != nil {
		fatal(err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Conversations:\t%d\n", res.Conversations)
	fmt.Fprintf(w, "Senders:\t%d\n", res.Senders)
	fmt.Fprintf(w, "Messages:\t%d\n", res.Messages)
	fmt.Fprintf(w, "Attachments:\t%d\n", res.Attachments)
	fmt.Fprintf(w, "Reaction sets:\t%d\n", res.ReactionSets)
	fmt.Fprintf(w, "Sync records:\t%d\n", res.SyncStatuses)
	_ = w.Flush()
	fmt.Println("verification passed")
}

func cmdStats(ctx context.Context, store storage.Store, asJSON bool) {
	st, err := store.Stats(ctx)
	if err != nil {
		fatal(err)
	}
	if asJSON {
		printJSON(st)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Conversations:\t%d\n", st.Conversations)
	fmt.Fprintf(w, "Messages:\t%d\n", st.Messages)
	fmt.Fprintf(w, "Senders:\t%d\n", st.Senders)
	fmt.Fprintf(w, "Attachments:\t%d\n", st.Attachments)
	fmt.Fprintf(w, "Downloaded:\t%.1f MB\n", st.DownloadedMB)
	_ = w.Flush()
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Format("2006-01-02 15:04:05")
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatal(err)
	}
}
