package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/lysyi3m/lazyfeed/app/api"
	"github.com/lysyi3m/lazyfeed/app/cfg"
	"github.com/lysyi3m/lazyfeed/app/database"
	"github.com/lysyi3m/lazyfeed/app/opml"
	"github.com/lysyi3m/lazyfeed/app/tasks"
)

func registerCommands(parser *flags.Parser) {
	commands := []struct {
		name, short, long string
		data              any
	}{
		{"add", "Subscribe to feeds", "Validate, store and sync one or more feed URLs.", &addCommand{}},
		{"import", "Import an OPML file", "Subscribe to every feed in an OPML file ('-' reads stdin).", &importCommand{}},
		{"export", "Export subscriptions as OPML", "Write subscriptions as OPML 2.0 to a file or stdout.", &exportCommand{}},
		{"list", "List feeds or entries", "List subscribed feeds, or entries with --entries.", &listCommand{}},
		{"delete", "Unsubscribe from feeds", "Delete feeds by id together with their entries.", &deleteCommand{}},
		{"sync", "Run a sync pass", "Fetch all subscribed feeds once and store new entries.", &syncCommand{}},
		{"serve", "Run the HTTP API", "Serve the HTTP API, optionally syncing on an interval.", &serveCommand{}},
		{"mark-read", "Mark all entries as read", "Flag every unread entry as read.", &markReadCommand{}},
		{"vacuum", "Compact the database", "Reclaim unused space in the database file.", &vacuumCommand{}},
		{"config", "Show the settings file", "Print the settings file path, or open it in $EDITOR with --edit.", &configCommand{}},
	}

	for _, c := range commands {
		if _, err := parser.AddCommand(c.name, c.short, c.long, c.data); err != nil {
			panic(err)
		}
	}
}

type addCommand struct {
	Args struct {
		URLs []string `positional-arg-name:"URL" required:"1"`
	} `positional-args:"yes" required:"yes"`
}

func (cmd *addCommand) Execute(_ []string) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := signalContext()
	defer cancel()

	subs := rt.subscriber.AddURLs(ctx, cmd.Args.URLs...)
	return reportSubscriptions(os.Stdout, subs)
}

type importCommand struct {
	Args struct {
		File string `positional-arg-name:"FILE"`
	} `positional-args:"yes" required:"yes"`
}

func (cmd *importCommand) Execute(_ []string) error {
	var r io.Reader = os.Stdin
	if cmd.Args.File != "-" {
		f, err := os.Open(cmd.Args.File)
		if err != nil {
			return fmt.Errorf("failed to open OPML file: %w", err)
		}
		defer f.Close()
		r = f
	}

	feeds, err := opml.Parse(r)
	if err != nil {
		return err
	}

	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := signalContext()
	defer cancel()

	subs := rt.subscriber.Add(ctx, feeds...)
	return reportSubscriptions(os.Stdout, subs)
}

func reportSubscriptions(w io.Writer, subs []tasks.Subscription) error {
	failed := 0
	for _, sub := range subs {
		switch sub.Outcome {
		case tasks.OutcomeAdded:
			fmt.Fprintf(w, "added    %s (%s, %d new entries)\n", sub.URL, sub.Feed.Title, sub.NewEntries)
		case tasks.OutcomeExists:
			fmt.Fprintf(w, "exists   %s\n", sub.URL)
		default:
			failed++
			fmt.Fprintf(w, "%-8s %s: %v\n", sub.Outcome, sub.URL, sub.Err)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d feeds could not be added", failed, len(subs))
	}
	return nil
}

type exportCommand struct {
	Args struct {
		File string `positional-arg-name:"FILE"`
	} `positional-args:"yes"`
}

func (cmd *exportCommand) Execute(_ []string) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := signalContext()
	defer cancel()

	feeds, err := rt.feedRepo.GetAll(ctx)
	if err != nil {
		return err
	}

	if cmd.Args.File == "" || cmd.Args.File == "-" {
		return opml.Export(os.Stdout, "lazyfeed subscriptions", feeds)
	}

	f, err := os.Create(cmd.Args.File)
	if err != nil {
		return fmt.Errorf("failed to create OPML file: %w", err)
	}
	bw := bufio.NewWriter(f)
	if err := opml.Export(bw, "lazyfeed subscriptions", feeds); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	slog.Info("Subscriptions exported", "feeds", len(feeds), "file", cmd.Args.File)
	return f.Close()
}

type listCommand struct {
	Entries bool  `long:"entries" description:"List entries instead of feeds"`
	Unread  bool  `long:"unread" description:"Only unread entries"`
	Saved   bool  `long:"saved" description:"Only saved entries"`
	FeedID  int64 `long:"feed" description:"Only entries of this feed id"`
	Limit   int   `long:"limit" default:"50" description:"Maximum number of entries"`
}

func (cmd *listCommand) Execute(_ []string) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := signalContext()
	defer cancel()

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	if !cmd.Entries {
		feeds, err := rt.feedRepo.GetAll(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(tw, "ID\tTITLE\tURL\tUNREAD")
		for _, f := range feeds {
			unread, err := rt.entryRepo.Count(ctx, database.EntryFilter{FeedID: database.Ptr(f.ID), IsRead: database.Ptr(false)})
			if err != nil {
				return err
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", f.ID, f.Title, f.URL, unread)
		}
		return nil
	}

	filter := database.EntryFilter{
		SortBy:    rt.cfg.SortBy,
		Ascending: rt.cfg.SortAscending,
		Limit:     cmd.Limit,
	}
	if cmd.Unread {
		filter.IsRead = database.Ptr(false)
	}
	if cmd.Saved {
		filter.IsSaved = database.Ptr(true)
	}
	if cmd.FeedID != 0 {
		filter.FeedID = database.Ptr(cmd.FeedID)
	}

	entries, err := rt.entryRepo.GetBy(ctx, filter)
	if err != nil {
		return err
	}

	fmt.Fprintln(tw, "ID\tPUBLISHED\tREAD\tTITLE")
	for _, e := range entries {
		read := " "
		if e.IsRead {
			read = "x"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", e.ID, e.PublishedAt.Local().Format(time.DateTime), read, e.DisplayTitle())
	}
	return nil
}

type deleteCommand struct {
	Args struct {
		IDs []string `positional-arg-name:"ID" required:"1"`
	} `positional-args:"yes" required:"yes"`
}

func (cmd *deleteCommand) Execute(_ []string) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := signalContext()
	defer cancel()

	var failed []string
	for _, raw := range cmd.Args.IDs {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			failed = append(failed, raw)
			fmt.Fprintf(os.Stderr, "invalid id %q\n", raw)
			continue
		}

		f, err := rt.feedRepo.Delete(ctx, id)
		if err != nil {
			return err
		}
		if f == nil {
			failed = append(failed, raw)
			fmt.Fprintf(os.Stderr, "feed %d not found\n", id)
			continue
		}
		fmt.Printf("deleted  %d %s\n", f.ID, f.URL)
	}

	if len(failed) > 0 {
		return fmt.Errorf("could not delete: %s", strings.Join(failed, ", "))
	}
	return nil
}

type syncCommand struct{}

func (cmd *syncCommand) Execute(_ []string) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := signalContext()
	defer cancel()

	pass, err := rt.syncer.RunPass(ctx)
	if err != nil {
		return err
	}

	for _, fr := range pass.Feeds {
		if fr.Err != nil {
			fmt.Printf("%-9s %s: %v\n", fr.Status, fr.URL, fr.Err)
			continue
		}
		fmt.Printf("%-9s %s (+%d)\n", fr.Status, fr.URL, fr.NewEntries)
	}
	fmt.Printf("%d new entries from %d feeds in %s\n", pass.NewEntries, len(pass.Feeds), pass.Duration.Round(time.Millisecond))
	return nil
}

type serveCommand struct{}

func (cmd *serveCommand) Execute(_ []string) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := signalContext()
	defer cancel()

	scheduler := tasks.NewScheduler(rt.syncer, rt.cfg.SyncInterval, rt.cfg.AutoSync)
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(rt.feedRepo, rt.entryRepo, rt.subscriber, rt.syncer)
	server := &http.Server{
		Addr:         ":" + rt.cfg.Port,
		Handler:      api.NewServer(handler, rt.registry, rt.cfg.Debug),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", rt.cfg.Port, "auto_sync", rt.cfg.AutoSync, "sync_interval", rt.cfg.SyncInterval)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("HTTP server error: %w", err)
	}

	shutdownCtx, shutdownCancel := contextWithTimeout(30 * time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
	return nil
}

type markReadCommand struct{}

func (cmd *markReadCommand) Execute(_ []string) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := signalContext()
	defer cancel()

	n, err := rt.entryRepo.MarkAllUnreadAsRead(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%d entries marked as read\n", n)
	return nil
}

type vacuumCommand struct{}

func (cmd *vacuumCommand) Execute(_ []string) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := signalContext()
	defer cancel()

	before := fileSize(rt.cfg.DBPath)
	if err := rt.db.Vacuum(ctx); err != nil {
		return err
	}
	slog.Info("Database vacuumed", "path", rt.cfg.DBPath, "bytes_before", before, "bytes_after", fileSize(rt.cfg.DBPath))
	return nil
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

type configCommand struct {
	Edit bool `long:"edit" description:"Open the settings file in $EDITOR"`
}

func (cmd *configCommand) Execute(_ []string) error {
	setupLogging(globalOpts.Debug)

	path := cfg.SettingsPath(globalOpts)
	if !cmd.Edit {
		fmt.Println(path)
		return nil
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		return fmt.Errorf("EDITOR is not set, settings file is at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	editCmd := exec.Command(editor, path)
	editCmd.Stdin, editCmd.Stdout, editCmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	if err := editCmd.Run(); err != nil {
		return fmt.Errorf("failed to open the settings file: %w", err)
	}
	return nil
}
