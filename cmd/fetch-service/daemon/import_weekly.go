package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/webcompat/ochazuke/internal/database"
	"github.com/webcompat/ochazuke/internal/github"
)

// weeklyExport is the historical weekly backlog document, as exported by the
// old reporting tooling. Timestamps are the Mondays the counts belong to.
type weeklyExport struct {
	Timeline []struct {
		Count     int    `json:"count"`
		Timestamp string `json:"timestamp"`
	} `json:"timeline"`
}

func installImportWeeklyCmd(app *App) {
	importCmd := &cobra.Command{
		Use:   "import-weekly [url-or-path]",
		Short: "Import historical weekly totals",
		Long: `Import historical weekly issue totals into the database.
The source is a URL or a local file holding a JSON document with a "timeline"
list of {"count", "timestamp"} entries, one per Monday.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errors.New("import-weekly command accepts exactly one argument")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			app.cmd.SilenceUsage = true

			slog.Info("Running import-weekly command", "source", args[0])
			return app.importWeeklyRun(cmd.Context(), args[0])
		},
	}
	app.cmd.AddCommand(importCmd)
}

func (a App) importWeeklyRun(ctx context.Context, source string) error {
	data, err := readWeeklySource(ctx, source)
	if err != nil {
		return fmt.Errorf("failed to read weekly totals from %s: %v", source, err)
	}

	var export weeklyExport
	if err := json.Unmarshal(data, &export); err != nil {
		return fmt.Errorf("failed to parse weekly totals document: %v", err)
	}
	if len(export.Timeline) == 0 {
		return errors.New("weekly totals document has an empty timeline")
	}

	db, err := database.Connect(ctx, a.config.DBconfig)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("failed to close database connection", "error", err)
		}
	}()

	imported := 0
	for _, entry := range export.Timeline {
		monday, err := parseWeeklyTimestamp(entry.Timestamp)
		if err != nil {
			slog.Warn("Skipping weekly entry with bad timestamp", "timestamp", entry.Timestamp, "error", err)
			continue
		}
		if err := db.AddWeeklyTotal(ctx, monday, entry.Count); err != nil {
			slog.Warn("Failed to store weekly total", "monday", monday, "error", err)
			continue
		}
		imported++
	}

	slog.Info("Imported weekly totals", "imported", imported, "total", len(export.Timeline))
	if imported == 0 {
		return errors.New("no weekly totals could be imported")
	}
	return nil
}

func readWeeklySource(ctx context.Context, source string) ([]byte, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return github.New().Fetch(ctx, source)
	}
	return os.ReadFile(source)
}

func parseWeeklyTimestamp(ts string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, ts); err == nil {
			return t.UTC().Truncate(24 * time.Hour), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp format %q", ts)
}
