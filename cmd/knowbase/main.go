// File path: cmd/knowbase/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/nicodishanthj/knowbase/internal/common"
	"github.com/nicodishanthj/knowbase/internal/ingest"
	"github.com/nicodishanthj/knowbase/internal/tasks"
)

var (
	dbPath        string
	knowledgeBase string
)

var rootCmd = &cobra.Command{
	Use:   "knowbase",
	Short: "Manage multi-tenant document knowledge bases",
	Long:  "Ingest documents into knowledge bases, track background processing, and manage stored files and chunk indexes.",
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Upload a document into a knowledge base",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		modeFlag, _ := cmd.Flags().GetString("mode")
		wait, _ := cmd.Flags().GetBool("wait")
		mode, err := ingest.ParseMode(modeFlag)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read upload: %w", err)
		}

		ctx := cmd.Context()
		svc, err := buildServices(ctx)
		if err != nil {
			return err
		}
		defer svc.Close()

		taskID, err := svc.ingest.Ingest(ctx, data, filepath.Base(args[0]), knowledgeBase, mode)
		if err != nil {
			return err
		}
		fmt.Printf("task %s accepted\n", taskID)
		if !wait {
			return nil
		}
		entry, err := waitForTask(ctx, svc.ingest, taskID)
		if err != nil {
			return err
		}
		return printJSON(entry)
	},
}

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List the files of a knowledge base",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := buildServices(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.Close()

		files, err := svc.ingest.ListFiles(cmd.Context(), knowledgeBase)
		if err != nil {
			return err
		}
		return printJSON(files)
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download <file-id>",
	Short: "Download a stored document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		svc, err := buildServices(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.Close()

		record, data, err := svc.ingest.Download(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if out == "" {
			out = record.Filename
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}
		fmt.Printf("wrote %s (%d bytes, %s)\n", out, len(data), record.ContentType)
		return nil
	},
}

var deleteFileCmd = &cobra.Command{
	Use:   "delete-file <file-id>",
	Short: "Delete a file and everything derived from it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := buildServices(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.Close()
		if err := svc.ingest.DeleteFile(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Println("deleted")
		return nil
	},
}

var deleteChunksCmd = &cobra.Command{
	Use:   "delete-chunks <chunk-set-id>",
	Short: "Remove a chunk-set's indexed chunks, keeping the records",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := buildServices(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.Close()
		if err := svc.ingest.DeleteChunks(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Println("chunks removed")
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate counters for a knowledge base",
	RunE: func(cmd *cobra.Command, args []string) error {
		refresh, _ := cmd.Flags().GetBool("refresh")
		svc, err := buildServices(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.Close()

		if refresh {
			if err := svc.ingest.RefreshAllStats(cmd.Context()); err != nil {
				return err
			}
		}
		stats, err := svc.ingest.Stats(cmd.Context(), knowledgeBase)
		if err != nil {
			return err
		}
		return printJSON(stats)
	},
}

var tasksCmd = &cobra.Command{
	Use:   "tasks [task-id]",
	Short: "Show recent tasks or one task's progress",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		svc, err := buildServices(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.Close()

		if len(args) == 1 {
			entry, err := svc.ingest.GetTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(entry)
		}
		entries, err := svc.ingest.ListTasks(cmd.Context(), limit)
		if err != nil {
			return err
		}
		return printJSON(entries)
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove old task records and orphaned objects",
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")
		svc, err := buildServices(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.Close()

		removedTasks, err := svc.ingest.CleanupTasks(cmd.Context(), days)
		if err != nil {
			return err
		}
		sweptObjects, err := svc.ingest.SweepOrphans(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("removed %d tasks, swept %d objects\n", removedTasks, sweptObjects)
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all data scoped to a knowledge base",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := buildServices(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.Close()
		if err := svc.ingest.ClearKnowledgeBase(cmd.Context(), knowledgeBase); err != nil {
			return err
		}
		fmt.Printf("knowledge base %s cleared\n", knowledgeBase)
		return nil
	},
}

// pollFailureLimit bounds how many consecutive lookup failures the wait
// loop tolerates before giving up and surfacing the error.
const pollFailureLimit = 5

type taskGetter func(ctx context.Context, taskID string) (*tasks.Progress, error)

func waitForTask(ctx context.Context, svc *ingest.Service, taskID string) (*tasks.Progress, error) {
	return pollTask(ctx, svc.GetTask, taskID, 250*time.Millisecond)
}

func pollTask(ctx context.Context, get taskGetter, taskID string, interval time.Duration) (*tasks.Progress, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	failures := 0
	for {
		entry, err := get(ctx, taskID)
		if err != nil {
			failures++
			if failures >= pollFailureLimit {
				return nil, fmt.Errorf("wait for task %s: %w", taskID, err)
			}
		} else {
			failures = 0
			if entry.Terminal() {
				return entry, nil
			}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func printJSON(value any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func main() {
	logger := common.Logger()
	if err := godotenv.Load(); err != nil {
		logger.Debug("knowbase: .env file not loaded", "error", err)
	}

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "path to the SQLite catalog (defaults to SQLITE_PATH or data/knowbase.db)")
	rootCmd.PersistentFlags().StringVar(&knowledgeBase, "kb", "default", "knowledge base name")

	ingestCmd.Flags().String("mode", "both", "ingest mode: chunks-only, raw-only or both")
	ingestCmd.Flags().Bool("wait", false, "wait for the background task to finish")
	downloadCmd.Flags().String("out", "", "output path (defaults to the stored filename)")
	tasksCmd.Flags().Int("limit", 20, "maximum number of tasks to list")
	cleanupCmd.Flags().Int("days", 7, "remove tasks last updated more than this many days ago")
	statsCmd.Flags().Bool("refresh", false, "recompute aggregates before reporting")

	rootCmd.AddCommand(ingestCmd, filesCmd, downloadCmd, deleteFileCmd, deleteChunksCmd, statsCmd, tasksCmd, cleanupCmd, clearCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
