package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/revsearch/internal/client/export"
	"github.com/dmitrijs2005/revsearch/internal/client/history"
	"github.com/dmitrijs2005/revsearch/internal/filex"
)

func (r *root) historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse and manage saved searches",
	}

	var imageOut string
	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one saved search",
		Args:  cobra.ExactArgs(1),
		RunE: r.withApp(func(ctx context.Context, a *App, args []string) error {
			return runHistoryShow(ctx, a, args[0], imageOut)
		}),
	}
	show.Flags().StringVarP(&imageOut, "image", "o", "", "also write the source image to this file")

	var engines []string
	exp := &cobra.Command{
		Use:   "export <file.xlsx>",
		Short: "Export history to an Excel workbook",
		Args:  cobra.ExactArgs(1),
		RunE: r.withApp(func(ctx context.Context, a *App, args []string) error {
			if len(engines) == 0 {
				engines = a.cfg.Search.Engines
			}
			return runHistoryExport(ctx, a, args[0], engines)
		}),
	}
	exp.Flags().StringSliceVar(&engines, "engines", nil, "engine columns, in order (defaults to the configured engines)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List saved searches, most recent first",
			Args:  cobra.NoArgs,
			RunE:  r.withApp(func(ctx context.Context, a *App, _ []string) error { return runHistoryList(ctx, a) }),
		},
		show,
		exp,
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete a saved search",
			Args:  cobra.ExactArgs(1),
			RunE: r.withApp(func(ctx context.Context, a *App, args []string) error {
				return runHistoryDelete(ctx, a, args[0])
			}),
		},
		&cobra.Command{
			Use:   "prune <keep>",
			Short: "Delete all but the newest <keep> searches",
			Args:  cobra.ExactArgs(1),
			RunE: r.withApp(func(ctx context.Context, a *App, args []string) error {
				keep, err := strconv.Atoi(args[0])
				if err != nil || keep < 0 {
					return fmt.Errorf("keep must be a non-negative number, got %q", args[0])
				}
				return runHistoryPrune(ctx, a, keep)
			}),
		},
	)
	return cmd
}

func runHistoryList(ctx context.Context, a *App) error {
	records, err := a.history.LoadAll(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		a.println(msgNoHistory)
		return nil
	}
	for _, rec := range records {
		done := 0
		if rec.Result != nil {
			for _, st := range rec.Result.Engines {
				if st == "completed" {
					done++
				}
			}
		}
		a.printf("%s  %s  %d engines  %s\n",
			rec.CapturedAt.Local().Format("2006-01-02 15:04"), rec.ID, done, rec.ArtifactKey)
	}
	return nil
}

func runHistoryShow(ctx context.Context, a *App, id, imageOut string) error {
	rec, err := a.history.Get(ctx, id)
	if errors.Is(err, history.ErrNotFound) {
		return fmt.Errorf("no saved search with id %s", id)
	}
	if err != nil {
		return err
	}

	a.printf("ID:       %s\n", rec.ID)
	a.printf("Captured: %s\n", rec.CapturedAt.Local().Format("2006-01-02 15:04:05"))
	a.printf("Image:    %s\n", rec.ArtifactKey)
	if rec.Result != nil {
		a.printf("Task:     %s\n", rec.Result.TaskID)
		printLinks(a, rec.Result.Engines, rec.Result.Links)
	}

	if imageOut == "" {
		return nil
	}
	data, ok := a.history.LoadImage(ctx, rec.ArtifactKey)
	if !ok {
		a.println("The source image is no longer available.")
		return nil
	}
	if err := filex.WriteFileAtomic(imageOut, data, 0o644); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	a.printf("Image written to %s\n", imageOut)
	return nil
}

func runHistoryExport(ctx context.Context, a *App, path string, engines []string) error {
	records, err := a.history.LoadAll(ctx)
	if err != nil {
		return err
	}
	data, err := export.HistoryXLSX(records, engines)
	if err != nil {
		return err
	}
	if err := filex.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	a.printf("Exported %d searches to %s\n", len(records), path)
	return nil
}

func runHistoryDelete(ctx context.Context, a *App, id string) error {
	err := a.history.Delete(ctx, id)
	if errors.Is(err, history.ErrNotFound) {
		return fmt.Errorf("no saved search with id %s", id)
	}
	if err != nil {
		return err
	}
	a.printf("Deleted %s\n", id)
	return nil
}

func runHistoryPrune(ctx context.Context, a *App, keep int) error {
	n, err := a.history.Prune(ctx, keep)
	if err != nil {
		return err
	}
	a.printf("Removed %d searches\n", n)
	return nil
}

