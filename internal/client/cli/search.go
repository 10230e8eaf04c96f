package cli

import (
	"context"
	"errors"
	"sort"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/revsearch/internal/client/models"
	"github.com/dmitrijs2005/revsearch/internal/client/orchestrator"
)

func (r *root) searchCmd() *cobra.Command {
	var noRetry bool
	cmd := &cobra.Command{
		Use:   "search <image>",
		Short: "Search the web for an image",
		Args:  cobra.ExactArgs(1),
		RunE: r.withApp(func(ctx context.Context, a *App, args []string) error {
			return runSearch(ctx, a, args[0], !noRetry)
		}),
	}
	cmd.Flags().BoolVar(&noRetry, "no-retry", false, "do not offer to retry after a network failure")
	return cmd
}

func runSearch(ctx context.Context, a *App, path string, offerRetry bool) error {
	image, err := readImage(path)
	if err != nil {
		return err
	}

	if !a.ent.IsEntitled() {
		// the cached flag may be stale on a fresh install
		a.refreshEntitlement(ctx)
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go a.ent.Watch(watchCtx, a.cfg.Entitlement.RefreshInterval)

	indicator := NewProgressIndicator(a.out)
	a.search.Subscribe(indicator)
	defer indicator.Stop()

	for {
		res, err := searchOnce(ctx, a, image, indicator)
		if err == nil {
			printResult(a, res)
			return nil
		}

		a.log.Info(ctx, "search did not complete", "error", err)
		switch classify(err) {
		case kindNotEntitled:
			a.println(msgNotEntitled)
			printPlans(a, a.ent.Offers())
			return errReported
		case kindNetwork:
			a.println(msgNetwork)
			if offerRetry && ctx.Err() == nil && Confirm(a.in, "Try again?", a.out) {
				continue
			}
			return errReported
		case kindCancelled:
			a.println(msgCancelled)
			return errReported
		default:
			a.println(msgGeneric)
			return errReported
		}
	}
}

func searchOnce(ctx context.Context, a *App, image []byte, indicator *ProgressIndicator) (orchestrator.Result, error) {
	if err := a.search.Start(ctx, image); err != nil {
		return orchestrator.Result{}, err
	}
	res, err := a.search.Wait(ctx)
	indicator.Stop()
	if errors.Is(err, context.Canceled) {
		// the search is cancelled with ctx; wait for it to settle
		res, err = a.search.Wait(context.WithoutCancel(ctx))
	}
	return res, err
}

func printResult(a *App, res orchestrator.Result) {
	if res.SaveErr != nil {
		a.println(msgNotSaved)
	}
	if res.Record != nil {
		a.printf("Saved as %s\n", res.Record.ID)
	}
	if res.Task == nil {
		return
	}
	printLinks(a, res.Task.Engines, res.Task.Links)
}

func printLinks(a *App, engines map[string]models.EngineStatus, links map[string]string) {
	names := make([]string, 0, len(engines))
	for name := range engines {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		link := links[name]
		if link == "" {
			link = "-"
		}
		a.printf("  %-8s %-9s %s\n", name, engines[name], link)
	}
}
