package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/revsearch/internal/client/billing"
	"github.com/dmitrijs2005/revsearch/internal/client/entitlement"
	"github.com/dmitrijs2005/revsearch/internal/client/models"
)

func (r *root) plansCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plans",
		Short: "List subscription plans",
		Args:  cobra.NoArgs,
		RunE: r.withApp(func(ctx context.Context, a *App, _ []string) error {
			offers, err := a.ent.RefreshCatalog(ctx)
			if err != nil && len(offers) == 0 {
				if classify(err) == kindNetwork {
					a.println(msgNetwork)
					return errReported
				}
				return err
			}
			printPlans(a, offers)
			return nil
		}),
	}
}

func (r *root) subscribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "subscribe <offer-id|week|year>",
		Short: "Buy a subscription",
		Args:  cobra.ExactArgs(1),
		RunE: r.withApp(func(ctx context.Context, a *App, args []string) error {
			return runSubscribe(ctx, a, args[0])
		}),
	}
}

func (r *root) restoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Restore a previous purchase",
		Args:  cobra.NoArgs,
		RunE: r.withApp(func(ctx context.Context, a *App, _ []string) error {
			subscribed, err := a.ent.Restore(ctx)
			if err != nil {
				if classify(err) == kindNetwork {
					a.println(msgNetwork)
					return errReported
				}
				return err
			}
			if subscribed {
				a.println("Subscription restored.")
			} else {
				a.println("No active subscription found.")
			}
			return nil
		}),
	}
}

func (r *root) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show registration and subscription status",
		Args:  cobra.NoArgs,
		RunE: r.withApp(func(ctx context.Context, a *App, _ []string) error {
			a.refreshEntitlement(ctx)

			if uid, err := a.identity.UserID(ctx); err == nil {
				a.printf("User:         %s\n", uid)
			} else {
				a.println("User:         not registered")
			}
			a.printf("Subscription: %s", a.ent.State())
			if t := a.ent.CheckedAt(); !t.IsZero() {
				a.printf(" (checked %s)", t.Local().Format("2006-01-02 15:04"))
			}
			a.println()
			return nil
		}),
	}
}

func runSubscribe(ctx context.Context, a *App, ref string) error {
	if len(a.ent.Offers()) == 0 {
		if _, err := a.ent.RefreshCatalog(ctx); err != nil {
			a.log.Debug(ctx, "catalog unavailable before purchase", "error", err)
		}
	}

	err := a.ent.Purchase(ctx, ref)
	if err == nil {
		a.println("Subscribed. Happy searching!")
		return nil
	}

	var pe *billing.PurchaseError
	switch {
	case errors.Is(err, entitlement.ErrUnknownOffer):
		a.printf("Unknown plan %q. Available plans:\n", ref)
		printPlans(a, a.ent.Offers())
	case errors.As(err, &pe) && pe.Reason == billing.ReasonUserCancelled:
		a.println("Purchase cancelled.")
	case errors.As(err, &pe) && pe.Reason == billing.ReasonPaymentDeclined:
		a.println("Payment declined. No charge was made.")
	case classify(err) == kindNetwork:
		a.println(msgNetwork)
	default:
		return fmt.Errorf("purchase: %w", err)
	}
	return errReported
}

func printPlans(a *App, offers []models.Offer) {
	if len(offers) == 0 {
		a.println("No plans available right now.")
		return
	}

	weekly, hasWeek := entitlement.SelectOffer(offers, models.PeriodWeek)
	yearly, hasYear := entitlement.SelectOffer(offers, models.PeriodYear)

	for _, o := range offers {
		line := fmt.Sprintf("  %-24s %-6s %s", o.ID, o.Period, o.DisplayPrice)
		if o.Period == models.PeriodYear {
			line += fmt.Sprintf("  (%s/week)", o.WeeklyDisplay())
			if hasWeek && hasYear && o.ID == yearly.ID {
				if s := entitlement.Savings(weekly, yearly); s > 0 {
					line += fmt.Sprintf("  save %d%%", s)
				}
			}
		}
		a.println(line)
	}
}
