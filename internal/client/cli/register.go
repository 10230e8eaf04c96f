package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func (r *root) registerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register",
		Short: "Register this device with the search backend",
		Args:  cobra.NoArgs,
		RunE:  r.withApp(runRegister),
	}
}

func runRegister(ctx context.Context, a *App, _ []string) error {
	id, err := a.identity.Register(ctx)
	if err != nil {
		a.log.Error(ctx, "registration failed", "error", err)
		if classify(err) == kindNetwork {
			a.println(msgNetwork)
			return errReported
		}
		return fmt.Errorf("register: %w", err)
	}
	a.printf("Registered. Device %s, user %s\n", id.DeviceID, id.UserID)
	return nil
}
