package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nimburion/flowstore/pkg/config"
	"github.com/nimburion/flowstore/pkg/health"
)

func newHealthcheckCommand(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "healthcheck",
		Short: "Check connectivity to the storage, cache and state stores",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, ctx, err := env.open(cmd)
			if err != nil {
				return err
			}
			defer s.close(ctx)

			registry := health.NewRegistry()
			storage := strings.ToLower(config.RoleStorage)
			if _, err := s.provider.Collection(ctx, "", "healthcheck"); err != nil {
				registry.Register(health.NewFailedChecker(storage, err))
			} else if s.cfg.Storage.IsMemory() {
				registry.Register(health.NewPingChecker(storage))
			}
			for _, role := range []string{config.RoleCache, config.RoleState} {
				if _, err := s.provider.KeyValue(ctx, role); err != nil {
					registry.Register(health.NewFailedChecker(strings.ToLower(role), err))
				}
			}
			registry.Register(s.provider.HealthCheckers()...)

			result := registry.Check(ctx)
			out := cmd.OutOrStdout()
			for _, check := range result.Checks {
				detail := check.Message
				if check.Error != "" {
					detail = check.Error
				}
				fmt.Fprintf(out, "%-8s %-9s %s\n", check.Name, check.Status, detail)
			}
			fmt.Fprintf(out, "overall  %s\n", result.Status)

			if !result.IsHealthy() {
				s.log.WithContext(ctx).Error("health check failed", "status", result.Status)
				return fmt.Errorf("dependencies are %s", result.Status)
			}
			return nil
		},
	}
}
