package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nimburion/flowstore/pkg/config"
	"github.com/nimburion/flowstore/pkg/inmemory"
	"github.com/nimburion/flowstore/pkg/repository/document"
)

func newCacheCommand(env *environment) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Cache management commands",
	}
	cacheCmd.AddCommand(&cobra.Command{
		Use:   "clean <subject> [fields...]",
		Short: "Delete cache entries of a subject",
		Long: "Delete the cache entries matching CACHE:<subject>:<fields...>. Fields may contain\n" +
			"wildcards; without fields every entry of the subject is deleted.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields := args[1:]
			if len(fields) == 0 {
				fields = []string{inmemory.Wildcard}
			}

			s, ctx, err := env.open(cmd)
			if err != nil {
				return err
			}
			defer s.close(ctx)

			client, err := s.provider.KeyValue(ctx, config.RoleCache)
			if err != nil {
				return err
			}
			cache, err := inmemory.NewCache[document.Document](client, inmemory.NewNamespace(args[0], fields...), s.keyValueOptions(config.RoleCache)...)
			if err != nil {
				return err
			}
			deleted, err := cache.Delete(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d key(s) matching %s\n", deleted, cache.Key())
			return nil
		},
	})
	return cacheCmd
}

func newStateCommand(env *environment) *cobra.Command {
	stateCmd := &cobra.Command{
		Use:   "state",
		Short: "State store commands",
	}

	var names []string
	getCmd := &cobra.Command{
		Use:   "get <subject> [fields...]",
		Short: "Show the state hash stored under STATE:<subject>:<fields...>",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, ctx, err := env.open(cmd)
			if err != nil {
				return err
			}
			defer s.close(ctx)

			state, err := openState(ctx, s, args)
			if err != nil {
				return err
			}
			if len(names) > 0 {
				fields, err := state.GetFields(ctx, names...)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), fields)
			}
			value, err := state.GetValue(ctx)
			if err != nil {
				return err
			}
			if value == nil {
				return fmt.Errorf("state %s not found", state.Key())
			}
			return writeJSON(cmd.OutOrStdout(), value)
		},
	}
	getCmd.Flags().StringSliceVarP(&names, "field", "f", nil, "hash fields to read (default: all)")

	deleteCmd := &cobra.Command{
		Use:   "delete <subject> [fields...]",
		Short: "Delete the state entries matching STATE:<subject>:<fields...>",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, ctx, err := env.open(cmd)
			if err != nil {
				return err
			}
			defer s.close(ctx)

			state, err := openState(ctx, s, args)
			if err != nil {
				return err
			}
			deleted, err := state.Delete(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d key(s) matching %s\n", deleted, state.Key())
			return nil
		},
	}

	stateCmd.AddCommand(getCmd, deleteCmd)
	return stateCmd
}

func openState(ctx context.Context, s *session, args []string) (*inmemory.State, error) {
	client, err := s.provider.KeyValue(ctx, config.RoleState)
	if err != nil {
		return nil, err
	}
	return inmemory.NewState(client, inmemory.NewNamespace(args[0], args[1:]...), s.keyValueOptions(config.RoleState)...)
}
