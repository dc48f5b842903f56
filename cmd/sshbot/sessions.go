package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/m3rciful/sshbot/internal/app"
	"github.com/m3rciful/sshbot/internal/sessionstore"
)

func newSessionsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect persisted SSH sessions",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List persisted sessions (credentials are never shown)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withStore(cmd, opts, func(store sessionstore.Store) error {
					records, err := store.LoadAll(cmd.Context())
					if err != nil {
						return err
					}
					if len(records) == 0 {
						fmt.Fprintln(cmd.OutOrStdout(), "no persisted sessions")
						return nil
					}
					sessionstore.WriteTable(cmd.OutOrStdout(), records, time.Now())
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "purge [user-id]",
			Short: "Delete one persisted session, or all of them",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				var ids []int64
				if len(args) == 1 {
					id, err := strconv.ParseInt(args[0], 10, 64)
					if err != nil || id <= 0 {
						return fmt.Errorf("invalid user id %q", args[0])
					}
					ids = append(ids, id)
				}
				return withStore(cmd, opts, func(store sessionstore.Store) error {
					if ids == nil {
						records, err := store.LoadAll(cmd.Context())
						if err != nil {
							return err
						}
						for _, r := range records {
							ids = append(ids, r.UserID)
						}
					}
					for _, id := range ids {
						if err := store.Delete(cmd.Context(), id); err != nil {
							return err
						}
					}
					fmt.Fprintf(cmd.OutOrStdout(), "purged %d session(s)\n", len(ids))
					return nil
				})
			},
		},
	)
	return cmd
}

func withStore(cmd *cobra.Command, opts *rootOptions, fn func(sessionstore.Store) error) error {
	ctx := cmd.Context()
	cfg, done, err := loadConfig(ctx, opts)
	if err != nil {
		return err
	}
	defer done()

	store, err := app.OpenConfiguredStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}
