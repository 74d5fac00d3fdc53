package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/udisondev/cultivation/internal/data"
	"github.com/udisondev/cultivation/internal/db"
	"github.com/udisondev/cultivation/internal/game/cultivation"
)

type runFunc func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:           "cultivationctl",
		Short:         "Operate cultivation realms, tribulations and rollbacks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default $CULTIVATION_CONFIG or "+DefaultConfigPath+")")

	// withApp загружает конфиг, подключается к БД и собирает сервис.
	withApp := func(fn runFunc) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			a, err := open(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()
			return fn(ctx, cmd, a, args)
		}
	}

	root.AddCommand(
		newMigrateCmd(&cfgPath),
		newCreateCmd(withApp),
		newStatusCmd(withApp),
		newGrantExpCmd(withApp),
		newGrantItemCmd(withApp),
		newBreakthroughCmd(withApp),
		newTribulationCmd(withApp),
		newHistoryCmd(withApp),
		newCandidatesCmd(withApp),
		newRollbackCmd(withApp),
	)
	return root
}

func newMigrateCmd(cfgPath *string) *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations and seed the realm ladder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			if err := db.RunMigrations(ctx, cfg.Database.DSN()); err != nil {
				return err
			}
			a, err := connect(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			version, err := db.MigrationVersion(ctx, a.db.Pool())
			if err != nil {
				return err
			}
			if seed {
				if err := a.store.Realms().Seed(ctx, data.DefaultRealmLevels()); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
			return nil
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", true, "upsert the default realm ladder")
	return cmd
}

func newCreateCmd(withApp func(runFunc) func(*cobra.Command, []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   "create <user-id> <name>",
		Short: "Create a character on the first realm",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			userID, err := parseID(args[0])
			if err != nil {
				return err
			}
			id, err := a.svc.CreateCharacter(ctx, userID, args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "character %d created\n", id)
			return nil
		}),
	}
}

func newStatusCmd(withApp func(runFunc) func(*cobra.Command, []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   "status <character-id>...",
		Short: "Show realm, progress and gate readiness",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			statuses := make([]cultivation.ProgressionStatus, len(ids))
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(8)
			for i, id := range ids {
				g.Go(func() error {
					st, err := a.svc.GetProgressionStatus(gctx, id)
					if err != nil {
						return fmt.Errorf("character %d: %w", id, err)
					}
					statuses[i] = st
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
			for _, st := range statuses {
				printStatus(cmd.OutOrStdout(), st)
			}
			return nil
		}),
	}
}

func newGrantExpCmd(withApp func(runFunc) func(*cobra.Command, []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   "grant-exp <character-id> <amount>",
		Short: "Add experience and run breakthroughs",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			amount, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[1], err)
			}
			res, err := a.svc.GrantExperience(ctx, id, amount)
			if err != nil {
				return err
			}
			printBreakthrough(cmd.OutOrStdout(), res)
			return nil
		}),
	}
}

func newGrantItemCmd(withApp func(runFunc) func(*cobra.Command, []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   "grant-item <character-id> <item-id> [quantity]",
		Short: "Put items into a character's inventory",
		Args:  cobra.RangeArgs(2, 3),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			itemID, err := strconv.ParseInt(args[1], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid item id %q: %w", args[1], err)
			}
			qty := int64(1)
			if len(args) == 3 {
				if qty, err = strconv.ParseInt(args[2], 10, 64); err != nil {
					return fmt.Errorf("invalid quantity %q: %w", args[2], err)
				}
			}
			if err := a.svc.GrantItem(ctx, id, int32(itemID), qty); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "granted item %d x%d to character %d\n", itemID, qty, id)
			return nil
		}),
	}
}

func newBreakthroughCmd(withApp func(runFunc) func(*cobra.Command, []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   "breakthrough <character-id>",
		Short: "Run breakthroughs on banked experience",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			res, err := a.svc.AttemptBreakthrough(ctx, id)
			if err != nil {
				return err
			}
			printBreakthrough(cmd.OutOrStdout(), res)
			return nil
		}),
	}
}

func newTribulationCmd(withApp func(runFunc) func(*cobra.Command, []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   "tribulation <character-id> <gate-id>",
		Short: "Face a tribulation gate explicitly",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			res, err := a.svc.AttemptTribulation(ctx, id, args[1])
			if err != nil {
				return err
			}
			printTribulation(cmd.OutOrStdout(), res)
			return nil
		}),
	}
}

func newHistoryCmd(withApp func(runFunc) func(*cobra.Command, []string) error) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <character-id>",
		Short: "List tribulation attempts of a character",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			recs, err := a.svc.TribulationHistory(ctx, id, limit)
			if err != nil {
				return err
			}
			printRecords(cmd.OutOrStdout(), recs)
			return nil
		}),
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", cultivation.DefaultListLimit, "maximum records")
	return cmd
}

func newCandidatesCmd(withApp func(runFunc) func(*cobra.Command, []string) error) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "candidates",
		Short: "List deaths that can still be rolled back",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			recs, err := a.svc.ListRollbackCandidates(ctx, limit)
			if err != nil {
				return err
			}
			printRecords(cmd.OutOrStdout(), recs)
			return nil
		}),
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", cultivation.DefaultListLimit, "maximum records")
	return cmd
}

func newRollbackCmd(withApp func(runFunc) func(*cobra.Command, []string) error) *cobra.Command {
	var operator string
	cmd := &cobra.Command{
		Use:   "rollback <record-id>",
		Short: "Restore a character killed by a tribulation",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			recordID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid record id %q: %w", args[0], err)
			}
			res, err := a.svc.AdminRollback(ctx, recordID, operator)
			if err != nil {
				return err
			}
			printRollback(cmd.OutOrStdout(), res)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&operator, "operator", "o", "", "operator identity recorded on the rollback")
	_ = cmd.MarkFlagRequired("operator")
	return cmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, s := range args {
		id, err := parseID(s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
