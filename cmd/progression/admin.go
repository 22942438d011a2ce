package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aimd54/shelf-progression/internal/models"
)

var (
	rotateForce   bool
	refreshPeriod string
	seedFile      string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database schema migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(a *app) error {
			if err := a.migrate(); err != nil {
				return err
			}
			a.log.Info().Str("driver", a.cfg.Database.Driver).Msg("Migrations applied")
			return nil
		})
	},
}

var rotateSeasonCmd = &cobra.Command{
	Use:   "rotate-season",
	Short: "Settle the oldest ended season, or the running one with --force",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(a *app) error {
			result, err := a.svc.RotateSeason(cmd.Context(), rotateForce)
			if err != nil {
				return err
			}
			if result.AlreadyIssued {
				fmt.Fprintf(cmd.OutOrStdout(), "season %s was already settled\n", result.Season.Name)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "settled season %s: %d rewards, %d users reset\n",
				result.Season.Name, len(result.Rewards), result.UsersReset)
			if result.NextSeason != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "active season is now %s\n", result.NextSeason.Name)
			}
			return nil
		})
	},
}

var refreshQuestsCmd = &cobra.Command{
	Use:   "refresh-quests",
	Short: "Expire and reassign quests for every active user",
	RunE: func(cmd *cobra.Command, _ []string) error {
		period := models.QuestPeriod(refreshPeriod)
		if !period.Valid() {
			return fmt.Errorf("invalid period %q (valid: daily, weekly)", refreshPeriod)
		}
		return withApp(cmd, func(a *app) error {
			report, err := a.svc.RefreshQuests(cmd.Context(), period)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s refresh: %d users, %d quests assigned, %d failed, %d expired removed\n",
				report.Period, report.Users, report.Assigned, report.Failed, report.Purged)
			return nil
		})
	},
}

var seedQuestsCmd = &cobra.Command{
	Use:   "seed-quests",
	Short: "Create or update quest definitions from a YAML file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(a *app) error {
			path := seedFile
			if path == "" {
				path = a.cfg.Quests.SeedFile
			}
			if path == "" {
				return fmt.Errorf("no quest file given; use --file or quests.seed_file")
			}
			n, err := a.seedQuests(cmd.Context(), path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d quests from %s\n", n, path)
			return nil
		})
	},
}

func init() {
	rotateSeasonCmd.Flags().BoolVar(&rotateForce, "force", false, "Settle the running season even if it has not ended")
	refreshQuestsCmd.Flags().StringVar(&refreshPeriod, "period", string(models.PeriodDaily), "Quest period to refresh (daily or weekly)")
	seedQuestsCmd.Flags().StringVarP(&seedFile, "file", "f", "", "Quest definitions file")

	rootCmd.AddCommand(migrateCmd, rotateSeasonCmd, refreshQuestsCmd, seedQuestsCmd)
}

// withApp loads the configuration, builds the app and runs fn against it.
func withApp(cmd *cobra.Command, fn func(a *app) error) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
