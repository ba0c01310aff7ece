package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"role-keeper/model"
	"role-keeper/tasks/temprole"
	"role-keeper/utils"
	"role-keeper/utils/database"
	"text/tabwriter"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

// now is replaced in tests.
var now = time.Now

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var dbPath string

	rootCmd := &cobra.Command{
		Use:   "grantctl",
		Short: "Inspect the temporary role database",
		Long: `A read-only tool for the temporary role database.

Use it to see which grants are tracked and when they expire, for example
while the bot is stopped. It never changes roles or records.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "data/temp_roles.db", "Path to the temporary role database")

	rootCmd.AddCommand(listCmd(&dbPath))
	rootCmd.AddCommand(countCmd(&dbPath))
	return rootCmd
}

func openStore(dbPath string) (*database.TempGrantStore, func(), error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, nil, errors.Wrapf(err, "database %s", dbPath)
	}
	db, err := database.OpenTempGrantDBReadOnly(dbPath)
	if err != nil {
		return nil, nil, err
	}
	return database.NewTempGrantStore(db), func() { db.Close() }, nil
}

// listCmd creates the list subcommand
func listCmd(dbPath *string) *cobra.Command {
	var guildID, userID, within string
	var overdue bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked grants with their deadlines",
		RunE: func(cmd *cobra.Command, args []string) error {
			var window time.Duration
			if within != "" {
				d, err := utils.ParseDuration(within)
				if err != nil {
					return errors.Wrap(err, "invalid --expiring-within")
				}
				window = d
			}

			store, closeDB, err := openStore(*dbPath)
			if err != nil {
				return err
			}
			defer closeDB()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			var records []model.GrantRecord
			switch {
			case guildID != "" && userID != "":
				records, err = store.ListByMember(ctx, userID, guildID)
			case guildID != "":
				records, err = store.ListByGuild(ctx, guildID)
			default:
				records, err = store.ListAll(ctx)
			}
			if err != nil {
				return err
			}

			return printGrants(cmd.OutOrStdout(), filterGrants(records, userID, window, overdue, now()), now())
		},
	}
	cmd.Flags().StringVarP(&guildID, "guild", "g", "", "Only show grants in this guild")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "Only show grants of this user")
	cmd.Flags().StringVar(&within, "expiring-within", "", "Only show grants expiring within this duration (e.g. 6h, 1d)")
	cmd.Flags().BoolVar(&overdue, "overdue", false, "Only show grants whose deadline has passed")
	return cmd
}

// countCmd creates the count subcommand
func countCmd(dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of tracked grants",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeDB, err := openStore(*dbPath)
			if err != nil {
				return err
			}
			defer closeDB()

			n, err := store.Count(context.Background())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}

func filterGrants(records []model.GrantRecord, userID string, within time.Duration, overdue bool, at time.Time) []model.GrantRecord {
	var out []model.GrantRecord
	for _, r := range records {
		remaining := temprole.Remaining(r.StartTime, r.Duration, at)
		switch {
		case userID != "" && r.UserID != userID:
			continue
		case overdue && remaining > 0:
			continue
		case within > 0 && remaining > within:
			continue
		}
		out = append(out, r)
	}
	return out
}

func printGrants(out io.Writer, records []model.GrantRecord, at time.Time) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "GUILD\tUSER\tROLE\tDURATION\tSTARTED\tDEADLINE\tREMAINING")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.GuildID, r.UserID, r.RoleID, r.Duration,
			r.StartTime.UTC().Format(time.RFC3339),
			r.Deadline().UTC().Format(time.RFC3339),
			utils.FormatDuration(temprole.Remaining(r.StartTime, r.Duration, at)))
	}
	return w.Flush()
}
