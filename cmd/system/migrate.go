package system

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Alijeyrad/teleconsult/config"
	"github.com/Alijeyrad/teleconsult/internal/repo"
	"github.com/Alijeyrad/teleconsult/pkg/database"
)

func NewMigrateCommand() *cobra.Command {
	var (
		down   bool
		limit  int
		status bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, err := cmd.Root().PersistentFlags().GetString("config")
			if err != nil {
				return fmt.Errorf("failed to get config flag: %w", err)
			}
			cfg, err := config.ReadConfig(filepath.Dir(cfgPath))
			if err != nil {
				return fmt.Errorf("failed to read config: %w", err)
			}

			db, err := database.NewFromCentral(cfg.Database)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()

			if status {
				pending, err := database.PendingMigrations(db.GetConnection(), repo.Migrations())
				if err != nil {
					return fmt.Errorf("failed to plan migrations: %w", err)
				}
				fmt.Printf("%d pending migration(s)\n", len(pending))
				for _, id := range pending {
					fmt.Println("  " + id)
				}
				return nil
			}

			if down && limit == 0 {
				// Never roll back everything by accident.
				limit = 1
			}

			n, err := database.Migrate(db.GetConnection(), repo.Migrations(), down, limit)
			if err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}

			fmt.Printf("Migrations executed successfully (%d applied).\n", n)
			return nil
		},
	}

	cmd.Flags().BoolVar(&down, "down", false, "Roll migrations back instead of applying them")
	cmd.Flags().IntVar(&limit, "max", 0, "Maximum number of migrations to run (0 = all; --down defaults to 1)")
	cmd.Flags().BoolVar(&status, "status", false, "List pending migrations without applying them")

	return cmd
}
