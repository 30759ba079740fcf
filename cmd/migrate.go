package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tonoapp/tono-server/config"
	"github.com/tonoapp/tono-server/database"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "migrate",
		Short:        "Apply pending database migrations and exit",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			db, err := database.ConnectDB(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := database.RunMigrations(db); err != nil {
				return err
			}

			fmt.Println("migrations applied")
			return nil
		},
	}
}
