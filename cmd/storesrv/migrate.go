package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/storeforge/storeforge/internal/storesrv/config"
	"github.com/storeforge/storeforge/internal/storesrv/db"
	"github.com/storeforge/storeforge/internal/storesrv/schema"
)

var migrateTenants bool

func init() {
	migrateCmd.Flags().BoolVar(&migrateTenants, "tenants", false, "also migrate every active tenant schema")
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply registry migrations, optionally rolling every tenant schema forward",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadConfig(cfgPath); err != nil {
			return fmt.Errorf("loading config file: %w", err)
		}
		db.Init()

		ctx := log.Logger.WithContext(context.Background())
		ctx, err := db.ConnCtx(ctx)
		if err != nil {
			return fmt.Errorf("database connection: %w", err)
		}
		defer db.DB(ctx).Close(ctx)

		registry := schema.NewManager(
			schema.NewPgExecutor(db.UowConn{}),
			schema.NewDirSource(config.Config().Migrations.RegistryDir),
			"registry",
		)
		if err := registry.Migrate(ctx, "public"); err != nil {
			return fmt.Errorf("registry migration: %w", err)
		}
		log.Ctx(ctx).Info().Msg("registry schema migrated")

		if !migrateTenants {
			return nil
		}

		tenants, terr := db.DB(ctx).ListActive(ctx)
		if terr != nil {
			return fmt.Errorf("listing tenants: %w", terr)
		}
		mgr := schema.NewManager(
			schema.NewPgExecutor(db.UowConn{}),
			schema.NewDirSource(config.Config().Migrations.TenantDir),
			"tenant",
		)
		for _, t := range tenants {
			if err := mgr.Migrate(ctx, t.SchemaName); err != nil {
				return fmt.Errorf("migrating %s: %w", t.SchemaName, err)
			}
			log.Ctx(ctx).Info().Str("schema", t.SchemaName).Msg("tenant schema migrated")
		}
		return nil
	},
}
