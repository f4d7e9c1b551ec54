package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/storeforge/storeforge/internal/storesrv/config"
	"github.com/storeforge/storeforge/internal/storesrv/db"
	"github.com/storeforge/storeforge/internal/storesrv/provision"
	"github.com/storeforge/storeforge/internal/storesrv/schema"
)

var provisionReq provision.OnboardingRequest

func init() {
	provisionCmd.Flags().StringVar(&provisionReq.TenantKey, "key", "", "tenant key")
	provisionCmd.Flags().StringVar(&provisionReq.Subdomain, "subdomain", "", "storefront subdomain")
	provisionCmd.Flags().StringVar(&provisionReq.Name, "name", "", "store display name")
	provisionCmd.Flags().StringVar(&provisionReq.AdminEmail, "admin-email", "", "store admin email")
	provisionCmd.Flags().StringVar(&provisionReq.Plan, "plan", "", "plan (defaults to configured default)")
	provisionCmd.MarkFlagRequired("key")
	provisionCmd.MarkFlagRequired("subdomain")
	provisionCmd.MarkFlagRequired("name")
	provisionCmd.MarkFlagRequired("admin-email")
}

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Onboard a new store from the command line",
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

		cfg := config.Config()
		o := provision.NewOrchestrator(
			schema.NewManager(
				schema.NewPgExecutor(db.UowConn{}),
				schema.NewDirSource(cfg.Migrations.TenantDir),
				"tenant",
			),
			provision.NewIdentityProvider(),
			cfg.Defaults,
			cfg.Identity.AdminRole,
		)

		tenant, perr := o.Provision(ctx, db.DB(ctx), &provisionReq)
		if perr != nil {
			return fmt.Errorf("provisioning store: %w", perr)
		}

		fmt.Printf("store %s provisioned (schema %s, status %s)\n", tenant.Key, tenant.SchemaName, tenant.Status)
		return nil
	},
}
