package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mercatto/authd/internal/app"
	"github.com/mercatto/authd/internal/config"
	"github.com/mercatto/authd/internal/observability/logger"
	"github.com/mercatto/authd/internal/security/password"
	"github.com/mercatto/authd/internal/store/pg"
	migrations "github.com/mercatto/authd/migrations/postgres"
)

func main() {
	// .env (opcional) - prioridad .env.dev > .env
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.dev")

	var configPath string

	root := &cobra.Command{
		Use:   "authd",
		Short: "Servicio de autenticación e identidad social",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path del archivo de configuración")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Levanta el servidor HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel, ServiceName: "authd"})
			defer logger.L().Sync()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			return a.Serve(ctx)
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Aplica las migraciones pendientes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel})
			defer logger.L().Sync()

			ctx := context.Background()
			store, err := pg.New(ctx, pg.Config{DSN: cfg.Storage.DSN})
			if err != nil {
				return err
			}
			defer store.Close()

			applied, err := pg.NewMigrator(migrations.FS, migrations.Dir).Run(ctx, store)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Println("no pending migrations")
				return nil
			}
			fmt.Printf("applied migrations: %v\n", applied)
			return nil
		},
	}

	var adminEmail, adminPassword string
	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Crea roles base y, opcionalmente, una cuenta admin",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel})
			defer logger.L().Sync()

			ctx := context.Background()
			store, err := pg.New(ctx, pg.Config{DSN: cfg.Storage.DSN})
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.SeedRoles(ctx); err != nil {
				return err
			}
			fmt.Println("roles seeded")

			if adminEmail != "" {
				if adminPassword == "" {
					return fmt.Errorf("--admin-password is required with --admin-email")
				}
				hash, err := password.Hash(password.Default, adminPassword)
				if err != nil {
					return err
				}
				if err := store.SeedAdmin(ctx, adminEmail, hash); err != nil {
					return err
				}
				fmt.Printf("admin %s seeded\n", adminEmail)
			}
			return nil
		},
	}
	seedCmd.Flags().StringVar(&adminEmail, "admin-email", "", "email de la cuenta admin a crear")
	seedCmd.Flags().StringVar(&adminPassword, "admin-password", "", "password de la cuenta admin a crear")

	root.AddCommand(serveCmd, migrateCmd, seedCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
