package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pCruvinel/Minervav2-sub003/internal/api/middleware"
	"github.com/pCruvinel/Minervav2-sub003/internal/app"
	"github.com/pCruvinel/Minervav2-sub003/internal/app/modules"
	"github.com/pCruvinel/Minervav2-sub003/internal/domain"
	"github.com/pCruvinel/Minervav2-sub003/internal/infrastructure"
	"github.com/pCruvinel/Minervav2-sub003/internal/workflow"
)

func newMigrateCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the engine schema and River migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			db, err := infrastructure.NewDatabaseClients(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := infrastructure.Migrate(cmd.Context(), db.Pool); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

type actorFlags struct {
	id     string
	cargo  string
	sector string
}

func (f *actorFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.id, "id", "", "User id (required)")
	cmd.Flags().StringVar(&f.cargo, "cargo", "", "Cargo, e.g. coord_obras (required)")
	cmd.Flags().StringVar(&f.sector, "sector", "", "Sector: administrativo, assessoria or obras")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("cargo")
}

func (f *actorFlags) actor() domain.Actor {
	return domain.Actor{ID: f.id, Cargo: domain.Cargo(f.cargo), Sector: domain.Sector(f.sector)}
}

func newTokenCmd(opts *cliOptions) *cobra.Command {
	var (
		who actorFlags
		ttl time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for an actor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if ttl <= 0 {
				ttl = cfg.Security.TokenTTL
			}
			token, exp, err := middleware.GenerateToken(middleware.JWTConfig{
				SigningKey: []byte(cfg.Security.JWTSecret),
				Issuer:     cfg.Security.JWTIssuer,
				ExpiresIn:  ttl,
			}, who.actor())
			if err != nil {
				return err
			}
			return opts.render(cmd.OutOrStdout(), map[string]any{
				"token":      token,
				"expires_at": exp.UTC().Format(time.RFC3339),
			})
		},
	}
	who.bind(cmd)
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (defaults to security.token_ttl)")
	return cmd
}

func newCatalogCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List the order types of the catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := opts.catalog()
			if err != nil {
				return err
			}
			return opts.render(cmd.OutOrStdout(), catalog.Types())
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "handoffs TYPE_CODE",
		Short: "List the handoff points of an order type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := opts.catalog()
			if err != nil {
				return err
			}
			if _, ok := catalog.Type(args[0]); !ok {
				return fmt.Errorf("unknown order type %q", args[0])
			}
			return opts.render(cmd.OutOrStdout(), catalog.Handoffs(args[0]))
		},
	})
	return cmd
}

func (o *cliOptions) catalog() (*domain.Catalog, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return modules.LoadCatalog(cfg.Workflow.CatalogPath)
}

// withEngine runs fn with an engine over the configured store. Events the
// engine publishes are queued for the server's workers.
func (o *cliOptions) withEngine(ctx context.Context, fn func(*workflow.Engine) error) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	infra, err := modules.NewInfrastructure(ctx, cfg, app.Version)
	if err != nil {
		return err
	}
	defer infra.Close()
	return fn(modules.NewWorkflowModule(infra).Engine())
}

func newOrderCmd(opts *cliOptions) *cobra.Command {
	var unified bool
	cmd := &cobra.Command{
		Use:   "order ORDER_ID",
		Short: "Show an order with its steps and situational status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withEngine(cmd.Context(), func(engine *workflow.Engine) error {
				if unified {
					view, err := engine.GetUnifiedWorkflow(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					return opts.render(cmd.OutOrStdout(), view)
				}
				detail, err := engine.GetOrderDetail(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return opts.render(cmd.OutOrStdout(), detail)
			})
		},
	}
	cmd.Flags().BoolVar(&unified, "workflow", false, "Show the unified workflow of the order's chain")
	return cmd
}

func newOpenCmd(opts *cliOptions) *cobra.Command {
	var (
		who         actorFlags
		typeCode    string
		parentID    string
		description string
	)
	cmd := &cobra.Command{
		Use:   "open",
		Short: "Open a new order on behalf of an actor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withEngine(cmd.Context(), func(engine *workflow.Engine) error {
				order, step, err := engine.OpenOrder(cmd.Context(), workflow.OpenOrderRequest{
					TypeCode:      typeCode,
					ParentOrderID: parentID,
					Description:   description,
					Actor:         who.actor(),
				})
				if err != nil {
					return err
				}
				return opts.render(cmd.OutOrStdout(), map[string]any{"order": order, "first_step": step})
			})
		},
	}
	who.bind(cmd)
	cmd.Flags().StringVar(&typeCode, "type", "", "Order type code, e.g. OS-01 (required)")
	cmd.Flags().StringVar(&parentID, "parent", "", "Parent order id")
	cmd.Flags().StringVar(&description, "description", "", "Free-text description")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}
