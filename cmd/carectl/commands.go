package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/carelink/internal/app"
	"github.com/jwalitptl/carelink/internal/model"
	"github.com/jwalitptl/carelink/internal/repository"
	"github.com/jwalitptl/carelink/internal/repository/postgres"
	"github.com/jwalitptl/carelink/internal/service/event"
	"github.com/jwalitptl/carelink/internal/service/notification"
	"github.com/jwalitptl/carelink/pkg/metrics"
	"github.com/jwalitptl/carelink/pkg/worker"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			db, err := postgres.NewDB(cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := postgres.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return nil
		},
	}
}

// readRecord reads one event record from the named file, or stdin for "-".
func readRecord(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(args[0])
}

func classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify [file|-]",
		Short: "Print the kind of an event record",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readRecord(cmd, args)
			if err != nil {
				return err
			}
			rec, err := model.DecodeEventRecord(data)
			if err != nil {
				return fmt.Errorf("decode event record: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), event.Classify(*rec))
			return nil
		},
	}
}

func routeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "route [file|-]",
		Short: "Resolve an event record against the store and print its dispatches without sending",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readRecord(cmd, args)
			if err != nil {
				return err
			}
			ev, err := event.ParseBytes(data)
			if err != nil {
				return err
			}
			return withStore(cmd, func(ctx context.Context, e *env) error {
				var dispatches []model.Dispatch
				err := e.store.WithTx(ctx, func(tx repository.Store) error {
					var err error
					dispatches, err = notification.NewRouter().Route(ctx, tx.Persons(), ev)
					return err
				})
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(dispatches)
			})
		},
	}
}

func parseKind(s string) (model.PersonKind, error) {
	switch k := model.PersonKind(strings.ToLower(s)); k {
	case model.PersonKindPatient, model.PersonKindDoctor:
		return k, nil
	default:
		return "", fmt.Errorf("kind must be patient or doctor, got %q", s)
	}
}

func grantRoleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grant-role",
		Short: "Grant a role to a patient or doctor",
		RunE: func(cmd *cobra.Command, args []string) error {
			kindFlag, _ := cmd.Flags().GetString("kind")
			idFlag, _ := cmd.Flags().GetString("id")
			role, _ := cmd.Flags().GetString("role")

			kind, err := parseKind(kindFlag)
			if err != nil {
				return err
			}
			id, err := uuid.Parse(idFlag)
			if err != nil {
				return fmt.Errorf("invalid id: %w", err)
			}

			return withStore(cmd, func(ctx context.Context, e *env) error {
				user, err := app.NewRelationService(e.store, e.cfg, e.log).GrantRole(ctx, kind, id, role)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", user.Email, strings.Join(user.RoleNames(), ","))
				return nil
			})
		},
	}
	cmd.Flags().String("kind", "patient", "person kind: patient or doctor")
	cmd.Flags().String("id", "", "person id")
	cmd.Flags().String("role", "", "role name, e.g. ADMIN")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <patient|doctor> <id>",
		Short: "Delete a person with every link, appointment, inquiry and identity record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			id, err := uuid.Parse(args[1])
			if err != nil {
				return fmt.Errorf("invalid id: %w", err)
			}

			return withStore(cmd, func(ctx context.Context, e *env) error {
				svc := app.NewRelationService(e.store, e.cfg, e.log)
				if kind == model.PersonKindDoctor {
					err = svc.DeleteDoctor(ctx, id)
				} else {
					err = svc.DeletePatient(ctx, id)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s %s\n", kind, id)
				return nil
			})
		},
	}
}

func outboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and drive the event outbox",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "process-once",
		Short: "Publish one batch of pending events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, e *env) error {
				p, closeBroker, err := newProcessor(ctx, e)
				if err != nil {
					return err
				}
				defer closeBroker()
				n, err := p.ProcessOnce(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "processed %d events\n", n)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "cleanup",
		Short: "Delete processed events older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, e *env) error {
				p, closeBroker, err := newProcessor(ctx, e)
				if err != nil {
					return err
				}
				defer closeBroker()
				n, err := p.Cleanup(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d events\n", n)
				return nil
			})
		},
	})

	return cmd
}

func newProcessor(ctx context.Context, e *env) (*worker.OutboxProcessor, func(), error) {
	broker, err := app.OpenBroker(ctx, e.cfg, e.log)
	if err != nil {
		return nil, nil, err
	}
	closeBroker := func() { _ = broker.Close() }

	p, err := worker.NewOutboxProcessor(
		e.store.Outbox(),
		broker,
		e.cfg.Outbox.ToWorkerConfig(e.cfg.Redis.Channel),
		e.log,
		metrics.New(app.MetricsNamespace, nil),
	)
	if err != nil {
		closeBroker()
		return nil, nil, err
	}
	return p, closeBroker, nil
}
