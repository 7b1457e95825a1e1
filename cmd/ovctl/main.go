// Command ovctl is the operator CLI: account bootstrap, invitation-token
// issuance, and record replay, layered over the same service code the
// HTTP surface uses; no parallel logic.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/openviking/openviking/internal/config"
	"github.com/openviking/openviking/internal/identity"
	"github.com/openviking/openviking/internal/recorder"
	"github.com/openviking/openviking/internal/service"
	"github.com/openviking/openviking/internal/vectorstore"
	"github.com/openviking/openviking/internal/vikingfs"
)

func main() {
	root := &cobra.Command{
		Use:          "ovctl",
		Short:        "OpenViking operator CLI",
		SilenceUsage: true,
	}
	root.AddCommand(accountsCmd(), tokensCmd(), playCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// withService builds the full service graph from the ambient config,
// runs fn, and tears the graph down again.
func withService(fn func(ctx context.Context, svc *service.Service) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := context.Background()
	svc, err := service.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = svc.Close(closeCtx)
	}()
	return fn(ctx, svc)
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func accountsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "accounts", Short: "Manage accounts"}

	create := &cobra.Command{
		Use:   "create <account-id> <admin-user-id>",
		Short: "Create an account with its first admin user",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return withService(func(ctx context.Context, svc *service.Service) error {
				key, err := svc.Keys.CreateAccount(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSON(map[string]string{
					"account_id":    args[0],
					"admin_user_id": args[1],
					"user_key":      key,
				})
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return withService(func(_ context.Context, svc *service.Service) error {
				return printJSON(svc.Keys.ListAccounts())
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <account-id>",
		Short: "Delete an account and cascade-clean its data",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withService(func(ctx context.Context, svc *service.Service) error {
				accountID := args[0]
				rootCtx := identity.RequestContext{Role: identity.RoleRoot}
				if err := svc.FS.Rm(ctx, rootCtx, "viking://"+accountID, true); err != nil {
					fmt.Fprintf(os.Stderr, "warning: fs cleanup: %v\n", err)
				}
				if _, err := svc.Gateway.DeleteAccountData(ctx, accountID); err != nil {
					fmt.Fprintf(os.Stderr, "warning: vector cleanup: %v\n", err)
				}
				if err := svc.Keys.DeleteAccount(ctx, accountID); err != nil {
					return err
				}
				return printJSON(map[string]bool{"deleted": true})
			})
		},
	}

	cmd.AddCommand(create, list, del)
	return cmd
}

func tokensCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "tokens", Short: "Manage invitation tokens"}

	var maxUses int
	var expiresIn time.Duration
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an invitation token",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return withService(func(ctx context.Context, svc *service.Service) error {
				var maxUsesPtr *int
				if maxUses > 0 {
					maxUsesPtr = &maxUses
				}
				var expiresAt *time.Time
				if expiresIn > 0 {
					t := time.Now().UTC().Add(expiresIn)
					expiresAt = &t
				}
				token, err := svc.Keys.CreateInvitationToken(ctx, "ovctl", maxUsesPtr, expiresAt)
				if err != nil {
					return err
				}
				return printJSON(token)
			})
		},
	}
	create.Flags().IntVar(&maxUses, "max-uses", 0, "maximum number of uses (0 = unlimited)")
	create.Flags().DurationVar(&expiresIn, "expires-in", 0, "expiry from now, e.g. 72h (0 = never)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List invitation tokens",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return withService(func(_ context.Context, svc *service.Service) error {
				return printJSON(svc.Keys.ListInvitationTokens())
			})
		},
	}

	revoke := &cobra.Command{
		Use:   "revoke <token-id>",
		Short: "Revoke an invitation token",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withService(func(ctx context.Context, svc *service.Service) error {
				if err := svc.Keys.RevokeInvitationToken(ctx, args[0]); err != nil {
					return err
				}
				return printJSON(map[string]bool{"revoked": true})
			})
		},
	}

	cmd.AddCommand(create, list, revoke)
	return cmd
}

func playCmd() *cobra.Command {
	var ioType, operation string
	var limit, offset int
	var failFast bool

	cmd := &cobra.Command{
		Use:   "play <record-file>",
		Short: "Replay a recorded IO file against the configured backends",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()

			backend, err := vikingfs.CreateBackend(vikingfs.ParseAGFSURL(cfg.AGFSURL, cfg.DataDir+"/agfs"))
			if err != nil {
				return err
			}
			defer backend.Close()

			driver, err := vectorstore.CreateDriver(vectorstore.Config{
				Backend:    cfg.VectorBackend,
				Collection: cfg.VectorCollection,
				Path:       cfg.VectorPath,
				URL:        cfg.VectorURL,
				Dimension:  cfg.VectorDimension,
			})
			if err != nil {
				return err
			}
			defer driver.Close()
			coll, err := driver.CreateCollection(ctx, cfg.VectorCollection, vectorstore.ContextCollectionSchema)
			if err != nil {
				return err
			}

			report, err := recorder.NewPlayer(backend, coll).Play(ctx, args[0], recorder.PlayOptions{
				IOType:    ioType,
				Operation: operation,
				Limit:     limit,
				Offset:    offset,
				FailFast:  failFast,
			})
			if err != nil {
				return err
			}
			return printJSON(report)
		},
	}
	cmd.Flags().StringVar(&ioType, "io-type", "", "filter by io type (fs | vikingdb)")
	cmd.Flags().StringVar(&operation, "operation", "", "filter by operation name")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum records to play")
	cmd.Flags().IntVar(&offset, "offset", 0, "records to skip")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "stop on first mismatching failure")
	return cmd
}
