// File: cmd/extract.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/gqlharvest/api/schemas"
	"github.com/xkilldash9x/gqlharvest/internal/browser"
	"github.com/xkilldash9x/gqlharvest/internal/config"
	"github.com/xkilldash9x/gqlharvest/internal/extractor"
	"github.com/xkilldash9x/gqlharvest/internal/jsconst"
	"github.com/xkilldash9x/gqlharvest/internal/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// newExtractCmd creates and configures the `extract` command.
func newExtractCmd() *cobra.Command {
	extractCmd := &cobra.Command{
		Use:   "extract [user-ids...]",
		Short: "Visits IMDb watchlist pages and extracts the persisted query hash from the captured traffic",
		Long: `Drives a headless browser to each user's watchlist page, records the
outgoing network requests, and scans them for the GraphQL persisted query
hash. One JSON result object per target is written to stdout; all logging
goes to stderr. The user IDs do not need to belong to real accounts.`,
		Args: cobra.ArbitraryArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to their Viper keys so command-line values override
			// the config file and environment with the right precedence.
			if err := viper.BindPFlag("extract.url_template", cmd.Flags().Lookup("url-template")); err != nil {
				return err
			}
			if err := viper.BindPFlag("extract.page_timeout", cmd.Flags().Lookup("timeout")); err != nil {
				return err
			}
			if err := viper.BindPFlag("extract.quiet_period", cmd.Flags().Lookup("quiet-period")); err != nil {
				return err
			}
			if err := viper.BindPFlag("extract.rate_per_second", cmd.Flags().Lookup("rate")); err != nil {
				return err
			}
			if err := viper.BindPFlag("extract.priority_operations", cmd.Flags().Lookup("operation")); err != nil {
				return err
			}
			if err := viper.BindPFlag("browser.headless", cmd.Flags().Lookup("headless")); err != nil {
				return err
			}
			if err := viper.BindPFlag("browser.remote_url", cmd.Flags().Lookup("remote")); err != nil {
				return err
			}
			if err := viper.BindPFlag("browser.constants_file", cmd.Flags().Lookup("constants-file")); err != nil {
				return err
			}
			return viper.BindPFlag("browser.concurrency", cmd.Flags().Lookup("concurrency"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			var cfg config.Config
			if err := viper.Unmarshal(&cfg); err != nil {
				return fmt.Errorf("failed to unmarshal config with flag overrides: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			userIDs := args
			if len(userIDs) == 0 {
				userIDs = []string{cfg.Extract.DefaultUserID}
			}

			// Resolve the remote browser endpoint from the JS constants file
			// when one is configured and no explicit endpoint was given.
			if cfg.Browser.RemoteURL == "" && cfg.Browser.ConstantsFile != "" {
				endpoint, err := jsconst.LookupString(cfg.Browser.ConstantsFile, cfg.Browser.ConstantsKey)
				if err != nil {
					return emitFatal(cmd.OutOrStdout(), userIDs, fmt.Errorf("resolving remote browser endpoint: %w", err))
				}
				cfg.Browser.RemoteURL = endpoint
				logger.Info("Resolved remote browser endpoint from constants file.",
					zap.String("file", cfg.Browser.ConstantsFile),
					zap.String("constant", cfg.Browser.ConstantsKey),
				)
			}

			manager, err := browser.NewManager(ctx, logger, &cfg)
			if err != nil {
				return emitFatal(cmd.OutOrStdout(), userIDs, err)
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				if err := manager.Shutdown(shutdownCtx); err != nil {
					logger.Warn("Error during browser manager shutdown.", zap.Error(err))
				}
			}()

			outcomes := runTargets(ctx, manager, &cfg, logger, userIDs)

			failed := 0
			for _, outcome := range outcomes {
				if !outcome.Success {
					failed++
				}
				if err := writeOutcome(cmd.OutOrStdout(), outcome); err != nil {
					return fmt.Errorf("failed to write result: %w", err)
				}
			}

			if errors.Is(ctx.Err(), context.Canceled) {
				return ctx.Err()
			}
			if failed > 0 {
				return fmt.Errorf("hash extraction failed for %d of %d targets", failed, len(userIDs))
			}
			return nil
		},
	}

	extractCmd.Flags().String("url-template", "", "Watchlist URL template with a %s placeholder for the user ID. (Overrides config/env)")
	extractCmd.Flags().DurationP("timeout", "t", 0, "Page load timeout per target. (Overrides config/env)")
	extractCmd.Flags().Duration("quiet-period", 0, "How long the network must stay silent before traffic is collected. (Overrides config/env)")
	extractCmd.Flags().Float64("rate", 0, "Maximum page visits per second across targets. (Overrides config/env)")
	extractCmd.Flags().StringArray("operation", nil, "Priority operation name; repeat to rank several. (Overrides config/env)")
	extractCmd.Flags().Bool("headless", true, "Run the local browser headless. (Overrides config/env)")
	extractCmd.Flags().String("remote", "", "DevTools websocket URL of a remote browser. (Overrides config/env)")
	extractCmd.Flags().String("constants-file", "", "JS constants file to resolve the remote browser endpoint from. (Overrides config/env)")
	extractCmd.Flags().IntP("concurrency", "j", 0, "Number of targets crawled in parallel. (Overrides config/env)")

	return extractCmd
}

// runTargets fans the user IDs out over a bounded worker group, pacing page
// visits with a shared rate limiter. Per-target failures become failure
// outcomes; they never abort sibling targets.
func runTargets(ctx context.Context, manager *browser.Manager, cfg *config.Config, logger *zap.Logger, userIDs []string) []schemas.Outcome {
	limiter := rate.NewLimiter(rate.Limit(cfg.Extract.RatePerSecond), 1)
	outcomes := make([]schemas.Outcome, len(userIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Browser.Concurrency)
	for i, userID := range userIDs {
		g.Go(func() error {
			if err := limiter.Wait(gctx); err != nil {
				outcomes[i] = failureOutcome(userID, err)
				return nil
			}

			result, err := extractTarget(gctx, manager, cfg, logger, userID)
			if err != nil {
				logger.Error("Hash extraction failed.", zap.String("user_id", userID), zap.Error(err))
				outcomes[i] = failureOutcome(userID, err)
				return nil
			}
			outcomes[i] = successOutcome(result)
			return nil
		})
	}
	// Workers never return errors; they record outcomes instead.
	_ = g.Wait()

	return outcomes
}

// extractTarget runs the full crawl-and-scan pipeline for one user ID.
func extractTarget(ctx context.Context, manager *browser.Manager, cfg *config.Config, logger *zap.Logger, userID string) (*schemas.ExtractionResult, error) {
	targetURL := fmt.Sprintf(cfg.Extract.URLTemplate, userID)
	logger.Info("Visiting watchlist page.", zap.String("user_id", userID), zap.String("url", targetURL))

	session, err := manager.NewSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create browser session: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		session.Close(closeCtx)
	}()

	if err := session.Navigate(ctx, targetURL); err != nil {
		return nil, fmt.Errorf("failed to load watchlist page: %w", err)
	}

	artifacts, err := session.Collect(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info("Captured network events.",
		zap.String("user_id", userID),
		zap.Int("count", len(artifacts.Requests)),
	)

	result, err := extractor.New(logger, cfg.Extract.GraphQLHost, cfg.Extract.PriorityOperations).Extract(artifacts.Requests)
	if err != nil {
		return nil, err
	}
	result.UserID = userID
	return result, nil
}

// -- Outcome helpers --

func successOutcome(result *schemas.ExtractionResult) schemas.Outcome {
	return schemas.Outcome{
		Success:    true,
		UserID:     result.UserID,
		Hash:       result.Hash,
		Operation:  result.Operation,
		RequestURL: result.RequestURL,
		Timestamp:  time.Now().UTC(),
	}
}

func failureOutcome(userID string, err error) schemas.Outcome {
	return schemas.Outcome{
		Success:   false,
		UserID:    userID,
		Error:     err.Error(),
		Timestamp: time.Now().UTC(),
	}
}

// writeOutcome emits one result object per line on stdout.
func writeOutcome(w io.Writer, outcome schemas.Outcome) error {
	raw, err := json.Marshal(outcome)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(raw))
	return err
}

// emitFatal reports a setup failure that affects every target, then returns
// the error so the process exits non-zero.
func emitFatal(w io.Writer, userIDs []string, err error) error {
	for _, userID := range userIDs {
		if werr := writeOutcome(w, failureOutcome(userID, err)); werr != nil {
			return werr
		}
	}
	return err
}
