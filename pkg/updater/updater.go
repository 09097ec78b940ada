package updater

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/powerwall-tou/pkg/ess"
	"github.com/raterudder/powerwall-tou/pkg/log"
	"github.com/raterudder/powerwall-tou/pkg/metrics"
	"github.com/raterudder/powerwall-tou/pkg/tariff"
	"github.com/raterudder/powerwall-tou/pkg/types"
	"github.com/raterudder/powerwall-tou/pkg/utility"
)

// Config holds the settings of a run.
type Config struct {
	Resolution int
	Plan       tariff.Plan
	DryRun     bool
}

// Updater runs a single tariff update: it combines the simulated and live
// prices, builds the tariff document and publishes it.
type Updater struct {
	cfg       Config
	simulated utility.Source
	live      utility.Source
	publisher ess.Publisher
	metrics   *metrics.Recorder
}

// New returns an Updater.
func New(cfg Config, simulated, live utility.Source, publisher ess.Publisher, m *metrics.Recorder) *Updater {
	return &Updater{
		cfg:       cfg,
		simulated: simulated,
		live:      live,
		publisher: publisher,
		metrics:   m,
	}
}

// Configured sets up the Updater based on flags. It must be called after
// utility.Configured so the sources are configured first.
func Configured(u *utility.Map, p ess.Publisher, m *metrics.Recorder) *Updater {
	planFile := lflag.String("plan-file", "", "YAML file overriding the tariff plan identity (optional)")
	dryRun := lflag.Bool("dry-run", false, "Build and log the tariff without publishing it")

	up := &Updater{
		publisher: p,
		metrics:   m,
	}

	lflag.Do(func() {
		var err error
		up.simulated, err = u.Source(utility.SourceGlobird)
		if err != nil {
			panic(fmt.Sprintf("failed to get simulated source: %v", err))
		}
		up.live, err = u.Source(utility.SourceAmber)
		if err != nil {
			panic(fmt.Sprintf("failed to get live source: %v", err))
		}
		plan, err := tariff.LoadPlan(*planFile)
		if err != nil {
			panic(fmt.Sprintf("failed to load plan: %v", err))
		}
		up.cfg = Config{
			Resolution: u.Resolution(),
			Plan:       plan,
			DryRun:     *dryRun,
		}
	})

	return up
}

// Run performs one update and returns the first fatal error. The live source
// failing isn't fatal, the simulated prices are published on their own.
func (up *Updater) Run(ctx context.Context) error {
	start := time.Now()
	result := metrics.ResultError
	defer func() {
		up.metrics.ObserveRun(result, time.Since(start))
		if err := up.metrics.Push(ctx); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to push metrics", slog.Any("error", err))
		}
	}()

	if err := types.ValidateResolution(up.cfg.Resolution); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	simulated, err := up.simulated.Prices(ctx)
	if err != nil {
		return fmt.Errorf("failed to get simulated prices: %w", err)
	}

	live, err := up.live.Prices(ctx)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to get live prices, using simulated prices only", slog.Any("error", err))
		live = nil
	}
	spikes := tariff.CountSpikes(live, up.cfg.Resolution)
	up.metrics.SetLiveIntervals(len(live))
	up.metrics.SetSpikeSlots(spikes)

	merged, err := tariff.Merge(ctx, simulated, live, up.cfg.Resolution)
	if err != nil {
		return fmt.Errorf("failed to merge prices: %w", err)
	}
	doc := tariff.Build(up.cfg.Plan, merged)

	log.Ctx(ctx).InfoContext(
		ctx,
		"built tariff",
		slog.Int("resolution", up.cfg.Resolution),
		slog.Int("simulated", len(simulated)),
		slog.Int("live", len(live)),
		slog.Int("spikes", spikes),
		slog.Int("periods", len(merged)),
	)

	if up.cfg.DryRun {
		b, err := json.Marshal(types.TOUSettingsRequest{TOUSettings: types.TOUSettings{TariffContentV2: doc}})
		if err != nil {
			return fmt.Errorf("failed to encode tariff: %w", err)
		}
		log.Ctx(ctx).InfoContext(ctx, "dry run, not publishing tariff", slog.String("tariff", string(b)))
		result = metrics.ResultDryRun
		return nil
	}

	if err := up.publisher.Publish(ctx, doc); err != nil {
		return fmt.Errorf("failed to publish tariff: %w", err)
	}
	result = metrics.ResultSuccess
	log.Ctx(ctx).InfoContext(ctx, "tariff update complete", slog.Duration("took", time.Since(start)))
	return nil
}
