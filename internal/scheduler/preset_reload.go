package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/nexus/internal/index"
	"github.com/MrSnakeDoc/nexus/internal/logger"
	"github.com/MrSnakeDoc/nexus/internal/sources/presets"
)

// PresetReloader handles periodic reloading of the filter presets file
type PresetReloader struct {
	loader        *presets.Loader
	mapper        *presets.Mapper
	index         *index.MemoryIndex
	logger        logger.Logger
	interval      time.Duration
	stopCh        chan struct{}
	manualTrigger chan struct{}
}

// NewPresetReloader creates a new preset reloader
func NewPresetReloader(
	presetFile string,
	idx *index.MemoryIndex,
	log logger.Logger,
	interval time.Duration,
	manualTrigger chan struct{},
) *PresetReloader {
	return &PresetReloader{
		loader:        presets.NewLoader(presetFile),
		mapper:        presets.NewMapper(),
		index:         idx,
		logger:        logger.Component(log, "presets"),
		interval:      interval,
		stopCh:        make(chan struct{}),
		manualTrigger: manualTrigger,
	}
}

// Start loads the presets once and then reloads them on every tick or
// manual trigger. A failed reload keeps the presets already in the index.
func (pr *PresetReloader) Start(ctx context.Context) error {
	if err := pr.Reload(ctx); err != nil {
		return fmt.Errorf("initial preset reload failed: %w", err)
	}

	ticker := time.NewTicker(pr.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := pr.Reload(ctx); err != nil {
					pr.logger.Error("failed to reload presets",
						logger.Error(err))
				}
			case <-pr.manualTrigger:
				pr.logger.Info("manual preset reload triggered")
				if err := pr.Reload(ctx); err != nil {
					pr.logger.Error("failed to reload presets",
						logger.Error(err))
				}
			case <-pr.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the reloader
func (pr *PresetReloader) Stop() {
	close(pr.stopCh)
}

// Reload parses the presets file and swaps the presets in the index
func (pr *PresetReloader) Reload(_ context.Context) error {
	config, err := pr.loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load presets: %w", err)
	}

	loaded, err := pr.mapper.MapPresets(config)
	if err != nil {
		return fmt.Errorf("failed to map presets: %w", err)
	}

	pr.index.UpdatePresets(loaded)

	names := make([]string, 0, len(loaded))
	for _, p := range loaded {
		names = append(names, p.Name)
	}
	pr.logger.Info("presets loaded",
		logger.String("file", pr.loader.Path()),
		logger.Strings("names", names))

	return nil
}
