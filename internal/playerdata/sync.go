// Package playerdata copies a player's mutable state between the two
// backends' world directories so it follows them across a switch.
package playerdata

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Tnze/go-mc/nbt"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/SkynetNext/mc-proxy/internal/config"
	"github.com/SkynetNext/mc-proxy/internal/logger"
	"github.com/SkynetNext/mc-proxy/internal/metrics"
)

// DefaultTags are the player file tags that follow a player between backends
var DefaultTags = []string{
	"Inventory",
	"EnderItems",
	"equipment",
	"XpLevel",
	"XpP",
	"XpTotal",
	"foodLevel",
	"foodExhaustionLevel",
	"foodSaturationLevel",
	"foodTickTimer",
	"Health",
	"Score",
	"AbsorptionAmount",
	"Attributes",
}

// locationTags are dropped when a target file is created from the source,
// so the player spawns at the target world's spawn point
var locationTags = []string{"Pos", "Rotation", "Dimension", "WorldUUID"}

// compound keeps every tag's original encoding
type compound = map[string]nbt.RawMessage

// Syncer copies player files between backend server directories
type Syncer struct {
	enabled bool
	tags    []string
}

// NewSyncer creates a syncer from configuration
func NewSyncer(cfg config.SyncConfig) *Syncer {
	tags := cfg.Tags
	if len(tags) == 0 {
		tags = DefaultTags
	}
	return &Syncer{enabled: cfg.Enabled, tags: tags}
}

// Enabled reports whether syncing is configured
func (s *Syncer) Enabled() bool {
	return s.enabled
}

// Path is the player file of id in a backend's server directory
func Path(serverDir string, id uuid.UUID) string {
	return filepath.Join(serverDir, "world", "playerdata", id.String()+".dat")
}

// Sync copies the configured tags of id from one backend's player file to
// the other's. A missing source file is not an error.
func (s *Syncer) Sync(ctx context.Context, id uuid.UUID, from, to config.BackendConfig) error {
	if !s.enabled {
		return nil
	}
	src, dst := Path(from.ServerDir, id), Path(to.ServerDir, id)

	var source, target compound
	var targetExists bool
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		source, err = readPlayerFile(src)
		return err
	})
	g.Go(func() error {
		t, err := readPlayerFile(dst)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		target, targetExists = t, err == nil
		return err
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.L.Warn("No player data to sync",
				zap.String("uuid", id.String()),
				zap.String("path", src))
			metrics.PlayerDataSyncs.WithLabelValues("skipped").Inc()
			return nil
		}
		metrics.PlayerDataSyncs.WithLabelValues("error").Inc()
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if !targetExists {
		target = make(compound, len(source))
		for k, v := range source {
			target[k] = v
		}
		for _, k := range locationTags {
			delete(target, k)
		}
	}
	for _, tag := range s.tags {
		if v, ok := source[tag]; ok {
			target[tag] = v
		}
	}

	if err := writePlayerFile(dst, target); err != nil {
		metrics.PlayerDataSyncs.WithLabelValues("error").Inc()
		return err
	}
	metrics.PlayerDataSyncs.WithLabelValues("success").Inc()
	logger.L.Info("Synced player data",
		zap.String("uuid", id.String()),
		zap.String("from", from.Name),
		zap.String("to", to.Name))
	return nil
}

func readPlayerFile(path string) (compound, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	defer zr.Close()

	var c compound
	if _, err := nbt.NewDecoder(zr).Decode(&c); err != nil {
		return nil, fmt.Errorf("%s: decode nbt: %w", path, err)
	}
	return c, nil
}

// writePlayerFile replaces path atomically so a backend never reads a partial file
func writePlayerFile(path string, c compound) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".sync-*.dat")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	zw := gzip.NewWriter(tmp)
	if err := nbt.NewEncoder(zw).Encode(c, ""); err != nil {
		tmp.Close()
		return fmt.Errorf("%s: encode nbt: %w", path, err)
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
