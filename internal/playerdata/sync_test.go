package playerdata

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Tnze/go-mc/nbt"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SkynetNext/mc-proxy/internal/config"
)

type slot struct {
	Slot  int8   `nbt:"Slot"`
	ID    string `nbt:"id"`
	Count int32  `nbt:"count"`
}

type fullFile struct {
	Inventory []slot    `nbt:"Inventory"`
	XpLevel   int32     `nbt:"XpLevel"`
	Health    float32   `nbt:"Health"`
	Pos       []float64 `nbt:"Pos"`
	Dimension string    `nbt:"Dimension"`
	Seen      string    `nbt:"Seen"`
}

type statsFile struct {
	Inventory []slot  `nbt:"Inventory"`
	XpLevel   int32   `nbt:"XpLevel"`
	Health    float32 `nbt:"Health"`
}

func writeFile(t *testing.T, path string, v any) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	zw := gzip.NewWriter(f)
	require.NoError(t, nbt.NewEncoder(zw).Encode(v, ""))
	require.NoError(t, zw.Close())
}

func readFile(t *testing.T, path string, v any) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	_, err = nbt.NewDecoder(zr).Decode(v)
	require.NoError(t, err)
}

func setup(t *testing.T) (config.BackendConfig, config.BackendConfig) {
	dir := t.TempDir()
	return config.BackendConfig{Name: "primary", ServerDir: filepath.Join(dir, "a")},
		config.BackendConfig{Name: "secondary", ServerDir: filepath.Join(dir, "b")}
}

func TestSync_UpdatesExistingTarget(t *testing.T) {
	from, to := setup(t)
	id := uuid.New()

	writeFile(t, Path(from.ServerDir, id), fullFile{
		Inventory: []slot{{Slot: 0, ID: "minecraft:diamond", Count: 3}},
		XpLevel:   30,
		Health:    12.5,
		Pos:       []float64{1, 64, 1},
		Dimension: "minecraft:the_nether",
		Seen:      "source",
	})
	writeFile(t, Path(to.ServerDir, id), fullFile{
		XpLevel:   1,
		Health:    20,
		Pos:       []float64{100, 70, -100},
		Dimension: "minecraft:overworld",
		Seen:      "target",
	})

	s := NewSyncer(config.SyncConfig{Enabled: true})
	require.NoError(t, s.Sync(context.Background(), id, from, to))

	var got fullFile
	readFile(t, Path(to.ServerDir, id), &got)
	assert.Equal(t, int32(30), got.XpLevel)
	assert.Equal(t, float32(12.5), got.Health)
	require.Len(t, got.Inventory, 1)
	assert.Equal(t, "minecraft:diamond", got.Inventory[0].ID)

	// untouched tags keep the target's values
	assert.Equal(t, []float64{100, 70, -100}, got.Pos)
	assert.Equal(t, "minecraft:overworld", got.Dimension)
	assert.Equal(t, "target", got.Seen)
}

func TestSync_CreatesTargetWithoutLocation(t *testing.T) {
	from, to := setup(t)
	id := uuid.New()

	writeFile(t, Path(from.ServerDir, id), fullFile{
		XpLevel:   7,
		Health:    3,
		Pos:       []float64{1, 2, 3},
		Dimension: "minecraft:the_end",
		Seen:      "source",
	})

	s := NewSyncer(config.SyncConfig{Enabled: true})
	require.NoError(t, s.Sync(context.Background(), id, from, to))

	var raw map[string]nbt.RawMessage
	readFile(t, Path(to.ServerDir, id), &raw)
	assert.NotContains(t, raw, "Pos")
	assert.NotContains(t, raw, "Dimension")
	assert.Contains(t, raw, "Seen")

	var got statsFile
	readFile(t, Path(to.ServerDir, id), &got)
	assert.Equal(t, int32(7), got.XpLevel)
	assert.Equal(t, float32(3), got.Health)
}

func TestSync_CustomTags(t *testing.T) {
	from, to := setup(t)
	id := uuid.New()

	writeFile(t, Path(from.ServerDir, id), statsFile{XpLevel: 9, Health: 4})
	writeFile(t, Path(to.ServerDir, id), statsFile{XpLevel: 1, Health: 20})

	s := NewSyncer(config.SyncConfig{Enabled: true, Tags: []string{"XpLevel"}})
	require.NoError(t, s.Sync(context.Background(), id, from, to))

	var got statsFile
	readFile(t, Path(to.ServerDir, id), &got)
	assert.Equal(t, int32(9), got.XpLevel)
	assert.Equal(t, float32(20), got.Health)
}

func TestSync_MissingSource(t *testing.T) {
	from, to := setup(t)
	id := uuid.New()

	s := NewSyncer(config.SyncConfig{Enabled: true})
	require.NoError(t, s.Sync(context.Background(), id, from, to))
	_, err := os.Stat(Path(to.ServerDir, id))
	assert.True(t, os.IsNotExist(err))
}

func TestSync_Disabled(t *testing.T) {
	from, to := setup(t)
	id := uuid.New()
	writeFile(t, Path(from.ServerDir, id), statsFile{XpLevel: 9})

	s := NewSyncer(config.SyncConfig{})
	assert.False(t, s.Enabled())
	require.NoError(t, s.Sync(context.Background(), id, from, to))
	_, err := os.Stat(Path(to.ServerDir, id))
	assert.True(t, os.IsNotExist(err))
}

func TestSync_CorruptSource(t *testing.T) {
	from, to := setup(t)
	id := uuid.New()
	path := Path(from.ServerDir, id)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("not gzip"), 0o644))

	s := NewSyncer(config.SyncConfig{Enabled: true})
	assert.Error(t, s.Sync(context.Background(), id, from, to))
}
