package status

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf16"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SkynetNext/mc-proxy/internal/config"
	"github.com/SkynetNext/mc-proxy/internal/handler"
	"github.com/SkynetNext/mc-proxy/internal/presence"
)

type roster []presence.Player

func (r roster) Players() []presence.Player { return r }

func players(n int) roster {
	out := make(roster, n)
	start := time.Now()
	for i := range out {
		out[i] = presence.Player{
			UUID:      uuid.New(),
			Username:  "player" + string(rune('a'+i)),
			LoginTime: start.Add(time.Duration(i) * time.Second),
		}
	}
	return out
}

func TestBuild_Defaults(t *testing.T) {
	cfg := config.Default()
	p := NewProvider(cfg, players(15), nil)

	r := p.Build("127.0.0.1:1")
	assert.Equal(t, 773, r.Version.Protocol)
	assert.Equal(t, "1.21.10", r.Version.Name)
	assert.Equal(t, 20, r.Players.Max)
	assert.Equal(t, 15, r.Players.Online)
	assert.Len(t, r.Players.Sample, 12)
	assert.Equal(t, "playera", r.Players.Sample[0].Name)
	assert.Equal(t, "MCTraveler Portal", r.Description.Text)
	assert.True(t, r.EnforcesSecureChat)
	assert.Empty(t, r.Favicon)

	doc, err := r.JSON()
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(doc), &decoded))
	assert.NotContains(t, decoded, "favicon")
	assert.Contains(t, decoded, "enforcesSecureChat")
}

func TestBuild_MOTDHook(t *testing.T) {
	hooks := handler.NewHooks()
	hooks.RegisterFunc(handler.MOTDRequest, func(payload any) (any, error) {
		ev := payload.(handler.MOTDEvent)
		return "hello " + ev.RemoteAddr, nil
	})
	p := NewProvider(config.Default(), roster{}, hooks)

	r := p.Build("1.2.3.4:5")
	assert.Equal(t, "hello 1.2.3.4:5", r.Description.Text)
	assert.NotNil(t, r.Players.Sample)
	assert.Empty(t, r.Players.Sample)
}

func TestFavicon(t *testing.T) {
	dir := t.TempDir()
	png := filepath.Join(dir, "icon.png")
	require.NoError(t, os.WriteFile(png, []byte("\x89PNG\r\n\x1a\n0000"), 0o644))
	bad := filepath.Join(dir, "icon.txt")
	require.NoError(t, os.WriteFile(bad, []byte("plain text file"), 0o644))

	uri, err := LoadFavicon(png)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "data:image/png;base64,"))

	_, err = LoadFavicon(bad)
	assert.Error(t, err)

	cfg := config.Default()
	cfg.Status.FaviconPath = png
	p := NewProvider(cfg, roster{}, nil)
	assert.Equal(t, uri, p.Build("").Favicon)
}

func TestLegacyKick(t *testing.T) {
	r := &Response{
		Version:     Version{Name: "1.21.10", Protocol: 773},
		Players:     Players{Max: 20, Online: 3},
		Description: Description{Text: "line one\nline two"},
	}
	out := LegacyKick(r)
	require.Equal(t, byte(0xFF), out[0])

	n := int(binary.BigEndian.Uint16(out[1:3]))
	require.Len(t, out, 3+2*n)
	units := make([]uint16, n)
	for i := range units {
		units[i] = binary.BigEndian.Uint16(out[3+2*i:])
	}
	got := strings.Split(string(utf16.Decode(units)), "\x00")
	assert.Equal(t, []string{"§1", "773", "1.21.10", "line one line two", "3", "20"}, got)
}
