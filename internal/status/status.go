// Package status builds the server list response for modern and legacy pings.
package status

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"unicode/utf16"

	"go.uber.org/zap"

	"github.com/SkynetNext/mc-proxy/internal/config"
	"github.com/SkynetNext/mc-proxy/internal/handler"
	"github.com/SkynetNext/mc-proxy/internal/logger"
	"github.com/SkynetNext/mc-proxy/internal/presence"
)

// Response is the status JSON document
type Response struct {
	Version            Version     `json:"version"`
	Players            Players     `json:"players"`
	Description        Description `json:"description"`
	Favicon            string      `json:"favicon,omitempty"`
	EnforcesSecureChat bool        `json:"enforcesSecureChat"`
}

type Version struct {
	Name     string `json:"name"`
	Protocol int    `json:"protocol"`
}

type Players struct {
	Max    int            `json:"max"`
	Online int            `json:"online"`
	Sample []SamplePlayer `json:"sample"`
}

type SamplePlayer struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

type Description struct {
	Text string `json:"text"`
}

// JSON encodes the document
func (r *Response) JSON() (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Roster lists the players online through the proxy
type Roster interface {
	Players() []presence.Player
}

// Provider assembles status responses from configuration, the roster and MOTD hooks
type Provider struct {
	roster Roster
	hooks  *handler.Hooks

	mu       sync.RWMutex
	status   config.StatusConfig
	protocol config.ProtocolConfig
	favicon  string
}

// NewProvider creates a provider. hooks may be nil.
func NewProvider(cfg *config.Config, roster Roster, hooks *handler.Hooks) *Provider {
	p := &Provider{roster: roster, hooks: hooks}
	p.Update(cfg)
	return p
}

// Update applies a new configuration and reloads the favicon
func (p *Provider) Update(cfg *config.Config) {
	favicon := ""
	if cfg.Status.FaviconPath != "" {
		var err error
		if favicon, err = LoadFavicon(cfg.Status.FaviconPath); err != nil {
			logger.L.Warn("Failed to load favicon", zap.String("path", cfg.Status.FaviconPath), zap.Error(err))
		}
	}

	p.mu.Lock()
	p.status = cfg.Status
	p.protocol = cfg.Protocol
	p.favicon = favicon
	p.mu.Unlock()
}

// Build returns the status for a client at remoteAddr
func (p *Provider) Build(remoteAddr string) *Response {
	p.mu.RLock()
	st, proto, favicon := p.status, p.protocol, p.favicon
	p.mu.RUnlock()

	players := p.roster.Players()
	sample := make([]SamplePlayer, 0, min(len(players), st.SampleSize))
	for _, pl := range players {
		if len(sample) >= st.SampleSize {
			break
		}
		sample = append(sample, SamplePlayer{Name: pl.Username, ID: pl.UUID.String()})
	}

	motd := st.MOTD
	if p.hooks != nil {
		if text, ok := p.hooks.FirstText(handler.MOTDRequest, handler.MOTDEvent{RemoteAddr: remoteAddr}); ok {
			motd = text
		}
	}

	return &Response{
		Version:            Version{Name: proto.VersionName, Protocol: proto.Version},
		Players:            Players{Max: st.MaxPlayers, Online: len(players), Sample: sample},
		Description:        Description{Text: motd},
		Favicon:            favicon,
		EnforcesSecureChat: st.SecureChat(),
	}
}

// LoadFavicon reads a PNG and returns it as a data URI
func LoadFavicon(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if len(b) < 8 || string(b[1:4]) != "PNG" {
		return "", fmt.Errorf("%s is not a PNG image", path)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(b), nil
}

// LegacyKick encodes the reply to a pre-netty server list ping: a kick packet
// (0xFF) whose UTF-16BE reason carries the §1 fields.
func LegacyKick(r *Response) []byte {
	// legacy clients render a single line
	motd := strings.ReplaceAll(r.Description.Text, "\n", " ")
	fields := []string{
		"§1",
		strconv.Itoa(r.Version.Protocol),
		r.Version.Name,
		motd,
		strconv.Itoa(r.Players.Online),
		strconv.Itoa(r.Players.Max),
	}
	units := utf16.Encode([]rune(strings.Join(fields, "\x00")))

	out := make([]byte, 3, 3+2*len(units))
	out[0] = 0xFF
	binary.BigEndian.PutUint16(out[1:3], uint16(len(units)))
	for _, u := range units {
		out = binary.BigEndian.AppendUint16(out, u)
	}
	return out
}
