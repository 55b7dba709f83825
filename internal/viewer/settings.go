package viewer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pscheid92/tilecast/internal/domain"
)

// Protocol selects the transport family for the relay connection.
type Protocol string

const (
	ProtocolHTTP  Protocol = "http"
	ProtocolHTTPS Protocol = "https"
	ProtocolWS    Protocol = "ws"
	ProtocolWSS   Protocol = "wss"
)

const DefaultBackend = "127.0.0.1:8765"

// Valid reports whether p is one of the supported protocols.
func (p Protocol) Valid() bool {
	switch p {
	case ProtocolHTTP, ProtocolHTTPS, ProtocolWS, ProtocolWSS:
		return true
	}
	return false
}

// Secure reports whether p uses TLS.
func (p Protocol) Secure() bool {
	return p == ProtocolHTTPS || p == ProtocolWSS
}

// Streaming reports whether p is a websocket protocol.
func (p Protocol) Streaming() bool {
	return p == ProtocolWS || p == ProtocolWSS
}

// Settings is the viewer's persisted session: which relay to reach and
// under which client id.
type Settings struct {
	Protocol       Protocol     `json:"protocol"`
	BackendAddress string       `json:"backendAddress"`
	ClientID       string       `json:"clientId"`
	Theme          domain.Theme `json:"theme"`
}

// DefaultSettingsPath is $XDG_CONFIG_HOME/tilecast/viewer.json or the platform equivalent.
func DefaultSettingsPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, "tilecast", "viewer.json"), nil
}

func defaultSettings() Settings {
	return Settings{
		Protocol:       ProtocolHTTP,
		BackendAddress: DefaultBackend,
		ClientID:       uuid.NewString(),
		Theme:          domain.ThemeSystem,
	}
}

// LoadSettings reads path. A missing file yields fresh defaults with a newly
// generated client id; unset fields of an existing file are filled in.
func LoadSettings(path string) (Settings, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return defaultSettings(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}

	var s Settings
	if err := json.Unmarshal(raw, &s); err != nil {
		return Settings{}, fmt.Errorf("parse settings %s: %w", path, err)
	}
	s.fillDefaults()
	return s, s.Validate()
}

func (s *Settings) fillDefaults() {
	d := defaultSettings()
	if s.Protocol == "" {
		s.Protocol = d.Protocol
	}
	if s.BackendAddress == "" {
		s.BackendAddress = d.BackendAddress
	}
	if s.ClientID == "" {
		s.ClientID = d.ClientID
	}
	s.Theme = domain.ParseTheme(string(s.Theme))
}

// Override applies non-empty values on top of s.
func (s *Settings) Override(protocol, backend, theme string) {
	if protocol != "" {
		s.Protocol = Protocol(protocol)
	}
	if backend != "" {
		s.BackendAddress = backend
	}
	if theme != "" {
		s.Theme = domain.ParseTheme(theme)
	}
}

func (s Settings) Validate() error {
	if !s.Protocol.Valid() {
		return fmt.Errorf("unsupported protocol %q", s.Protocol)
	}
	if _, _, err := net.SplitHostPort(s.BackendAddress); err != nil {
		return fmt.Errorf("backend address %q must be host:port: %w", s.BackendAddress, err)
	}
	if s.ClientID == "" {
		return errors.New("client id is empty")
	}
	return nil
}

// Save writes s atomically, creating the parent directory if needed.
func (s Settings) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".viewer-*.json")
	if err != nil {
		return fmt.Errorf("create temp settings: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(append(raw, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}
