package viewer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/pscheid92/tilecast/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettings_MissingFileGivesDefaults(t *testing.T) {
	s, err := LoadSettings(filepath.Join(t.TempDir(), "viewer.json"))

	require.NoError(t, err)
	assert.Equal(t, ProtocolHTTP, s.Protocol)
	assert.Equal(t, DefaultBackend, s.BackendAddress)
	assert.Equal(t, domain.ThemeSystem, s.Theme)
	_, err = uuid.Parse(s.ClientID)
	assert.NoError(t, err)
}

func TestSettings_SaveLoadKeepsClientID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "viewer.json")

	first, err := LoadSettings(path)
	require.NoError(t, err)
	first.Override("wss", "relay.example:443", "light")
	require.NoError(t, first.Save(path))

	second, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, ProtocolWSS, second.Protocol)
	assert.Equal(t, domain.ThemeLight, second.Theme)
}

func TestLoadSettings_FillsMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "viewer.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"protocol":"ws"}`), 0o600))

	s, err := LoadSettings(path)

	require.NoError(t, err)
	assert.Equal(t, ProtocolWS, s.Protocol)
	assert.Equal(t, DefaultBackend, s.BackendAddress)
	assert.NotEmpty(t, s.ClientID)
}

func TestLoadSettings_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `{`},
		{name: "bad protocol", body: `{"protocol":"gopher"}`},
		{name: "bad backend", body: `{"backendAddress":"no-port"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "viewer.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o600))

			_, err := LoadSettings(path)
			assert.Error(t, err)
		})
	}
}

func TestProtocol(t *testing.T) {
	assert.True(t, ProtocolWSS.Secure())
	assert.True(t, ProtocolHTTPS.Secure())
	assert.False(t, ProtocolWS.Secure())
	assert.True(t, ProtocolWS.Streaming())
	assert.False(t, ProtocolHTTP.Streaming())
	assert.False(t, Protocol("ftp").Valid())
}
