package profile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovekit/grove/internal/urn"
)

func TestCreateAndLoad(t *testing.T) {
	home := t.TempDir()

	created, err := Create(home, "work")
	require.NoError(t, err)
	assert.Equal(t, "work", created.Name)
	assert.Equal(t, urn.KindPeer, created.Peer().Kind())

	loaded, err := Load(home, "work")
	require.NoError(t, err)
	assert.Equal(t, created.Peer(), loaded.Peer(), "identity is stable across loads")
}

func TestCreateDuplicate(t *testing.T) {
	home := t.TempDir()
	_, err := Create(home, "work")
	require.NoError(t, err)

	_, err = Create(home, "work")
	require.ErrorIs(t, err, ErrProfileExists)
}

func TestCreateValidatesName(t *testing.T) {
	home := t.TempDir()
	for _, name := range []string{"", "With Space", "UPPER", "sla/sh", "dot."} {
		_, err := Create(home, name)
		assert.Error(t, err, "name %q", name)
	}
}

func TestFirstProfileBecomesDefault(t *testing.T) {
	home := t.TempDir()

	_, err := Load(home, "")
	require.ErrorIs(t, err, ErrNoProfile)

	_, err = Create(home, "first")
	require.NoError(t, err)
	_, err = Create(home, "second")
	require.NoError(t, err)

	p, err := Load(home, "")
	require.NoError(t, err)
	assert.Equal(t, "first", p.Name)

	require.NoError(t, SetDefault(home, "second"))
	p, err = Load(home, "")
	require.NoError(t, err)
	assert.Equal(t, "second", p.Name)
}

func TestSetDefaultUnknownProfile(t *testing.T) {
	home := t.TempDir()
	require.ErrorIs(t, SetDefault(home, "ghost"), ErrNoProfile)
}

func TestList(t *testing.T) {
	home := t.TempDir()

	names, err := List(home)
	require.NoError(t, err)
	assert.Empty(t, names)

	_, err = Create(home, "alpha")
	require.NoError(t, err)
	_, err = Create(home, "beta")
	require.NoError(t, err)

	names, err = List(home)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, names)
}

func TestConfigRoundTrip(t *testing.T) {
	home := t.TempDir()
	p, err := Create(home, "work")
	require.NoError(t, err)

	p.Config.TieBreak = "clock-then-author"
	p.Config.Sync.PeerTimeout = 5 * time.Second
	require.NoError(t, p.SaveConfig())

	loaded, err := Load(home, "work")
	require.NoError(t, err)
	assert.Equal(t, "clock-then-author", loaded.Config.TieBreak)
	assert.Equal(t, 5*time.Second, loaded.PeerTimeout())
}

func TestStateDirResolution(t *testing.T) {
	home := t.TempDir()
	p, err := Create(home, "work")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(p.Dir, "state"), p.StateDir())

	p.Config.StateDir = "elsewhere"
	assert.Equal(t, filepath.Join(p.Dir, "elsewhere"), p.StateDir())

	abs := t.TempDir()
	p.Config.StateDir = abs
	assert.Equal(t, abs, p.StateDir())
}

func TestOpenStore(t *testing.T) {
	home := t.TempDir()
	p, err := Create(home, "work")
	require.NoError(t, err)

	s, err := p.OpenStore()
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(p.StateDir())
	require.NoError(t, err)
}

func TestKeyFilePermissions(t *testing.T) {
	home := t.TempDir()
	p, err := Create(home, "work")
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(p.Dir, "key"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadCorruptKey(t *testing.T) {
	home := t.TempDir()
	p, err := Create(home, "work")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(p.Dir, "key"), []byte("zz-not-hex\n"), 0o600))
	_, err = Load(home, "work")
	require.Error(t, err)
}
