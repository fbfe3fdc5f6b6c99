package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/songle-game/songle-server/internal/difficulty"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "difficulty.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDifficultyFileMissing(t *testing.T) {
	f, err := LoadDifficultyFile(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Empty(t, f.Difficulty)
}

func TestApplyOverrides(t *testing.T) {
	path := writeFile(t, `
[difficulty.1]
threshold = 35.0
timeout = 120

[difficulty.6]
name = "Stroll"
threshold = 150.0
`)
	f, err := LoadDifficultyFile(path)
	require.NoError(t, err)
	table, err := f.Apply(difficulty.Default())
	require.NoError(t, err)

	one := table["1"]
	assert.Equal(t, 35.0, one.CollectThresholdMeters)
	assert.Equal(t, 120, one.TimeoutSeconds)
	assert.True(t, one.TimerEnabled, "unset keys keep built-in values")

	six := table["6"]
	assert.Equal(t, "Stroll", six.Name)
	assert.Equal(t, 150.0, six.CollectThresholdMeters)
	assert.False(t, six.TimerEnabled)
	assert.Equal(t, 50.0, table["2"].CollectThresholdMeters)
}

func TestApplyRejectsBadValues(t *testing.T) {
	f, err := LoadDifficultyFile(writeFile(t, "[difficulty.7]\ntimeout = 10\n"))
	require.NoError(t, err)
	_, err = f.Apply(difficulty.Default())
	assert.Error(t, err)

	f, err = LoadDifficultyFile(writeFile(t, "[difficulty.1]\nthreshold = -1.0\n"))
	require.NoError(t, err)
	_, err = f.Apply(difficulty.Default())
	assert.Error(t, err)

	_, err = LoadDifficultyFile(writeFile(t, "[difficulty.1]\nradius = 3\n"))
	assert.ErrorContains(t, err, "unknown key")
}

func TestFromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("SONGS_BASE_URL", "http://songs.test/data/")
	t.Setenv("PING_INTERVAL", "3s")
	t.Setenv("AUTO_COLLECT", "true")
	t.Setenv("NODE_ENV", "production")
	t.Setenv("DIFFICULTY_FILE", filepath.Join(t.TempDir(), "absent.toml"))

	c, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "9000", c.Port)
	assert.Equal(t, "http://songs.test/data", c.SongsBaseURL)
	assert.Equal(t, 3*time.Second, c.PingInterval)
	assert.True(t, c.AutoCollect)
	assert.True(t, c.Production)
	assert.Equal(t, 7, c.JWTExpiresDays)
	assert.Len(t, c.Difficulties, 5)
}

func TestFromEnvRejectsBadDuration(t *testing.T) {
	t.Setenv("DIFFICULTY_FILE", filepath.Join(t.TempDir(), "absent.toml"))
	t.Setenv("FETCH_TIMEOUT", "soon")
	_, err := FromEnv()
	assert.ErrorContains(t, err, "FETCH_TIMEOUT")
}
