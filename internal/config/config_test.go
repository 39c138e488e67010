package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T) *Config {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	cfg := load(t)

	require.NoError(t, cfg.Validate())
	assert.Equal(t, ".artifacts/generations.db", cfg.SQLitePath)
	assert.Equal(t, "public/results", cfg.ResultsDir)
	assert.Equal(t, int64(16*1024*1024), cfg.MaxImageSize)
	assert.False(t, cfg.MirrorEnabled())
	assert.Empty(t, cfg.ImageProxyURL)

	p := cfg.Policy()
	assert.Equal(t, 2*time.Second, p.PollInterval)
	assert.Equal(t, 30, p.MaxPollAttempts)
	assert.Equal(t, 3, p.DownloadRetries)
	assert.Equal(t, 2*time.Second, p.DownloadBackoff)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MUSICVIDEO_POLL_INTERVAL", "500ms")
	t.Setenv("MUSICVIDEO_MAX_POLL_ATTEMPTS", "12")
	t.Setenv("MUSICVIDEO_S3_BUCKET", "renders")
	t.Setenv("RUNWAYML_API_SECRET", "secret")

	cfg := load(t)

	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 12, cfg.MaxPollAttempts)
	assert.True(t, cfg.MirrorEnabled())
	assert.Equal(t, "secret", cfg.RunwayAPIKey)
	assert.NoError(t, cfg.RequireProvider())
}

func TestValidate(t *testing.T) {
	cfg := load(t)

	bad := *cfg
	bad.MaxPollAttempts = 0
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.ResultsDir = ""
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.RunwayAPIKey = ""
	assert.Error(t, bad.RequireProvider())
}

func TestServerProxyURL(t *testing.T) {
	tests := []struct {
		listen string
		proxy  string
		want   string
	}{
		{listen: ":8080", want: "http://localhost:8080/api/proxy-image"},
		{listen: ":3000", want: "http://localhost:3000/api/proxy-image"},
		{listen: "0.0.0.0:9000", want: "http://localhost:9000/api/proxy-image"},
		{listen: "127.0.0.1:8081", want: "http://127.0.0.1:8081/api/proxy-image"},
		{listen: ":3000", proxy: "https://proxy.example/img", want: "https://proxy.example/img"},
		{listen: "not-an-addr", want: ""},
	}
	for _, tt := range tests {
		cfg := Config{ListenAddr: tt.listen, ImageProxyURL: tt.proxy}
		assert.Equal(t, tt.want, cfg.ServerProxyURL(), tt.listen)
	}
}

func TestServerProxyURLFollowsListenAddrEnv(t *testing.T) {
	t.Setenv("MUSICVIDEO_LISTEN_ADDR", ":3000")

	cfg := load(t)

	assert.Empty(t, cfg.ImageProxyURL)
	assert.Equal(t, "http://localhost:3000/api/proxy-image", cfg.ServerProxyURL())
}
