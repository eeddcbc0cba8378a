package cmd

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/gqlharvest/internal/config"
)

func TestInitializeConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	require.NoError(t, initializeConfig())

	var cfg config.Config
	require.NoError(t, viper.Unmarshal(&cfg))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "api.graphql.imdb.com", cfg.Extract.GraphQLHost)
	assert.Equal(t, "ur195879360", cfg.Extract.DefaultUserID)
	assert.True(t, cfg.Browser.Headless)
}

func TestInitializeConfig_EnvOverride(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("GQLHARVEST_EXTRACT_GRAPHQL_HOST", "api.graphql.example.test")
	t.Setenv("GQLHARVEST_BROWSER_REMOTE_URL", "ws://browser-farm:9222")

	require.NoError(t, initializeConfig())

	var cfg config.Config
	require.NoError(t, viper.Unmarshal(&cfg))

	assert.Equal(t, "api.graphql.example.test", cfg.Extract.GraphQLHost)
	assert.Equal(t, "ws://browser-farm:9222", cfg.Browser.RemoteURL)
}
