package cli_test

import (
	"bytes"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/temirov/reposync/cmd/cli"
	"github.com/temirov/reposync/internal/mirror"
)

func TestEmbeddedDefaultConfigurationMatchesSyncDefaults(t *testing.T) {
	configurationData, configurationType := cli.EmbeddedDefaultConfiguration()
	require.Equal(t, "yaml", configurationType)

	viperInstance := viper.New()
	viperInstance.SetConfigType(configurationType)
	require.NoError(t, viperInstance.ReadConfig(bytes.NewReader(configurationData)))

	var configuration mirror.CommandConfiguration
	require.NoError(t, viperInstance.UnmarshalKey("sync", &configuration))

	defaults := mirror.DefaultCommandConfiguration()
	require.Equal(t, defaults.Directory, configuration.Directory)
	require.Equal(t, defaults.GitHub.APIURL, configuration.GitHub.APIURL)
	require.Empty(t, configuration.TargetOrganization)
	require.Empty(t, configuration.Bitbucket.AccessToken)

	require.Equal(t, "info", viperInstance.GetString("common.log_level"))
	require.Empty(t, viperInstance.GetStringMap("sync.include"))
}

func TestEmbeddedDefaultConfigurationReturnsCopy(t *testing.T) {
	firstCopy, _ := cli.EmbeddedDefaultConfiguration()
	require.NotEmpty(t, firstCopy)
	firstCopy[0] = '#'

	secondCopy, _ := cli.EmbeddedDefaultConfiguration()
	require.NotEqual(t, firstCopy[0], secondCopy[0])
}
