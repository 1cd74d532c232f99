package mirror

import (
	"strings"
)

const (
	defaultSyncDirectoryConstant  = "syncDirectory"
	defaultGitHubAPIURLConstant   = "https://api.github.com"
	targetOrganizationKeyConstant = "target_org"
	prefixKeyConstant             = "prefix"
	masterBranchPrefixKeyConstant = "master_branch_prefix"
	directoryKeyConstant          = "directory"
	metricsFileKeyConstant        = "metrics_file"
	bitbucketKeyConstant          = "bitbucket"
	githubKeyConstant             = "github"
	apiURLKeyConstant             = "api_url"
	accountIDKeyConstant          = "account_id"
	accessTokenKeyConstant        = "access_token"
	configurationKeySeparator     = "."
)

// ForgeConfiguration holds the endpoint and credentials of one forge.
// AccessToken accepts a literal token or an env:NAME / file:PATH source.
type ForgeConfiguration struct {
	APIURL      string `mapstructure:"api_url"`
	AccountID   string `mapstructure:"account_id"`
	AccessToken string `mapstructure:"access_token"`
}

// CommandConfiguration captures the sync settings shared by the auto and interactive commands.
type CommandConfiguration struct {
	TargetOrganization string             `mapstructure:"target_org"`
	Prefix             string             `mapstructure:"prefix"`
	MasterBranchPrefix string             `mapstructure:"master_branch_prefix"`
	Directory          string             `mapstructure:"directory"`
	MetricsFile        string             `mapstructure:"metrics_file"`
	Bitbucket          ForgeConfiguration `mapstructure:"bitbucket"`
	GitHub             ForgeConfiguration `mapstructure:"github"`
}

// DefaultCommandConfiguration returns baseline configuration values.
func DefaultCommandConfiguration() CommandConfiguration {
	return CommandConfiguration{
		Directory: defaultSyncDirectoryConstant,
		GitHub:    ForgeConfiguration{APIURL: defaultGitHubAPIURLConstant},
	}
}

// DefaultConfigurationValues exposes the defaults keyed for the configuration loader under prefix.
func DefaultConfigurationValues(prefix string) map[string]any {
	defaults := DefaultCommandConfiguration()
	key := func(parts ...string) string {
		return strings.Join(append([]string{prefix}, parts...), configurationKeySeparator)
	}

	return map[string]any{
		key(targetOrganizationKeyConstant):                defaults.TargetOrganization,
		key(prefixKeyConstant):                            defaults.Prefix,
		key(masterBranchPrefixKeyConstant):                defaults.MasterBranchPrefix,
		key(directoryKeyConstant):                         defaults.Directory,
		key(metricsFileKeyConstant):                       defaults.MetricsFile,
		key(bitbucketKeyConstant, apiURLKeyConstant):      defaults.Bitbucket.APIURL,
		key(bitbucketKeyConstant, accountIDKeyConstant):   defaults.Bitbucket.AccountID,
		key(bitbucketKeyConstant, accessTokenKeyConstant): defaults.Bitbucket.AccessToken,
		key(githubKeyConstant, apiURLKeyConstant):         defaults.GitHub.APIURL,
		key(githubKeyConstant, accountIDKeyConstant):      defaults.GitHub.AccountID,
		key(githubKeyConstant, accessTokenKeyConstant):    defaults.GitHub.AccessToken,
	}
}

// sanitize trims whitespace and applies defaults to unset values.
func (configuration CommandConfiguration) sanitize() CommandConfiguration {
	defaults := DefaultCommandConfiguration()
	sanitized := CommandConfiguration{
		TargetOrganization: strings.TrimSpace(configuration.TargetOrganization),
		Prefix:             strings.TrimSpace(configuration.Prefix),
		MasterBranchPrefix: strings.TrimSpace(configuration.MasterBranchPrefix),
		Directory:          strings.TrimSpace(configuration.Directory),
		MetricsFile:        strings.TrimSpace(configuration.MetricsFile),
		Bitbucket:          configuration.Bitbucket.sanitize(),
		GitHub:             configuration.GitHub.sanitize(),
	}
	if len(sanitized.Directory) == 0 {
		sanitized.Directory = defaults.Directory
	}
	if len(sanitized.GitHub.APIURL) == 0 {
		sanitized.GitHub.APIURL = defaults.GitHub.APIURL
	}
	return sanitized
}

func (configuration ForgeConfiguration) sanitize() ForgeConfiguration {
	return ForgeConfiguration{
		APIURL:      strings.TrimRight(strings.TrimSpace(configuration.APIURL), "/"),
		AccountID:   strings.TrimSpace(configuration.AccountID),
		AccessToken: strings.TrimSpace(configuration.AccessToken),
	}
}
