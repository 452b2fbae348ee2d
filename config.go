package main

import (
	"fmt"
	"os"
	"path"
	"reflect"
	"slices"

	"gopkg.in/yaml.v3"
)

const (
	defaultProvider = "github"
	defaultRepoType = "all"
)

var defaultRoot = path.Join(os.TempDir(), "forge-sync")

// AuthConfig holds the provider credentials.
// For github either a token or the app fields are used, for bitbucket
// username and token together select basic auth
type AuthConfig struct {
	Username                string `yaml:"username"`
	Token                   string `yaml:"token"`
	GithubAppID             string `yaml:"github_app_id"`
	GithubAppInstallationID string `yaml:"github_app_installation_id"`
	GithubAppPrivateKeyPath string `yaml:"github_app_private_key_path"`
}

// Config is the file based configuration of a sync run, every value can
// also be given as a flag or env which takes precedence
type Config struct {
	// Provider is the hosting provider, 'github' or 'bitbucket'
	Provider string `yaml:"provider"`

	// Owner is the user or workspace whose repositories are mirrored
	Owner string `yaml:"owner"`

	// Org, if set, mirrors the github organisation instead of the user
	Org string `yaml:"org"`

	// APIURL overrides the provider api base url, for enterprise installs
	APIURL string `yaml:"api_url"`

	// Root is the dir under which the per-account mirror dir is created
	Root string `yaml:"root"`

	// SSH requests ssh clone urls from the provider instead of https
	SSH bool `yaml:"ssh"`

	// RepoType filters github listings, 'public', 'private' or 'all'
	RepoType string `yaml:"repo_type"`

	Auth AuthConfig `yaml:"auth"`
}

func parseConfigFile(path string) (*Config, error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := validateConfigKeys(yamlFile); err != nil {
		return nil, err
	}

	conf := &Config{}
	if err := yaml.Unmarshal(yamlFile, conf); err != nil {
		return nil, err
	}

	return conf, nil
}

// validateConfigKeys rejects unknown keys so typos don't silently fall
// back to defaults
func validateConfigKeys(yamlData []byte) error {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(yamlData, &raw); err != nil {
		return err
	}

	allowedKeys := getAllowedKeys(Config{})
	if key := findUnexpectedKey(raw, allowedKeys); key != "" {
		return fmt.Errorf("unexpected key: .%v", key)
	}

	if authMap, ok := raw["auth"].(map[string]interface{}); ok {
		allowedAuthKeys := getAllowedKeys(AuthConfig{})
		if key := findUnexpectedKey(authMap, allowedAuthKeys); key != "" {
			return fmt.Errorf("unexpected key: .auth.%v", key)
		}
	}

	return nil
}

func applyDefaults(conf *Config) {
	if conf.Provider == "" {
		conf.Provider = defaultProvider
	}
	if conf.RepoType == "" {
		conf.RepoType = defaultRepoType
	}
	if conf.Root == "" {
		conf.Root = defaultRoot
	}
}

func validateConfig(conf *Config) error {
	switch conf.Provider {
	case "github", "bitbucket":
	default:
		return fmt.Errorf("wrong provider '%s' provided, must be one of github, bitbucket", conf.Provider)
	}

	if conf.Owner == "" && conf.Org == "" {
		return fmt.Errorf("owner or org must be set")
	}

	// app auth only works as a complete set
	appFields := []string{conf.Auth.GithubAppID, conf.Auth.GithubAppInstallationID, conf.Auth.GithubAppPrivateKeyPath}
	if slices.Contains(appFields, "") && !allEmpty(appFields) {
		return fmt.Errorf("github app auth requires app id, installation id and private key path")
	}

	return nil
}

func allEmpty(values []string) bool {
	for _, v := range values {
		if v != "" {
			return false
		}
	}
	return true
}

// getAllowedKeys retrieves a list of allowed keys from the specified struct
func getAllowedKeys(config interface{}) []string {
	var allowedKeys []string
	val := reflect.ValueOf(config)
	typ := reflect.TypeOf(config)

	for i := 0; i < val.NumField(); i++ {
		field := typ.Field(i)
		yamlTag := field.Tag.Get("yaml")
		if yamlTag != "" {
			allowedKeys = append(allowedKeys, yamlTag)
		}
	}
	return allowedKeys
}

func findUnexpectedKey(raw interface{}, allowedKeys []string) string {
	for key := range raw.(map[string]interface{}) {
		if !slices.Contains(allowedKeys, key) {
			return key
		}
	}

	return ""
}
