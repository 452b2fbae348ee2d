package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"

	"github.com/utilitywarehouse/forge-sync/auth"
	"github.com/utilitywarehouse/forge-sync/catalog"
	"github.com/utilitywarehouse/forge-sync/repository"
	"github.com/utilitywarehouse/forge-sync/syncer"
)

const metricsNamespace = "forgesync"

var (
	loggerLevel = new(slog.LevelVar)
	logger      *slog.Logger

	levelStrings = map[string]slog.Level{
		"trace": slog.Level(-8),
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}

	flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Sources: cli.EnvVars("FORGE_SYNC_CONFIG"),
			Usage:   "Absolute path to the config file.",
		},
		&cli.StringFlag{
			Name:    "provider",
			Sources: cli.EnvVars("FORGE_SYNC_PROVIDER"),
			Usage:   "Hosting provider to list repositories from, 'github' or 'bitbucket'.",
		},
		&cli.StringFlag{
			Name:    "owner",
			Sources: cli.EnvVars("FORGE_SYNC_OWNER", "GH_USERNAME", "BB_WORKSPACE"),
			Usage:   "User or workspace whose repositories are mirrored.",
		},
		&cli.StringFlag{
			Name:    "org",
			Sources: cli.EnvVars("FORGE_SYNC_ORG", "GH_ORG"),
			Usage:   "Github organisation to mirror instead of a user.",
		},
		&cli.StringFlag{
			Name:    "api-url",
			Sources: cli.EnvVars("FORGE_SYNC_API_URL"),
			Usage:   "Provider api base url, for enterprise installs.",
		},
		&cli.StringFlag{
			Name:    "root",
			Sources: cli.EnvVars("FORGE_SYNC_ROOT"),
			Usage:   "Path under which the per-account mirror dir is created.",
		},
		&cli.StringFlag{
			Name:    "repo-type",
			Sources: cli.EnvVars("FORGE_SYNC_REPO_TYPE"),
			Usage:   "Filter github listings, one of 'public', 'private' or 'all'.",
		},
		&cli.BoolFlag{
			Name:    "ssh",
			Sources: cli.EnvVars("FORGE_SYNC_SSH", "BB_USE_SSH", "USE_SSH"),
			Usage:   "Mirror over ssh clone urls instead of https.",
		},
		&cli.StringFlag{
			Name:    "auth-user",
			Sources: cli.EnvVars("FORGE_SYNC_AUTH_USER", "BB_USER"),
			Usage:   "Username sent alongside the token, atlassian account email for bitbucket.",
		},
		&cli.StringFlag{
			Name:    "token",
			Sources: cli.EnvVars("FORGE_SYNC_TOKEN", "GH_TOKEN", "BB_TOKEN"),
			Usage:   "Personal access token used for listing and cloning.",
		},
		&cli.StringFlag{
			Name:    "github-app-id",
			Sources: cli.EnvVars("FORGE_SYNC_GITHUB_APP_ID"),
			Usage:   "Github app id, used with installation id and private key instead of a token.",
		},
		&cli.StringFlag{
			Name:    "github-app-installation-id",
			Sources: cli.EnvVars("FORGE_SYNC_GITHUB_APP_INSTALLATION_ID"),
			Usage:   "Installation id of the github app.",
		},
		&cli.StringFlag{
			Name:    "github-app-private-key-path",
			Sources: cli.EnvVars("FORGE_SYNC_GITHUB_APP_PRIVATE_KEY_PATH"),
			Usage:   "Path to the github app's RSA private key.",
		},
		&cli.StringFlag{
			Name:    "metrics-addr",
			Sources: cli.EnvVars("FORGE_SYNC_METRICS_ADDR"),
			Usage:   "Listen address for prometheus metrics, metrics are off when empty.",
		},
		&cli.StringFlag{
			Name:    "log-level",
			Sources: cli.EnvVars("LOG_LEVEL"),
			Value:   "info",
			Usage:   "Log level",
		},
	}
)

func init() {
	loggerLevel.Set(slog.LevelInfo)
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: loggerLevel,
	}))
}

// loadConfig merges the optional config file with flag and env values,
// flags win over the file
func loadConfig(c *cli.Command) (*Config, error) {
	conf := &Config{}

	if path := c.String("config"); path != "" {
		var err error
		if conf, err = parseConfigFile(path); err != nil {
			return nil, err
		}
	}

	if v := c.String("provider"); v != "" {
		conf.Provider = v
	}
	if v := c.String("owner"); v != "" {
		conf.Owner = v
	}
	if v := c.String("org"); v != "" {
		conf.Org = v
	}
	if v := c.String("api-url"); v != "" {
		conf.APIURL = v
	}
	if v := c.String("root"); v != "" {
		conf.Root = v
	}
	if v := c.String("repo-type"); v != "" {
		conf.RepoType = v
	}
	if c.Bool("ssh") {
		conf.SSH = true
	}
	if v := c.String("auth-user"); v != "" {
		conf.Auth.Username = v
	}
	if v := c.String("token"); v != "" {
		conf.Auth.Token = v
	}
	if v := c.String("github-app-id"); v != "" {
		conf.Auth.GithubAppID = v
	}
	if v := c.String("github-app-installation-id"); v != "" {
		conf.Auth.GithubAppInstallationID = v
	}
	if v := c.String("github-app-private-key-path"); v != "" {
		conf.Auth.GithubAppPrivateKeyPath = v
	}

	applyDefaults(conf)

	if err := validateConfig(conf); err != nil {
		return nil, err
	}

	return conf, nil
}

// resolveCredentials picks the principal and secret injected into clone
// urls, exchanging the app key for an installation token if configured
func resolveCredentials(ctx context.Context, conf *Config) (syncer.Credentials, error) {
	if conf.Auth.GithubAppID != "" {
		token, err := auth.GithubAppInstallationToken(ctx, auth.GithubAppConfig{
			APIURL:         conf.APIURL,
			AppID:          conf.Auth.GithubAppID,
			InstallationID: conf.Auth.GithubAppInstallationID,
			PrivateKeyPath: conf.Auth.GithubAppPrivateKeyPath,
		})
		if err != nil {
			return syncer.Credentials{}, fmt.Errorf("unable to create app installation token err:%w", err)
		}
		logger.Info("created github app installation token", "expiresAt", token.ExpiresAt)
		conf.Auth.Token = token.Token
		return syncer.Credentials{Username: auth.TokenPrincipal, Password: token.Token}, nil
	}

	username := conf.Auth.Username
	if username == "" && conf.Provider == "github" {
		username = conf.Owner
	}

	return syncer.Credentials{Username: username, Password: conf.Auth.Token}, nil
}

func newProvider(conf *Config) (catalog.Provider, error) {
	flavor := catalog.FlavorHTTPS
	if conf.SSH {
		flavor = catalog.FlavorSSH
	}

	switch conf.Provider {
	case "bitbucket":
		return catalog.NewBitbucket(catalog.BitbucketConfig{
			APIURL:    conf.APIURL,
			Workspace: conf.Owner,
			Username:  conf.Auth.Username,
			Token:     conf.Auth.Token,
			Flavor:    flavor,
		}, logger)
	default:
		return catalog.NewGithub(catalog.GithubConfig{
			APIURL:   conf.APIURL,
			Username: conf.Owner,
			Org:      conf.Org,
			Token:    conf.Auth.Token,
			RepoType: conf.RepoType,
			Flavor:   flavor,
		}, logger)
	}
}

func serveMetrics(addr string) {
	repository.EnableMetrics(metricsNamespace, prometheus.DefaultRegisterer)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics server stopped", "err", err)
		}
	}()
}

func run(ctx context.Context, c *cli.Command) error {
	// set log level according to argument
	if v, ok := levelStrings[strings.ToLower(c.String("log-level"))]; ok {
		loggerLevel.Set(v)
	}

	conf, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("unable to load config err:%w", err)
	}

	if addr := c.String("metrics-addr"); addr != "" {
		serveMetrics(addr)
	}

	creds, err := resolveCredentials(ctx, conf)
	if err != nil {
		return err
	}

	provider, err := newProvider(conf)
	if err != nil {
		return err
	}

	cat, err := provider.ListRepositories(ctx)
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrAuthentication):
			logger.Error("provider rejected the given credentials", "provider", conf.Provider)
		case errors.Is(err, catalog.ErrNetwork):
			logger.Error("provider could not be reached", "provider", conf.Provider)
		}
		return fmt.Errorf("unable to list repositories err:%w", err)
	}

	if cat.Len() == 0 {
		logger.Info("no repositories found, nothing to mirror")
		return nil
	}

	// mirrors of different accounts are kept apart by an identity dir
	// under the root
	identity := conf.Org
	if identity == "" {
		identity = conf.Owner
	}
	root, err := filepath.Abs(filepath.Join(conf.Root, identity))
	if err != nil {
		return fmt.Errorf("unable to resolve mirror root err:%w", err)
	}

	// path to resolve git and its remote helpers
	gitENV := []string{
		fmt.Sprintf("PATH=%s", os.Getenv("PATH")),
		fmt.Sprintf("HOME=%s", os.Getenv("HOME")),
	}

	s, err := syncer.New(syncer.Config{
		Root:        root,
		Envs:        gitENV,
		Credentials: creds,
	}, logger)
	if err != nil {
		return err
	}

	logger.Info("mirroring repositories", "count", cat.Len(), "root", root)

	summary := s.Run(ctx, cat)

	for _, res := range summary.Failed() {
		logger.Error("repo not mirrored", "repo", res.Name, "outcome", res.Outcome, "reason", res.Reason)
	}
	logger.Info("batch complete",
		"total", summary.Total,
		"succeeded", summary.Succeeded,
		"failed", summary.Total-summary.Succeeded)

	if summary.Succeeded != summary.Total {
		return fmt.Errorf("%d of %d repositories failed", summary.Total-summary.Succeeded, summary.Total)
	}
	return nil
}

func main() {
	// values from a .env file feed the flag env sources, real envs win
	_ = godotenv.Load()

	cmd := &cli.Command{
		Name:   "forge-sync",
		Usage:  "forge-sync mirrors all repositories of a github or bitbucket account locally.",
		Flags:  flags,
		Action: run,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Run(ctx, os.Args); err != nil {
		logger.Error("failed to run app", "err", err)
		os.Exit(1)
	}
}
