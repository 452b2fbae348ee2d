package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"time"
)

const (
	defaultGithubAPIURL = "https://api.github.com"
	githubPageSize      = 100
)

// GithubConfig is the configuration of the github repository listing
type GithubConfig struct {
	// APIURL is the base url of the github REST API, defaults to
	// the public github.com API
	APIURL string

	// Username is the github user whose repositories are listed
	Username string

	// Org, if set, lists the organisation's repositories instead of
	// the user's
	Org string

	// Token is a personal access token or app installation token.
	// if set and no org is given the authenticated-user listing is
	// used so private repositories are included
	Token string

	// RepoType filters listed repositories, one of 'public', 'private'
	// or 'all', defaults to 'all'
	RepoType string

	// Flavor selects https or ssh clone urls, defaults to https
	Flavor CloneFlavor
}

// Github lists repositories of a github user or organisation
type Github struct {
	conf   GithubConfig
	client *http.Client
	log    *slog.Logger
}

// NewGithub creates a github catalog provider from the given config
func NewGithub(conf GithubConfig, log *slog.Logger) (*Github, error) {
	if conf.Username == "" && conf.Org == "" {
		return nil, fmt.Errorf("github username or org must be set")
	}

	if conf.APIURL == "" {
		conf.APIURL = defaultGithubAPIURL
	}
	if conf.RepoType == "" {
		conf.RepoType = "all"
	}
	if conf.Flavor == "" {
		conf.Flavor = FlavorHTTPS
	}

	switch conf.RepoType {
	case "public", "private", "all":
	default:
		return nil, fmt.Errorf("wrong repo type provided, must be one of public, private, all")
	}

	if log == nil {
		log = slog.Default()
	}

	return &Github{
		conf:   conf,
		client: &http.Client{Timeout: 30 * time.Second},
		log:    log.With("provider", "github"),
	}, nil
}

type githubRepo struct {
	Name     string `json:"name"`
	CloneURL string `json:"clone_url"`
	SSHURL   string `json:"ssh_url"`
}

// ListRepositories returns all repositories of the configured user or org.
// github paginates with a page number, an empty page terminates the listing.
func (g *Github) ListRepositories(ctx context.Context) (*Catalog, error) {
	cat := New()

	for page := 1; ; page++ {
		repos, err := g.listPage(ctx, page)
		if err != nil {
			return nil, err
		}
		if len(repos) == 0 {
			break
		}

		for _, repo := range repos {
			cloneURL := repo.CloneURL
			if g.conf.Flavor == FlavorSSH {
				cloneURL = repo.SSHURL
			}
			if cloneURL == "" {
				g.log.Warn("repository has no clone url of requested flavor, skipping",
					"repo", repo.Name, "flavor", g.conf.Flavor)
				continue
			}
			cat.Add(repo.Name, cloneURL)
		}
	}

	g.log.Info("repository listing complete", "count", cat.Len())
	return cat, nil
}

func (g *Github) listPage(ctx context.Context, page int) ([]githubRepo, error) {
	u, err := url.Parse(g.conf.APIURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse api url err:%w", err)
	}
	u.Path = path.Join(u.Path, g.endpoint())

	q := u.Query()
	q.Set("type", g.conf.RepoType)
	q.Set("per_page", fmt.Sprintf("%d", githubPageSize))
	q.Set("page", fmt.Sprintf("%d", page))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", "forge-sync")
	if g.conf.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.conf.Token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: err:%v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %s", ErrAuthentication, resp.Status)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("github api error: %s", resp.Status)
	}

	var repos []githubRepo
	if err := json.NewDecoder(resp.Body).Decode(&repos); err != nil {
		return nil, fmt.Errorf("unable to decode repository listing err:%w", err)
	}

	return repos, nil
}

// endpoint picks the listing endpoint.
// the authenticated-user endpoint is preferred over the public per-user
// one when a token is present, as it includes private repositories
func (g *Github) endpoint() string {
	switch {
	case g.conf.Org != "":
		return fmt.Sprintf("/orgs/%s/repos", g.conf.Org)
	case g.conf.Token != "":
		return "/user/repos"
	default:
		return fmt.Sprintf("/users/%s/repos", g.conf.Username)
	}
}
