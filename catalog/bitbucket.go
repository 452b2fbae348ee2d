package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const defaultBitbucketAPIURL = "https://api.bitbucket.org/2.0"

// BitbucketConfig is the configuration of the bitbucket repository listing
type BitbucketConfig struct {
	// APIURL is the base url of the bitbucket REST API, defaults to
	// the bitbucket.org cloud API
	APIURL string

	// Workspace is the bitbucket workspace (username or team name)
	Workspace string

	// Username is the atlassian account email, when set together with
	// Token basic auth is used, a Token alone is sent as bearer
	Username string

	// Token is an atlassian api token or oauth token
	Token string

	// Flavor selects https or ssh clone urls, defaults to https
	Flavor CloneFlavor
}

// Bitbucket lists repositories of a bitbucket workspace
type Bitbucket struct {
	conf   BitbucketConfig
	client *http.Client
	log    *slog.Logger
}

// NewBitbucket creates a bitbucket catalog provider from the given config
func NewBitbucket(conf BitbucketConfig, log *slog.Logger) (*Bitbucket, error) {
	if conf.Workspace == "" {
		return nil, fmt.Errorf("bitbucket workspace must be set")
	}

	if conf.APIURL == "" {
		conf.APIURL = defaultBitbucketAPIURL
	}
	if conf.Flavor == "" {
		conf.Flavor = FlavorHTTPS
	}

	if log == nil {
		log = slog.Default()
	}

	return &Bitbucket{
		conf:   conf,
		client: &http.Client{Timeout: 30 * time.Second},
		log:    log.With("provider", "bitbucket"),
	}, nil
}

type bitbucketCloneLink struct {
	Name string `json:"name"`
	Href string `json:"href"`
}

type bitbucketRepo struct {
	Name  string `json:"name"`
	Links struct {
		Clone []bitbucketCloneLink `json:"clone"`
	} `json:"links"`
}

type bitbucketRepoPage struct {
	Values []bitbucketRepo `json:"values"`
	Next   string          `json:"next"`
}

// ListRepositories returns all repositories of the configured workspace.
// bitbucket paginates with an explicit next-page url, a page without one
// terminates the listing.
func (b *Bitbucket) ListRepositories(ctx context.Context) (*Catalog, error) {
	cat := New()

	pageURL := fmt.Sprintf("%s/repositories/%s", b.conf.APIURL, b.conf.Workspace)
	for pageURL != "" {
		page, err := b.listPage(ctx, pageURL)
		if err != nil {
			return nil, err
		}

		for _, repo := range page.Values {
			cloneURL := b.cloneURL(repo)
			if cloneURL == "" {
				b.log.Warn("repository has no clone url of requested flavor, skipping",
					"repo", repo.Name, "flavor", b.conf.Flavor)
				continue
			}
			cat.Add(repo.Name, cloneURL)
		}

		pageURL = page.Next
	}

	b.log.Info("repository listing complete", "count", cat.Len())
	return cat, nil
}

func (b *Bitbucket) listPage(ctx context.Context, pageURL string) (*bitbucketRepoPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "forge-sync")
	switch {
	case b.conf.Username != "" && b.conf.Token != "":
		req.SetBasicAuth(b.conf.Username, b.conf.Token)
	case b.conf.Token != "":
		req.Header.Set("Authorization", "Bearer "+b.conf.Token)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: err:%v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %s", ErrAuthentication, resp.Status)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("bitbucket api error: %s", resp.Status)
	}

	page := &bitbucketRepoPage{}
	if err := json.NewDecoder(resp.Body).Decode(page); err != nil {
		return nil, fmt.Errorf("unable to decode repository listing err:%w", err)
	}

	return page, nil
}

// cloneURL picks the clone link of the requested flavor.
// bitbucket names its https clone links "https"
func (b *Bitbucket) cloneURL(repo bitbucketRepo) string {
	for _, link := range repo.Links.Clone {
		if link.Name == string(b.conf.Flavor) {
			return link.Href
		}
	}
	return ""
}
