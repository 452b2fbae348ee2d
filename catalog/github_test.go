package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func githubPage(repos ...string) string {
	out := "["
	for i, name := range repos {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf(`{"name":%q,"clone_url":"https://host.xz/org/%s.git","ssh_url":"git@host.xz:org/%s.git"}`,
			name, name, name)
	}
	return out + "]"
}

func TestGithub_paginationCompleteness(t *testing.T) {
	// pages of sizes [2, 2, 0] must produce exactly 4 entries
	pages := map[string]string{
		"1": githubPage("repo1", "repo2"),
		"2": githubPage("repo3", "repo4"),
		"3": githubPage(),
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/bob/repos" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		fmt.Fprint(w, pages[r.URL.Query().Get("page")])
	}))
	defer srv.Close()

	gh, err := NewGithub(GithubConfig{APIURL: srv.URL, Username: "bob"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cat, err := gh.ListRepositories(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []Entry{
		{"repo1", "https://host.xz/org/repo1.git"},
		{"repo2", "https://host.xz/org/repo2.git"},
		{"repo3", "https://host.xz/org/repo3.git"},
		{"repo4", "https://host.xz/org/repo4.git"},
	}
	if diff := cmp.Diff(want, cat.Entries()); diff != "" {
		t.Errorf("ListRepositories() mismatch (-want +got):\n%s", diff)
	}
}

func TestGithub_duplicateNamesAcrossPages(t *testing.T) {
	pages := map[string]string{
		"1": githubPage("repo1", "repo2"),
		"2": githubPage("repo1"),
		"3": githubPage(),
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, pages[r.URL.Query().Get("page")])
	}))
	defer srv.Close()

	gh, err := NewGithub(GithubConfig{APIURL: srv.URL, Username: "bob"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cat, err := gh.ListRepositories(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cat.Len() != 2 {
		t.Errorf("Len() = %d, want 2", cat.Len())
	}
}

func TestGithub_endpointSelection(t *testing.T) {
	tests := []struct {
		name string
		conf GithubConfig
		want string
	}{
		{"org_set", GithubConfig{Username: "bob", Org: "acme"}, "/orgs/acme/repos"},
		{"token_set", GithubConfig{Username: "bob", Token: "t0ken"}, "/user/repos"},
		{"user_only", GithubConfig{Username: "bob"}, "/users/bob/repos"},
		// org wins over token
		{"org_and_token", GithubConfig{Org: "acme", Token: "t0ken"}, "/orgs/acme/repos"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPath string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				fmt.Fprint(w, "[]")
			}))
			defer srv.Close()

			tt.conf.APIURL = srv.URL
			gh, err := NewGithub(tt.conf, nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if _, err := gh.ListRepositories(context.Background()); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if gotPath != tt.want {
				t.Errorf("requested path = %q, want %q", gotPath, tt.want)
			}
		})
	}
}

func TestGithub_sshFlavor(t *testing.T) {
	pages := map[string]string{
		"1": githubPage("repo1"),
		"2": githubPage(),
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, pages[r.URL.Query().Get("page")])
	}))
	defer srv.Close()

	gh, err := NewGithub(GithubConfig{APIURL: srv.URL, Username: "bob", Flavor: FlavorSSH}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cat, err := gh.ListRepositories(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []Entry{{"repo1", "git@host.xz:org/repo1.git"}}
	if diff := cmp.Diff(want, cat.Entries()); diff != "" {
		t.Errorf("ListRepositories() mismatch (-want +got):\n%s", diff)
	}
}

func TestGithub_missingFlavorSkipped(t *testing.T) {
	pages := map[string]string{
		"1": `[{"name":"repo1","clone_url":"https://host.xz/org/repo1.git","ssh_url":""},
		      {"name":"repo2","clone_url":"https://host.xz/org/repo2.git","ssh_url":"git@host.xz:org/repo2.git"}]`,
		"2": "[]",
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, pages[r.URL.Query().Get("page")])
	}))
	defer srv.Close()

	gh, err := NewGithub(GithubConfig{APIURL: srv.URL, Username: "bob", Flavor: FlavorSSH}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cat, err := gh.ListRepositories(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []Entry{{"repo2", "git@host.xz:org/repo2.git"}}
	if diff := cmp.Diff(want, cat.Entries()); diff != "" {
		t.Errorf("ListRepositories() mismatch (-want +got):\n%s", diff)
	}
}

func TestGithub_authenticationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	}))
	defer srv.Close()

	gh, err := NewGithub(GithubConfig{APIURL: srv.URL, Username: "bob", Token: "stale"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := gh.ListRepositories(context.Background()); !errors.Is(err, ErrAuthentication) {
		t.Errorf("error %v should wrap ErrAuthentication", err)
	}
}

func TestGithub_networkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // listener gone, requests fail at transport level

	gh, err := NewGithub(GithubConfig{APIURL: srv.URL, Username: "bob"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := gh.ListRepositories(context.Background()); !errors.Is(err, ErrNetwork) {
		t.Errorf("error %v should wrap ErrNetwork", err)
	}
}

func TestGithub_tokenHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, "[]")
	}))
	defer srv.Close()

	gh, err := NewGithub(GithubConfig{APIURL: srv.URL, Username: "bob", Token: "t0ken"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := gh.ListRepositories(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "Bearer t0ken" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer t0ken")
	}
}

func TestNewGithub_validation(t *testing.T) {
	if _, err := NewGithub(GithubConfig{}, nil); err == nil {
		t.Error("expected error for missing username and org")
	}
	if _, err := NewGithub(GithubConfig{Username: "bob", RepoType: "forked"}, nil); err == nil {
		t.Error("expected error for invalid repo type")
	}
}
