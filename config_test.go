package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeConfigFile(t *testing.T, data string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("unable to write config file: %v", err)
	}
	return path
}

func Test_parseConfigFile(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		want    *Config
		wantErr bool
	}{
		{
			name: "full",
			yaml: `
provider: github
org: acme
root: /var/lib/mirrors
repo_type: private
ssh: true
auth:
  username: bot
  token: tkn
`,
			want: &Config{
				Provider: "github",
				Org:      "acme",
				Root:     "/var/lib/mirrors",
				RepoType: "private",
				SSH:      true,
				Auth:     AuthConfig{Username: "bot", Token: "tkn"},
			},
		},
		{
			name: "github app",
			yaml: `
provider: github
org: acme
auth:
  github_app_id: "123"
  github_app_installation_id: "456"
  github_app_private_key_path: /etc/forge-sync/key.pem
`,
			want: &Config{
				Provider: "github",
				Org:      "acme",
				Auth: AuthConfig{
					GithubAppID:             "123",
					GithubAppInstallationID: "456",
					GithubAppPrivateKeyPath: "/etc/forge-sync/key.pem",
				},
			},
		},
		{
			name: "unexpected top level key",
			yaml: `
provider: github
owner: bob
intervall: 30s
`,
			wantErr: true,
		},
		{
			name: "unexpected auth key",
			yaml: `
provider: github
owner: bob
auth:
  tokenn: tkn
`,
			wantErr: true,
		},
		{
			name:    "not yaml",
			yaml:    `{{`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseConfigFile(writeConfigFile(t, tt.yaml))
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseConfigFile() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("parseConfigFile() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func Test_applyDefaults(t *testing.T) {
	conf := &Config{Owner: "bob"}
	applyDefaults(conf)

	want := &Config{
		Provider: "github",
		Owner:    "bob",
		RepoType: "all",
		Root:     defaultRoot,
	}
	if diff := cmp.Diff(want, conf); diff != "" {
		t.Errorf("applyDefaults() mismatch (-want +got):\n%s", diff)
	}
}

func Test_validateConfig(t *testing.T) {
	tests := []struct {
		name    string
		conf    *Config
		wantErr bool
	}{
		{
			name: "valid user",
			conf: &Config{Provider: "github", Owner: "bob"},
		},
		{
			name: "valid org",
			conf: &Config{Provider: "github", Org: "acme"},
		},
		{
			name: "valid bitbucket",
			conf: &Config{Provider: "bitbucket", Owner: "acme-ws"},
		},
		{
			name:    "unknown provider",
			conf:    &Config{Provider: "gitlab", Owner: "bob"},
			wantErr: true,
		},
		{
			name:    "no owner or org",
			conf:    &Config{Provider: "github"},
			wantErr: true,
		},
		{
			name: "partial github app auth",
			conf: &Config{
				Provider: "github", Org: "acme",
				Auth: AuthConfig{GithubAppID: "123"},
			},
			wantErr: true,
		},
		{
			name: "complete github app auth",
			conf: &Config{
				Provider: "github", Org: "acme",
				Auth: AuthConfig{
					GithubAppID:             "123",
					GithubAppInstallationID: "456",
					GithubAppPrivateKeyPath: "/key.pem",
				},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := validateConfig(tt.conf); (err != nil) != tt.wantErr {
				t.Errorf("validateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
