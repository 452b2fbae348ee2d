package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/utilitywarehouse/forge-sync/giturl"
	"github.com/utilitywarehouse/forge-sync/internal/lock"
	"github.com/utilitywarehouse/forge-sync/internal/utils"
)

// Outcome of reconciling one repository
type Outcome string

const (
	// OutcomeCloned means a fresh mirror clone was created
	OutcomeCloned Outcome = "cloned"
	// OutcomeFetched means the existing mirror was updated incrementally
	OutcomeFetched Outcome = "fetched"
	// OutcomeURLUpdatedFetched means the stored remote url was refreshed
	// before the fetch
	OutcomeURLUpdatedFetched Outcome = "url-updated+fetched"
	// OutcomeSkipped means reconciliation was never attempted
	OutcomeSkipped Outcome = "skipped"
	// OutcomeFailed means a git operation failed
	OutcomeFailed Outcome = "failed"
)

// reason classes for failed and skipped outcomes
const (
	ReasonCloneError        = "clone_error"
	ReasonFetchError        = "fetch_error"
	ReasonRemoteUpdateError = "remote_update_error"
	ReasonToolMissing       = "tool_missing"
	ReasonCancelled         = "cancelled"
)

// ErrToolMissing indicates the git executable cannot be located at all.
// unlike per-repository failures it is fatal for the whole batch since no
// further repository can succeed either
var ErrToolMissing = errors.New("git executable not found")

// Result is the outcome of reconciling a single repository
type Result struct {
	Outcome Outcome
	// Reason classifies failed or skipped outcomes, empty otherwise
	Reason string
}

// Repository represents the local mirror of the given remote.
// A Repository is safe for concurrent use by multiple goroutines.
type Repository struct {
	lock    lock.RWMutex // repository will be locked during reconcile
	gitURL  *giturl.URL  // parsed remote git URL
	remote  string       // desired remote url including credentials
	name    string       // repository name, also the metrics/log label
	root    string       // absolute path to the root where repo directory is created
	dir     string       // absolute path to the repo directory
	gitExec string       // path or name of the git executable
	envs    []string     // envs which will be passed to git commands
	log     *slog.Logger
}

// New creates a mirror repository from the given config.
// The remote is not touched until Reconcile is called.
func New(conf Config, gitExec string, envs []string, log *slog.Logger) (*Repository, error) {
	remote := giturl.NormaliseURL(conf.Remote)

	gURL, err := giturl.Parse(remote)
	if err != nil {
		return nil, err
	}

	name := conf.Name
	if name == "" {
		name = strings.TrimSuffix(gURL.Repo, ".git")
	}

	if log == nil {
		log = slog.Default()
	}
	log = log.With("repo", name)

	if !filepath.IsAbs(conf.Root) {
		return nil, fmt.Errorf("repository root '%s' must be absolute", conf.Root)
	}

	if gitExec == "" {
		gitExec = "git"
	}

	// repo dir always gets the .git suffix to indicate a bare mirror,
	// its presence is the sole signal of "already mirrored"
	repoDir := filepath.Join(conf.Root, name+".git")

	return &Repository{
		gitURL:  gURL,
		remote:  remote,
		name:    name,
		root:    conf.Root,
		dir:     repoDir,
		gitExec: gitExec,
		envs:    envs,
		log:     log,
	}, nil
}

// Remote returns the desired remote url of the mirror.
// the value may contain credentials, use giturl.Redact before printing
func (r *Repository) Remote() string {
	return r.remote
}

// Name returns the repository name
func (r *Repository) Name() string {
	return r.name
}

// Directory returns the absolute path of the mirror directory
func (r *Repository) Directory() string {
	return r.dir
}

// Reconcile brings the local mirror in line with the remote:
//
//	mirror dir absent  -> git clone --mirror
//	mirror dir present -> refresh stored remote url if it differs from
//	                      the desired url, then git fetch --all --prune
//
// The returned error is non-nil for every failed outcome, callers must
// check it against ErrToolMissing which is fatal for the whole batch.
func (r *Repository) Reconcile(ctx context.Context) (Result, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	defer updateSyncLatency(r.name, time.Now())

	start := time.Now()
	res, err := r.reconcile(ctx)
	recordSync(r.name, res.Outcome)

	if err == nil {
		r.log.Info("reconcile complete", "outcome", res.Outcome, "time", time.Since(start))
	}
	return res, err
}

func (r *Repository) reconcile(ctx context.Context) (Result, error) {
	_, err := os.Stat(r.dir)
	switch {
	case os.IsNotExist(err):
		if err := r.clone(ctx); err != nil {
			if errors.Is(err, ErrToolMissing) {
				return Result{Outcome: OutcomeFailed, Reason: ReasonToolMissing}, err
			}
			// git leaves no usable repo behind a failed clone, remove
			// the partial dir so the next run retries a clean mirror
			// clone instead of fetching into a corrupt repo
			if rmErr := os.RemoveAll(r.dir); rmErr != nil {
				r.log.Error("unable to remove partial clone dir", "path", r.dir, "err", rmErr)
			}
			return Result{Outcome: OutcomeFailed, Reason: ReasonCloneError},
				fmt.Errorf("unable to mirror clone repo:%s err:%w", r.name, err)
		}
		return Result{Outcome: OutcomeCloned}, nil

	case err != nil:
		return Result{Outcome: OutcomeFailed, Reason: ReasonCloneError},
			fmt.Errorf("unable to verify repo dir err:%w", err)
	}

	urlUpdated, err := r.ensureRemoteURL(ctx)
	if err != nil {
		if errors.Is(err, ErrToolMissing) {
			return Result{Outcome: OutcomeFailed, Reason: ReasonToolMissing}, err
		}
		// best effort, fetch still runs against whatever url is stored
		// and will surface stale credentials as a fetch error
		r.log.Warn("unable to refresh stored remote url, fetching with stored url",
			"reason", ReasonRemoteUpdateError, "err", err)
	}

	if err := r.fetch(ctx); err != nil {
		if errors.Is(err, ErrToolMissing) {
			return Result{Outcome: OutcomeFailed, Reason: ReasonToolMissing}, err
		}
		return Result{Outcome: OutcomeFailed, Reason: ReasonFetchError},
			fmt.Errorf("unable to fetch repo:%s err:%w", r.name, err)
	}

	if urlUpdated {
		return Result{Outcome: OutcomeURLUpdatedFetched}, nil
	}
	return Result{Outcome: OutcomeFetched}, nil
}

// clone creates the initial bare mirror of the remote.
// everything in refs/* on the remote is mirrored into refs/* locally
func (r *Repository) clone(ctx context.Context) error {
	r.log.Info("mirror cloning repo", "path", r.dir, "url", giturl.Redact(r.remote))

	// git clone --mirror --no-progress <remote> <dir>
	_, err := r.git(ctx, "", "clone", "--mirror", "--no-progress", r.remote, r.dir)
	return err
}

// ensureRemoteURL compares the stored remote url with the desired one and
// rewrites it on mismatch. comparison is on the literal url, credentials
// included, so token rotation triggers an update
func (r *Repository) ensureRemoteURL(ctx context.Context) (bool, error) {
	// git config --get remote.origin.url
	storedURL, err := r.git(ctx, r.dir, "config", "--get", "remote.origin.url")
	if err != nil {
		return false, fmt.Errorf("unable to read stored remote url err:%w", err)
	}

	if storedURL == r.remote {
		return false, nil
	}

	r.log.Info("updating stored remote url", "url", giturl.Redact(r.remote))
	// git remote set-url origin <remote>
	if _, err := r.git(ctx, r.dir, "remote", "set-url", "origin", r.remote); err != nil {
		return false, fmt.Errorf("unable to update stored remote url err:%w", err)
	}

	return true, nil
}

// fetch updates all refs and prunes refs deleted upstream
func (r *Repository) fetch(ctx context.Context) error {
	// git fetch --all --prune --no-progress
	_, err := r.git(ctx, r.dir, "fetch", "--all", "--prune", "--no-progress")
	return err
}

// git runs the git executable, translating a missing executable into
// ErrToolMissing
func (r *Repository) git(ctx context.Context, cwd string, args ...string) (string, error) {
	out, err := utils.RunCommand(ctx, r.log, r.envs, cwd, r.gitExec, args...)
	if err != nil {
		if isExecNotFound(err) {
			return "", fmt.Errorf("%w: %s", ErrToolMissing, r.gitExec)
		}
		return "", r.redactError(err)
	}
	return out, nil
}

// redactError masks the credentialed remote url in command errors, the
// failed command line and git's stderr both may carry it
func (r *Repository) redactError(err error) error {
	msg := strings.ReplaceAll(err.Error(), r.remote, giturl.Redact(r.remote))
	// only https userinfo carries a secret, ssh/scp user is a login name
	if r.gitURL.Scheme == "https" && r.gitURL.User != "" {
		msg = strings.ReplaceAll(msg, r.gitURL.User, "<redacted>")
	}
	return errors.New(msg)
}

// isExecNotFound reports whether err means the executable itself could
// not be located, as opposed to a non-zero exit of a found executable
func isExecNotFound(err error) bool {
	if errors.Is(err, exec.ErrNotFound) {
		return true
	}
	// gitExec given as an explicit path skips PATH lookup and surfaces
	// as a fork/exec ENOENT instead
	return errors.Is(err, os.ErrNotExist)
}
