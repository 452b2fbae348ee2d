// Package syncer runs a batch of mirror reconciles over a catalog.
//
// Repositories are processed strictly in catalog order and one failure
// never stops the batch, with the single exception of a missing git
// executable which fails every remaining repository as well.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/utilitywarehouse/forge-sync/catalog"
	"github.com/utilitywarehouse/forge-sync/giturl"
	"github.com/utilitywarehouse/forge-sync/repository"
)

// Credentials are injected into every https clone url of the batch.
// A Username without a Password downgrades to anonymous access.
type Credentials struct {
	Username string
	Password string
}

// Config for a batch run
type Config struct {
	// Root is the absolute path under which all mirror dirs are created,
	// it is created if missing
	Root string

	// GitExec is the path or name of the git executable, defaults to "git"
	GitExec string

	// Envs are passed to every git command of the batch
	Envs []string

	Credentials Credentials
}

// Result is the per repository outcome of a batch run
type Result struct {
	Name    string
	Outcome repository.Outcome
	Reason  string
}

// Summary aggregates the outcomes of one batch run
type Summary struct {
	Total     int
	Succeeded int
	Results   []Result
}

// Failed returns the results of the repositories that did not reach a
// successful outcome
func (s Summary) Failed() []Result {
	var failed []Result
	for _, r := range s.Results {
		switch r.Outcome {
		case repository.OutcomeCloned, repository.OutcomeFetched, repository.OutcomeURLUpdatedFetched:
		default:
			failed = append(failed, r)
		}
	}
	return failed
}

// Syncer mirrors every repository of a catalog under one root dir
type Syncer struct {
	root    string
	gitExec string
	envs    []string
	creds   Credentials
	log     *slog.Logger
}

// New validates the config and makes sure the mirror root exists
func New(conf Config, log *slog.Logger) (*Syncer, error) {
	if log == nil {
		log = slog.Default()
	}

	if !filepath.IsAbs(conf.Root) {
		return nil, fmt.Errorf("mirror root '%s' must be absolute", conf.Root)
	}
	if err := os.MkdirAll(conf.Root, 0o755); err != nil {
		return nil, fmt.Errorf("unable to create mirror root err:%w", err)
	}

	creds := conf.Credentials
	if creds.Username != "" && creds.Password == "" {
		log.Warn("username given without a secret, proceeding with anonymous access")
		creds.Username = ""
	}

	return &Syncer{
		root:    conf.Root,
		gitExec: conf.GitExec,
		envs:    conf.Envs,
		creds:   creds,
		log:     log,
	}, nil
}

// Run reconciles every repository of the given catalog in order.
// Reconcile failures are recorded and the batch moves on, a missing git
// executable or a cancelled context marks all remaining repositories as
// skipped and ends the run
func (s *Syncer) Run(ctx context.Context, cat *catalog.Catalog) Summary {
	entries := cat.Entries()
	summary := Summary{Total: len(entries)}

	for i, entry := range entries {
		if ctx.Err() != nil {
			s.log.Warn("batch cancelled", "remaining", len(entries)-i)
			for _, skipped := range entries[i:] {
				summary.Results = append(summary.Results, Result{
					Name:    skipped.Name,
					Outcome: repository.OutcomeSkipped,
					Reason:  repository.ReasonCancelled,
				})
			}
			break
		}

		remote, err := giturl.InjectCredentials(entry.CloneURL, s.creds.Username, s.creds.Password)
		if err != nil {
			s.log.Error("unable to inject credentials", "repo", entry.Name, "err", err)
			summary.Results = append(summary.Results, Result{
				Name:    entry.Name,
				Outcome: repository.OutcomeFailed,
				Reason:  repository.ReasonCloneError,
			})
			continue
		}

		repo, err := repository.New(repository.Config{
			Remote: remote,
			Name:   entry.Name,
			Root:   s.root,
		}, s.gitExec, s.envs, s.log)
		if err != nil {
			s.log.Error("unable to set up mirror", "repo", entry.Name, "err", err)
			summary.Results = append(summary.Results, Result{
				Name:    entry.Name,
				Outcome: repository.OutcomeFailed,
				Reason:  repository.ReasonCloneError,
			})
			continue
		}

		s.log.Debug("reconciling repo", "repo", entry.Name, "url", giturl.Redact(entry.CloneURL))

		// an interrupt stops the batch before the next repository, the
		// in-flight git operation is left to finish and its mirror dir
		// is reconciled on the next run
		res, err := repo.Reconcile(context.WithoutCancel(ctx))
		summary.Results = append(summary.Results, Result{
			Name:    entry.Name,
			Outcome: res.Outcome,
			Reason:  res.Reason,
		})

		if err != nil {
			if errors.Is(err, repository.ErrToolMissing) {
				s.log.Error("git executable not found, skipping remaining repos",
					"gitExec", s.gitExec, "remaining", len(entries)-i-1)
				for _, skipped := range entries[i+1:] {
					summary.Results = append(summary.Results, Result{
						Name:    skipped.Name,
						Outcome: repository.OutcomeSkipped,
						Reason:  repository.ReasonToolMissing,
					})
				}
				break
			}
			s.log.Error("unable to reconcile repo", "repo", entry.Name, "err", err)
			continue
		}

		summary.Succeeded++
	}

	return summary
}
