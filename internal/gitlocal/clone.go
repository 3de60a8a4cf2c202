// Package gitlocal ingests commits from a local shallow clone instead of the
// commits API, and computes repository size snapshots from the work tree.
package gitlocal

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/gitpulse/gitpulse-indexer/internal/config"
	"github.com/gitpulse/gitpulse-indexer/internal/store"
	"github.com/gitpulse/gitpulse-indexer/models"
)

const (
	cloneTimeout = 600 * time.Second
	fetchTimeout = 120 * time.Second
	gitTimeout   = 30 * time.Second
)

// terminalCloneIndicators mark a clone failure as not worth retrying in this
// run: the repository is gone, the credential is bad, or the pack stream is
// corrupt.
var terminalCloneIndicators = []string{
	"repository not found",
	"authentication failed",
	"tmp_pack",
}

// lfsIndicators mark a clone failure as LFS-related, worth one retry with
// the LFS filters disabled.
var lfsIndicators = []string{
	"git-lfs",
	"smudge filter",
	"filter-process",
}

// Pipeline is the local-clone commit ingester.
type Pipeline struct {
	cfg   *config.Config
	store *store.Store
	now   func() time.Time
}

// New creates a Pipeline reading scratch space from cfg.Indexer.TmpDir.
func New(cfg *config.Config, st *store.Store) *Pipeline {
	return &Pipeline{cfg: cfg, store: st, now: func() time.Time { return time.Now().UTC() }}
}

// sanitize replaces every character outside [A-Za-z0-9._-] with an
// underscore.
func sanitize(s string) string {
	out := []byte(s)
	for i := 0; i < len(out); i++ {
		c := out[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9',
			c == '.', c == '_', c == '-':
		default:
			out[i] = '_'
		}
	}
	return string(out)
}

// ScratchDir resolves the per-repository scratch directory under tmpDir. The
// result must stay a direct child of tmpDir; anything else is rejected.
func ScratchDir(tmpDir, fullName string) (string, error) {
	dir := filepath.Join(tmpDir, "gitpulse_"+sanitize(fullName))
	cleanTmp := filepath.Clean(tmpDir)
	if filepath.Dir(dir) != cleanTmp {
		return "", fmt.Errorf("scratch directory %q escapes %q", dir, cleanTmp)
	}
	base := filepath.Base(dir)
	if base == "gitpulse_" || base == "." || base == ".." {
		return "", fmt.Errorf("scratch directory name invalid for repository %q", fullName)
	}
	return dir, nil
}

// terminalErr is returned for clone failures that should skip the run rather
// than charge a retry.
type terminalErr struct {
	reason string
}

func (e *terminalErr) Error() string { return e.reason }

func containsAny(haystack string, needles []string) bool {
	lower := strings.ToLower(haystack)
	for _, n := range needles {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}

// runGit executes one git command with a timeout and returns its combined
// output.
func runGit(ctx context.Context, timeout time.Duration, dir string, extraEnv []string, args ...string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cmd := exec.CommandContext(cctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	cmd.Env = append(os.Environ(), extraEnv...)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// ensureClone clones the repository into its scratch directory, or fetches
// when a previous clone is still present. LFS payloads are skipped; an
// LFS-related failure is retried once with the filters disabled.
func (p *Pipeline) ensureClone(ctx context.Context, repo *models.Repository) (string, error) {
	dir, err := ScratchDir(p.cfg.Indexer.TmpDir, repo.FullName)
	if err != nil {
		return "", err
	}

	if _, statErr := os.Stat(filepath.Join(dir, ".git")); statErr == nil {
		out, err := runGit(ctx, fetchTimeout, dir, nil, "fetch", "--all", "--prune")
		if err == nil {
			return dir, nil
		}
		slog.Warn("Fetch in existing clone failed; recloning",
			"repo", repo.FullName, "error", err, "output", strings.TrimSpace(out))
		if err := os.RemoveAll(dir); err != nil {
			return "", fmt.Errorf("removing stale clone %s: %w", dir, err)
		}
	}

	out, err := runGit(ctx, cloneTimeout, "", []string{"GIT_LFS_SKIP_SMUDGE=1"},
		"clone", "--depth", "1", repo.CloneURL, dir)
	if err == nil {
		_, _ = runGit(ctx, fetchTimeout, dir, nil, "fetch", "--all", "--prune")
		return dir, nil
	}

	if containsAny(out, lfsIndicators) {
		slog.Info("Clone hit LFS failure; retrying with filters disabled", "repo", repo.FullName)
		_ = os.RemoveAll(dir)
		out, err = runGit(ctx, cloneTimeout, "", []string{"GIT_LFS_SKIP_SMUDGE=1"},
			"-c", "filter.lfs.smudge=", "-c", "filter.lfs.process=", "-c", "filter.lfs.required=false",
			"clone", "--depth", "1", repo.CloneURL, dir)
		if err == nil {
			_, _ = runGit(ctx, fetchTimeout, dir, nil, "fetch", "--all", "--prune")
			return dir, nil
		}
	}

	_ = os.RemoveAll(dir)
	if containsAny(out, terminalCloneIndicators) {
		return "", &terminalErr{reason: fmt.Sprintf("clone failed: %s", firstIndicator(out))}
	}
	return "", fmt.Errorf("cloning %s: %w: %s", repo.FullName, err, strings.TrimSpace(out))
}

func firstIndicator(out string) string {
	lower := strings.ToLower(out)
	for _, n := range terminalCloneIndicators {
		if strings.Contains(lower, n) {
			return n
		}
	}
	return "terminal git error"
}
