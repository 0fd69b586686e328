// Package cloner implements domain.Cloner by shelling out to git for a
// shallow, time-bounded clone into a fresh temporary directory. Grounded on
// original_source/src/git.rs's ClonedRepo::from_url.
package cloner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/fairyhunter13/gradeengine/internal/domain"
)

// GitCloner clones a repository with `git clone --depth 1`, bounded by a
// fixed timeout. An out-of-scope collaborator per spec.md §1/§6: the
// grading pipeline only needs a local filesystem path back.
type GitCloner struct {
	timeout time.Duration
}

// New builds a GitCloner with the given clone timeout (spec.md §6's
// CLONE_TIMEOUT, default 300s).
func New(timeout time.Duration) *GitCloner {
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &GitCloner{timeout: timeout}
}

// Clone implements domain.Cloner.
func (c *GitCloner) Clone(ctx domain.Context, repoURL, branch string) (string, error) {
	dir, err := os.MkdirTemp("", "gradeengine-clone-*")
	if err != nil {
		return "", fmt.Errorf("op=cloner.Clone: create temp dir: %w", err)
	}

	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	args := []string{"clone", "--depth", "1"}
	if branch != "" {
		args = append(args, "--branch", branch)
	}
	args = append(args, repoURL, dir)

	cmd := exec.CommandContext(cctx, "git", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		_ = os.RemoveAll(dir)
		if cctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("op=cloner.Clone: clone timed out after %s", c.timeout)
		}
		return "", fmt.Errorf("op=cloner.Clone: %w: %s", err, strings.TrimSpace(string(output)))
	}

	return dir, nil
}

// ExtractGitHubInfo returns the (owner, repo) pair encoded in a GitHub URL,
// or false if url is not a recognizable GitHub repository URL. Supplemented
// feature (SPEC_FULL.md §C.1) ported from
// original_source/src/git.rs::extract_github_info. The logic itself lives in
// domain.ExtractGitHubInfo (pure URL parsing, no git/filesystem dependency)
// so internal/engine can call it without importing this concrete adapter
// package; this wrapper stays for callers already depending on
// internal/cloner.
func ExtractGitHubInfo(url string) (owner, repo string, ok bool) {
	return domain.ExtractGitHubInfo(url)
}
