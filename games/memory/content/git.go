/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package content

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Seednode/quizmatch/games/memory"
	"github.com/go-git/go-git/v5"
)

// GitDeck is a Deck kept in a git repository. The repository is cloned
// into a local directory on first use and pulled on every Sync.
type GitDeck struct {
	url  string
	path string
	logf Logf

	mu   sync.Mutex
	deck *Deck
}

func NewGitDeck(repoURL, baseDir string, logf Logf) (*GitDeck, error) {
	path, err := repoLocalPath(baseDir, repoURL)
	if err != nil {
		return nil, err
	}

	return &GitDeck{url: repoURL, path: path, logf: logf}, nil
}

func (g *GitDeck) Path() string { return g.path }

// Sync clones or pulls the repository and reloads the deck.
func (g *GitDeck) Sync(ctx context.Context) error {
	if err := g.fetch(ctx); err != nil {
		return err
	}

	deck, err := LoadDeck(g.path, g.logf)
	if err != nil {
		return err
	}

	g.mu.Lock()
	g.deck = deck
	g.mu.Unlock()

	return nil
}

func (g *GitDeck) fetch(ctx context.Context) error {
	_, err := os.Stat(g.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		g.logf.printf("cloning %s into %s", g.url, g.path)

		if err := os.MkdirAll(filepath.Dir(g.path), 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", filepath.Dir(g.path), err)
		}

		_, err := git.PlainCloneContext(ctx, g.path, false, &git.CloneOptions{URL: g.url})
		if err != nil {
			return fmt.Errorf("failed to clone repo %s: %w", g.url, err)
		}
	case err == nil:
		repo, err := git.PlainOpen(g.path)
		if err != nil {
			return fmt.Errorf("failed to open existing repo at %s: %w", g.path, err)
		}

		worktree, err := repo.Worktree()
		if err != nil {
			return fmt.Errorf("failed to get worktree for repo at %s: %w", g.path, err)
		}

		err = worktree.PullContext(ctx, &git.PullOptions{RemoteName: "origin"})
		if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
			return fmt.Errorf("failed to pull changes for repo at %s: %w", g.path, err)
		}

		g.logf.printf("pulled %s", g.url)
	default:
		return fmt.Errorf("error checking path %s: %w", g.path, err)
	}

	return nil
}

// Generate syncs the repository on first use, then draws from its deck.
func (g *GitDeck) Generate(ctx context.Context, topic string, count int) ([]memory.Pair, error) {
	g.mu.Lock()
	deck := g.deck
	g.mu.Unlock()

	if deck == nil {
		if err := g.Sync(ctx); err != nil {
			return nil, memory.NewContentError("could not load questions from the deck repository", err)
		}
		g.mu.Lock()
		deck = g.deck
		g.mu.Unlock()
	}

	return deck.Generate(ctx, topic, count)
}

// repoLocalPath maps a git URL to a directory under baseDir. Both
// http(s) URLs and scp-like user@host:path addresses are accepted.
func repoLocalPath(baseDir, repoURL string) (string, error) {
	u, err := url.Parse(repoURL)
	if err == nil && (u.Scheme == "https" || u.Scheme == "http" || u.Scheme == "ssh") && u.Host != "" {
		p := strings.TrimSuffix(strings.Trim(u.Path, "/"), ".git")
		if p == "" {
			return "", fmt.Errorf("could not parse git URL: %s", repoURL)
		}
		return filepath.Join(baseDir, u.Hostname(), filepath.FromSlash(p)), nil
	}

	user, rest, ok := strings.Cut(repoURL, "@")
	if ok && user != "" {
		host, p, ok := strings.Cut(rest, ":")
		p = strings.TrimSuffix(strings.Trim(p, "/"), ".git")
		if ok && host != "" && p != "" {
			return filepath.Join(baseDir, host, filepath.FromSlash(p)), nil
		}
	}

	return "", fmt.Errorf("could not parse git URL: %s", repoURL)
}
