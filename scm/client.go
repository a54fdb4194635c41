// Package scm wraps github.com/go-git/go-git/v5 behind the small
// source-control contract spec.md §6.5 describes: a constructor that
// returns a working-copy handle, emptiness/HEAD queries, an
// up-to-date check, and a checkout/force/pull refresh that yields a
// repository handle supporting restricted-path diffing.
package scm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	gossh "github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"github.com/deployhub/deployhub-core/registry"
)

// Source describes where a deployment's source lives and how to
// authenticate against it, built by deployment.Deployment.Source().
type Source struct {
	URL       string
	Name      string
	DeployKey string
}

// WorkingCopy is the result of Refresh: the local path, the HEAD before
// the refresh (empty on first clone), and the HEAD after.
type WorkingCopy struct {
	Path     string
	PrevHead string
	Head     string
}

// Client is the capability surface deployment.Deployment needs from a
// source-control engine.
type Client interface {
	// IsEmpty reports whether path has no working copy yet.
	IsEmpty(path string) (bool, error)
	// Head returns the working copy's current HEAD hexsha.
	Head(path string) (string, error)
	// RemoteHead returns the upstream HEAD hexsha of branch on src,
	// without touching the local working copy.
	RemoteHead(ctx context.Context, src Source, branch string) (string, error)
	// Refresh updates path to branch, cloning if absent and otherwise
	// forcing and pulling, authenticating with src.DeployKey.
	Refresh(ctx context.Context, src Source, path, branch string) (WorkingCopy, error)
	// Branches lists upstream branch names for src.
	Branches(ctx context.Context, src Source) ([]string, error)
	// Diff reports whether any of paths changed between two revisions
	// of the working copy at repoPath.
	Diff(repoPath, prevHead, head string, paths []string) (bool, error)
	// CompareURL and TreeURL return human-readable review-system links
	// when src's host supports them, or ("", false) otherwise.
	CompareURL(src Source, prevHead, head string) (string, bool)
	TreeURL(src Source, head string) (string, bool)
}

// Constructor builds a Client from configuration.
type Constructor func(config map[string]any) (Client, error)

var clients = registry.New[Constructor]()

// RegisterClient adds a client constructor by name.
func RegisterClient(name string, constructor Constructor) error {
	return clients.Register(name, constructor)
}

// LookupClient returns a named client constructor if registered.
func LookupClient(name string) (Constructor, bool) {
	return clients.Get(name)
}

// gitClient is the default Client, backed by go-git.
type gitClient struct{}

// NewGitClient constructs the default go-git-backed Client.
func NewGitClient(map[string]any) (Client, error) {
	return &gitClient{}, nil
}

func init() {
	_ = RegisterClient("git", NewGitClient)
}

func (c *gitClient) IsEmpty(path string) (bool, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, fmt.Errorf("scm: reading %s: %w", path, err)
	}
	return len(entries) == 0, nil
}

func (c *gitClient) Head(path string) (string, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return "", fmt.Errorf("scm: opening %s: %w", path, err)
	}
	ref, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("scm: reading HEAD at %s: %w", path, err)
	}
	return ref.Hash().String(), nil
}

func (c *gitClient) RemoteHead(ctx context.Context, src Source, branch string) (string, error) {
	auth, err := authFor(src)
	if err != nil {
		return "", err
	}

	remote := git.NewRemote(nil, &config.RemoteConfig{Name: "origin", URLs: []string{src.URL}})
	refs, err := remote.ListContext(ctx, &git.ListOptions{Auth: auth})
	if err != nil {
		return "", fmt.Errorf("scm: listing refs for %s: %w", src.URL, err)
	}

	target := plumbing.NewBranchReferenceName(branch)
	for _, ref := range refs {
		if ref.Name() == target {
			return ref.Hash().String(), nil
		}
	}
	return "", fmt.Errorf("scm: branch %s not found at %s", branch, src.URL)
}

func (c *gitClient) Refresh(ctx context.Context, src Source, path, branch string) (WorkingCopy, error) {
	auth, err := authFor(src)
	if err != nil {
		return WorkingCopy{}, err
	}
	branchRef := plumbing.NewBranchReferenceName(branch)

	empty, err := c.IsEmpty(path)
	if err != nil {
		return WorkingCopy{}, err
	}

	if empty {
		repo, err := git.PlainCloneContext(ctx, path, false, &git.CloneOptions{
			URL:           src.URL,
			Auth:          auth,
			ReferenceName: branchRef,
			SingleBranch:  true,
		})
		if err != nil {
			return WorkingCopy{}, fmt.Errorf("scm: cloning %s into %s: %w", src.URL, path, err)
		}
		ref, err := repo.Head()
		if err != nil {
			return WorkingCopy{}, fmt.Errorf("scm: reading HEAD after clone: %w", err)
		}
		return WorkingCopy{Path: path, PrevHead: "", Head: ref.Hash().String()}, nil
	}

	repo, err := git.PlainOpen(path)
	if err != nil {
		return WorkingCopy{}, fmt.Errorf("scm: opening %s: %w", path, err)
	}
	prevRef, err := repo.Head()
	if err != nil {
		return WorkingCopy{}, fmt.Errorf("scm: reading HEAD before refresh: %w", err)
	}
	prevHead := prevRef.Hash().String()

	wt, err := repo.Worktree()
	if err != nil {
		return WorkingCopy{}, fmt.Errorf("scm: opening worktree at %s: %w", path, err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Branch: branchRef, Force: true}); err != nil {
		return WorkingCopy{}, fmt.Errorf("scm: checking out %s: %w", branch, err)
	}
	err = wt.PullContext(ctx, &git.PullOptions{
		RemoteName:    "origin",
		ReferenceName: branchRef,
		Auth:          auth,
		Force:         true,
	})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return WorkingCopy{}, fmt.Errorf("scm: pulling %s: %w", branch, err)
	}

	headRef, err := repo.Head()
	if err != nil {
		return WorkingCopy{}, fmt.Errorf("scm: reading HEAD after refresh: %w", err)
	}
	return WorkingCopy{Path: path, PrevHead: prevHead, Head: headRef.Hash().String()}, nil
}

func (c *gitClient) Branches(ctx context.Context, src Source) ([]string, error) {
	auth, err := authFor(src)
	if err != nil {
		return nil, err
	}
	remote := git.NewRemote(nil, &config.RemoteConfig{Name: "origin", URLs: []string{src.URL}})
	refs, err := remote.ListContext(ctx, &git.ListOptions{Auth: auth})
	if err != nil {
		return nil, fmt.Errorf("scm: listing refs for %s: %w", src.URL, err)
	}

	var names []string
	for _, ref := range refs {
		if ref.Name().IsBranch() {
			names = append(names, ref.Name().Short())
		}
	}
	return names, nil
}

func (c *gitClient) Diff(repoPath, prevHead, headHash string, paths []string) (bool, error) {
	if prevHead == "" {
		// First refresh: everything is "changed".
		return true, nil
	}
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return false, fmt.Errorf("scm: opening %s: %w", repoPath, err)
	}

	prevCommit, err := repo.CommitObject(plumbing.NewHash(prevHead))
	if err != nil {
		return false, fmt.Errorf("scm: resolving %s: %w", prevHead, err)
	}
	headCommit, err := repo.CommitObject(plumbing.NewHash(headHash))
	if err != nil {
		return false, fmt.Errorf("scm: resolving %s: %w", headHash, err)
	}

	prevTree, err := prevCommit.Tree()
	if err != nil {
		return false, err
	}
	headTree, err := headCommit.Tree()
	if err != nil {
		return false, err
	}

	changes, err := object.DiffTree(prevTree, headTree)
	if err != nil {
		return false, fmt.Errorf("scm: diffing trees: %w", err)
	}

	for _, change := range changes {
		for _, p := range paths {
			if change.From.Name == p || change.To.Name == p {
				return true, nil
			}
		}
	}
	return false, nil
}

func (c *gitClient) CompareURL(src Source, prevHead, head string) (string, bool) {
	base, ok := githubWebURL(src.URL)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%s/compare/%s...%s", base, prevHead, head), true
}

func (c *gitClient) TreeURL(src Source, head string) (string, bool) {
	base, ok := githubWebURL(src.URL)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%s/tree/%s", base, head), true
}

// githubWebURL converts a github.com git remote URL (SSH or HTTPS) to its
// web URL, returning ok=false for any other host. This is the "review
// system" capability spec.md §4.3 describes as optional.
func githubWebURL(gitURL string) (string, bool) {
	switch {
	case strings.HasPrefix(gitURL, "git@github.com:"):
		path := strings.TrimSuffix(strings.TrimPrefix(gitURL, "git@github.com:"), ".git")
		return "https://github.com/" + path, true
	case strings.Contains(gitURL, "github.com/"):
		path := gitURL[strings.Index(gitURL, "github.com/")+len("github.com/"):]
		path = strings.TrimSuffix(path, ".git")
		return "https://github.com/" + path, true
	default:
		return "", false
	}
}

func authFor(src Source) (transport.AuthMethod, error) {
	if src.DeployKey == "" {
		return nil, nil
	}
	auth, err := gossh.NewPublicKeysFromFile("git", src.DeployKey, "")
	if err != nil {
		return nil, fmt.Errorf("scm: loading deploy key %s: %w", src.DeployKey, err)
	}
	return auth, nil
}
