// Package git loads a single file pinned at a branch or tag of a remote repository.
// Repositories are mirrored as shallow bare clones under the user cache directory
// and refreshed on every load.
package git

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	gittransport "github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	xssh "golang.org/x/crypto/ssh"

	"github.com/samachi/glowctl/internal/registry"
)

type handler struct {
	cacheRoot string
}

func New() *handler             { return &handler{cacheRoot: defaultCacheDir()} }
func (h *handler) Name() string { return "git" }

func (h *handler) Load(ctx context.Context, src registry.Source) ([]byte, error) {
	ref, path, err := parseSource(src)
	if err != nil {
		return nil, err
	}
	repo, err := h.mirror(ctx, src.URL)
	if err != nil {
		return nil, err
	}
	commit, err := resolveCommit(repo, ref)
	if err != nil {
		return nil, err
	}
	return readFile(commit, path)
}

func parseSource(src registry.Source) (plumbing.ReferenceName, string, error) {
	if src.URL == "" || src.Path == "" || src.Ref == "" {
		return "", "", errors.New("git: require source.url, source.ref, source.path")
	}
	ref := plumbing.NewBranchReferenceName(src.Ref)
	if strings.HasPrefix(src.Ref, "refs/") {
		ref = plumbing.ReferenceName(src.Ref)
	}
	return ref, filepath.ToSlash(src.Path), nil
}

// mirror opens the cached bare clone for repoURL, creating it on first use, and
// fetches the latest heads and tags. A failed refresh of an existing mirror is
// tolerated so an offline run still sees the last fetched state.
func (h *handler) mirror(ctx context.Context, repoURL string) (*git.Repository, error) {
	dir := filepath.Join(h.cacheRoot, "git", shortHash(repoURL))
	repo, err := git.PlainOpen(dir)
	fresh := false
	if errors.Is(err, git.ErrRepositoryNotExists) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		if repo, err = git.PlainInit(dir, true); err != nil {
			return nil, err
		}
		_, err = repo.CreateRemote(&config.RemoteConfig{Name: "origin", URLs: []string{repoURL}})
		if err != nil && !errors.Is(err, git.ErrRemoteExists) {
			return nil, err
		}
		fresh = true
	} else if err != nil {
		return nil, err
	}

	if err := fetch(ctx, repo, repoURL); err != nil && fresh {
		return nil, fmt.Errorf("git: fetch %s: %w", repoURL, err)
	}
	return repo, nil
}

func fetch(ctx context.Context, repo *git.Repository, repoURL string) error {
	auth := authFor(repoURL)
	specs := []struct {
		spec config.RefSpec
		tags git.TagMode
	}{
		{"+refs/heads/*:refs/remotes/origin/*", git.NoTags},
		{"+refs/tags/*:refs/tags/*", git.AllTags},
	}
	for _, s := range specs {
		err := repo.FetchContext(ctx, &git.FetchOptions{
			RemoteName: "origin",
			Auth:       auth,
			RefSpecs:   []config.RefSpec{s.spec},
			Depth:      1,
			Tags:       s.tags,
			Force:      true,
		})
		if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
			return err
		}
	}
	return nil
}

// resolveCommit accepts a local branch, its remote-tracking twin, or a tag of the
// same short name, and peels annotated tags.
func resolveCommit(repo *git.Repository, name plumbing.ReferenceName) (*object.Commit, error) {
	candidates := []plumbing.ReferenceName{name}
	if name.IsBranch() {
		short := name.Short()
		candidates = append(candidates,
			plumbing.NewRemoteReferenceName("origin", short),
			plumbing.NewTagReferenceName(short),
		)
	}
	for _, c := range candidates {
		ref, err := repo.Reference(c, true)
		if err != nil {
			continue
		}
		hash := ref.Hash()
		if tag, err := repo.TagObject(hash); err == nil {
			hash = tag.Target
		}
		return repo.CommitObject(hash)
	}
	return nil, fmt.Errorf("git: cannot resolve ref %q", name)
}

func readFile(commit *object.Commit, path string) ([]byte, error) {
	tree, err := commit.Tree()
	if err != nil {
		return nil, err
	}
	f, err := tree.File(path)
	if err != nil {
		return nil, fmt.Errorf("git: file %q not found at %s", path, commit.Hash)
	}
	r, err := f.Blob.Reader()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func defaultCacheDir() string {
	if v := os.Getenv("XDG_CACHE_HOME"); v != "" {
		return filepath.Join(v, "glowctl")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".cache", "glowctl")
}

func shortHash(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])[:16]
}

// authFor picks credentials from the environment: a token or basic auth for HTTPS,
// the SSH agent or a key file for everything else.
func authFor(raw string) gittransport.AuthMethod {
	u, _ := url.Parse(raw)

	if u != nil && (u.Scheme == "http" || u.Scheme == "https") {
		user, pass := os.Getenv("GIT_USERNAME"), os.Getenv("GIT_PASSWORD")
		if t := os.Getenv("GIT_TOKEN"); t != "" {
			user, pass = "x-access-token", t
		}
		if user == "" && pass == "" {
			return nil
		}
		return &githttp.BasicAuth{Username: user, Password: pass}
	}
	if u != nil && u.Scheme == "file" {
		return nil
	}

	user := "git"
	if u != nil && u.User != nil && u.User.Username() != "" {
		user = u.User.Username()
	}
	if cb, err := gitssh.NewSSHAgentAuth(user); err == nil {
		cb.HostKeyCallback = xssh.InsecureIgnoreHostKey()
		return cb
	}
	if key := os.Getenv("GIT_SSH_KEY"); key != "" {
		pk, err := gitssh.NewPublicKeysFromFile(user, key, os.Getenv("GIT_SSH_PASSPHRASE"))
		if err == nil {
			pk.HostKeyCallback = xssh.InsecureIgnoreHostKey()
			return pk
		}
	}
	return nil
}

func init() { registry.Register(New()) }
