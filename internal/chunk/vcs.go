package chunk

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	coreerrors "github.com/ragsmith/ragsmith/internal/errors"
)

const maxVCSDiffChars = 4000

// VCSChunker emits one chunk per commit: the commit message plus a
// truncated unified diff against its first parent. A remote source is
// cloned into a private temporary directory and removed on every exit
// path; a local source is opened in place. Adapted from the teacher's
// go-git usage in its gitignore matcher (vcs.go), generalised from
// worktree/gitignore matching to commit/diff walking.
type VCSChunker struct {
	maxTokens int
	overlap   float64
	counter   TokenCounter
	token     string
}

func NewVCSChunker(cfg Config, counter TokenCounter) *VCSChunker {
	if counter == nil {
		counter = fallbackTokenCounter
	}
	return &VCSChunker{maxTokens: cfg.VCSMaxTokens, overlap: cfg.VCSOverlap, counter: counter, token: cfg.VCSToken}
}

func (c *VCSChunker) Chunk(ctx context.Context, input *Input) ([]Chunk, error) {
	repo, cleanup, err := c.openRepo(ctx, input.SourcePath)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	head, err := repo.Head()
	if err != nil {
		return nil, coreerrors.UnsupportedSourceTypeError(input.SourcePath).WithDetail("reason", fmt.Sprintf("no HEAD reference: %v", err))
	}

	commitIter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, coreerrors.IOError("walk commit log", err)
	}

	var chunks []Chunk
	ordinal := 0
	err = commitIter.ForEach(func(commit *object.Commit) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		diffText := ""
		if parent, perr := commit.Parent(0); perr == nil {
			if patch, derr := parent.Patch(commit); derr == nil {
				diffText = patch.String()
			}
		}
		if len(diffText) > maxVCSDiffChars {
			diffText = diffText[:maxVCSDiffChars] + "\n... (diff truncated)"
		}

		text := strings.TrimSpace(commit.Message)
		if diffText != "" {
			text = text + "\n\n" + diffText
		}
		if text == "" {
			return nil
		}

		meta := map[string]string{
			"commit_hash": commit.Hash.String(),
			"author":      commit.Author.Name,
			"commit_date": commit.Author.When.UTC().Format("2006-01-02T15:04:05Z"),
		}

		if c.counter(text) <= c.maxTokens {
			chunks = append(chunks, Chunk{Ordinal: ordinal, Text: text, Metadata: meta})
			ordinal++
			return nil
		}
		sub := windowChunks(text, c.maxTokens, c.overlap, c.counter, meta, ordinal)
		chunks = append(chunks, sub...)
		ordinal += len(sub)
		return nil
	})
	if err != nil {
		return nil, coreerrors.IOError("iterate commit log", err)
	}

	// Stamp a commit index so ties within the same second remain ordered,
	// without depending on map iteration order anywhere above.
	for i := range chunks {
		chunks[i].Metadata["commit_index"] = strconv.Itoa(i)
	}

	return chunks, nil
}

// openRepo opens a local .git directory in place, or clones a remote URL
// into a private (0700) temporary directory whose removal is the returned
// cleanup func's sole responsibility.
func (c *VCSChunker) openRepo(ctx context.Context, source string) (*git.Repository, func(), error) {
	noop := func() {}

	if u, err := url.Parse(source); err == nil && u.Scheme != "" {
		switch u.Scheme {
		case "https", "ssh":
			// allowed
		case "git":
			return nil, noop, coreerrors.ValidationError(fmt.Sprintf("git:// scheme is not permitted for %q: it carries no transport security and cannot authenticate", source), nil)
		default:
			return nil, noop, coreerrors.UnsupportedSourceTypeError(source).WithDetail("reason", fmt.Sprintf("unsupported VCS URL scheme %q", u.Scheme))
		}

		dir, err := os.MkdirTemp("", "ragsmith-vcs-*")
		if err != nil {
			return nil, noop, coreerrors.IOError("create temporary clone directory", err)
		}
		if err := os.Chmod(dir, 0o700); err != nil {
			os.RemoveAll(dir)
			return nil, noop, coreerrors.IOError("restrict temporary clone directory permissions", err)
		}
		cleanup := func() { _ = os.RemoveAll(dir) }

		cloneOpts := &git.CloneOptions{URL: source}
		if c.token != "" && u.Scheme == "https" {
			cloneOpts.Auth = &githttp.BasicAuth{Username: "x-access-token", Password: c.token}
		}

		repo, err := git.PlainCloneContext(ctx, dir, false, cloneOpts)
		if err != nil {
			cleanup()
			return nil, noop, coreerrors.NetworkError(fmt.Sprintf("clone %s", source), err)
		}
		return repo, cleanup, nil
	}

	repo, err := git.PlainOpen(source)
	if err != nil {
		return nil, noop, coreerrors.UnsupportedSourceTypeError(source).WithDetail("reason", fmt.Sprintf("not a local git repository: %v", err))
	}
	return repo, noop, nil
}
