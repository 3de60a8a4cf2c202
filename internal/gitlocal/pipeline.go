package gitlocal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/gitpulse/gitpulse-indexer/internal/indexer"
	"github.com/gitpulse/gitpulse-indexer/models"
)

// Run clones (or refreshes) the repository, walks its history since the
// cursor, upserts each non-merge commit, and appends a KLOC snapshot when
// the last one is stale. The scratch directory is removed on every path.
func (p *Pipeline) Run(ctx context.Context, repo *models.Repository, since *time.Time) (indexer.LocalRunOutcome, error) {
	dir, err := p.ensureClone(ctx, repo)
	if err != nil {
		var term *terminalErr
		if errors.As(err, &term) {
			return indexer.LocalRunOutcome{Skipped: true, Reason: term.reason}, nil
		}
		return indexer.LocalRunOutcome{}, err
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			slog.Warn("Removing scratch directory failed", "dir", dir, "error", rmErr)
		}
	}()

	processed, err := p.walkCommits(ctx, repo, dir, since)
	if err != nil {
		return indexer.LocalRunOutcome{}, err
	}

	p.maybeSnapshotKLOC(ctx, repo, dir)

	return indexer.LocalRunOutcome{Processed: processed, Cursor: p.now()}, nil
}

// walkCommits iterates history across all refs, newest first, skipping merge
// commits. Stat failures are tolerated with zeroed counters.
func (p *Pipeline) walkCommits(ctx context.Context, repo *models.Repository, dir string, since *time.Time) (int, error) {
	gitRepo, err := gogit.PlainOpen(dir)
	if err != nil {
		return 0, fmt.Errorf("opening clone of %s: %w", repo.FullName, err)
	}

	iter, err := gitRepo.Log(&gogit.LogOptions{All: true, Since: since})
	if err != nil {
		return 0, fmt.Errorf("reading log of %s: %w", repo.FullName, err)
	}
	defer iter.Close()

	processed := 0
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(c.ParentHashes) > 1 {
			return nil
		}

		record := buildLocalCommit(repo, c)
		if err := p.store.UpsertCommit(ctx, record); err != nil {
			return fmt.Errorf("upserting commit %s: %w", c.Hash, err)
		}
		processed++
		return nil
	})
	if err != nil {
		return processed, err
	}
	return processed, nil
}

func buildLocalCommit(repo *models.Repository, c *object.Commit) *models.Commit {
	var files []models.FileChange
	additions, deletions := 0, 0
	if stats, err := c.Stats(); err == nil {
		for _, st := range stats {
			files = append(files, models.FileChange{
				Filename:  st.Name,
				Additions: st.Addition,
				Deletions: st.Deletion,
			})
			additions += st.Addition
			deletions += st.Deletion
		}
	}

	record := &models.Commit{
		RepositoryFullName: repo.FullName,
		SHA:                c.Hash.String(),
		AuthorName:         c.Author.Name,
		AuthorEmail:        c.Author.Email,
		CommitterName:      c.Committer.Name,
		CommitterEmail:     c.Committer.Email,
		AuthoredDate:       c.Author.When.UTC(),
		CommittedDate:      c.Committer.When.UTC(),
		Message:            c.Message,
		Additions:          additions,
		Deletions:          deletions,
		TotalChanges:       additions + deletions,
		FilesChanged:       marshalFiles(files),
	}
	record.CommitType = indexer.ClassifyCommit(record.Message, files)
	return record
}
