package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	gogithub "github.com/google/go-github/v68/github"

	"github.com/gitpulse/gitpulse-indexer/models"
)

// runCommits pages the commit list for one backfill window and upserts each
// commit with its file stats. An empty first fetch means the walk reached the
// beginning of history.
func (ix *Indexer) runCommits(ctx context.Context, client *gogithub.Client, repo *models.Repository, win Window, desc Descriptor) (runOutcome, error) {
	owner, name := repo.Owner(), repo.Name()
	opts := &gogithub.CommitsListOptions{
		Since:       win.Since,
		Until:       win.Until,
		ListOptions: gogithub.ListOptions{PerPage: 100},
	}

	var out runOutcome
	listed := 0
	for page := 0; page < desc.PageCap; page++ {
		commits, resp, err := client.Repositories.ListCommits(ctx, owner, name, opts)
		if err != nil {
			return out, fmt.Errorf("listing commits for %s: %w", repo.FullName, err)
		}
		listed += len(commits)

		for _, rc := range commits {
			record, err := ix.buildCommit(ctx, client, repo, rc)
			if err != nil {
				out.itemErrors = append(out.itemErrors, err.Error())
				continue
			}
			if err := ix.store.UpsertCommit(ctx, record); err != nil {
				out.itemErrors = append(out.itemErrors, err.Error())
				continue
			}
			out.processed++
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	if listed == 0 {
		// Reached the beginning of history: keep the cursor where it is.
		out.finished = true
		return out, nil
	}
	out.cursor = win.Since
	out.hasMore = true
	return out, nil
}

// buildCommit fetches the commit detail for file stats and classifies it.
// When the detail call fails the list-level data is kept with zeroed stats.
func (ix *Indexer) buildCommit(ctx context.Context, client *gogithub.Client, repo *models.Repository, rc *gogithub.RepositoryCommit) (*models.Commit, error) {
	sha := rc.GetSHA()
	if sha == "" {
		return nil, fmt.Errorf("commit without sha in %s", repo.FullName)
	}

	detail, _, err := client.Repositories.GetCommit(ctx, repo.Owner(), repo.Name(), sha, nil)
	if err != nil {
		slog.Debug("Commit detail fetch failed; keeping list data",
			"repo", repo.FullName, "sha", sha, "error", err)
		detail = rc
	}

	var files []models.FileChange
	for _, f := range detail.Files {
		files = append(files, models.FileChange{
			Filename:  f.GetFilename(),
			Status:    f.GetStatus(),
			Additions: f.GetAdditions(),
			Deletions: f.GetDeletions(),
		})
	}

	c := &models.Commit{
		RepositoryFullName: repo.FullName,
		SHA:                sha,
		AuthorName:         detail.GetCommit().GetAuthor().GetName(),
		AuthorEmail:        detail.GetCommit().GetAuthor().GetEmail(),
		CommitterName:      detail.GetCommit().GetCommitter().GetName(),
		CommitterEmail:     detail.GetCommit().GetCommitter().GetEmail(),
		AuthoredDate:       detail.GetCommit().GetAuthor().GetDate().Time,
		CommittedDate:      detail.GetCommit().GetCommitter().GetDate().Time,
		Message:            detail.GetCommit().GetMessage(),
		Additions:          detail.GetStats().GetAdditions(),
		Deletions:          detail.GetStats().GetDeletions(),
		TotalChanges:       detail.GetStats().GetTotal(),
		FilesChanged:       jsonList(files),
	}
	c.CommitType = ClassifyCommit(c.Message, files)
	return c, nil
}

// jsonList serializes a slice for storage in a text column. A nil slice
// becomes the empty JSON array.
func jsonList(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return "[]"
	}
	return string(b)
}
