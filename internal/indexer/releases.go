package indexer

import (
	"context"
	"fmt"
	"time"

	gogithub "github.com/google/go-github/v68/github"

	"github.com/gitpulse/gitpulse-indexer/models"
)

// runReleases pages the release list and upserts every release whose
// published_at falls inside the window. Unpublished drafts are filtered by
// created_at instead.
func (ix *Indexer) runReleases(ctx context.Context, client *gogithub.Client, repo *models.Repository, win Window, desc Descriptor) (runOutcome, error) {
	owner, name := repo.Owner(), repo.Name()
	opts := &gogithub.ListOptions{PerPage: 100}

	var out runOutcome
	capped := false
	for page := 0; ; page++ {
		if page >= desc.PageCap {
			capped = true
			break
		}
		releases, resp, err := client.Repositories.ListReleases(ctx, owner, name, opts)
		if err != nil {
			return out, fmt.Errorf("listing releases for %s: %w", repo.FullName, err)
		}

		for _, rel := range releases {
			ts := rel.GetPublishedAt().Time
			if ts.IsZero() && rel.GetDraft() {
				ts = rel.GetCreatedAt().Time
			}
			if !win.contains(ts) {
				continue
			}
			record := buildRelease(repo, rel)
			if err := ix.store.UpsertRelease(ctx, record); err != nil {
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

	if capped {
		out.cursor = win.Since
		out.hasMore = true
		return out, nil
	}
	out.cursor = win.Until
	return out, nil
}

func buildRelease(repo *models.Repository, rel *gogithub.RepositoryRelease) *models.Release {
	var publishedAt *time.Time
	if rel.PublishedAt != nil {
		t := rel.PublishedAt.Time
		publishedAt = &t
	}

	var assets []models.ReleaseAsset
	for _, a := range rel.Assets {
		assets = append(assets, models.ReleaseAsset{
			Name:          a.GetName(),
			Size:          a.GetSize(),
			DownloadCount: a.GetDownloadCount(),
			ContentType:   a.GetContentType(),
		})
	}

	return &models.Release{
		ReleaseID:          rel.GetID(),
		RepositoryFullName: repo.FullName,
		TagName:            rel.GetTagName(),
		Name:               rel.GetName(),
		Author:             rel.GetAuthor().GetLogin(),
		PublishedAt:        publishedAt,
		CreatedAt:          rel.GetCreatedAt().Time,
		Draft:              rel.GetDraft(),
		Prerelease:         rel.GetPrerelease(),
		Assets:             jsonList(assets),
	}
}
