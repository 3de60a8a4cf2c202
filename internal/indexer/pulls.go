package indexer

import (
	"context"
	"fmt"
	"time"

	gogithub "github.com/google/go-github/v68/github"

	"github.com/gitpulse/gitpulse-indexer/models"
)

// runPullRequests pages the PR list sorted by creation descending, hydrates
// every candidate created inside the window and upserts it. Forward cursor:
// the window upper bound becomes the new cursor only after a full scan.
func (ix *Indexer) runPullRequests(ctx context.Context, client *gogithub.Client, repo *models.Repository, win Window, desc Descriptor) (runOutcome, error) {
	owner, name := repo.Owner(), repo.Name()
	opts := &gogithub.PullRequestListOptions{
		State:       "all",
		Sort:        "created",
		Direction:   "desc",
		ListOptions: gogithub.ListOptions{PerPage: 100},
	}

	var out runOutcome
	capped := false
	scanned := false

pages:
	for page := 0; ; page++ {
		if page >= desc.PageCap {
			capped = true
			break
		}
		prs, resp, err := client.PullRequests.List(ctx, owner, name, opts)
		if err != nil {
			return out, fmt.Errorf("listing pull requests for %s: %w", repo.FullName, err)
		}

		for _, pr := range prs {
			created := pr.GetCreatedAt().Time
			if created.Before(win.Since) {
				// Sorted by created desc, so everything after this
				// point predates the window.
				scanned = true
				break pages
			}
			if !win.contains(created) {
				continue
			}
			record, err := ix.buildPullRequest(ctx, client, repo, pr.GetNumber())
			if err != nil {
				out.itemErrors = append(out.itemErrors, err.Error())
				continue
			}
			if err := ix.store.UpsertPullRequest(ctx, record); err != nil {
				out.itemErrors = append(out.itemErrors, err.Error())
				continue
			}
			out.processed++
		}

		if resp.NextPage == 0 {
			scanned = true
			break
		}
		opts.Page = resp.NextPage
		time.Sleep(ix.pageDelay)
	}

	if capped && !scanned {
		// Did not finish the scan; re-run the same window rather than
		// advancing the cursor past unseen records.
		out.cursor = win.Since
		out.hasMore = true
		return out, nil
	}
	out.cursor = win.Until
	return out, nil
}

// buildPullRequest fetches the PR detail plus its review-comment and
// issue-comment counts.
func (ix *Indexer) buildPullRequest(ctx context.Context, client *gogithub.Client, repo *models.Repository, number int) (*models.PullRequest, error) {
	owner, name := repo.Owner(), repo.Name()

	pr, _, err := client.PullRequests.Get(ctx, owner, name, number)
	if err != nil {
		return nil, fmt.Errorf("fetching pull request %s#%d: %w", repo.FullName, number, err)
	}

	reviewComments, err := ix.countReviewComments(ctx, client, repo, number)
	if err != nil {
		return nil, err
	}
	issueComments, err := ix.countIssueComments(ctx, client, repo, number)
	if err != nil {
		return nil, err
	}

	state := pr.GetState()
	var mergedAt *time.Time
	if pr.MergedAt != nil {
		t := pr.MergedAt.Time
		mergedAt = &t
		state = "merged"
	}
	var closedAt *time.Time
	if pr.ClosedAt != nil {
		t := pr.ClosedAt.Time
		closedAt = &t
	}

	var reviewers, assignees, labels []string
	for _, u := range pr.RequestedReviewers {
		reviewers = append(reviewers, u.GetLogin())
	}
	for _, u := range pr.Assignees {
		assignees = append(assignees, u.GetLogin())
	}
	for _, l := range pr.Labels {
		labels = append(labels, l.GetName())
	}

	return &models.PullRequest{
		RepositoryFullName: repo.FullName,
		Number:             number,
		Title:              pr.GetTitle(),
		Author:             pr.GetUser().GetLogin(),
		State:              state,
		CreatedAt:          pr.GetCreatedAt().Time,
		UpdatedAt:          pr.GetUpdatedAt().Time,
		ClosedAt:           closedAt,
		MergedAt:           mergedAt,
		MergedBy:           pr.GetMergedBy().GetLogin(),
		Reviewers:          jsonList(reviewers),
		Assignees:          jsonList(assignees),
		Labels:             jsonList(labels),
		Commits:            pr.GetCommits(),
		Additions:          pr.GetAdditions(),
		Deletions:          pr.GetDeletions(),
		ChangedFiles:       pr.GetChangedFiles(),
		ReviewComments:     reviewComments,
		Comments:           issueComments,
	}, nil
}

func (ix *Indexer) countReviewComments(ctx context.Context, client *gogithub.Client, repo *models.Repository, number int) (int, error) {
	opts := &gogithub.PullRequestListCommentsOptions{ListOptions: gogithub.ListOptions{PerPage: 100}}
	total := 0
	for {
		comments, resp, err := client.PullRequests.ListComments(ctx, repo.Owner(), repo.Name(), number, opts)
		if err != nil {
			return 0, fmt.Errorf("counting review comments for %s#%d: %w", repo.FullName, number, err)
		}
		total += len(comments)
		if resp.NextPage == 0 {
			return total, nil
		}
		opts.Page = resp.NextPage
	}
}

func (ix *Indexer) countIssueComments(ctx context.Context, client *gogithub.Client, repo *models.Repository, number int) (int, error) {
	opts := &gogithub.IssueListCommentsOptions{ListOptions: gogithub.ListOptions{PerPage: 100}}
	total := 0
	for {
		comments, resp, err := client.Issues.ListComments(ctx, repo.Owner(), repo.Name(), number, opts)
		if err != nil {
			return 0, fmt.Errorf("counting issue comments for %s#%d: %w", repo.FullName, number, err)
		}
		total += len(comments)
		if resp.NextPage == 0 {
			return total, nil
		}
		opts.Page = resp.NextPage
	}
}
