package indexer

import (
	"context"
	"encoding/json"
	"fmt"

	gogithub "github.com/google/go-github/v68/github"

	"github.com/gitpulse/gitpulse-indexer/models"
)

// runDeployments pages the deployment list, filters client-side on
// created_at (the endpoint has no server-side date filter) and upserts each
// candidate. Status lists are re-fetched only when they may still change.
func (ix *Indexer) runDeployments(ctx context.Context, client *gogithub.Client, repo *models.Repository, win Window, desc Descriptor) (runOutcome, error) {
	owner, name := repo.Owner(), repo.Name()
	opts := &gogithub.DeploymentsListOptions{ListOptions: gogithub.ListOptions{PerPage: 100}}

	var out runOutcome
	anyOlder := false

pages:
	for page := 0; page < desc.PageCap; page++ {
		deployments, resp, err := client.Repositories.ListDeployments(ctx, owner, name, opts)
		if err != nil {
			return out, fmt.Errorf("listing deployments for %s: %w", repo.FullName, err)
		}

		for _, dep := range deployments {
			created := dep.GetCreatedAt().Time
			if created.Before(win.Since) {
				// Listed newest first; everything further back feeds
				// the next backfill window.
				anyOlder = true
				break pages
			}
			if !win.contains(created) {
				continue
			}
			if err := ix.upsertDeployment(ctx, client, repo, dep); err != nil {
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

	if !anyOlder {
		out.finished = true
		if out.processed > 0 {
			out.cursor = win.Since
		}
		return out, nil
	}
	out.cursor = win.Since
	out.hasMore = true
	return out, nil
}

// upsertDeployment persists one deployment, re-fetching its status list when
// the record is new, the stored list is empty, the last status is still
// non-terminal, or the upstream updated_at advanced past the stored one.
func (ix *Indexer) upsertDeployment(ctx context.Context, client *gogithub.Client, repo *models.Repository, dep *gogithub.Deployment) error {
	existing, err := ix.store.GetDeployment(ctx, dep.GetID())
	if err != nil {
		return fmt.Errorf("loading deployment %d: %w", dep.GetID(), err)
	}

	record := &models.Deployment{
		DeploymentID:       dep.GetID(),
		RepositoryFullName: repo.FullName,
		Environment:        dep.GetEnvironment(),
		Creator:            dep.GetCreator().GetLogin(),
		CreatedAt:          dep.GetCreatedAt().Time,
		UpdatedAt:          dep.GetUpdatedAt().Time,
		Statuses:           "[]",
	}

	if existing != nil {
		record.Statuses = existing.Statuses
	}
	if needsStatusRefresh(existing, dep) {
		statuses, err := ix.fetchDeploymentStatuses(ctx, client, repo, dep.GetID())
		if err != nil {
			return err
		}
		record.Statuses = jsonList(statuses)
	}

	return ix.store.UpsertDeployment(ctx, record)
}

func needsStatusRefresh(existing *models.Deployment, dep *gogithub.Deployment) bool {
	if existing == nil || existing.Statuses == "" || existing.Statuses == "[]" {
		return true
	}
	var statuses []models.DeploymentStatus
	if err := json.Unmarshal([]byte(existing.Statuses), &statuses); err != nil || len(statuses) == 0 {
		return true
	}
	if !statuses[len(statuses)-1].Terminal() {
		return true
	}
	return dep.GetUpdatedAt().Time.After(existing.UpdatedAt)
}

func (ix *Indexer) fetchDeploymentStatuses(ctx context.Context, client *gogithub.Client, repo *models.Repository, deploymentID int64) ([]models.DeploymentStatus, error) {
	opts := &gogithub.ListOptions{PerPage: 100}
	var out []models.DeploymentStatus
	for {
		statuses, resp, err := client.Repositories.ListDeploymentStatuses(ctx, repo.Owner(), repo.Name(), deploymentID, opts)
		if err != nil {
			return nil, fmt.Errorf("listing statuses for deployment %d: %w", deploymentID, err)
		}
		for _, st := range statuses {
			out = append(out, models.DeploymentStatus{
				State:       st.GetState(),
				Description: st.GetDescription(),
				CreatedAt:   st.GetCreatedAt().Time,
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	// The endpoint lists newest first; store chronological so the last
	// element is the latest status.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
