package indexer

import (
	"time"

	"github.com/gitpulse/gitpulse-indexer/internal/config"
	"github.com/gitpulse/gitpulse-indexer/internal/store"
	"github.com/gitpulse/gitpulse-indexer/internal/token"
	"github.com/gitpulse/gitpulse-indexer/models"
)

// Direction is the cursor semantics of an entity family. Backfill entities
// walk history backward and the cursor is the oldest point reached; forward
// entities walk toward now and the cursor is the newest point reached.
type Direction int

const (
	DirectionBackfill Direction = iota
	DirectionForward
)

// Descriptor carries the per-entity tuning knobs.
type Descriptor struct {
	Entity        models.Entity
	Direction     Direction
	BatchDays     int
	RateThreshold int
	ResetSlack    time.Duration
	PageCap       int
}

var defaultDescriptors = map[models.Entity]Descriptor{
	models.EntityCommits: {
		Entity: models.EntityCommits, Direction: DirectionBackfill,
		RateThreshold: 100, ResetSlack: 5 * time.Minute, PageCap: 20,
	},
	models.EntityPullRequests: {
		Entity: models.EntityPullRequests, Direction: DirectionForward,
		RateThreshold: 50, ResetSlack: 5 * time.Minute, PageCap: 50,
	},
	models.EntityReleases: {
		Entity: models.EntityReleases, Direction: DirectionForward,
		RateThreshold: 20, ResetSlack: 10 * time.Minute, PageCap: 20,
	},
	models.EntityDeployments: {
		Entity: models.EntityDeployments, Direction: DirectionBackfill,
		RateThreshold: 20, ResetSlack: 5 * time.Minute, PageCap: 20,
	},
	models.EntityCodeQL: {
		Entity: models.EntityCodeQL, Direction: DirectionBackfill,
		RateThreshold: 30, ResetSlack: 10 * time.Minute, PageCap: 50,
	},
}

// Describe returns the descriptor for the entity with config overrides
// applied.
func Describe(entity models.Entity, cfg config.IndexerConfig) Descriptor {
	desc, ok := defaultDescriptors[entity]
	if !ok {
		desc = Descriptor{Entity: entity, Direction: DirectionBackfill, RateThreshold: 50, ResetSlack: 5 * time.Minute, PageCap: 20}
	}
	desc.BatchDays = store.DefaultBatchDays(entity)
	if d, ok := cfg.BatchSizeDays[string(entity)]; ok && d > 0 {
		desc.BatchDays = d
	}
	if t, ok := cfg.RateThresholds[string(entity)]; ok && t > 0 {
		desc.RateThreshold = t
	}
	return desc
}

// operationFor maps an entity run to the broker operation class it needs.
func operationFor(entity models.Entity, repo *models.Repository) token.Operation {
	if entity == models.EntityCodeQL {
		return token.OpCodeScanning
	}
	if repo.Private {
		return token.OpPrivateRepos
	}
	return token.OpPublicRepos
}
