package gitlocal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/gitpulse/gitpulse-indexer/models"
)

// klocMaxAge is how long a size snapshot stays fresh.
const klocMaxAge = 30 * 24 * time.Hour

// codeExtensions maps tracked-file extensions to the language bucket used in
// the KLOC breakdown.
var codeExtensions = map[string]string{
	".go":    "Go",
	".py":    "Python",
	".rb":    "Ruby",
	".js":    "JavaScript",
	".jsx":   "JavaScript",
	".ts":    "TypeScript",
	".tsx":   "TypeScript",
	".java":  "Java",
	".kt":    "Kotlin",
	".scala": "Scala",
	".c":     "C",
	".h":     "C",
	".cc":    "C++",
	".cpp":   "C++",
	".hpp":   "C++",
	".cs":    "C#",
	".rs":    "Rust",
	".php":   "PHP",
	".swift": "Swift",
	".m":     "Objective-C",
	".sh":    "Shell",
	".sql":   "SQL",
	".tf":    "Terraform",
}

// ComputeKLOC produces a size snapshot from a fresh shallow clone. Used by
// the API commit pipeline, which has no clone of its own.
func (p *Pipeline) ComputeKLOC(ctx context.Context, repo *models.Repository) error {
	dir, err := p.ensureClone(ctx, repo)
	if err != nil {
		var term *terminalErr
		if errors.As(err, &term) {
			slog.Info("Skipping KLOC snapshot", "repo", repo.FullName, "reason", term.reason)
			return nil
		}
		return err
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			slog.Warn("Removing scratch directory failed", "dir", dir, "error", rmErr)
		}
	}()
	return p.snapshotKLOC(ctx, repo, dir)
}

// maybeSnapshotKLOC appends a snapshot when none exists within the
// freshness window. Failures are logged, never fatal to the commit run.
func (p *Pipeline) maybeSnapshotKLOC(ctx context.Context, repo *models.Repository, dir string) {
	fresh, err := p.store.KLOCFresh(ctx, repo.ID, klocMaxAge)
	if err != nil {
		slog.Warn("Checking KLOC freshness failed", "repo", repo.FullName, "error", err)
		return
	}
	if fresh {
		return
	}
	if err := p.snapshotKLOC(ctx, repo, dir); err != nil {
		slog.Warn("KLOC snapshot failed", "repo", repo.FullName, "error", err)
	}
}

// snapshotKLOC enumerates the HEAD tree, counts lines in known code files
// and appends one history record.
func (p *Pipeline) snapshotKLOC(ctx context.Context, repo *models.Repository, dir string) error {
	gitRepo, err := gogit.PlainOpen(dir)
	if err != nil {
		return fmt.Errorf("opening clone of %s: %w", repo.FullName, err)
	}
	head, err := gitRepo.Head()
	if err != nil {
		return fmt.Errorf("resolving HEAD of %s: %w", repo.FullName, err)
	}
	commit, err := gitRepo.CommitObject(head.Hash())
	if err != nil {
		return fmt.Errorf("loading HEAD commit of %s: %w", repo.FullName, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return fmt.Errorf("loading HEAD tree of %s: %w", repo.FullName, err)
	}

	byLanguage := map[string]int64{}
	var total int64
	err = tree.Files().ForEach(func(f *object.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		lang, ok := codeExtensions[extensionOf(f.Name)]
		if !ok {
			return nil
		}
		contents, err := f.Contents()
		if err != nil || !utf8.ValidString(contents) {
			// Binary or unreadable blobs do not count.
			return nil
		}
		lines := int64(strings.Count(contents, "\n"))
		if len(contents) > 0 && !strings.HasSuffix(contents, "\n") {
			lines++
		}
		byLanguage[lang] += lines
		total += lines
		return nil
	})
	if err != nil {
		return fmt.Errorf("enumerating tree of %s: %w", repo.FullName, err)
	}

	breakdown, err := json.Marshal(byLanguage)
	if err != nil {
		return err
	}
	rec := &models.RepositoryKLOCHistory{
		RepositoryID:      repo.ID,
		KLOC:              float64(total) / 1000,
		TotalLines:        total,
		LanguageBreakdown: string(breakdown),
		CalculatedAt:      p.now(),
	}
	if err := p.store.AppendKLOC(ctx, rec); err != nil {
		return fmt.Errorf("appending KLOC snapshot for %s: %w", repo.FullName, err)
	}
	slog.Info("Appended KLOC snapshot", "repo", repo.FullName, "kloc", rec.KLOC)
	return nil
}

func extensionOf(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return strings.ToLower(name[i:])
	}
	return ""
}

// marshalFiles serializes the change list for the files_changed column.
func marshalFiles(files []models.FileChange) string {
	if len(files) == 0 {
		return "[]"
	}
	b, err := json.Marshal(files)
	if err != nil {
		return "[]"
	}
	return string(b)
}
