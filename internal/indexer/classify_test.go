package indexer

import (
	"testing"

	"github.com/gitpulse/gitpulse-indexer/models"
)

func TestClassifyCommitConventionalPrefix(t *testing.T) {
	cases := []struct {
		message string
		want    models.CommitType
	}{
		{"fix: null deref in parser", models.CommitFix},
		{"fix(parser): null deref", models.CommitFix},
		{"feat!: drop legacy endpoint", models.CommitFeature},
		{"feature(api): batch uploads", models.CommitFeature},
		{"docs: document retry semantics", models.CommitDocs},
		{"refactor: split window derivation", models.CommitRefactor},
		{"test: cover empty fetch", models.CommitTest},
		{"style: gofmt", models.CommitStyle},
		{"perf: cache descriptor lookups", models.CommitPerf},
		{"ci: pin action versions", models.CommitCI},
		{"chore: bump deps", models.CommitChore},
		{"build: switch to make", models.CommitChore},
	}
	for _, tc := range cases {
		if got := ClassifyCommit(tc.message, nil); got != tc.want {
			t.Errorf("ClassifyCommit(%q) = %s, want %s", tc.message, got, tc.want)
		}
	}
}

func TestClassifyCommitByFiles(t *testing.T) {
	docs := []models.FileChange{{Filename: "README.md"}, {Filename: "docs/usage.rst"}}
	if got := ClassifyCommit("update things", docs); got != models.CommitDocs {
		t.Errorf("all-docs change = %s, want docs", got)
	}

	ci := []models.FileChange{{Filename: ".github/workflows/release.yml"}}
	if got := ClassifyCommit("tweak", ci); got != models.CommitCI {
		t.Errorf("all-CI change = %s, want ci", got)
	}

	tests := []models.FileChange{{Filename: "internal/store/states_test.go"}}
	if got := ClassifyCommit("more coverage", tests); got != models.CommitTest {
		t.Errorf("all-tests change = %s, want test", got)
	}

	mixed := []models.FileChange{{Filename: "README.md"}, {Filename: "main.go"}}
	if got := ClassifyCommit("update readme and fix bug", mixed); got != models.CommitFix {
		t.Errorf("mixed change falls through to keywords = %s, want fix", got)
	}
}

func TestClassifyCommitKeywords(t *testing.T) {
	cases := []struct {
		message string
		want    models.CommitType
	}{
		{"Fix race in dispatcher", models.CommitFix},
		{"Resolve flaky shutdown", models.CommitFix},
		{"Optimizing the hot path", models.CommitPerf},
		{"Add retry budget to broker", models.CommitFeature},
		{"Bump go-github to v68", models.CommitChore},
		{"Rewrite cursor handling", models.CommitRefactor},
		{"totally inscrutable", models.CommitOther},
	}
	for _, tc := range cases {
		if got := ClassifyCommit(tc.message, nil); got != tc.want {
			t.Errorf("ClassifyCommit(%q) = %s, want %s", tc.message, got, tc.want)
		}
	}
}

func TestClassifyCommitWordBoundaries(t *testing.T) {
	// "ci" must not match inside "circle"; only the subject line counts.
	if got := ClassifyCommit("circle back on the proposal", nil); got == models.CommitCI {
		t.Error("\"ci\" matched inside \"circle\"")
	}
	if got := ClassifyCommit("something\nfix: not the subject", nil); got == models.CommitFix {
		t.Error("classifier read past the subject line")
	}
}
