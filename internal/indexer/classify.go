package indexer

import (
	"regexp"
	"strings"

	"github.com/gitpulse/gitpulse-indexer/models"
)

// conventionalPrefix matches conventional-commit subjects like
// "fix(parser): ..." or "feat!: ...".
var conventionalPrefix = regexp.MustCompile(`^(fix|feat|feature|docs|refactor|test|style|perf|ci|chore|build)(\([^)]*\))?!?:`)

// keywordRules map message keywords to a type; checked in order so the more
// specific classes win.
var keywordRules = []struct {
	kind     models.CommitType
	keywords []string
}{
	{models.CommitFix, []string{"fix", "bug", "patch", "hotfix", "resolve", "repair"}},
	{models.CommitPerf, []string{"performance", "optimiz", "speed up", "faster"}},
	{models.CommitDocs, []string{"doc", "readme", "changelog", "comment"}},
	{models.CommitTest, []string{"test", "spec", "coverage"}},
	{models.CommitRefactor, []string{"refactor", "restructure", "cleanup", "clean up", "rewrite", "simplify"}},
	{models.CommitStyle, []string{"format", "lint", "style", "whitespace", "typo"}},
	{models.CommitCI, []string{"ci", "pipeline", "workflow", "github action", "jenkins", "travis"}},
	{models.CommitChore, []string{"chore", "bump", "upgrade", "dependency", "dependencies", "version", "release"}},
	{models.CommitFeature, []string{"add", "feature", "implement", "introduce", "support", "new"}},
}

// ClassifyCommit assigns a deterministic type from the commit message and
// the list of changed files. Conventional-commit prefixes take precedence;
// file-path evidence is used before the keyword fallback.
func ClassifyCommit(message string, files []models.FileChange) models.CommitType {
	subject := strings.ToLower(strings.TrimSpace(firstLine(message)))

	if m := conventionalPrefix.FindStringSubmatch(subject); m != nil {
		switch m[1] {
		case "fix":
			return models.CommitFix
		case "feat", "feature":
			return models.CommitFeature
		case "docs":
			return models.CommitDocs
		case "refactor":
			return models.CommitRefactor
		case "test":
			return models.CommitTest
		case "style":
			return models.CommitStyle
		case "perf":
			return models.CommitPerf
		case "ci":
			return models.CommitCI
		case "chore", "build":
			return models.CommitChore
		}
	}

	if kind, ok := classifyByFiles(files); ok {
		return kind
	}

	for _, rule := range keywordRules {
		for _, kw := range rule.keywords {
			if containsWordish(subject, kw) {
				return rule.kind
			}
		}
	}
	return models.CommitOther
}

// classifyByFiles recognises commits whose entire change set lives in one
// unambiguous area: docs, CI configuration, or tests.
func classifyByFiles(files []models.FileChange) (models.CommitType, bool) {
	if len(files) == 0 {
		return models.CommitOther, false
	}
	allDocs, allCI, allTests := true, true, true
	for _, f := range files {
		name := strings.ToLower(f.Filename)
		if !strings.HasSuffix(name, ".md") && !strings.HasSuffix(name, ".rst") && !strings.HasPrefix(name, "docs/") {
			allDocs = false
		}
		if !strings.HasPrefix(name, ".github/workflows/") && !strings.HasPrefix(name, ".circleci/") && name != ".travis.yml" && name != "jenkinsfile" {
			allCI = false
		}
		base := name[strings.LastIndex(name, "/")+1:]
		if !strings.Contains(base, "_test.") && !strings.Contains(base, ".test.") && !strings.HasPrefix(base, "test_") && !strings.HasPrefix(name, "tests/") {
			allTests = false
		}
	}
	switch {
	case allDocs:
		return models.CommitDocs, true
	case allCI:
		return models.CommitCI, true
	case allTests:
		return models.CommitTest, true
	}
	return models.CommitOther, false
}

// containsWordish reports whether kw occurs in s on a word-ish boundary, so
// "ci" does not match "circle".
func containsWordish(s, kw string) bool {
	idx := 0
	for {
		i := strings.Index(s[idx:], kw)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(kw)
		beforeOK := start == 0 || !isAlnum(s[start-1])
		afterOK := end >= len(s) || !isAlnum(s[end])
		// Allow stem matches like "optimiz" → "optimizing".
		if strings.HasSuffix(kw, "iz") || strings.HasSuffix(kw, "enc") {
			afterOK = true
		}
		if beforeOK && afterOK {
			return true
		}
		idx = end
	}
}

func isAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= '0' && c <= '9'
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
