package gitlocal

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/gitpulse/gitpulse-indexer/models"
)

func TestSanitizeReplacesUnsafeCharacters(t *testing.T) {
	cases := map[string]string{
		"acme/billing":     "acme_billing",
		"acme/we rd!repo":  "acme_we_rd_repo",
		"a.b-c_d":          "a.b-c_d",
		"owner/../../etc":  "owner_.._.._etc",
		"owner/repo\x00":   "owner_repo_",
		"UPPER/MixedCase9": "UPPER_MixedCase9",
	}
	for in, want := range cases {
		if got := sanitize(in); got != want {
			t.Errorf("sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestScratchDirStaysInsideTmp(t *testing.T) {
	tmp := t.TempDir()

	dir, err := ScratchDir(tmp, "acme/billing")
	if err != nil {
		t.Fatalf("scratch dir: %v", err)
	}
	if filepath.Dir(dir) != filepath.Clean(tmp) {
		t.Fatalf("scratch dir %q is not a direct child of %q", dir, tmp)
	}
	if filepath.Base(dir) != "gitpulse_acme_billing" {
		t.Fatalf("unexpected scratch name %q", filepath.Base(dir))
	}

	// Traversal characters are neutralized before the path is built.
	dir, err = ScratchDir(tmp, "../../escape")
	if err != nil {
		t.Fatalf("scratch dir with traversal input: %v", err)
	}
	if filepath.Dir(dir) != filepath.Clean(tmp) {
		t.Fatalf("traversal input escaped tmp: %q", dir)
	}
	if strings.Contains(filepath.Base(dir), "/") {
		t.Fatalf("separator survived sanitization: %q", dir)
	}
}

func TestTerminalCloneClassification(t *testing.T) {
	terminal := []string{
		"fatal: repository not found",
		"remote: Repository not found.",
		"fatal: Authentication failed for 'https://github.com/acme/x.git/'",
		"error: unable to rename temporary file tmp_pack_abc",
	}
	for _, out := range terminal {
		if !containsAny(out, terminalCloneIndicators) {
			t.Errorf("expected terminal classification for %q", out)
		}
	}

	transient := []string{
		"error: RPC failed; curl 56 GnuTLS recv error",
		"fatal: the remote end hung up unexpectedly",
	}
	for _, out := range transient {
		if containsAny(out, terminalCloneIndicators) {
			t.Errorf("expected transient classification for %q", out)
		}
	}
}

func TestLFSFailureDetection(t *testing.T) {
	if !containsAny("smudge filter lfs failed", lfsIndicators) {
		t.Error("smudge failure not recognized as LFS-related")
	}
	if !containsAny("git-lfs: command not found", lfsIndicators) {
		t.Error("missing git-lfs binary not recognized as LFS-related")
	}
	if containsAny("fatal: repository not found", lfsIndicators) {
		t.Error("non-LFS failure misclassified")
	}
}

func TestExtensionMapping(t *testing.T) {
	if extensionOf("cmd/agent.go") != ".go" {
		t.Error("extension extraction failed for nested path")
	}
	if extensionOf("Makefile") != "" {
		t.Error("extensionless file must map to empty")
	}
	if lang := codeExtensions[extensionOf("src/Main.JAVA")]; lang != "Java" {
		t.Errorf("case-insensitive extension lookup failed, got %q", lang)
	}
}

func TestMarshalFiles(t *testing.T) {
	if got := marshalFiles(nil); got != "[]" {
		t.Fatalf("nil files must serialize to [], got %q", got)
	}
	got := marshalFiles([]models.FileChange{{Filename: "a.go", Additions: 1}})
	if !strings.Contains(got, `"a.go"`) {
		t.Fatalf("unexpected serialization %q", got)
	}
}
