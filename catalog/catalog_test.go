package catalog

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCatalog_orderAndLastSeenWins(t *testing.T) {
	cat := New()

	cat.Add("repo1", "https://host.xz/org/repo1.git")
	cat.Add("repo2", "https://host.xz/org/repo2.git")
	cat.Add("repo3", "https://host.xz/org/repo3.git")
	// re-added name keeps its position, url is replaced
	cat.Add("repo1", "https://host.xz/org/repo1-moved.git")

	if cat.Len() != 3 {
		t.Errorf("Len() = %d, want 3", cat.Len())
	}

	want := []Entry{
		{"repo1", "https://host.xz/org/repo1-moved.git"},
		{"repo2", "https://host.xz/org/repo2.git"},
		{"repo3", "https://host.xz/org/repo3.git"},
	}
	if diff := cmp.Diff(want, cat.Entries()); diff != "" {
		t.Errorf("Entries() mismatch (-want +got):\n%s", diff)
	}
}

func TestCatalog_empty(t *testing.T) {
	cat := New()

	if cat.Len() != 0 {
		t.Errorf("Len() = %d, want 0", cat.Len())
	}
	if len(cat.Entries()) != 0 {
		t.Errorf("Entries() = %v, want empty", cat.Entries())
	}
}
