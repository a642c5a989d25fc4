package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestCatalog(t *testing.T) *CatalogStore {
	t.Helper()
	c, err := NewCatalogStore(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func seedProjects(t *testing.T, c *CatalogStore) {
	t.Helper()
	projects := []Project{
		{ID: "p-1", Name: "Emaar Beachfront Tower 1", Developer: "Emaar", City: "Dubai", Country: "AE", Area: "Dubai Marina", PriceFrom: "AED 2.5M", Status: "Ready", Tags: []string{"luxury", "sea view"}},
		{ID: "p-2", Name: "Damac Hills 2", Developer: "Damac", City: "Dubai", Country: "AE", Area: "Dubailand", Status: "Ready", Tags: []string{"family", "villa"}},
		{ID: "p-3", Name: "Creek Beach", Developer: "Emaar", City: "Dubai", Country: "AE", Area: "Creek Harbour", Status: "Off-plan"},
	}
	for _, p := range projects {
		if err := c.Upsert(context.Background(), p); err != nil {
			t.Fatal(err)
		}
	}
}

func TestCatalogStore_SearchRanksNameHitsFirst(t *testing.T) {
	c := newTestCatalog(t)
	seedProjects(t, c)

	got, err := c.Search(context.Background(), "Emaar Beachfront price", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(got))
	}
	if got[0].ID != "p-1" {
		t.Errorf("expected p-1 first, got %s", got[0].ID)
	}
	if len(got[0].Tags) != 2 || got[0].Tags[0] != "luxury" {
		t.Errorf("tags not round-tripped: %v", got[0].Tags)
	}
}

func TestCatalogStore_SearchNoSignificantTerms(t *testing.T) {
	c := newTestCatalog(t)
	seedProjects(t, c)

	got, err := c.Search(context.Background(), "what is the price", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected no matches, got %d", len(got))
	}
}

func TestCatalogStore_GetMissing(t *testing.T) {
	c := newTestCatalog(t)

	_, err := c.Get(context.Background(), "nope")
	if !errors.Is(err, ErrProjectNotFound) {
		t.Errorf("expected ErrProjectNotFound, got %v", err)
	}
}

func TestCatalogStore_ImportSeed(t *testing.T) {
	c := newTestCatalog(t)
	seed := `projects:
  - id: p-9
    name: Sobha Hartland
    developer: Sobha
    city: Dubai
    country: AE
    status: New Launch
    tags: [modern, family]
`
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(seed), 0644); err != nil {
		t.Fatal(err)
	}

	n, err := c.ImportSeed(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("imported %d projects, want 1", n)
	}

	p, err := c.Get(context.Background(), "p-9")
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != "New Launch" || len(p.Tags) != 2 {
		t.Errorf("unexpected project: %+v", p)
	}
}

func TestCatalogStore_SearchMatchesTags(t *testing.T) {
	c := newTestCatalog(t)
	seedProjects(t, c)

	got, err := c.Search(context.Background(), "family villa", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "p-2" {
		t.Fatalf("expected only p-2, got %v", got)
	}
}
