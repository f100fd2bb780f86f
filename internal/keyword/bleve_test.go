package keyword

import (
	"testing"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := NewIndex()
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestIndex_SearchTitleAndPreview(t *testing.T) {
	idx := newTestIndex(t)
	docs := map[string]Doc{
		"c1": {Title: "Thermodynamics revision", Preview: "Explain entropy in simple terms"},
		"c2": {Title: "Organic chemistry", Preview: "What is a benzene ring?"},
		"c3": {Title: "Essay outline", Preview: "Help me structure an essay on entropy and time"},
	}
	for id, d := range docs {
		if err := idx.Upsert(id, d); err != nil {
			t.Fatalf("Upsert %s: %v", id, err)
		}
	}
	if n, err := idx.Count(); err != nil || n != 3 {
		t.Fatalf("Count = %d, %v", n, err)
	}

	res, err := idx.Search("benzene", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) != 1 || res[0].ID != "c2" {
		t.Errorf("Search(benzene) = %+v", res)
	}

	res, err = idx.Search("ENTROPY", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) != 2 {
		t.Errorf("Search(ENTROPY) = %+v, want c1 and c3", res)
	}
}

func TestIndex_TitleBoost(t *testing.T) {
	idx := newTestIndex(t)
	_ = idx.Upsert("body", Doc{Title: "Misc", Preview: "notes about optics and lenses"})
	_ = idx.Upsert("title", Doc{Title: "Optics", Preview: "first question"})

	res, err := idx.Search("optics", 10, &SearchOptions{TitleBoost: 5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) != 2 || res[0].ID != "title" {
		t.Errorf("Search with title boost = %+v, want title first", res)
	}
}

func TestIndex_Fuzzy(t *testing.T) {
	idx := newTestIndex(t)
	_ = idx.Upsert("c1", Doc{Title: "Photosynthesis", Preview: "chlorophyll"})

	res, err := idx.Search("chlorophyl", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) != 0 {
		t.Errorf("exact search matched misspelling: %+v", res)
	}
	res, err = idx.Search("chlorophyl", 10, &SearchOptions{Fuzzy: true})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) != 1 || res[0].ID != "c1" {
		t.Errorf("fuzzy Search = %+v", res)
	}
}

func TestIndex_UpsertReplacesAndDelete(t *testing.T) {
	idx := newTestIndex(t)
	_ = idx.Upsert("c1", Doc{Title: "Draft"})
	_ = idx.Upsert("c1", Doc{Title: "Genetics"})

	if res, _ := idx.Search("draft", 10, nil); len(res) != 0 {
		t.Errorf("old title still indexed: %+v", res)
	}
	if res, _ := idx.Search("genetics", 10, nil); len(res) != 1 {
		t.Errorf("new title not indexed: %+v", res)
	}
	if err := idx.Delete("c1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := idx.Delete("missing"); err != nil {
		t.Fatalf("Delete(missing): %v", err)
	}
	if res, _ := idx.Search("genetics", 10, nil); len(res) != 0 {
		t.Errorf("deleted doc found: %+v", res)
	}
}

func TestIndex_EmptyQuery(t *testing.T) {
	idx := newTestIndex(t)
	res, err := idx.Search("  ?! ", 10, nil)
	if err != nil || res != nil {
		t.Errorf("Search(punctuation) = %v, %v", res, err)
	}
}

func TestTokenizeQuery(t *testing.T) {
	got := tokenizeQuery("Hello, World! e=mc2")
	want := []string{"hello", "world", "e", "mc2"}
	if len(got) != len(want) {
		t.Fatalf("tokenizeQuery = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d = %q, want %q", i, got[i], want[i])
		}
	}
}
