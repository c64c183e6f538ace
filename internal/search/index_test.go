package search

import (
	"testing"
)

func docs(titles ...string) []Doc {
	out := make([]Doc, len(titles))
	for i, t := range titles {
		out[i] = Doc{ID: string(rune('a' + i)), Text: t}
	}
	return out
}

// ---------- Options + defaultConfig ----------
func TestOptionsAndDefaults(t *testing.T) {
	def := defaultConfig()
	if def.stopwords != nil || def.maxDocs != 0 || def.minScore != 0 {
		t.Fatalf("defaultConfig unexpected: %#v", def)
	}

	cfg := def
	WithStopwords([]string{"  The ", "", "AN"})(&cfg)
	if _, ok := cfg.stopwords["the"]; !ok {
		t.Fatalf("WithStopwords failed (missing 'the'): %#v", cfg.stopwords)
	}
	if _, ok := cfg.stopwords["an"]; !ok {
		t.Fatalf("WithStopwords failed (missing 'an'): %#v", cfg.stopwords)
	}

	cfg2 := def
	WithStopwords(nil)(&cfg2)
	if cfg2.stopwords != nil {
		t.Fatalf("empty stopwords should remain nil")
	}

	WithMaxDocs(2)(&cfg)
	if cfg.maxDocs != 2 {
		t.Fatalf("WithMaxDocs failed: %d", cfg.maxDocs)
	}
	WithMaxDocs(0)(&cfg)
	if cfg.maxDocs != 2 {
		t.Fatalf("non-positive maxDocs should be ignored")
	}

	WithMinScore(0.5)(&cfg)
	if cfg.minScore != 0.5 {
		t.Fatalf("WithMinScore failed: %v", cfg.minScore)
	}
	WithMinScore(2)(&cfg)
	if cfg.minScore != 0.5 {
		t.Fatalf("out-of-range minScore should be ignored")
	}
}

func TestBuildIndex_FiltersAndMaxDocs(t *testing.T) {
	idx := buildIndex(docs("", "  ", "The", "Dune", "Alien"), config{
		stopwords: map[string]struct{}{"the": {}},
	})
	if len(idx.docs) != 2 {
		t.Fatalf("want 2 docs, got %d", len(idx.docs))
	}
	if idx.docs[0].text != "Dune" || idx.docs[0].id != "d" {
		t.Fatalf("unexpected first doc: %#v", idx.docs[0])
	}

	capped := buildIndex(docs("Dune", "Alien", "Heat"), config{maxDocs: 2})
	if len(capped.docs) != 2 {
		t.Fatalf("maxDocs not honored: %d", len(capped.docs))
	}
}

func TestTopK_RanksAndCarriesIDs(t *testing.T) {
	idx := NewIndex([]Doc{
		{ID: "r1", Text: "Blade Runner"},
		{ID: "r2", Text: "Blade Runner 2049"},
		{ID: "r3", Text: "The Matrix"},
	})

	res := idx.TopK("blade runner", 5)
	if len(res) != 2 {
		t.Fatalf("want 2 results, got %d: %#v", len(res), res)
	}
	if res[0].ID != "r1" || res[0].Score != 1 {
		t.Fatalf("exact title should rank first with score 1: %#v", res[0])
	}
	if res[1].ID != "r2" {
		t.Fatalf("want r2 second, got %#v", res[1])
	}
}

func TestTopK_CaseFoldingAndUnicode(t *testing.T) {
	idx := NewIndex([]Doc{{ID: "x", Text: "AMÉLIE"}, {ID: "y", Text: "Straße"}})

	if res := idx.TopK("amélie", 1); len(res) != 1 || res[0].ID != "x" {
		t.Fatalf("case-insensitive match failed: %#v", res)
	}
	if res := idx.TopK("STRASSE", 1); len(res) != 1 || res[0].ID != "y" {
		t.Fatalf("full case folding failed: %#v", res)
	}
}

func TestTopK_EmptyInputs(t *testing.T) {
	empty := NewIndex(nil)
	if res := empty.TopK("anything", 3); res != nil {
		t.Fatalf("empty index should return nil")
	}

	idx := NewIndex(docs("Dune"), WithStopwords([]string{"the"}))
	if res := idx.TopK("   ", 3); res != nil {
		t.Fatalf("blank query should return nil")
	}
	if res := idx.TopK("the", 3); res != nil {
		t.Fatalf("stopword-only query should return nil")
	}
	if res := idx.TopK("alien", 3); res != nil {
		t.Fatalf("no overlap should return nil")
	}
}

func TestTopK_DefaultKAndMinScore(t *testing.T) {
	idx := NewIndex(docs("Star Wars", "Star Trek", "Star Dust", "Star Man"))
	if res := idx.TopK("star", 0); len(res) != 3 {
		t.Fatalf("k<=0 should default to 3, got %d", len(res))
	}

	strict := NewIndex(docs("Star Wars", "Star Wars Episode IV A New Hope"), WithMinScore(0.5))
	res := strict.TopK("star wars", 5)
	if len(res) != 1 || res[0].Text != "Star Wars" {
		t.Fatalf("minScore should drop weak matches: %#v", res)
	}
}

func TestTopK_TieBreaks(t *testing.T) {
	// Equal scores: shorter title first, then lexical, then ID.
	idx := NewIndex([]Doc{
		{ID: "2", Text: "Heat Wave"},
		{ID: "1", Text: "Heat Wave"},
		{ID: "3", Text: "Heat Sun"},
	})
	res := idx.TopK("heat", 3)
	if len(res) != 3 {
		t.Fatalf("want 3, got %d", len(res))
	}
	if res[0].Text != "Heat Sun" {
		t.Fatalf("shorter title should win ties: %#v", res)
	}
	if res[1].ID != "1" || res[2].ID != "2" {
		t.Fatalf("ID should break remaining ties: %#v", res)
	}
}

func TestHelpers(t *testing.T) {
	toks := tokenize("Spider-Man: No Way Home (2021)", nil)
	for _, w := range []string{"spider", "man", "no", "way", "home", "2021"} {
		if _, ok := toks[w]; !ok {
			t.Fatalf("missing token %q in %#v", w, toks)
		}
	}
	if tokenize("!!!", nil) != nil {
		t.Fatalf("punctuation-only input should tokenize to nil")
	}
	if got := tokenize("the end", map[string]struct{}{}); len(got) != 2 {
		t.Fatalf("empty non-nil stop map should keep all tokens: %#v", got)
	}

	a := map[string]struct{}{"x": {}, "y": {}, "z": {}}
	b := map[string]struct{}{"y": {}}
	if overlap(a, b) != 1 || overlap(b, a) != 1 || overlap(nil, a) != 0 {
		t.Fatalf("overlap wrong")
	}

	if got := normalizeWhitespace("a \t\n b\r\nc"); got != "a b c" {
		t.Fatalf("normalizeWhitespace: %q", got)
	}
}
