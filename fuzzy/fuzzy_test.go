package fuzzy

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMatchTiered(t *testing.T) {
	m := Default()
	cases := []struct {
		name    string
		query   string
		options []string
		want    string
		conf    Confidence
		score   float64
	}{
		{"exact ignores case", " united states ", []string{"Canada", "United States"}, "United States", High, 1.0},
		{"containment", "Computer Science", []string{"Bachelor of Science in Computer Science"}, "Bachelor of Science in Computer Science", High, 0.95},
		{"abbreviation", "BS", []string{"Bachelor of Arts", "Bachelor of Science"}, "Bachelor of Science", High, 1.0},
		{"punctuated abbreviation", "B.Tech", []string{"Master of Technology", "Bachelor of Technology"}, "Bachelor of Technology", High, 1.0},
		{"university", "CMU", []string{"Stanford University", "Carnegie Mellon University"}, "Carnegie Mellon University", High, 1.0},
		{"city alias", "Bangalore", []string{"Mumbai", "Bengaluru"}, "Bengaluru", High, 1.0},
		{"ties keep first", "new york", []string{"York, New", "New, York"}, "York, New", High, 1.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := m.MatchTiered(tc.query, tc.options)
			if got == nil {
				t.Fatal("no match")
			}
			if got.Match != tc.want || got.Confidence != tc.conf || got.Score != tc.score {
				t.Fatalf("got %+v, want %q %s %v", got, tc.want, tc.conf, tc.score)
			}
		})
	}
}

func TestMatchTiered_Medium(t *testing.T) {
	got := Default().MatchTiered("data science analytics", []string{"Marketing", "Data Science Research"})
	if got == nil || got.Match != "Data Science Research" || got.Confidence != Medium {
		t.Fatalf("got %+v", got)
	}
	if got.Score < MediumScore || got.Score >= HighScore {
		t.Fatalf("score %v outside the medium tier", got.Score)
	}
}

func TestMatchTiered_NoMatch(t *testing.T) {
	m := Default()
	if got := m.MatchTiered("zzz", []string{"Yes", "No"}); got != nil {
		t.Fatalf("got %+v", got)
	}
	if got := m.MatchTiered("BS", nil); got != nil {
		t.Fatalf("empty options: %+v", got)
	}
	if got := m.MatchTiered("", []string{"a"}); got != nil {
		t.Fatalf("empty query: %+v", got)
	}
	// One-letter strings never match by containment.
	if got := m.MatchTiered("a", []string{"Canada"}); got != nil {
		t.Fatalf("short query: %+v", got)
	}
}

func TestMatchTiered_AlwaysACandidate(t *testing.T) {
	m := Default()
	options := []string{"Male", "Female", "Non-binary", "Prefer not to say"}
	for _, q := range []string{"female", "F", "woman", "non binary", "decline", "prefer not"} {
		got := m.MatchTiered(q, options)
		if got == nil {
			continue
		}
		found := false
		for _, o := range options {
			if o == got.Match {
				found = true
			}
		}
		if !found {
			t.Fatalf("%q matched %q which is not an option", q, got.Match)
		}
	}
}

func TestSimilarity(t *testing.T) {
	m := Default()
	a := m.Tokens("of the and")
	if len(a) != 0 {
		t.Fatalf("stop words kept: %v", a)
	}
	if s := Similarity(a, m.Tokens("science")); s != 0 {
		t.Fatalf("empty set similarity = %v", s)
	}
	// {cs} vs {bachelor, science, computer}: no overlap.
	if s := Similarity(m.Tokens("CS"), m.Tokens("Bachelor of Science in Computer Science")); s != 0 {
		t.Fatalf("similarity = %v", s)
	}
	// {master, science} vs {master, science, data}: j = 2/3, c = 1.
	s := Similarity(m.Tokens("MS"), m.Tokens("Master of Science in Data"))
	if s < 0.83 || s > 0.84 {
		t.Fatalf("similarity = %v", s)
	}
}

func TestLoadDictionary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dict.yaml")
	data := "abbreviations:\n  cs: [computer, science]\n  bs: []\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	d, err := LoadDictionary(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := d.Abbreviations["bs"]; ok {
		t.Fatal("bs should be removed")
	}
	if len(d.StopWords) == 0 {
		t.Fatal("default stop words lost")
	}
	m := New(d)
	got := m.MatchTiered("CS", []string{"Computer Science", "Biology"})
	if got == nil || got.Match != "Computer Science" {
		t.Fatalf("got %+v", got)
	}
}

func TestDefaultDictionary(t *testing.T) {
	d := DefaultDictionary()
	if len(d.Abbreviations) < 90 {
		t.Fatalf("abbreviations = %d", len(d.Abbreviations))
	}
	if got := d.Abbreviations["mit"]; len(got) != 3 || got[0] != "massachusetts" {
		t.Fatalf("mit = %v", got)
	}
}
