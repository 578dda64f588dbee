package classify

import (
	"testing"

	"github.com/hazyhaar/formfill/dom"
	"github.com/hazyhaar/formfill/dom/htmldoc"
)

func parse(t *testing.T, src string) *htmldoc.Document {
	t.Helper()
	d, err := htmldoc.ParseString(src, "https://jobs.example.com/apply")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return d
}

func TestClassify_LabelAssociations(t *testing.T) {
	d := parse(t, `<form>
		<label for="e">Email Address *</label><input id="e" type="email">
		<span id="ph">Phone</span><input id="p" aria-labelledby="ph">
		<label>Last Name <input id="ln"></label>
		<div class="q"><label>Current Company</label><input id="co"></div>
		<input id="first_name">
		<input id="mystery">
		<input id="city" placeholder="Where are you based? (city)">
	</form>`)

	cases := []struct {
		sel       string
		wantKind  Kind
		wantLabel string
	}{
		{"#e", Email, "Email Address"},
		{"#p", Phone, "Phone"},
		{"#ln", LastName, "Last Name"},
		{"#co", Company, "Current Company"},
		{"#first_name", FirstName, ""},
		{"#mystery", Unknown, ""},
		{"#city", Location, "Where are you based? (city)"},
	}
	for _, tc := range cases {
		got := Classify(d, d.Element(tc.sel))
		if got.Kind != tc.wantKind || got.Label != tc.wantLabel {
			t.Errorf("%s: got %+v, want %s/%q", tc.sel, got, tc.wantKind, tc.wantLabel)
		}
	}
}

func TestClassify_RadioGroupUsesQuestion(t *testing.T) {
	d := parse(t, `<fieldset><legend>Are you a veteran?</legend>
		<label><input type="radio" name="v" id="v1" value="yes"> Yes</label>
		<label><input type="radio" name="v" id="v2" value="no"> No</label>
	</fieldset>
	<div class="field"><label>What is your gender?</label>
		<label><input type="radio" name="g" id="g1"> Female</label>
		<label><input type="radio" name="g" id="g2"> Male</label>
	</div>`)

	v := Classify(d, d.Element("#v2"))
	if v.Kind != VeteranStatus || v.Label != "Are you a veteran?" {
		t.Fatalf("veteran = %+v", v)
	}
	g := Classify(d, d.Element("#g1"))
	if g.Kind != Gender || g.Label != "What is your gender?" {
		t.Fatalf("gender = %+v", g)
	}
}

func TestClassify_ContainerSkipsSharedContainers(t *testing.T) {
	d := parse(t, `<div><label>Notes</label><input id="a"><input id="b"></div>`)
	if got := Label(d, d.Element("#b")); got != "" {
		t.Fatalf("label leaked from a shared container: %q", got)
	}
}

func TestClassify_LabelExcludesNestedOptions(t *testing.T) {
	d := parse(t, `<label>Highest degree <select id="s"><option>BS</option><option>MS</option></select></label>`)
	got := Classify(d, d.Element("#s"))
	if got.Label != "Highest degree" || got.Kind != Degree {
		t.Fatalf("got %+v", got)
	}
}

func TestClassify_EthnicityIsNotLocation(t *testing.T) {
	d := parse(t, `<label for="x">Ethnicity</label><select id="x"><option>Prefer not to say</option></select>`)
	if got := Classify(d, d.Element("#x")); got.Kind != Race {
		t.Fatalf("kind = %s", got.Kind)
	}
}

func TestClassify_ExtraSources(t *testing.T) {
	d := parse(t, `<div role="listitem"><div role="heading">Your school</div><div><input id="q"><input id="other"></div></div>`)
	el := d.Element("#q")
	if got := Classify(d, el); got.Kind != Unknown {
		t.Fatalf("without source: %+v", got)
	}
	heading := func(el dom.Element) string {
		item, err := el.Closest(`[role="listitem"]`)
		if err != nil || item == nil {
			return ""
		}
		hs, _ := item.QueryAll(`[role="heading"]`)
		if len(hs) == 0 {
			return ""
		}
		return hs[0].Text()
	}
	got := Classify(d, el, WithLabelSource(heading))
	if got.Kind != School || got.Label != "Your school" {
		t.Fatalf("with source: %+v", got)
	}
}

func TestClassify_FallbackLabel(t *testing.T) {
	d := parse(t, `<input id="x">`)
	got := Classify(d, d.Element("#x"), WithFallbackLabel(func(dom.Element) string { return "LinkedIn Profile" }))
	if got.Kind != LinkedIn || got.Label != "LinkedIn Profile" {
		t.Fatalf("got %+v", got)
	}
}

func TestKindOf_TableOrder(t *testing.T) {
	// "school" appears in both rows; the first row wins.
	table := []Synonyms{{Degree, []string{"school"}}, {School, []string{"school"}}}
	if got := KindOf([]string{"high school"}, table); got != Degree {
		t.Fatalf("got %s", got)
	}
	if got := KindOf(nil, Table); got != Unknown {
		t.Fatalf("empty attrs: %s", got)
	}
}

func TestCleanLabel(t *testing.T) {
	cases := map[string]string{
		"  First   name * ": "First name",
		"Email:":            "Email",
		"":                  "",
	}
	for in, want := range cases {
		if got := CleanLabel(in); got != want {
			t.Errorf("CleanLabel(%q) = %q, want %q", in, got, want)
		}
	}
}
