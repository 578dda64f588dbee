package strategy

import (
	"context"
	"testing"

	"github.com/hazyhaar/formfill/dom"
	"github.com/hazyhaar/formfill/dom/htmldoc"
	"github.com/hazyhaar/formfill/kvstore"
	"github.com/hazyhaar/formfill/memory"
	"github.com/hazyhaar/formfill/profile"
	"github.com/hazyhaar/formfill/run"
)

const greenhouseForm = `<html><body><form>
<div><label for="first_name">First Name</label><input id="first_name" name="first_name"></div>
<div><label for="yoe">Years of experience</label><input id="yoe" name="years_experience"></div>
<div id="education_section">
  <div class="edu-row">
    <label for="school_0">School</label><input id="school_0" name="education[0][school_name]">
    <label for="degree_0">Degree</label><input id="degree_0" name="education[0][degree]">
    <label for="sy_0">Start Date Year</label><input id="sy_0" name="education[0][start_date][year]">
    <label for="ey_0">End Date Year</label><input id="ey_0" name="education[0][end_date][year]">
  </div>
  <a href="#" id="add_edu">+ Add another education</a>
</div>
</form></body></html>`

const educationRow = `<div class="edu-row">
    <label for="school_1">School</label><input id="school_1" name="education[1][school_name]">
    <label for="degree_1">Degree</label><input id="degree_1" name="education[1][degree]">
    <label for="sy_1">Start Date Year</label><input id="sy_1" name="education[1][start_date][year]">
    <label for="ey_1">End Date Year</label><input id="ey_1" name="education[1][end_date][year]">
  </div>`

func TestGreenhouse_RepeatingSection(t *testing.T) {
	ctx := context.Background()
	d := parse(t, greenhouseForm, "https://boards.greenhouse.io/acme/jobs/1")
	clicks := 0
	d.On("click", func(ev htmldoc.Event) {
		if ev.Target.Attr("id") == "add_edu" {
			clicks++
			d.Element("#education_section").AppendHTML(educationRow)
		}
	})

	s := NewManager(fastDeps()).SelectFor(d.Host())
	if s.Name() != "Greenhouse" {
		t.Fatalf("strategy = %s", s.Name())
	}
	fields, err := s.Scan(ctx, d)
	if err != nil {
		t.Fatal(err)
	}
	p := &profile.Profile{
		UserProfile: map[string]string{"firstName": "Jane"},
		Education: []profile.Education{
			{School: "MIT", Degree: "BS", Start: "2010", End: "2014"},
			{School: "Stanford", Degree: "MS", Start: "2014-09", End: "2016-06"},
		},
	}
	rep, err := s.Fill(ctx, &FillContext{Doc: d, Fields: fields, Profile: p, Control: run.NewControl("run_1", nil, 0)})
	if err != nil {
		t.Fatal(err)
	}
	if clicks != 1 {
		t.Fatalf("add link clicked %d times", clicks)
	}
	want := map[string]string{
		"#first_name": "Jane",
		"#school_0":   "MIT",
		"#degree_0":   "BS",
		"#sy_0":       "2010",
		"#ey_0":       "2014",
		"#school_1":   "Stanford",
		"#degree_1":   "MS",
		"#sy_1":       "2014",
		"#ey_1":       "2016",
		"#yoe":        "",
	}
	for sel, v := range want {
		if got := d.Element(sel).Value(); got != v {
			t.Errorf("%s = %q, want %q", sel, got, v)
		}
	}
	if rep.Filled != 9 || rep.Total != 10 || rep.Status != run.StatusCompleted {
		t.Fatalf("report = %+v", rep)
	}
}

// freshDoc hands out a new handle on every query, the way a live browser
// page does.
type freshDoc struct {
	*htmldoc.Document
}

func (d freshDoc) Root() dom.Element { return fresh(d.Document.Root()) }
func (d freshDoc) Body() dom.Element { return fresh(d.Document.Body()) }

func (d freshDoc) QueryAll(sel string) ([]dom.Element, error) {
	return freshAll(d.Document.QueryAll(sel))
}

func (d freshDoc) ShadowHosts() ([]dom.Element, error) {
	return freshAll(d.Document.ShadowHosts())
}

type freshElement struct {
	dom.Element
}

func (e *freshElement) NodeKey() any { return e.Element }

func (e *freshElement) QueryAll(sel string) ([]dom.Element, error) {
	return freshAll(e.Element.QueryAll(sel))
}

func (e *freshElement) Closest(sel string) (dom.Element, error) {
	el, err := e.Element.Closest(sel)
	return fresh(el), err
}

func (e *freshElement) Parent() dom.Element     { return fresh(e.Element.Parent()) }
func (e *freshElement) ShadowRoot() dom.Element { return fresh(e.Element.ShadowRoot()) }

func fresh(el dom.Element) dom.Element {
	if el == nil {
		return nil
	}
	return &freshElement{Element: el}
}

func freshAll(els []dom.Element, err error) ([]dom.Element, error) {
	out := make([]dom.Element, len(els))
	for i, el := range els {
		out[i] = fresh(el)
	}
	return out, err
}

func TestGreenhouse_FreshHandles(t *testing.T) {
	ctx := context.Background()
	d := parse(t, greenhouseForm, "https://boards.greenhouse.io/acme/jobs/1")
	d.On("click", func(ev htmldoc.Event) {
		if ev.Target.Attr("id") == "add_edu" {
			d.Element("#education_section").AppendHTML(educationRow)
		}
	})
	doc := freshDoc{d}

	s := NewManager(fastDeps()).SelectFor(doc.Host())
	fields, err := s.Scan(ctx, doc)
	if err != nil {
		t.Fatal(err)
	}
	p := &profile.Profile{
		UserProfile: map[string]string{"firstName": "Jane"},
		Education: []profile.Education{
			{School: "MIT", Degree: "BS", Start: "2010", End: "2014"},
			{School: "Stanford", Degree: "MS", Start: "2014-09", End: "2016-06"},
		},
	}
	ctl := run.NewControl("run_1", nil, 0)
	rep, err := s.Fill(ctx, &FillContext{Doc: doc, Fields: fields, Profile: p, Control: ctl})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Filled != 9 || rep.Total != 10 {
		t.Fatalf("report = %+v", rep)
	}
	if snap := ctl.Snapshot(); snap.Filled != 9 || snap.Total != 10 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if d.Element("#school_1").Value() != "Stanford" || d.Element("#first_name").Value() != "Jane" {
		t.Fatal("rows not written")
	}
}

const employmentForm = `<html><body><form>
<div id="employment_section">
  <div class="job-row">
    <label for="company_0">Company Name</label><input id="company_0" name="employment[0][company_name]">
    <label for="title_0">Title</label><input id="title_0" name="employment[0][title]">
  </div>
</div>
<div><label for="why">Why do you want to join us?</label><textarea id="why"></textarea></div>
</form></body></html>`

func TestGreenhouse_SectionsBeforeGuesses(t *testing.T) {
	ctx := context.Background()
	d := parse(t, employmentForm, "https://boards.greenhouse.io/acme/jobs/3")

	mem := memory.New(memory.Config{Store: kvstore.NewMemory()})
	if _, err := mem.Learn(ctx, []memory.Learned{{Question: "Title", Answer: "Manager"}}); err != nil {
		t.Fatal(err)
	}
	orc := &fakeOracle{answer: "Drafted answer"}
	deps := fastDeps()
	deps.Memory = mem
	deps.Oracle = orc
	s := NewGreenhouse(NewGeneric(deps))
	fields, err := s.Scan(ctx, d)
	if err != nil {
		t.Fatal(err)
	}
	p := &profile.Profile{Experience: []profile.Experience{{Company: "Acme", Title: "Engineer"}}}
	rep, err := s.Fill(ctx, &FillContext{Doc: d, Fields: fields, Profile: p, Control: run.NewControl("run_1", nil, 0)})
	if err != nil {
		t.Fatal(err)
	}

	if v := d.Element("#title_0").Value(); v != "Engineer" {
		t.Fatalf("title = %q", v)
	}
	if v := d.Element("#company_0").Value(); v != "Acme" {
		t.Fatalf("company = %q", v)
	}
	if v := d.Element("#why").Value(); v != "Drafted answer" {
		t.Fatalf("why = %q", v)
	}
	for _, o := range rep.Outcomes {
		if o.Label == "Title" && o.Pass != PassSection {
			t.Fatalf("title outcome = %+v", o)
		}
	}
	if len(orc.questions) != 1 || orc.questions[0].Question != "Why do you want to join us?" {
		t.Fatalf("oracle questions = %+v", orc.questions)
	}
	if rep.Filled != 3 || rep.Total != 3 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestGreenhouse_DemographicFallback(t *testing.T) {
	ctx := context.Background()
	d := parse(t, `<label for="gender">Gender</label><select id="gender">
		<option value="">Please select</option><option value="m">Male</option><option value="f">Female</option>
		<option value="d">I decline to self-identify</option></select>`, "https://boards.greenhouse.io/acme/jobs/2")
	orc := &fakeOracle{match: "i decline to self-identify"}
	deps := fastDeps()
	deps.Oracle = orc
	s := NewGreenhouse(NewGeneric(deps))
	fields, _ := s.Scan(ctx, d)
	rep, _ := s.Fill(ctx, &FillContext{Doc: d, Fields: fields, Profile: &profile.Profile{}, Control: run.NewControl("run_1", nil, 0)})

	if d.Element("#gender").Value() != "d" || rep.Filled != 1 {
		t.Fatalf("value %q report %+v", d.Element("#gender").Value(), rep)
	}
	if len(orc.dropdowns) != 1 || orc.dropdowns[0].UserValue != DeclineAnswer || len(orc.dropdowns[0].Options) != 3 {
		t.Fatalf("dropdowns = %+v", orc.dropdowns)
	}
}

func TestTargetMatches(t *testing.T) {
	cases := []struct {
		t     target
		attrs []string
		want  bool
	}{
		{targetStartYear, []string{"start date year"}, true},
		{targetStartYear, []string{"education_start_date_year"}, true},
		{targetStartYear, []string{"end date year"}, false},
		{targetStartYear, []string{"years of experience", "start year"}, false},
		{targetEndYear, []string{"years of expereince", "end year"}, false},
		{targetStartMonth, []string{"start month"}, true},
		{targetSchool, []string{"university"}, true},
		{targetCompany, []string{"organization name"}, true},
		{targetTitle, []string{"your role"}, true},
		{targetDegree, []string{"school"}, false},
	}
	for _, tc := range cases {
		if got := tc.t.matches(tc.attrs); got != tc.want {
			t.Errorf("%s.matches(%v) = %v, want %v", tc.t, tc.attrs, got, tc.want)
		}
	}
}

func TestParseDate(t *testing.T) {
	cases := []struct{ in, year, month string }{
		{"2019-03", "2019", "03"},
		{"2019", "2019", ""},
		{"", "", ""},
		{" 2020-11-01 ", "2020", "11"},
	}
	for _, tc := range cases {
		y, m := parseDate(tc.in)
		if y != tc.year || m != tc.month {
			t.Errorf("parseDate(%q) = %q, %q", tc.in, y, m)
		}
	}
	if got := monthValues("03"); len(got) != 4 || got[1] != "3" || got[2] != "March" || got[3] != "Mar" {
		t.Fatalf("monthValues = %v", got)
	}
}
