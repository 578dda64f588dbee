package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/formfill/dbopen"
	"github.com/hazyhaar/formfill/dom"
	"github.com/hazyhaar/formfill/dom/htmldoc"
	"github.com/hazyhaar/formfill/horosafe"
	"github.com/hazyhaar/formfill/kvstore"
	"github.com/hazyhaar/formfill/memory"
	"github.com/hazyhaar/formfill/observability"
	"github.com/hazyhaar/formfill/profile"
	"github.com/hazyhaar/formfill/run"
	"github.com/hazyhaar/formfill/strategy"
)

const firstNamePage = `<form><label for="fn">First Name</label><input id="fn" name="first_name"></form>`

const questionsPage = `<form>
	<label for="why">Why do you want to join us?</label>
	<textarea id="why">I enjoy building developer tools</textarea>
	<label for="move">Are you willing to relocate?</label>
	<select id="move"><option value="">Select...</option><option value="y" selected>Yes</option><option value="n">No</option></select>
	<label for="mail">Email</label><input id="mail" type="email" value="jane@example.com">
</form>`

type testEnv struct {
	eng    *Engine
	store  *kvstore.Memory
	mem    *memory.Memory
	runLog *observability.RunLog
}

func newEnv(t *testing.T, opts ...func(*Config)) *testEnv {
	t.Helper()
	store := kvstore.NewMemory()
	mem := memory.New(memory.Config{Store: store})
	runLog := observability.NewRunLog(dbopen.OpenMemory(t, dbopen.WithSchema(observability.Schema)))
	cfg := Config{
		Manager: strategy.NewManager(strategy.Deps{
			Memory: mem,
			Timing: strategy.Timing{
				FieldTimeout:   time.Second,
				ComboboxSettle: 10 * time.Millisecond,
				ResumeSettle:   10 * time.Millisecond,
				SectionWait:    time.Second,
			},
		}),
		Memory: mem,
		Store:  store,
		RunLog: runLog,
		Poll:   5 * time.Millisecond,
	}
	for _, o := range opts {
		o(&cfg)
	}
	return &testEnv{eng: New(cfg), store: store, mem: mem, runLog: runLog}
}

func parse(t *testing.T, src, pageURL string) *htmldoc.Document {
	t.Helper()
	d, err := htmldoc.ParseString(src, pageURL)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return d
}

func jane() *profile.Profile {
	return &profile.Profile{UserProfile: map[string]string{"firstName": "Jane"}}
}

func TestFill_ScansAndRecords(t *testing.T) {
	env := newEnv(t)
	d := parse(t, firstNamePage, "https://example.com/apply")
	env.eng.Attach(d)

	rep, err := env.eng.Fill(context.Background(), jane())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Filled != 1 || rep.Total != 1 || rep.Status != run.StatusCompleted || rep.Strategy != "Generic" {
		t.Fatalf("report = %+v", rep)
	}
	if got := d.Element("#fn").Value(); got != "Jane" {
		t.Fatalf("value = %q", got)
	}

	runs, err := env.eng.History(context.Background(), observability.RunFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Host != "example.com" || runs[0].Filled != 1 || runs[0].Status != run.StatusCompleted {
		t.Fatalf("history = %+v", runs)
	}
	rec, err := env.eng.Run(context.Background(), runs[0].RunID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Outcomes) != 1 || rec.Outcomes[0].Kind != "firstName" {
		t.Fatalf("outcomes = %+v", rec.Outcomes)
	}
}

func TestFill_StopBeforeFill(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	env.eng.Attach(parse(t, firstNamePage, "https://example.com/apply"))

	if _, err := env.eng.Scan(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := env.eng.Stop(); err != nil {
		t.Fatal(err)
	}
	rep, err := env.eng.Fill(ctx, jane())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Filled != 0 || rep.Status != run.StatusStopped {
		t.Fatalf("report = %+v", rep)
	}

	// The stop holds until the next scan.
	if rep, _ = env.eng.Fill(ctx, jane()); rep.Status != run.StatusStopped {
		t.Fatalf("second fill = %+v", rep)
	}
	if _, err := env.eng.Scan(ctx); err != nil {
		t.Fatal(err)
	}
	rep, err = env.eng.Fill(ctx, jane())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Filled != 1 || rep.Status != run.StatusCompleted {
		t.Fatalf("after rescan = %+v", rep)
	}
}

func TestFill_AfterCompletedStartsNewRun(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	env.eng.Attach(parse(t, firstNamePage, "https://example.com/apply"))

	if _, err := env.eng.Fill(ctx, jane()); err != nil {
		t.Fatal(err)
	}
	first, _ := env.eng.Status()
	if _, err := env.eng.Fill(ctx, jane()); err != nil {
		t.Fatal(err)
	}
	second, _ := env.eng.Status()
	if first.ID == second.ID || second.State != "completed" {
		t.Fatalf("first %+v second %+v", first, second)
	}
}

func TestFill_StopAfterCompletedHolds(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	env.eng.Attach(parse(t, firstNamePage, "https://example.com/apply"))

	if _, err := env.eng.Fill(ctx, jane()); err != nil {
		t.Fatal(err)
	}
	if _, err := env.eng.Stop(); err != nil {
		t.Fatal(err)
	}
	rep, err := env.eng.Fill(ctx, jane())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Filled != 0 || rep.Status != run.StatusStopped {
		t.Fatalf("fill after stop = %+v", rep)
	}
	st, _ := env.eng.Status()
	if st.State != "stopped" {
		t.Fatalf("state = %q", st.State)
	}
}

func TestFill_ProfileFromStore(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	if err := profile.Save(ctx, env.store, jane()); err != nil {
		t.Fatal(err)
	}
	d := parse(t, firstNamePage, "https://example.com/apply")
	env.eng.Attach(d)

	rep, err := env.eng.Fill(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Filled != 1 || d.Element("#fn").Value() != "Jane" {
		t.Fatalf("report = %+v", rep)
	}
}

func TestScan_NoFields(t *testing.T) {
	env := newEnv(t)
	env.eng.Attach(parse(t, `<p>Thanks for applying.</p>`, "https://example.com/done"))

	res, err := env.eng.Scan(context.Background())
	if !errors.Is(err, ErrNoFields) {
		t.Fatalf("err = %v", err)
	}
	if res == nil || res.Count != 0 || res.Fields == nil {
		t.Fatalf("res = %+v", res)
	}
	if _, err := env.eng.Fill(context.Background(), jane()); !errors.Is(err, ErrNoFields) {
		t.Fatalf("fill err = %v", err)
	}
}

func TestNoDocument(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	if _, err := env.eng.Scan(ctx); !errors.Is(err, ErrNoDocument) {
		t.Fatalf("scan: %v", err)
	}
	if _, err := env.eng.Fill(ctx, jane()); !errors.Is(err, ErrNoDocument) {
		t.Fatalf("fill: %v", err)
	}
	if _, err := env.eng.VisibleText(ctx); !errors.Is(err, ErrNoDocument) {
		t.Fatalf("text: %v", err)
	}
	if _, err := env.eng.Stop(); !errors.Is(err, ErrNoDocument) {
		t.Fatalf("stop: %v", err)
	}
}

func TestFill_InProgressWhilePaused(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	env.eng.Attach(parse(t, firstNamePage, "https://example.com/apply"))
	if _, err := env.eng.Scan(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := env.eng.Pause(true); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	var rep *strategy.Report
	var fillErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		rep, fillErr = env.eng.Fill(ctx, jane())
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		snap, _ := env.eng.Status()
		if snap.State == "paused" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("fill never paused: %+v", snap)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := env.eng.Fill(ctx, jane()); !errors.Is(err, ErrFillInProgress) {
		t.Fatalf("second fill: %v", err)
	}
	if _, err := env.eng.Scan(ctx); !errors.Is(err, ErrFillInProgress) {
		t.Fatalf("scan during fill: %v", err)
	}

	if _, err := env.eng.Stop(); err != nil {
		t.Fatal(err)
	}
	wg.Wait()
	if fillErr != nil {
		t.Fatal(fillErr)
	}
	if rep.Filled != 0 || rep.Status != run.StatusStopped {
		t.Fatalf("report = %+v", rep)
	}
}

func TestCaptureAndSaveAnswers(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	env.eng.Attach(parse(t, questionsPage, "https://example.com/apply"))

	got, err := env.eng.CaptureAnswers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		"Why do you want to join us?":  "I enjoy building developer tools",
		"Are you willing to relocate?": "Yes",
	}
	if len(got) != len(want) {
		t.Fatalf("captured = %+v", got)
	}
	for _, l := range got {
		if want[l.Question] != l.Answer {
			t.Fatalf("captured %q = %q", l.Question, l.Answer)
		}
	}

	res, err := env.eng.SaveLearnedAnswers(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Saved != 2 || res.TotalStored != 2 {
		t.Fatalf("learn = %+v", res)
	}
	if r := env.mem.Recall(ctx, "Are you willing to relocate"); r == nil || r.Answer != "Yes" {
		t.Fatalf("recall = %+v", r)
	}
}

func TestSaveLearnedAnswers_NoMemory(t *testing.T) {
	env := newEnv(t, func(c *Config) { c.Memory = nil })
	if _, err := env.eng.SaveLearnedAnswers(context.Background(), []memory.Learned{{Question: "q", Answer: "a"}}); !errors.Is(err, ErrNoMemory) {
		t.Fatalf("err = %v", err)
	}
}

func TestAnswerManagement(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	if _, err := env.eng.SaveLearnedAnswers(ctx, []memory.Learned{
		{Question: "Are you a US citizen?", Answer: "Yes", FieldTag: "select"},
	}); err != nil {
		t.Fatal(err)
	}
	entries, err := env.eng.Answers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %+v", entries)
	}
	key := entries[0].Key
	if err := env.eng.UpdateAnswer(ctx, key, "No"); err != nil {
		t.Fatal(err)
	}
	if r := env.mem.Recall(ctx, "are you a us citizen"); r == nil || r.Answer != "No" {
		t.Fatalf("recall after update = %+v", r)
	}
	if err := env.eng.DeleteAnswer(ctx, key); err != nil {
		t.Fatal(err)
	}
	if err := env.eng.UpdateAnswer(ctx, key, "Yes"); !errors.Is(err, memory.ErrNotFound) {
		t.Fatalf("update deleted: %v", err)
	}
	if _, err := env.eng.SyncAnswers(ctx); !errors.Is(err, memory.ErrNoRemote) {
		t.Fatalf("sync without remote: %v", err)
	}
}

func TestVisibleText(t *testing.T) {
	env := newEnv(t)
	env.eng.Attach(parse(t, `<body><nav>Jobs Home</nav><main><h1>Backend Engineer</h1><p>Build APIs.</p></main></body>`,
		"https://example.com/jobs/1"))
	text, err := env.eng.VisibleText(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if text == "" || text == "Jobs Home" {
		t.Fatalf("text = %q", text)
	}
}

type fakeNavigator struct {
	pages map[string]string
	t     *testing.T
}

func (n *fakeNavigator) Open(_ context.Context, url string) (dom.Document, error) {
	src, ok := n.pages[url]
	if !ok {
		return nil, errors.New("navigation failed")
	}
	return parse(n.t, src, url), nil
}

func TestNavigate(t *testing.T) {
	nav := &fakeNavigator{t: t, pages: map[string]string{
		"http://127.0.0.1:8080/apply": firstNamePage,
	}}

	strict := newEnv(t, func(c *Config) { c.Navigator = nav })
	if _, err := strict.eng.Navigate(context.Background(), "http://127.0.0.1:8080/apply"); !errors.Is(err, horosafe.ErrSSRF) {
		t.Fatalf("private url: %v", err)
	}
	if _, err := strict.eng.Navigate(context.Background(), "file:///etc/passwd"); !errors.Is(err, horosafe.ErrUnsafeScheme) {
		t.Fatalf("file url: %v", err)
	}

	env := newEnv(t, func(c *Config) {
		c.Navigator = nav
		c.AllowPrivateURLs = true
	})
	res, err := env.eng.Navigate(context.Background(), "http://127.0.0.1:8080/apply")
	if err != nil {
		t.Fatal(err)
	}
	if res.Count != 1 || res.URL != "http://127.0.0.1:8080/apply" {
		t.Fatalf("res = %+v", res)
	}

	if _, err := newEnv(t).eng.Navigate(context.Background(), "https://example.com"); !errors.Is(err, ErrNoNavigator) {
		t.Fatalf("no navigator: %v", err)
	}
}

func TestHandle(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	d := parse(t, firstNamePage, "https://example.com/apply")
	env.eng.Attach(d)

	resp := env.eng.Handle(ctx, Message{Type: MsgScan})
	if !resp.Success || resp.Scan == nil || resp.Scan.Count != 1 {
		t.Fatalf("scan = %+v", resp)
	}
	resp = env.eng.Handle(ctx, Message{Type: MsgPause, Paused: true})
	if !resp.Success || resp.Run == nil || resp.Run.Status != run.StatusPaused {
		t.Fatalf("pause = %+v", resp)
	}
	resp = env.eng.Handle(ctx, Message{Type: MsgPause, Paused: false})
	if !resp.Success || resp.Run.Status != run.StatusResumed {
		t.Fatalf("resume = %+v", resp)
	}
	resp = env.eng.Handle(ctx, Message{Type: MsgFill, Profile: jane()})
	if !resp.Success || resp.Report == nil || resp.Report.Filled != 1 {
		t.Fatalf("fill = %+v", resp)
	}
	resp = env.eng.Handle(ctx, Message{Type: MsgGetVisibleText})
	if !resp.Success || resp.Text == "" {
		t.Fatalf("text = %+v", resp)
	}
	resp = env.eng.Handle(ctx, Message{Type: MsgSaveLearnedAnswers, Entries: []memory.Learned{{Question: "Favourite editor?", Answer: "vim"}}})
	if !resp.Success || resp.Learned == nil || resp.Learned.Saved != 1 {
		t.Fatalf("learn = %+v", resp)
	}
	resp = env.eng.Handle(ctx, Message{Type: MsgStop})
	if !resp.Success || resp.Run == nil {
		t.Fatalf("stop = %+v", resp)
	}
	resp = env.eng.Handle(ctx, Message{Type: "RELOAD"})
	if resp.Success || resp.Error == "" {
		t.Fatalf("unknown = %+v", resp)
	}
}
