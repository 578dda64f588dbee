package rodpage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/hazyhaar/formfill/dom"
)

const testPage = `<!doctype html>
<html><body>
<main>
  <label for="first">First name</label>
  <input id="first" name="first_name">
  <select id="country"><option value="">--</option><option value="fr">France</option></select>
  <input id="agree" type="checkbox">
  <div id="hidden" style="display:none"><input id="secret"></div>
  <div id="host"></div>
  <div id="list"></div>
</main>
<script>
  document.getElementById('host').attachShadow({mode: 'open'}).innerHTML = '<input id="inner" aria-label="Inner">';
</script>
</body></html>`

// openTestPage launches Chrome. Set FORMFILL_CHROME=1 to run.
func openTestPage(t *testing.T) *Document {
	t.Helper()
	if os.Getenv("FORMFILL_CHROME") == "" {
		t.Skip("FORMFILL_CHROME not set")
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(testPage))
	}))
	t.Cleanup(srv.Close)

	b := New(Config{Headless: true, Stealth: true})
	t.Cleanup(func() { b.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	doc, err := b.Open(ctx, srv.URL)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return doc.(*Document)
}

func one(t *testing.T, q dom.Queryer, sel string) dom.Element {
	t.Helper()
	els, err := q.QueryAll(sel)
	if err != nil {
		t.Fatalf("query %s: %v", sel, err)
	}
	if len(els) != 1 {
		t.Fatalf("query %s: %d elements", sel, len(els))
	}
	return els[0]
}

func TestLivePage(t *testing.T) {
	doc := openTestPage(t)

	if doc.Host() != "127.0.0.1" {
		t.Errorf("host = %q", doc.Host())
	}

	first := one(t, doc, "#first")
	if first.Tag() != "input" || first.Attr("name") != "first_name" {
		t.Fatalf("tag=%q name=%q", first.Tag(), first.Attr("name"))
	}
	if err := first.SetValue("Jane"); err != nil {
		t.Fatal(err)
	}
	if got := first.Value(); got != "Jane" {
		t.Errorf("value = %q", got)
	}

	again := one(t, doc, "#first")
	if again == first {
		t.Fatal("expected a fresh handle")
	}
	if dom.Key(again) != dom.Key(first) || dom.Key(again) == dom.Key(one(t, doc, "#agree")) {
		t.Error("node keys do not identify nodes")
	}

	country := one(t, doc, "#country")
	if err := country.SetValue("fr"); err != nil {
		t.Fatal(err)
	}
	opts, err := country.Options()
	if err != nil || len(opts) != 2 || !opts[1].Selected || opts[1].Text != "France" {
		t.Fatalf("options = %+v, %v", opts, err)
	}
	if err := country.SetValue("de"); err == nil {
		t.Error("unknown option accepted")
	}

	agree := one(t, doc, "#agree")
	if err := agree.Click(); err != nil {
		t.Fatal(err)
	}
	if !agree.Checked() {
		t.Error("checkbox not checked after click")
	}

	if !one(t, doc, "#secret").Hidden() || first.Hidden() {
		t.Error("hidden detection wrong")
	}

	hosts, err := doc.ShadowHosts()
	if err != nil || len(hosts) != 1 {
		t.Fatalf("shadow hosts = %d, %v", len(hosts), err)
	}
	root := hosts[0].ShadowRoot()
	if root == nil {
		t.Fatal("no shadow root")
	}
	inner := one(t, root, "#inner")
	if inner.Attr("aria-label") != "Inner" {
		t.Errorf("inner label = %q", inner.Attr("aria-label"))
	}

	label, err := first.Closest("main")
	if err != nil || label == nil || label.Tag() != "main" {
		t.Fatalf("closest = %v, %v", label, err)
	}

	if err := dom.Mark(first, dom.StatusHigh, "profile"); err != nil {
		t.Fatal(err)
	}
	if first.Attr(dom.StatusAttr) != "high" {
		t.Error("mark not set")
	}
	if err := dom.ClearMarks(doc); err != nil || first.HasAttr(dom.StatusAttr) {
		t.Fatalf("clear marks: %v", err)
	}
}

func TestLivePage_Observe(t *testing.T) {
	doc := openTestPage(t)

	list := one(t, doc, "#list")
	sub, err := list.Observe()
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	if _, err := doc.Page().Eval(`() => document.getElementById('list').appendChild(document.createElement('li'))`); err != nil {
		t.Fatal(err)
	}
	select {
	case <-sub.C():
	case <-time.After(5 * time.Second):
		t.Fatal("no mutation signal")
	}
}
