package waiter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hazyhaar/formfill/dom"
	"github.com/hazyhaar/formfill/dom/htmldoc"
)

// countingElement records Observe calls.
type countingElement struct {
	dom.Element
	observed int
}

func (c *countingElement) Observe() (dom.Subscription, error) {
	c.observed++
	return c.Element.Observe()
}

func setup(t *testing.T) (*htmldoc.Document, *htmldoc.Element) {
	t.Helper()
	doc, err := htmldoc.ParseString(`<html><body>
		<div id="education"><div class="item"><input name="school_0"></div></div>
	</body></html>`, "https://boards.greenhouse.io/acme/jobs/1")
	if err != nil {
		t.Fatal(err)
	}
	return doc, doc.Element("#education")
}

func TestWaitForGrowth_AlreadySatisfied(t *testing.T) {
	doc, container := setup(t)
	c := &countingElement{Element: container}

	got, err := WaitForGrowth(context.Background(), c, ".item", 0, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("matches = %d", len(got))
	}
	if c.observed != 0 || doc.Observers() != 0 {
		t.Fatalf("subscribed although the threshold held: observed=%d", c.observed)
	}
}

func TestWaitForGrowth_ResolvesOnMutation(t *testing.T) {
	doc, container := setup(t)
	go func() {
		time.Sleep(20 * time.Millisecond)
		container.AppendHTML(`<p>noise</p>`)
		time.Sleep(20 * time.Millisecond)
		container.AppendHTML(`<div class="item"><input name="school_1"></div>`)
	}()

	start := time.Now()
	got, err := WaitForGrowth(context.Background(), container, ".item", 1, Options{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("matches = %d", len(got))
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("resolved by timeout instead of mutation")
	}
	if doc.Observers() != 0 {
		t.Fatal("subscription leaked")
	}
}

func TestWaitForGrowth_Timeout(t *testing.T) {
	doc, container := setup(t)
	got, err := WaitForGrowth(context.Background(), container, ".item", 1, Options{Timeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("timeout must return current matches, got %d", len(got))
	}
	if doc.Observers() != 0 {
		t.Fatal("subscription leaked")
	}
}

func TestWaitForGrowth_Cancelled(t *testing.T) {
	_, container := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got, err := WaitForGrowth(ctx, container, ".item", 3, Options{MinNew: 2})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("matches = %d", len(got))
	}
}

func TestWaitForGrowth_BadSelector(t *testing.T) {
	_, container := setup(t)
	if _, err := WaitForGrowth(context.Background(), container, "div:has(input)", 0, Options{}); err == nil {
		t.Fatal("expected a selector error")
	}
	if Count(container, "div:has(input)") != 0 || Count(container, ".item") != 1 {
		t.Fatal("count mismatch")
	}
}
