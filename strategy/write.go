package strategy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hazyhaar/formfill/connectivity"
	"github.com/hazyhaar/formfill/dom"
	"github.com/hazyhaar/formfill/fuzzy"
	"github.com/hazyhaar/formfill/oracle"
	"github.com/hazyhaar/formfill/profile"
)

const optionSelector = `[role="option"], .select__option`

// writer applies values to controls. It is shared by every strategy.
type writer struct {
	deps *Deps
	doc  dom.Document
	// context returns the page text sent with Oracle requests.
	context func(ctx context.Context) string
}

// guard runs fn under the per-field timeout with panic recovery. A write
// left running past the deadline may still land; accessors are
// goroutine-safe.
func (w *writer) guard(ctx context.Context, fn func(ctx context.Context) (dom.Status, error)) (dom.Status, error) {
	h := connectivity.Chain(
		connectivity.Timeout(w.deps.Timing.FieldTimeout),
		connectivity.Recovery(w.deps.Logger),
	)(func(ctx context.Context, _ []byte) ([]byte, error) {
		st, err := fn(ctx)
		return []byte(st), err
	})
	out, err := h(ctx, nil)
	if err != nil {
		var p *connectivity.ErrPanic
		switch {
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			return "", ErrWriteTimeout
		case errors.As(err, &p):
			return "", fmt.Errorf("strategy: write panicked: %v", p.Value)
		}
		return "", err
	}
	return dom.Status(out), nil
}

// write sets value on f with the technique of its control type and returns
// the confidence of the chosen value.
func (w *writer) write(ctx context.Context, f Field, value string) (dom.Status, error) {
	switch f.Control {
	case ControlSelect:
		opt, st, err := w.resolveOption(ctx, f, value)
		if err != nil {
			return "", err
		}
		return w.guard(ctx, func(context.Context) (dom.Status, error) {
			if err := f.Element.SetValue(opt.Value); err != nil {
				return "", err
			}
			f.Element.Dispatch("change")
			f.Element.Dispatch("input")
			return st, nil
		})
	case ControlCheckbox:
		return w.guard(ctx, func(context.Context) (dom.Status, error) {
			return dom.StatusHigh, setChecked(f.Element, truthy(value))
		})
	case ControlRadio:
		return w.guard(ctx, func(context.Context) (dom.Status, error) {
			return w.pickRadio(f, value)
		})
	case ControlCombobox:
		return w.guard(ctx, func(ctx context.Context) (dom.Status, error) {
			return w.combobox(ctx, f, value)
		})
	case ControlFile:
		return "", fmt.Errorf("strategy: %q is a file input", f.Label)
	}
	return w.guard(ctx, func(context.Context) (dom.Status, error) {
		return dom.StatusHigh, typeText(f.Element, value)
	})
}

// upload attaches the resume to a file input.
func (w *writer) upload(ctx context.Context, f Field, r *profile.Resume) (dom.Status, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	return w.guard(ctx, func(context.Context) (dom.Status, error) {
		if err := f.Element.SetFiles([]dom.File{r.File()}); err != nil {
			return "", err
		}
		for _, ev := range []string{"input", "change", "focus", "blur"} {
			f.Element.Dispatch(ev)
		}
		return dom.StatusHigh, nil
	})
}

func typeText(el dom.Element, value string) error {
	el.Focus()
	if err := el.SetValue(value); err != nil {
		return err
	}
	for _, ev := range []string{"input", "change", "blur"} {
		if err := el.Dispatch(ev); err != nil {
			return err
		}
	}
	return nil
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "yes", "y", "1", "on", "checked":
		return true
	}
	return false
}

// setChecked clicks the checkbox when its state differs from want.
func setChecked(el dom.Element, want bool) error {
	if el.Checked() == want {
		return nil
	}
	if err := el.Click(); err != nil {
		return err
	}
	if el.Checked() != want {
		return errors.New("strategy: checkbox did not toggle")
	}
	return nil
}

// resolveOption picks the <option> for value: exact value or text, then
// text containing value, then the fuzzy matcher, then the Oracle.
// Placeholder options without a value are never chosen.
func (w *writer) resolveOption(ctx context.Context, f Field, value string) (dom.Option, dom.Status, error) {
	all, err := f.Element.Options()
	if err != nil {
		return dom.Option{}, "", err
	}
	var opts []dom.Option
	for _, o := range all {
		if strings.TrimSpace(o.Value) != "" {
			opts = append(opts, o)
		}
	}
	if len(opts) == 0 {
		return dom.Option{}, "", ErrNoMatch
	}
	lv := strings.ToLower(strings.TrimSpace(value))
	if lv == "" {
		return dom.Option{}, "", ErrNoMatch
	}
	for _, o := range opts {
		if strings.ToLower(o.Value) == lv || strings.ToLower(strings.TrimSpace(o.Text)) == lv {
			return o, dom.StatusHigh, nil
		}
	}
	for _, o := range opts {
		if strings.Contains(strings.ToLower(o.Text), lv) {
			return o, dom.StatusHigh, nil
		}
	}
	texts := make([]string, len(opts))
	for i, o := range opts {
		texts[i] = strings.TrimSpace(o.Text)
	}
	if res := w.deps.Matcher.MatchTiered(value, texts); res != nil {
		return opts[indexOf(texts, res.Match)], tierStatus(res.Confidence), nil
	}
	res, err := w.deps.Oracle.MatchDropdown(ctx, oracle.DropdownRequest{
		Question:  f.Label,
		Options:   texts,
		UserValue: value,
		Context:   w.pageContext(ctx),
	})
	if err != nil {
		w.deps.Logger.DebugContext(ctx, "strategy: oracle match failed", "label", f.Label, "error", err)
		return dom.Option{}, "", ErrNoMatch
	}
	if m := oracle.FixMatch(res.Match, texts); m != "" {
		return opts[indexOf(texts, m)], dom.StatusMedium, nil
	}
	return dom.Option{}, "", ErrNoMatch
}

func (w *writer) pageContext(ctx context.Context) string {
	if w.context == nil {
		return ""
	}
	return w.context(ctx)
}

// pickRadio clicks the group member whose label best matches value.
func (w *writer) pickRadio(f Field, value string) (dom.Status, error) {
	labels := make([]string, len(f.Choices))
	for i, c := range f.Choices {
		labels[i] = choiceLabel(w.doc, c)
	}
	res := w.deps.Matcher.MatchTiered(value, labels)
	if res == nil {
		values := make([]string, len(f.Choices))
		for i, c := range f.Choices {
			values[i] = c.Value()
		}
		if res = w.deps.Matcher.MatchTiered(value, values); res == nil {
			return "", ErrNoMatch
		}
		labels = values
	}
	el := f.Choices[indexOf(labels, res.Match)]
	if !el.Checked() {
		if err := el.Click(); err != nil {
			return "", err
		}
	}
	return tierStatus(res.Confidence), nil
}

// choiceLabel names one radio of a group: its label[for], its wrapping
// label, its aria-label, then its value.
func choiceLabel(scope dom.Queryer, el dom.Element) string {
	if id := el.Attr("id"); id != "" && !strings.ContainsAny(id, `"\`) {
		if ls, err := scope.QueryAll(`label[for="` + id + `"]`); err == nil && len(ls) > 0 {
			if t := ls[0].Text(); t != "" {
				return t
			}
		}
	}
	if l, err := el.Closest("label"); err == nil && l != nil {
		if t := l.Text(); t != "" {
			return t
		}
	}
	if t := el.Attr("aria-label"); t != "" {
		return t
	}
	return el.Value()
}

// combobox types value into a composite dropdown and clicks the best
// rendered candidate. Without one the typed text is cleared.
func (w *writer) combobox(ctx context.Context, f Field, value string) (dom.Status, error) {
	el := f.Element
	el.Focus()
	el.Click()
	if err := el.SetValue(value); err != nil {
		return "", err
	}
	el.Dispatch("input")
	if err := sleep(ctx, w.deps.Timing.ComboboxSettle); err != nil {
		return "", err
	}

	rendered, err := w.doc.QueryAll(optionSelector)
	if err != nil {
		return "", err
	}
	var cands []dom.Element
	var texts []string
	for _, o := range rendered {
		if o.Hidden() {
			continue
		}
		if t := o.Text(); t != "" {
			cands = append(cands, o)
			texts = append(texts, t)
		}
	}
	if res := w.deps.Matcher.MatchTiered(value, texts); res != nil {
		if err := cands[indexOf(texts, res.Match)].Click(); err != nil {
			return "", err
		}
		return tierStatus(res.Confidence), nil
	}
	el.SetValue("")
	el.Dispatch("input")
	return "", ErrNoMatch
}

func tierStatus(c fuzzy.Confidence) dom.Status {
	if c == fuzzy.High {
		return dom.StatusHigh
	}
	return dom.StatusMedium
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return 0
}
