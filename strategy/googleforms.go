package strategy

import (
	"context"
	"strings"

	"github.com/hazyhaar/formfill/classify"
	"github.com/hazyhaar/formfill/dom"
)

// GoogleForms reads question labels from the heading of each question
// block; the inputs themselves carry no usable label.
type GoogleForms struct {
	generic *Generic
	scan    scanOptions
}

func NewGoogleForms(g *Generic) *GoogleForms {
	return &GoogleForms{
		generic: g,
		scan: scanOptions{
			classify: []classify.Option{classify.WithLabelSource(questionHeading)},
		},
	}
}

func (s *GoogleForms) Name() string { return "GoogleForms" }

func (s *GoogleForms) Matches(host string) bool { return host == "docs.google.com" }

func (s *GoogleForms) Scan(ctx context.Context, doc dom.Document) ([]Field, error) {
	return scanControls(doc, s.scan)
}

func (s *GoogleForms) VisibleText(ctx context.Context, doc dom.Document) (string, error) {
	return s.generic.VisibleText(ctx, doc)
}

func (s *GoogleForms) Fill(ctx context.Context, fc *FillContext) (*Report, error) {
	fl, ok := s.generic.begin(ctx, fc, s.Name(), s.VisibleText)
	if !ok {
		return fl.rep, nil
	}
	fl.passes(ctx)
	return fl.finish(), nil
}

// questionHeading is the heading of the [role=listitem] block holding el.
func questionHeading(el dom.Element) string {
	item, err := el.Closest(`[role="listitem"]`)
	if err != nil || item == nil {
		return ""
	}
	hs, err := item.QueryAll(`[role="heading"]`)
	if err != nil || len(hs) == 0 {
		return ""
	}
	return strings.TrimSpace(hs[0].Text())
}
