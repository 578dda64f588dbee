package strategy

import (
	"context"
	"strings"

	"github.com/hazyhaar/formfill/dom"
)

// SmartRecruiters pages render the application inside web components.
// Controls are collected through open shadow roots and the page text
// includes shadow content.
type SmartRecruiters struct {
	generic *Generic
}

func NewSmartRecruiters(g *Generic) *SmartRecruiters { return &SmartRecruiters{generic: g} }

func (s *SmartRecruiters) Name() string { return "SmartRecruiters" }

func (s *SmartRecruiters) Matches(host string) bool {
	return strings.Contains(host, "smartrecruiters.com")
}

func (s *SmartRecruiters) Scan(ctx context.Context, doc dom.Document) ([]Field, error) {
	return scanControls(doc, scanOptions{deep: true})
}

// VisibleText is the deep text of the whole page; landmark regions do not
// see into shadow roots.
func (s *SmartRecruiters) VisibleText(ctx context.Context, doc dom.Document) (string, error) {
	return clip(doc.DeepText(), s.generic.deps.Text.MaxChars), nil
}

func (s *SmartRecruiters) Fill(ctx context.Context, fc *FillContext) (*Report, error) {
	fl, ok := s.generic.begin(ctx, fc, s.Name(), s.VisibleText)
	if !ok {
		return fl.rep, nil
	}
	fl.passes(ctx)
	return fl.finish(), nil
}
