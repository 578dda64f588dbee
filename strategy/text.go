package strategy

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"

	"github.com/hazyhaar/formfill/dom"
	"github.com/hazyhaar/formfill/dom/htmldoc"
)

// Landmarks holding the job description, tried in order.
var landmarks = []string{`[role="main"]`, "main", "article", "#content", ".job-description", "#app_body"}

// Boilerplate stripped from the body when no landmark qualifies.
var boilerplate = []string{
	"nav", "header", "footer",
	`[role="navigation"]`, `[role="banner"]`, `[role="contentinfo"]`,
	".sidebar", "aside",
	`[class*="cookie"]`, `[class*="banner"]`, `[id*="cookie"]`,
}

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

// visibleText returns the largest landmark region longer than
// o.MinRegion, else the body without boilerplate, clipped to o.MaxChars.
func visibleText(doc dom.Document, o TextOptions) (string, error) {
	region, text := largestLandmark(doc, o.MinRegion)
	body := doc.Body()
	if region == nil {
		if body == nil {
			return clip(doc.DeepText(), o.MaxChars), nil
		}
		text = body.TextExcluding(boilerplate)
	}
	if o.Format != "markdown" {
		return clip(text, o.MaxChars), nil
	}

	strip := region == nil
	if region == nil {
		region = body
	}
	md, err := toMarkdown(doc.URL(), region, strip)
	if err != nil {
		return "", err
	}
	return clip(md, o.MaxChars), nil
}

func largestLandmark(doc dom.Document, minLen int) (dom.Element, string) {
	var best dom.Element
	var bestText string
	bestLen := minLen
	for _, sel := range landmarks {
		els, err := doc.QueryAll(sel)
		if err != nil || len(els) == 0 {
			continue
		}
		t := els[0].Text()
		if n := utf8.RuneCountInString(t); n > bestLen {
			best, bestText, bestLen = els[0], t, n
		}
	}
	return best, bestText
}

// toMarkdown renders region as Markdown. With strip set the boilerplate is
// removed from a detached copy first; the page is never modified.
func toMarkdown(pageURL string, region dom.Element, strip bool) (string, error) {
	src, err := region.OuterHTML()
	if err != nil {
		return "", fmt.Errorf("strategy: region html: %w", err)
	}
	if strip {
		cp, err := htmldoc.ParseString(src, pageURL)
		if err != nil {
			return "", fmt.Errorf("strategy: parse region: %w", err)
		}
		for _, sel := range boilerplate {
			els, _ := cp.QueryAll(sel)
			for _, el := range els {
				el.(*htmldoc.Element).Remove()
			}
		}
		src = cp.HTML()
	}
	md, err := mdConverter.ConvertString(src, converter.WithDomain(pageURL))
	if err != nil {
		return "", fmt.Errorf("strategy: markdown: %w", err)
	}
	return strings.TrimSpace(md), nil
}

// clip cuts s to at most n runes.
func clip(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
