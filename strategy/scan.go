package strategy

import (
	"fmt"
	"strings"

	"github.com/hazyhaar/formfill/classify"
	"github.com/hazyhaar/formfill/dom"
)

const controlSelector = "input, textarea, select"

// scanOptions tune the shared control walk.
type scanOptions struct {
	classify []classify.Option
	// deep enters open shadow roots.
	deep bool
	// keep filters classified fields; nil keeps known kinds and labelled
	// unknowns.
	keep func(Field) bool
}

// scanScope is one tree to enumerate and the scope its labels resolve in.
type scanScope struct {
	root  dom.Queryer
	label dom.Queryer
	host  dom.Element // nil for the light DOM
}

// scanControls enumerates the controls of doc in document order, light DOM
// first and then each open shadow root, and marks every kept one scanned.
func scanControls(doc dom.Document, o scanOptions) ([]Field, error) {
	scopes := []scanScope{{root: doc, label: doc}}
	if o.deep {
		hosts, err := doc.ShadowHosts()
		if err != nil {
			return nil, fmt.Errorf("strategy: shadow hosts: %w", err)
		}
		for _, h := range hosts {
			if sr := h.ShadowRoot(); sr != nil {
				scopes = append(scopes, scanScope{root: sr, label: sr, host: h})
			}
		}
	}
	keep := o.keep
	if keep == nil {
		keep = func(f Field) bool { return f.Kind != classify.Unknown || f.Label != "" }
	}

	var fields []Field
	groups := make(map[string]int) // radio group key -> index in fields
	for si, sc := range scopes {
		els, err := sc.root.QueryAll(controlSelector)
		if err != nil {
			return nil, fmt.Errorf("strategy: query controls: %w", err)
		}
		for _, el := range els {
			if skipControl(el) {
				continue
			}
			ct := controlType(el)
			if ct == ControlRadio && el.Attr("name") != "" {
				key := fmt.Sprintf("%d/%s", si, el.Attr("name"))
				if i, ok := groups[key]; ok {
					if i >= 0 {
						fields[i].Choices = append(fields[i].Choices, el)
					}
					continue
				}
				groups[key] = -1
			}

			opts := o.classify
			if sc.host != nil {
				opts = append(append([]classify.Option(nil), opts...), classify.WithFallbackLabel(hostLabel(sc.host)))
			}
			res := classify.Classify(sc.label, el, opts...)
			f := Field{
				Element:      el,
				Kind:         res.Kind,
				Label:        res.Label,
				CurrentValue: el.Value(),
				Control:      ct,
				Tag:          el.Tag(),
				Name:         el.Attr("name"),
			}
			if ct == ControlRadio {
				f.Choices = []dom.Element{el}
			}
			if !keep(f) {
				continue
			}
			if ct == ControlRadio && f.Name != "" {
				groups[fmt.Sprintf("%d/%s", si, f.Name)] = len(fields)
			}
			dom.Mark(el, dom.StatusScanned, "")
			fields = append(fields, f)
		}
	}
	for i := range fields {
		if fields[i].Control == ControlRadio {
			fields[i].CurrentValue = checkedValue(fields[i].Choices)
		}
	}
	return fields, nil
}

// hostLabel reads the label a web component carries as an attribute.
func hostLabel(host dom.Element) classify.LabelSource {
	return func(dom.Element) string {
		for _, a := range []string{"label", "aria-label", "placeholder"} {
			if v := host.Attr(a); v != "" {
				return v
			}
		}
		return ""
	}
}

var buttonTypes = map[string]bool{"submit": true, "button": true, "reset": true, "image": true}

// skipControl drops button-like inputs and hidden controls other than file
// and resume inputs.
func skipControl(el dom.Element) bool {
	if el.Tag() != "input" {
		return el.Hidden()
	}
	t := strings.ToLower(el.Attr("type"))
	if buttonTypes[t] {
		return true
	}
	if t == "file" || el.Attr("name") == "resume" {
		return false
	}
	return el.Hidden()
}

func controlType(el dom.Element) ControlType {
	switch el.Tag() {
	case "select":
		return ControlSelect
	case "textarea":
		return ControlTextarea
	}
	switch strings.ToLower(el.Attr("type")) {
	case "checkbox":
		return ControlCheckbox
	case "radio":
		return ControlRadio
	case "file":
		return ControlFile
	}
	if strings.EqualFold(el.Attr("role"), "combobox") || hasClass(el, "select__input") {
		return ControlCombobox
	}
	return ControlText
}

func hasClass(el dom.Element, class string) bool {
	for _, c := range strings.Fields(el.Attr("class")) {
		if c == class {
			return true
		}
	}
	return false
}

func checkedValue(choices []dom.Element) string {
	for _, c := range choices {
		if c.Checked() {
			if v := c.Value(); v != "" {
				return v
			}
			return "on"
		}
	}
	return ""
}

// empty reports whether a field still needs a value.
func empty(f Field) bool {
	switch f.Control {
	case ControlRadio:
		return checkedValue(f.Choices) == ""
	case ControlCheckbox:
		return !f.Element.Checked()
	}
	return strings.TrimSpace(f.Element.Value()) == ""
}

// Answer reads the value the user gave f, in the form a learned answer
// stores it: the option text of a select, the label of the checked radio,
// "Yes" for a checked checkbox. Files have no answer.
func Answer(scope dom.Queryer, f Field) string {
	switch f.Control {
	case ControlFile:
		return ""
	case ControlCheckbox:
		if f.Element.Checked() {
			return "Yes"
		}
		return ""
	case ControlRadio:
		for _, c := range f.Choices {
			if c.Checked() {
				return strings.TrimSpace(choiceLabel(scope, c))
			}
		}
		return ""
	case ControlSelect:
		opts, err := f.Element.Options()
		if err != nil {
			return ""
		}
		for _, o := range opts {
			if o.Selected && o.Value != "" {
				return strings.TrimSpace(o.Text)
			}
		}
		return ""
	}
	return strings.TrimSpace(f.Element.Value())
}
