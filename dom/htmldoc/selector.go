// CLAUDE:SUMMARY CSS selector subset (lists, compounds, descendant and child combinators, attribute operators) over x/net/html trees.
package htmldoc

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// Supported syntax:
//   - tag, *, #id, .class (repeatable), tag.class#id
//   - [attr], [attr=val], [attr="val"], [attr*=val], [attr^=val],
//     [attr$=val], [attr~=val]
//   - descendant (space) and child (>) combinators
//   - selector lists separated by commas

type attrOp int

const (
	opExists attrOp = iota
	opEquals
	opContains
	opPrefix
	opSuffix
	opWord
)

type attrCond struct {
	key string
	op  attrOp
	val string
}

type compound struct {
	tag     string
	id      string
	classes []string
	attrs   []attrCond
}

type step struct {
	sel   compound
	child bool // combinator linking this step to the previous one is '>'
}

type selector []step

// parseSelectorList parses a comma separated selector list.
func parseSelectorList(s string) ([]selector, error) {
	var out []selector
	for _, part := range splitTopLevel(s, ',') {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("htmldoc: empty selector in %q", s)
		}
		sel, err := parseSelector(part)
		if err != nil {
			return nil, err
		}
		out = append(out, sel)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("htmldoc: empty selector")
	}
	return out, nil
}

// splitTopLevel splits s on sep outside brackets and quotes.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth := 0
	var quote byte
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '[':
			depth++
		case c == ']':
			depth--
		case c == sep && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

func parseSelector(s string) (selector, error) {
	var sel selector
	child := false
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n':
			i++
		case c == '>':
			if len(sel) == 0 {
				return nil, fmt.Errorf("htmldoc: selector %q starts with a combinator", s)
			}
			child = true
			i++
		default:
			comp, n, err := parseCompound(s[i:])
			if err != nil {
				return nil, fmt.Errorf("htmldoc: selector %q: %w", s, err)
			}
			sel = append(sel, step{sel: comp, child: child})
			child = false
			i += n
		}
	}
	if len(sel) == 0 || child {
		return nil, fmt.Errorf("htmldoc: incomplete selector %q", s)
	}
	return sel, nil
}

// parseCompound reads one compound selector and returns the bytes consumed.
func parseCompound(s string) (compound, int, error) {
	var c compound
	i := 0
	if i < len(s) && s[i] == '*' {
		i++
	} else {
		n := identLen(s[i:])
		c.tag = strings.ToLower(s[i : i+n])
		i += n
	}
	for i < len(s) {
		switch s[i] {
		case '#':
			n := identLen(s[i+1:])
			if n == 0 {
				return c, 0, fmt.Errorf("empty id")
			}
			c.id = s[i+1 : i+1+n]
			i += 1 + n
		case '.':
			n := identLen(s[i+1:])
			if n == 0 {
				return c, 0, fmt.Errorf("empty class")
			}
			c.classes = append(c.classes, s[i+1:i+1+n])
			i += 1 + n
		case '[':
			end := closingBracket(s[i:])
			if end < 0 {
				return c, 0, fmt.Errorf("unterminated attribute selector")
			}
			cond, err := parseAttrCond(s[i+1 : i+end])
			if err != nil {
				return c, 0, err
			}
			c.attrs = append(c.attrs, cond)
			i += end + 1
		case ' ', '\t', '\n', '>':
			return c, i, nil
		default:
			return c, 0, fmt.Errorf("unsupported syntax at %q", s[i:])
		}
	}
	if i == 0 {
		return c, 0, fmt.Errorf("empty compound")
	}
	return c, i, nil
}

func identLen(s string) int {
	n := 0
	for n < len(s) {
		c := s[n]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-' || c == '_' {
			n++
			continue
		}
		break
	}
	return n
}

// closingBracket returns the index of the ']' closing the '[' at s[0].
func closingBracket(s string) int {
	var quote byte
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == ']':
			return i
		}
	}
	return -1
}

func parseAttrCond(s string) (attrCond, error) {
	s = strings.TrimSpace(s)
	eq := strings.IndexByte(s, '=')
	if eq < 0 {
		if identLen(s) != len(s) || s == "" {
			return attrCond{}, fmt.Errorf("bad attribute name %q", s)
		}
		return attrCond{key: strings.ToLower(s), op: opExists}, nil
	}
	key := s[:eq]
	op := opEquals
	if eq > 0 {
		switch key[len(key)-1] {
		case '*':
			op = opContains
		case '^':
			op = opPrefix
		case '$':
			op = opSuffix
		case '~':
			op = opWord
		}
		if op != opEquals {
			key = key[:len(key)-1]
		}
	}
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return attrCond{}, fmt.Errorf("empty attribute name in %q", s)
	}
	val := strings.TrimSpace(s[eq+1:])
	if len(val) >= 2 && (val[0] == '"' || val[0] == '\'') && val[len(val)-1] == val[0] {
		val = val[1 : len(val)-1]
	}
	return attrCond{key: key, op: op, val: val}, nil
}

func (c compound) matches(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if c.tag != "" && n.Data != c.tag {
		return false
	}
	if c.id != "" && getAttr(n, "id") != c.id {
		return false
	}
	if len(c.classes) > 0 {
		have := strings.Fields(getAttr(n, "class"))
		for _, want := range c.classes {
			if !containsString(have, want) {
				return false
			}
		}
	}
	for _, a := range c.attrs {
		val, ok := lookupAttr(n, a.key)
		if !ok {
			return false
		}
		switch a.op {
		case opEquals:
			if val != a.val {
				return false
			}
		case opContains:
			if a.val == "" || !strings.Contains(val, a.val) {
				return false
			}
		case opPrefix:
			if a.val == "" || !strings.HasPrefix(val, a.val) {
				return false
			}
		case opSuffix:
			if a.val == "" || !strings.HasSuffix(val, a.val) {
				return false
			}
		case opWord:
			if !containsString(strings.Fields(val), a.val) {
				return false
			}
		}
	}
	return true
}

func (s selector) matches(n *html.Node) bool {
	return s.matchAt(n, len(s)-1)
}

func (s selector) matchAt(n *html.Node, i int) bool {
	if !s[i].sel.matches(n) {
		return false
	}
	if i == 0 {
		return true
	}
	if s[i].child {
		p := parentElement(n)
		return p != nil && s.matchAt(p, i-1)
	}
	for p := parentElement(n); p != nil; p = parentElement(p) {
		if s.matchAt(p, i-1) {
			return true
		}
	}
	return false
}

func matchesAny(sels []selector, n *html.Node) bool {
	for _, s := range sels {
		if s.matches(n) {
			return true
		}
	}
	return false
}

// getAttr returns the value of an attribute on a node.
func getAttr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
