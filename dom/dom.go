// CLAUDE:SUMMARY Page accessor contract: the DOM capability set the fill engine depends on, independent of any browser.
// Package dom defines the page accessor used by the classifier, the
// strategies and the mutation waiter. Two implementations exist:
// dom/htmldoc (in-memory, x/net/html) and dom/rodpage (live Chrome).
//
// Element handles are borrowed: they are valid until the next scan or
// navigation and must never be persisted.
package dom

// Queryer runs CSS selector queries over a subtree.
type Queryer interface {
	QueryAll(selector string) ([]Element, error)
}

// Document is one loaded page.
type Document interface {
	Queryer

	URL() string
	Host() string

	// Root is the document element (<html>).
	Root() Element

	// Body returns <body>, or nil when the page has none.
	Body() Element

	// ShadowHosts returns every element hosting an open shadow root, at
	// any depth, in document order.
	ShadowHosts() ([]Element, error)

	// DeepText returns the visible text of the page including the content
	// of open shadow roots.
	DeepText() string
}

// Element is a borrowed handle to one element of a Document. Two queries
// may return different handles for the same node; compare handles through
// Key, never with ==.
type Element interface {
	Queryer

	// Tag returns the lower-case tag name.
	Tag() string
	Attr(name string) string
	HasAttr(name string) bool
	SetAttr(name, value string) error
	RemoveAttr(name string) error

	// Text returns the rendered text with whitespace collapsed.
	Text() string

	// TextExcluding returns Text with the subtrees matching any of the
	// selectors left out. The page is not modified.
	TextExcluding(selectors []string) string

	Value() string
	SetValue(v string) error
	Checked() bool
	Hidden() bool

	Click() error
	Focus() error

	// Dispatch fires a bubbling DOM event of the given type (input,
	// change, focus, blur).
	Dispatch(event string) error

	// Closest returns the nearest inclusive ancestor matching selector,
	// or nil when there is none.
	Closest(selector string) (Element, error)
	Parent() Element

	// ShadowRoot returns the open shadow root, or nil.
	ShadowRoot() Element

	// Options lists the <option> children of a <select>.
	Options() ([]Option, error)

	// SetFiles attaches files to an <input type=file>.
	SetFiles(files []File) error

	OuterHTML() (string, error)

	// Observe subscribes to child-list mutations anywhere in the subtree.
	Observe() (Subscription, error)
}

// Keyed is implemented by handles that are not unique per node. NodeKey
// is the same comparable value for every handle to one node.
type Keyed interface {
	NodeKey() any
}

// Key returns a comparable identity for el's node, usable as a map key.
// Handles that do not implement Keyed are their own identity.
func Key(el Element) any {
	if k, ok := el.(Keyed); ok {
		return k.NodeKey()
	}
	return el
}

// Option is one entry of a <select>.
type Option struct {
	Value    string `json:"value"`
	Text     string `json:"text"`
	Selected bool   `json:"selected"`
}

// File is an in-memory file payload for a file input.
type File struct {
	Name string
	MIME string
	Data []byte
}

// Subscription delivers a signal after subtree mutations. Signals are
// coalesced: one receive may stand for several mutations.
type Subscription interface {
	C() <-chan struct{}
	Close()
}
