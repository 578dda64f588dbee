package strategy

import (
	"net"
	"strings"
)

// Manager picks the strategy for a host: the first specialized strategy
// whose predicate matches, else the generic one.
type Manager struct {
	generic     *Generic
	specialized []Strategy
}

// NewManager builds the default set over deps.
func NewManager(deps Deps) *Manager {
	g := NewGeneric(deps)
	return &Manager{
		generic: g,
		specialized: []Strategy{
			NewGreenhouse(g),
			NewGoogleForms(g),
			NewSmartRecruiters(g),
		},
	}
}

// SelectFor returns the strategy for host. It has no side effects.
func (m *Manager) SelectFor(host string) Strategy {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	for _, s := range m.specialized {
		if s.Matches(host) {
			return s
		}
	}
	return m.generic
}

// Names lists the strategies in selection order, generic last.
func (m *Manager) Names() []string {
	out := make([]string, 0, len(m.specialized)+1)
	for _, s := range m.specialized {
		out = append(out, s.Name())
	}
	return append(out, m.generic.Name())
}
