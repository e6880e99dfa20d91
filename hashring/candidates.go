package hashring

import "slices"

// ServerCandidateResult lists the servers that may hold a key: the current owner first,
// then the owner under each historical configuration, without duplicates.
type ServerCandidateResult struct {
	servers            []string
	configurationCount int
	historyConsulted   bool
}

// Servers returns a copy of the candidate list.
func (r ServerCandidateResult) Servers() []string {
	return slices.Clone(r.servers)
}

// ConfigurationCount is the number of configurations (current and historical) consulted.
func (r ServerCandidateResult) ConfigurationCount() int {
	return r.configurationCount
}

// HasHistory reports whether at least one historical snapshot was consulted.
func (r ServerCandidateResult) HasHistory() bool {
	return r.historyConsulted
}

// Primary returns the first candidate.
func (r ServerCandidateResult) Primary() (string, bool) {
	if len(r.servers) == 0 {
		return "", false
	}
	return r.servers[0], true
}

func (r ServerCandidateResult) Equal(other ServerCandidateResult) bool {
	return r.configurationCount == other.configurationCount &&
		r.historyConsulted == other.historyConsulted &&
		slices.Equal(r.servers, other.servers)
}

// candidateSet accumulates servers in first-seen order.
type candidateSet struct {
	seen    map[string]struct{}
	servers []string
}

func newCandidateSet() *candidateSet {
	return &candidateSet{seen: make(map[string]struct{})}
}

func (c *candidateSet) add(server string) {
	if _, ok := c.seen[server]; ok {
		return
	}
	c.seen[server] = struct{}{}
	c.servers = append(c.servers, server)
}
