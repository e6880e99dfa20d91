package hashring

import (
	"slices"
	"time"
)

// ConfigurationSnapshot is an immutable capture of a ring topology.
// Its virtual nodes are sorted by hash and every one of them belongs to a server in the
// snapshot's server set.
type ConfigurationSnapshot struct {
	id        string
	createdAt time.Time
	servers   []string
	vnodes    []VirtualNode
	algorithm HashAlgorithm
}

func newConfigurationSnapshot(id string, createdAt time.Time, t *topology, alg HashAlgorithm) *ConfigurationSnapshot {
	// topology slices are never mutated after publication, so they can be shared
	return &ConfigurationSnapshot{
		id:        id,
		createdAt: createdAt,
		servers:   t.servers,
		vnodes:    t.vnodes,
		algorithm: alg,
	}
}

func (s *ConfigurationSnapshot) ID() string {
	return s.id
}

func (s *ConfigurationSnapshot) CreatedAt() time.Time {
	return s.createdAt
}

// Servers returns a copy of the snapshot's sorted server set.
func (s *ConfigurationSnapshot) Servers() []string {
	return slices.Clone(s.servers)
}

// VirtualNodes returns a copy of the snapshot's sorted virtual nodes.
func (s *ConfigurationSnapshot) VirtualNodes() []VirtualNode {
	return slices.Clone(s.vnodes)
}

func (s *ConfigurationSnapshot) Algorithm() HashAlgorithm {
	return s.algorithm
}

func (s *ConfigurationSnapshot) ServerCount() int {
	return len(s.servers)
}

func (s *ConfigurationSnapshot) ContainsServer(server string) bool {
	var _, found = slices.BinarySearch(s.servers, server)
	return found
}

// GetServer resolves key against the captured topology.
func (s *ConfigurationSnapshot) GetServer(key []byte) (string, error) {
	return resolve(s.algorithm, s.vnodes, key)
}

// Equal reports whether both snapshots hold the same id, timestamp and topology.
func (s *ConfigurationSnapshot) Equal(other *ConfigurationSnapshot) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.id == other.id &&
		s.createdAt.Equal(other.createdAt) &&
		slices.Equal(s.servers, other.servers) &&
		slices.Equal(s.vnodes, other.vnodes)
}
