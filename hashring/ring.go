package hashring

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"
)

// Ring is a consistent hash ring with optional configuration history.
//
// Lookups read the latest published topology without locking. Mutations record the server's
// virtual node count in a concurrent map, then rebuild and publish a new topology under mu.
type Ring struct {
	mu      sync.Mutex               // Serializes rebuilds and history changes
	counts  *xsync.Map[string, int]  // Server -> virtual node count
	current atomic.Pointer[topology] // Latest published topology
	history *History                 // nil when history is disabled
	options options
}

// NewRing creates an empty Ring.
func NewRing(opts ...Option) (*Ring, error) {
	var options = defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	if options.virtualNodeCount < 1 {
		return nil, fmt.Errorf("invalid default virtual node count %d: %w", options.virtualNodeCount, ErrInvalidVirtualNodeCount)
	}

	if options.algorithm == nil {
		return nil, ErrInvalidHashAlgorithm
	}

	// Reject algorithms with short digests up front rather than on the first Add.
	if _, err := hashPosition(options.algorithm, nil); err != nil {
		return nil, fmt.Errorf("invalid hash algorithm: %w", err)
	}

	var r = &Ring{
		counts:  xsync.NewMap[string, int](),
		options: options,
	}
	r.current.Store(emptyTopology)

	if options.historyEnabled {
		var history, err = NewHistory(options.maxHistorySize)
		if err != nil {
			return nil, err
		}
		r.history = history
	}

	return r, nil
}

// Add inserts server or updates its virtual node count, then rebuilds the ring.
// The count defaults to the ring's configured virtual node count.
func (r *Ring) Add(server string, virtualNodeCount ...int) error {
	if server == "" {
		return ErrInvalidServer
	}

	var count = r.options.virtualNodeCount
	if len(virtualNodeCount) > 0 {
		count = virtualNodeCount[0]
	}
	if count < 1 {
		return fmt.Errorf("invalid virtual node count %d for server %q: %w", count, server, ErrInvalidVirtualNodeCount)
	}

	r.counts.Store(server, count)

	if err := r.rebuild(); err != nil {
		return fmt.Errorf("failed to add server %q: %w", server, err)
	}

	r.options.logger.Debug("added server to ring",
		"ring", r.options.name,
		"server", server,
		"virtual_nodes", count)

	return nil
}

// Remove deletes server and its virtual nodes. It returns false if the server was absent.
func (r *Ring) Remove(server string) bool {
	if _, ok := r.counts.LoadAndDelete(server); !ok {
		return false
	}

	// The algorithm was validated by NewRing, so a rebuild only fails if it stops
	// producing full digests.
	if err := r.rebuild(); err != nil {
		r.options.logger.Error("failed to rebuild ring after removing server",
			"ring", r.options.name,
			"server", server,
			"error", err)
		return true
	}

	r.options.logger.Debug("removed server from ring",
		"ring", r.options.name,
		"server", server)

	return true
}

// rebuild recomputes the topology from the current counts and publishes it.
func (r *Ring) rebuild() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var counts = make(map[string]int, r.counts.Size())
	r.counts.Range(func(server string, count int) bool {
		counts[server] = count
		return true
	})

	var t, err = buildTopology(r.options.algorithm, counts)
	if err != nil {
		return err
	}

	r.current.Store(t)
	r.options.metrics.RecordRingTopology(r.options.name, len(t.servers), len(t.vnodes))

	return nil
}

// GetServer returns the server owning key. It fails with ErrNoServers on an empty ring.
func (r *Ring) GetServer(key []byte) (string, error) {
	var t = r.current.Load()
	return resolve(r.options.algorithm, t.vnodes, key)
}

// TryGetServer is GetServer reporting failure as false.
func (r *Ring) TryGetServer(key []byte) (string, bool) {
	var server, err = r.GetServer(key)
	if err != nil {
		return "", false
	}
	return server, true
}

// GetServers walks the ring clockwise from key's position and returns up to count distinct
// servers, the owner first.
func (r *Ring) GetServers(key []byte, count int) ([]string, error) {
	if count < 1 {
		return nil, fmt.Errorf("invalid server count %d: %w", count, ErrInvalidCount)
	}

	var t = r.current.Load()
	if len(t.vnodes) == 0 {
		return nil, ErrNoServers
	}

	var h, err = hashPosition(r.options.algorithm, key)
	if err != nil {
		return nil, err
	}

	var (
		start   = locate(t.vnodes, h)
		servers = newCandidateSet()
	)
	for i := 0; i < len(t.vnodes) && len(servers.servers) < count; i++ {
		servers.add(t.vnodes[(start+i)%len(t.vnodes)].Server)
	}

	return servers.servers, nil
}

// CreateConfigurationSnapshot captures the current topology into the history.
// It fails with ErrHistoryDisabled, ErrNoServers, or a *HistoryLimitExceededError when the
// history is full under RejectOnOverflow.
func (r *Ring) CreateConfigurationSnapshot() (*ConfigurationSnapshot, error) {
	if r.history == nil {
		return nil, ErrHistoryDisabled
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var t = r.current.Load()
	if len(t.servers) == 0 {
		return nil, fmt.Errorf("cannot snapshot an empty ring: %w", ErrNoServers)
	}

	var snapshot = newConfigurationSnapshot(uuid.NewString(), r.options.clock.Now(), t, r.options.algorithm)

	var evicted, err = r.history.Add(snapshot, r.options.overflowPolicy)
	if err != nil {
		return nil, err
	}

	if evicted != nil {
		r.options.metrics.RecordSnapshotEviction(r.options.name)
		r.options.logger.Warn("evicted oldest configuration snapshot",
			"ring", r.options.name,
			"snapshot_id", evicted.ID(),
			"created_at", evicted.CreatedAt())
	}

	r.options.metrics.RecordHistorySize(r.options.name, r.history.Count())
	r.options.logger.Info("created configuration snapshot",
		"ring", r.options.name,
		"snapshot_id", snapshot.ID(),
		"servers", len(t.servers),
		"history_size", r.history.Count())

	return snapshot, nil
}

// ClearHistory drops every snapshot, keeping only the live configuration.
func (r *Ring) ClearHistory() error {
	if r.history == nil {
		return ErrHistoryDisabled
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.history.Clear()
	r.options.metrics.RecordHistorySize(r.options.name, 0)
	r.options.logger.Info("cleared configuration history", "ring", r.options.name)

	return nil
}

// GetServerCandidates returns the current owner of key followed by its owner under each
// stored snapshot, oldest snapshot first, without duplicates. An optional maxCandidates caps
// the list. It fails with ErrNoServersAnywhere when the ring is empty and no snapshot exists.
func (r *Ring) GetServerCandidates(key []byte, maxCandidates ...int) (ServerCandidateResult, error) {
	var limit = -1
	if len(maxCandidates) > 0 {
		limit = maxCandidates[0]
		if limit < 1 {
			return ServerCandidateResult{}, fmt.Errorf("invalid candidate count %d: %w", limit, ErrInvalidCount)
		}
	}

	var (
		t          = r.current.Load()
		candidates = newCandidateSet()
		result     ServerCandidateResult
	)

	if len(t.vnodes) > 0 {
		var server, err = resolve(r.options.algorithm, t.vnodes, key)
		if err != nil {
			return ServerCandidateResult{}, err
		}
		candidates.add(server)
		result.configurationCount++
	}

	if r.history != nil {
		for _, snapshot := range r.history.Snapshots() {
			var server, err = snapshot.GetServer(key)
			if err != nil {
				return ServerCandidateResult{}, fmt.Errorf("failed to resolve key in snapshot %s: %w", snapshot.ID(), err)
			}
			candidates.add(server)
			result.configurationCount++
			result.historyConsulted = true
		}
	}

	if result.configurationCount == 0 {
		return ServerCandidateResult{}, ErrNoServersAnywhere
	}

	result.servers = candidates.servers
	if limit > 0 && len(result.servers) > limit {
		result.servers = result.servers[:limit]
	}

	return result, nil
}

// TryGetServerCandidates is GetServerCandidates reporting failure as false.
func (r *Ring) TryGetServerCandidates(key []byte, maxCandidates ...int) (ServerCandidateResult, bool) {
	var result, err = r.GetServerCandidates(key, maxCandidates...)
	if err != nil {
		return ServerCandidateResult{}, false
	}
	return result, true
}

// Servers returns the sorted server set of the current topology.
func (r *Ring) Servers() []string {
	var t = r.current.Load()
	return append([]string(nil), t.servers...)
}

func (r *Ring) ServerCount() int {
	return len(r.current.Load().servers)
}

// VirtualNodeCount returns the total number of virtual nodes on the ring.
func (r *Ring) VirtualNodeCount() int {
	return len(r.current.Load().vnodes)
}

// VirtualNodes returns a copy of the current sorted virtual node sequence.
func (r *Ring) VirtualNodes() []VirtualNode {
	return append([]VirtualNode(nil), r.current.Load().vnodes...)
}

func (r *Ring) Contains(server string) bool {
	var _, ok = r.counts.Load(server)
	return ok
}

// HistoryEnabled reports whether the ring was built with WithHistory.
func (r *Ring) HistoryEnabled() bool {
	return r.history != nil
}

// History returns the snapshot history, or nil when history is disabled.
func (r *Ring) History() *History {
	return r.history
}

// Distribution returns the fraction of the hash space owned by each server.
func (r *Ring) Distribution() map[string]float64 {
	return distribution(r.current.Load().vnodes)
}

// String returns a visual representation of the ring state.
func (r *Ring) String() string {
	var (
		t      = r.current.Load()
		shares = distribution(t.vnodes)
		b      strings.Builder
	)

	b.WriteString(fmt.Sprintf("Ring: %s\n", r.options.name))
	b.WriteString(fmt.Sprintf("Servers: %d | VNodes: %d", len(t.servers), len(t.vnodes)))
	if r.history != nil {
		b.WriteString(fmt.Sprintf(" | History: %d/%d (%s)", r.history.Count(), r.history.MaxSize(), r.options.overflowPolicy))
	}
	b.WriteString("\n")

	if len(t.servers) == 0 {
		b.WriteString("\n[Empty Ring]\n")
		return b.String()
	}

	b.WriteString("\nServer Summary:\n")
	b.WriteString("┌─────────────────────────────────────────────────────────────┐\n")

	var servers = append([]string(nil), t.servers...)
	sort.SliceStable(servers, func(i, j int) bool {
		return shares[servers[i]] > shares[servers[j]]
	})

	for _, server := range servers {
		var idx = sort.SearchStrings(t.servers, server)
		b.WriteString(fmt.Sprintf("│ %-25s  vnodes: %-5d  share: %6.2f%%\n",
			server, t.counts[idx], shares[server]*100))
	}

	b.WriteString("└─────────────────────────────────────────────────────────────┘\n")

	if r.history != nil {
		var snapshots = r.history.Snapshots()
		if len(snapshots) > 0 {
			b.WriteString("\nHistory (oldest first):\n")
			for _, s := range snapshots {
				b.WriteString(fmt.Sprintf("  %s  %s  servers: %s\n",
					s.ID(), s.CreatedAt().Format("2006-01-02T15:04:05Z07:00"), strings.Join(s.servers, ",")))
			}
		}
	}

	return b.String()
}
