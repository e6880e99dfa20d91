package hashring

import (
	"slices"
	"sort"
)

// VirtualNode is one position on the ring owned by a server.
type VirtualNode struct {
	Hash   uint32
	Server string
}

// topology is an immutable view of the ring. A new one is published on every mutation.
type topology struct {
	servers []string      // sorted
	counts  []int         // virtual node count per entry in servers
	vnodes  []VirtualNode // sorted by hash, ties in build order
}

var emptyTopology = &topology{}

// buildTopology computes the sorted virtual node sequence for the given server counts.
func buildTopology(alg HashAlgorithm, counts map[string]int) (*topology, error) {
	var (
		servers = make([]string, 0, len(counts))
		total   = 0
	)
	for server, count := range counts {
		servers = append(servers, server)
		total += count
	}
	sort.Strings(servers)

	var t = &topology{
		servers: servers,
		counts:  make([]int, len(servers)),
		vnodes:  make([]VirtualNode, 0, total),
	}

	for i, server := range servers {
		t.counts[i] = counts[server]
		for j := range counts[server] {
			var hash, err = hashPosition(alg, virtualNodeKey(server, j))
			if err != nil {
				return nil, err
			}
			t.vnodes = append(t.vnodes, VirtualNode{Hash: hash, Server: server})
		}
	}

	slices.SortStableFunc(t.vnodes, func(a, b VirtualNode) int {
		switch {
		case a.Hash < b.Hash:
			return -1
		case a.Hash > b.Hash:
			return 1
		}
		return 0
	})

	return t, nil
}

// locate returns the index of the first virtual node with hash >= h, wrapping to 0.
// The sequence must not be empty.
func locate(vnodes []VirtualNode, h uint32) int {
	var idx = sort.Search(len(vnodes), func(i int) bool {
		return vnodes[i].Hash >= h
	})
	if idx == len(vnodes) {
		return 0
	}
	return idx
}

// resolve maps a key to a server on the given sequence.
func resolve(alg HashAlgorithm, vnodes []VirtualNode, key []byte) (string, error) {
	if len(vnodes) == 0 {
		return "", ErrNoServers
	}

	var h, err = hashPosition(alg, key)
	if err != nil {
		return "", err
	}

	return vnodes[locate(vnodes, h)].Server, nil
}

// distribution returns the fraction of the hash space owned by each server.
// A virtual node owns the range (previous hash, its hash], wrapping at the top.
func distribution(vnodes []VirtualNode) map[string]float64 {
	var shares = make(map[string]float64)
	if len(vnodes) == 0 {
		return shares
	}

	const space = float64(1 << 32)
	for i, vnode := range vnodes {
		var width uint32
		if i == 0 {
			// wraps from the last vnode, through zero, to this one
			width = vnode.Hash - vnodes[len(vnodes)-1].Hash
		} else {
			width = vnode.Hash - vnodes[i-1].Hash
		}

		if len(vnodes) == 1 {
			shares[vnode.Server] = 1
			continue
		}
		shares[vnode.Server] += float64(width) / space
	}

	return shares
}
