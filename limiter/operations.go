/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package limiter

import (
	"encoding/binary"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/atomic"
)

// ClientID identifies an end user (or session) that may run several uploads at once.
type ClientID = uuid.UUID

// RequestID identifies a single file upload.
type RequestID = uuid.UUID

// DefaultRegistryShards is the default number of independently locked shards of OperationRegistry.
const DefaultRegistryShards = 32

// ConcurrencyHandle is a per-client marker that exists exactly while the client has in-flight requests.
// It embeds a mutex which may be used to serialize per-client work (e.g., rate computation)
// across concurrent uploads of the same client.
type ConcurrencyHandle struct {
	sync.Mutex
	clientID ClientID
}

// ClientID returns the identifier of the client owning the handle.
func (h *ConcurrencyHandle) ClientID() ClientID {
	return h.clientID
}

type clientOperations struct {
	requests map[RequestID]struct{}
	handle   *ConcurrencyHandle
}

type registryShard struct {
	mu      sync.RWMutex
	clients map[ClientID]*clientOperations
}

// OperationRegistry tracks in-flight upload requests per client.
//
// Clients are spread over shards, and all changes of a single client happen under its shard lock,
// so the request set and the concurrency handle of the client are always created and destroyed together.
type OperationRegistry struct {
	shards []*registryShard

	activeClients    atomic.Int64
	activeOperations atomic.Int64

	metricsCollector MetricsCollector
}

// OperationRegistryOpts represents options for OperationRegistry.
type OperationRegistryOpts struct {
	// Shards is a number of independently locked shards. DefaultRegistryShards is used if it's not positive.
	Shards int

	// MetricsCollector receives the number of active clients and operations. Metrics are disabled if it's nil.
	MetricsCollector MetricsCollector
}

// NewOperationRegistry creates a new OperationRegistry with default options.
func NewOperationRegistry() *OperationRegistry {
	return NewOperationRegistryWithOpts(OperationRegistryOpts{})
}

// NewOperationRegistryWithOpts creates a new OperationRegistry with the provided options.
func NewOperationRegistryWithOpts(opts OperationRegistryOpts) *OperationRegistry {
	if opts.Shards <= 0 {
		opts.Shards = DefaultRegistryShards
	}
	if opts.MetricsCollector == nil {
		opts.MetricsCollector = disabledMetrics{}
	}
	shards := make([]*registryShard, opts.Shards)
	for i := range shards {
		shards[i] = &registryShard{clients: make(map[ClientID]*clientOperations)}
	}
	return &OperationRegistry{shards: shards, metricsCollector: opts.MetricsCollector}
}

func (r *OperationRegistry) shard(clientID ClientID) *registryShard {
	return r.shards[binary.BigEndian.Uint64(clientID[8:])%uint64(len(r.shards))]
}

// StartOperation registers the request as in flight for the client.
// Repeated calls for the same pair are no-ops.
func (r *OperationRegistry) StartOperation(clientID ClientID, requestID RequestID) {
	s := r.shard(clientID)

	s.mu.Lock()
	ops, ok := s.clients[clientID]
	if !ok {
		ops = &clientOperations{
			requests: make(map[RequestID]struct{}),
			handle:   &ConcurrencyHandle{clientID: clientID},
		}
		s.clients[clientID] = ops
		r.activeClients.Inc()
	}
	if _, dup := ops.requests[requestID]; !dup {
		ops.requests[requestID] = struct{}{}
		r.activeOperations.Inc()
	}
	s.mu.Unlock()

	r.updateMetrics()
}

// StopOperation unregisters the request.
// When it was the last in-flight request of the client, the client entry and its concurrency handle are dropped.
// Unknown pairs are ignored.
func (r *OperationRegistry) StopOperation(clientID ClientID, requestID RequestID) {
	s := r.shard(clientID)

	s.mu.Lock()
	ops, ok := s.clients[clientID]
	if !ok {
		s.mu.Unlock()
		return
	}
	if _, ok = ops.requests[requestID]; !ok {
		s.mu.Unlock()
		return
	}
	delete(ops.requests, requestID)
	r.activeOperations.Dec()
	if len(ops.requests) == 0 {
		delete(s.clients, clientID)
		r.activeClients.Dec()
	}
	s.mu.Unlock()

	r.updateMetrics()
}

// IsActive reports whether the client has at least one in-flight request.
func (r *OperationRegistry) IsActive(clientID ClientID) bool {
	s := r.shard(clientID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.clients[clientID]
	return ok
}

// ActiveRequestsCount returns the number of in-flight requests of the client.
func (r *OperationRegistry) ActiveRequestsCount(clientID ClientID) int {
	s := r.shard(clientID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ops, ok := s.clients[clientID]; ok {
		return len(ops.requests)
	}
	return 0
}

// ActiveRequests returns a copy of the in-flight request set of the client.
func (r *OperationRegistry) ActiveRequests(clientID ClientID) []RequestID {
	s := r.shard(clientID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	ops, ok := s.clients[clientID]
	if !ok {
		return nil
	}
	return requestsOf(ops)
}

// Handle returns the concurrency handle of the client if the client is active.
func (r *OperationRegistry) Handle(clientID ClientID) (*ConcurrencyHandle, bool) {
	s := r.shard(clientID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ops, ok := s.clients[clientID]; ok {
		return ops.handle, true
	}
	return nil, false
}

// ActiveClientsCount returns the number of clients with in-flight requests.
func (r *OperationRegistry) ActiveClientsCount() int {
	return int(r.activeClients.Load())
}

// ActiveOperationsCount returns the total number of in-flight requests.
func (r *OperationRegistry) ActiveOperationsCount() int {
	return int(r.activeOperations.Load())
}

// Snapshot returns in-flight requests of all active clients.
// Shards are copied one by one, so the result is consistent per client but not across clients.
func (r *OperationRegistry) Snapshot() map[ClientID][]RequestID {
	res := make(map[ClientID][]RequestID)
	for _, s := range r.shards {
		s.mu.RLock()
		for clientID, ops := range s.clients {
			res[clientID] = requestsOf(ops)
		}
		s.mu.RUnlock()
	}
	return res
}

func (r *OperationRegistry) updateMetrics() {
	r.metricsCollector.SetActiveClients(int(r.activeClients.Load()))
	r.metricsCollector.SetActiveOperations(int(r.activeOperations.Load()))
}

func requestsOf(ops *clientOperations) []RequestID {
	res := make([]RequestID, 0, len(ops.requests))
	for requestID := range ops.requests {
		res = append(res, requestID)
	}
	return res
}
