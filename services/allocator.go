// services/allocator.go - Game server allocation stub
package services

import (
	"fmt"
	"hash/fnv"
	"log"
	"sync"
)

// MockAllocator hands out deterministic endpoints from a fixed port
// range. It stands in for a fleet manager; the rest of the system only
// sees the Allocator interface.
type MockAllocator struct {
	Host     string
	BasePort int
	Ports    int

	mu        sync.Mutex
	allocated map[string]string
}

func NewMockAllocator(host string, basePort int) *MockAllocator {
	return &MockAllocator{
		Host:      host,
		BasePort:  basePort,
		Ports:     1000,
		allocated: make(map[string]string),
	}
}

// Allocate reserves an endpoint for the match. Repeated calls for the
// same match return the same endpoint.
func (a *MockAllocator) Allocate(matchID, region, mode string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if endpoint, ok := a.allocated[matchID]; ok {
		return endpoint, nil
	}

	h := fnv.New32a()
	h.Write([]byte(matchID))
	port := a.BasePort + int(h.Sum32())%a.Ports

	endpoint := fmt.Sprintf("%s.%s:%d", region, a.Host, port)
	a.allocated[matchID] = endpoint
	log.Printf("Allocated server %s for match %s (%s/%s)", endpoint, matchID, mode, region)
	return endpoint, nil
}

// Deallocate releases the match's endpoint. Idempotent.
func (a *MockAllocator) Deallocate(matchID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if endpoint, ok := a.allocated[matchID]; ok {
		delete(a.allocated, matchID)
		log.Printf("Released server %s for match %s", endpoint, matchID)
	}
}
