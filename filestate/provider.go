/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package filestate

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Provider when there is no persisted state for the identifier.
var ErrNotFound = errors.New("persisted file state not found")

// FileState is the persisted progress of a single uploaded file.
type FileState struct {
	CrcedBytes              int64 `json:"crcedBytes"`
	OriginalFileSizeInBytes int64 `json:"originalFileSizeInBytes"`
}

// Complete reports whether all bytes of the file are verified by checksum.
func (s FileState) Complete() bool {
	return s.CrcedBytes == s.OriginalFileSizeInBytes
}

// Provider gives access to persisted file states of a client.
type Provider interface {
	// FileStates returns the states of all files of the client keyed by file identifier.
	// ErrNotFound is returned when nothing is persisted for the client.
	FileStates(ctx context.Context, clientID uuid.UUID) (map[uuid.UUID]FileState, error)
}

// MemoryProvider is an in-process Provider implementation.
type MemoryProvider struct {
	mu     sync.RWMutex
	states map[uuid.UUID]map[uuid.UUID]FileState
}

var _ Provider = (*MemoryProvider)(nil)

// NewMemoryProvider creates a new empty MemoryProvider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{states: make(map[uuid.UUID]map[uuid.UUID]FileState)}
}

// Put stores (or replaces) the state of the client's file.
func (p *MemoryProvider) Put(clientID, fileID uuid.UUID, state FileState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	files, ok := p.states[clientID]
	if !ok {
		files = make(map[uuid.UUID]FileState)
		p.states[clientID] = files
	}
	files[fileID] = state
}

// Delete drops all persisted states of the client.
func (p *MemoryProvider) Delete(clientID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.states, clientID)
}

// FileStates implements Provider.
func (p *MemoryProvider) FileStates(ctx context.Context, clientID uuid.UUID) (map[uuid.UUID]FileState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	files, ok := p.states[clientID]
	if !ok {
		return nil, ErrNotFound
	}
	res := make(map[uuid.UUID]FileState, len(files))
	for fileID, state := range files {
		res[fileID] = state
	}
	return res, nil
}
