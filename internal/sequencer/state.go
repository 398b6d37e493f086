/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package sequencer

import (
	"sync"

	"github.com/friendsincode/framewall/internal/models"
)

// publishedState is the loop's state mirror readable from other
// goroutines. The loop stores after every mutation; readers only load.
type publishedState struct {
	mu    sync.RWMutex
	state models.RuntimeState
}

func (p *publishedState) store(state models.RuntimeState) {
	p.mu.Lock()
	p.state = state
	p.mu.Unlock()
}

func (p *publishedState) load() models.RuntimeState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}
