/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package realtime

import (
	"fmt"
	"sync"
	"time"

	"github.com/friendsincode/framewall/internal/models"
)

// remoteSlot drives one of a display's two render buffers over the
// realtime channel. Prepare clears the ready flag; the display sets it
// again with a slot_ready acknowledgement once the content has loaded.
type remoteSlot struct {
	name models.BufferSlot
	send func(Message)

	mu    sync.Mutex
	ready bool
}

func newRemoteSlot(name models.BufferSlot, send func(Message)) *remoteSlot {
	return &remoteSlot{name: name, send: send}
}

func (s *remoteSlot) Prepare(item models.ContentItem, duration time.Duration) {
	s.mu.Lock()
	s.ready = false
	s.mu.Unlock()

	s.send(Message{
		Type:            TypePrepare,
		Slot:            string(s.name),
		ContentItemID:   item.ID,
		MediaClass:      string(item.MediaClass),
		SourceURL:       sourceURL(item),
		DurationSeconds: duration.Seconds(),
		SentAt:          time.Now().UTC(),
	})
}

func (s *remoteSlot) IsReadyToRender() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *remoteSlot) Reveal() {
	s.send(Message{Type: TypeReveal, Slot: string(s.name), SentAt: time.Now().UTC()})
}

func (s *remoteSlot) Conceal() {
	s.send(Message{Type: TypeConceal, Slot: string(s.name), SentAt: time.Now().UTC()})
}

func (s *remoteSlot) markReady() {
	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()
}

// sourceURL maps a content item to the URL the display loads it from.
// Links are shown at their own address; files are served by the media
// endpoint, which supports range requests for video seeking.
func sourceURL(item models.ContentItem) string {
	if item.MediaClass == models.MediaLink {
		return item.SourceRef
	}
	return fmt.Sprintf("/api/v1/content/%s/file", item.ID)
}
