/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package sequencer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/framewall/internal/events"
	"github.com/friendsincode/framewall/internal/models"
	"github.com/friendsincode/framewall/internal/registry"
)

type stubSlot struct {
	mu       sync.Mutex
	ready    bool
	prepared []models.ContentItem
	lastDur  time.Duration
	reveals  int
	conceals int
}

func (s *stubSlot) Prepare(item models.ContentItem, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prepared = append(s.prepared, item)
	s.lastDur = duration
}

func (s *stubSlot) IsReadyToRender() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *stubSlot) Reveal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reveals++
}

func (s *stubSlot) Conceal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conceals++
}

func (s *stubSlot) setReady(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = ready
}

func (s *stubSlot) revealCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reveals
}

func (s *stubSlot) lastPrepared() (models.ContentItem, time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.prepared) == 0 {
		return models.ContentItem{}, 0, false
	}
	return s.prepared[len(s.prepared)-1], s.lastDur, true
}

type fakeSource struct {
	mu   sync.Mutex
	snap registry.Snapshot
}

func (f *fakeSource) Snapshot(ctx context.Context) (registry.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := f.snap
	snap.Items = append([]models.ContentItem(nil), f.snap.Items...)
	snap.Rules = append([]models.ScheduleRule(nil), f.snap.Rules...)
	return snap, nil
}

func (f *fakeSource) setItems(items []models.ContentItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap.Items = items
}

func newFakeSource(items ...models.ContentItem) *fakeSource {
	return &fakeSource{snap: registry.Snapshot{
		Items:    items,
		Settings: models.DefaultSettings(),
		TakenAt:  time.Now(),
	}}
}

func imageItem(id, name string) models.ContentItem {
	return models.ContentItem{ID: id, Name: name, MediaClass: models.MediaImage, SourceRef: "media/" + id}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func startSequencer(t *testing.T, source Source) (*Sequencer, *stubSlot, *stubSlot) {
	t.Helper()
	slotA := &stubSlot{ready: true}
	slotB := &stubSlot{ready: true}
	seq := New("display-1", source, events.NewBus(), slotA, slotB, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go seq.Run(ctx)
	return seq, slotA, slotB
}

func TestAutoStartShowsFirstEntry(t *testing.T) {
	source := newFakeSource(imageItem("a", "first"), imageItem("b", "second"))
	seq, _, slotB := startSequencer(t, source)

	waitFor(t, "autostart reveal", func() bool { return slotB.revealCount() == 1 })

	state := seq.State()
	if !state.PoweredOn {
		t.Error("autostart must power the display on")
	}
	if state.ActiveIndex != 0 {
		t.Errorf("active index = %d, want 0", state.ActiveIndex)
	}
	if state.ActiveSlot != models.SlotB {
		t.Errorf("active slot = %s, want B after first swap", state.ActiveSlot)
	}
	item, _, ok := slotB.lastPrepared()
	if !ok || item.ID != "a" {
		t.Errorf("slot B prepared %v, want item a", item.ID)
	}
}

func TestSkipWrapsBothDirections(t *testing.T) {
	source := newFakeSource(imageItem("a", "a"), imageItem("b", "b"), imageItem("c", "c"))
	seq, _, slotB := startSequencer(t, source)
	waitFor(t, "autostart", func() bool { return slotB.revealCount() == 1 })

	seq.SkipNext()
	waitFor(t, "skip to 1", func() bool { return seq.State().ActiveIndex == 1 })

	seq.SkipPrev()
	waitFor(t, "skip back to 0", func() bool { return seq.State().ActiveIndex == 0 })

	seq.SkipPrev()
	waitFor(t, "wrap to last", func() bool { return seq.State().ActiveIndex == 2 })

	seq.SkipNext()
	waitFor(t, "wrap to first", func() bool { return seq.State().ActiveIndex == 0 })
}

func TestPowerOffFreezesAndIsIdempotent(t *testing.T) {
	source := newFakeSource(imageItem("a", "a"), imageItem("b", "b"))
	seq, slotA, slotB := startSequencer(t, source)
	waitFor(t, "autostart", func() bool { return slotB.revealCount() == 1 })

	seq.SetPower(false)
	waitFor(t, "power off", func() bool { return !seq.State().PoweredOn })

	slotA.mu.Lock()
	concealsAfterOff := slotA.conceals
	slotA.mu.Unlock()

	// Second off is a no-op: no additional conceal pass.
	seq.SetPower(false)
	seq.SkipNext()
	time.Sleep(50 * time.Millisecond)

	if got := seq.State().ActiveIndex; got != 0 {
		t.Errorf("skip while powered off moved index to %d", got)
	}
	slotA.mu.Lock()
	concealsNow := slotA.conceals
	slotA.mu.Unlock()
	if concealsNow != concealsAfterOff {
		t.Errorf("repeated power off concealed again: %d -> %d", concealsAfterOff, concealsNow)
	}

	// Power on restarts the current entry from the beginning.
	seq.SetPower(true)
	waitFor(t, "power on", func() bool {
		state := seq.State()
		return state.PoweredOn && state.ActiveIndex == 0
	})
}

func TestStaleActiveEntryResetsToStart(t *testing.T) {
	itemA := imageItem("a", "a")
	itemB := imageItem("b", "b")
	itemC := imageItem("c", "c")
	source := newFakeSource(itemA, itemB, itemC)
	seq, _, slotB := startSequencer(t, source)
	waitFor(t, "autostart", func() bool { return slotB.revealCount() == 1 })

	seq.SkipNext()
	waitFor(t, "on index 1", func() bool { return seq.State().ActiveIndex == 1 })

	// Delete the item currently on screen.
	source.setItems([]models.ContentItem{itemA, itemC})
	seq.Refresh("mutation")

	waitFor(t, "stale reset", func() bool {
		state := seq.State()
		return state.ActiveIndex == 0
	})
}

func TestSurvivingEntryFollowsItsNewPosition(t *testing.T) {
	itemA := imageItem("a", "a")
	itemB := imageItem("b", "b")
	itemC := imageItem("c", "c")
	source := newFakeSource(itemA, itemB, itemC)
	seq, slotA, slotB := startSequencer(t, source)
	waitFor(t, "autostart", func() bool { return slotB.revealCount() == 1 })

	seq.SkipNext()
	waitFor(t, "on index 1", func() bool { return seq.State().ActiveIndex == 1 })
	revealsBefore := slotA.revealCount() + slotB.revealCount()

	// Delete an item before the active one; b slides from 1 to 0.
	source.setItems([]models.ContentItem{itemB, itemC})
	seq.Refresh("mutation")

	waitFor(t, "index follows content", func() bool { return seq.State().ActiveIndex == 0 })
	if got := slotA.revealCount() + slotB.revealCount(); got != revealsBefore {
		t.Errorf("index repair restarted the frame: %d reveals, want %d", got, revealsBefore)
	}
}

func TestVideoWaitsForIncomingSlot(t *testing.T) {
	video := models.ContentItem{
		ID:                     "v",
		Name:                   "clip",
		MediaClass:             models.MediaVideo,
		SourceRef:              "media/v",
		NaturalDurationSeconds: 12.0,
	}
	source := newFakeSource(imageItem("a", "a"), video)
	seq, slotA, slotB := startSequencer(t, source)
	waitFor(t, "autostart", func() bool { return slotB.revealCount() == 1 })

	slotA.setReady(false)
	seq.SkipNext()

	waitFor(t, "video prepared", func() bool {
		item, _, ok := slotA.lastPrepared()
		return ok && item.ID == "v"
	})
	time.Sleep(50 * time.Millisecond)
	if slotA.revealCount() != 0 {
		t.Fatal("video revealed before slot reported ready")
	}

	slotA.setReady(true)
	seq.NotifySlotReady(models.SlotA)

	waitFor(t, "video revealed", func() bool { return slotA.revealCount() == 1 })

	_, duration, _ := slotA.lastPrepared()
	if duration != 12500*time.Millisecond {
		t.Errorf("video advance duration = %s, want 12.5s (natural + ended pad)", duration)
	}
	if got := seq.State().ActiveIndex; got != 1 {
		t.Errorf("active index = %d, want 1", got)
	}
}

func TestEmptyPlaylistGoesIdle(t *testing.T) {
	source := newFakeSource(imageItem("a", "a"))
	seq, _, slotB := startSequencer(t, source)
	waitFor(t, "autostart", func() bool { return slotB.revealCount() == 1 })

	source.setItems(nil)
	seq.Refresh("mutation")

	waitFor(t, "idle after emptied registry", func() bool {
		slotB.mu.Lock()
		defer slotB.mu.Unlock()
		return slotB.conceals > 0
	})

	// Skip while idle does nothing.
	seq.SkipNext()
	time.Sleep(50 * time.Millisecond)
	if got := seq.State().ActiveIndex; got != 0 {
		t.Errorf("active index = %d, want 0 while idle", got)
	}
}

func TestStopBlanksWithoutPowerChange(t *testing.T) {
	source := newFakeSource(imageItem("a", "a"), imageItem("b", "b"))
	seq, slotA, slotB := startSequencer(t, source)
	waitFor(t, "autostart", func() bool { return slotB.revealCount() == 1 })

	seq.Stop()
	waitFor(t, "stop conceals", func() bool {
		slotB.mu.Lock()
		defer slotB.mu.Unlock()
		return slotB.conceals > 0
	})
	if !seq.State().PoweredOn {
		t.Error("stop must not change power state")
	}

	// A stopped display stays blank across refreshes; only a power cycle
	// resumes it.
	revealsBefore := slotA.revealCount() + slotB.revealCount()
	seq.Refresh("mutation")
	time.Sleep(50 * time.Millisecond)
	if got := slotA.revealCount() + slotB.revealCount(); got != revealsBefore {
		t.Errorf("refresh resumed a stopped display: %d reveals, want %d", got, revealsBefore)
	}

	seq.SetPower(false)
	seq.SetPower(true)
	waitFor(t, "power cycle resumes", func() bool {
		return slotA.revealCount()+slotB.revealCount() > revealsBefore
	})
}

func TestMutationDuringVideoHandoffFollowsNewList(t *testing.T) {
	video := models.ContentItem{
		ID:         "v",
		Name:       "clip",
		MediaClass: models.MediaVideo,
		SourceRef:  "media/v",
	}
	itemA := imageItem("a", "a")
	source := newFakeSource(itemA, video)
	seq, slotA, slotB := startSequencer(t, source)
	waitFor(t, "autostart", func() bool { return slotB.revealCount() == 1 })

	// Start a handoff to the video and hold the incoming buffer unready.
	slotA.setReady(false)
	seq.SkipNext()
	waitFor(t, "video prepared", func() bool {
		item, _, ok := slotA.lastPrepared()
		return ok && item.ID == "v"
	})

	// Delete the video while its handoff is still waiting; the pending
	// index must be re-resolved against the shrunk list.
	source.setItems([]models.ContentItem{itemA})
	seq.Refresh("mutation")

	waitFor(t, "handoff re-targeted", func() bool {
		item, _, ok := slotA.lastPrepared()
		return ok && item.ID == "a" && slotA.revealCount() == 1
	})
	if got := seq.State().ActiveIndex; got != 0 {
		t.Errorf("active index = %d, want 0 after pending entry vanished", got)
	}

	// A late readiness report for the abandoned handoff changes nothing.
	seq.NotifySlotReady(models.SlotA)
	time.Sleep(50 * time.Millisecond)
	if got := slotA.revealCount(); got != 1 {
		t.Errorf("stale slot-ready revealed again: %d reveals, want 1", got)
	}
}

func TestSurvivingPendingEntryKeepsHandoffTarget(t *testing.T) {
	video := models.ContentItem{
		ID:         "v",
		Name:       "clip",
		MediaClass: models.MediaVideo,
		SourceRef:  "media/v",
	}
	itemA := imageItem("a", "a")
	itemB := imageItem("b", "b")
	source := newFakeSource(itemA, itemB, video)
	seq, slotA, slotB := startSequencer(t, source)
	waitFor(t, "autostart", func() bool { return slotB.revealCount() == 1 })

	slotA.setReady(false)
	seq.SkipPrev()
	waitFor(t, "video prepared", func() bool {
		item, _, ok := slotA.lastPrepared()
		return ok && item.ID == "v"
	})

	// Delete an unrelated item; the video slides from index 2 to 1 and
	// the handoff should still land on it.
	source.setItems([]models.ContentItem{itemA, video})
	seq.Refresh("mutation")

	slotA.setReady(true)
	seq.NotifySlotReady(models.SlotA)
	waitFor(t, "video revealed at new index", func() bool {
		return slotA.revealCount() == 1 && seq.State().ActiveIndex == 1
	})
}

func TestContentAfterEmptyPlaylistResumes(t *testing.T) {
	source := newFakeSource()
	seq, _, slotB := startSequencer(t, source)

	waitFor(t, "powered on while idle", func() bool { return seq.State().PoweredOn })
	if got := slotB.revealCount(); got != 0 {
		t.Fatalf("empty registry revealed %d times", got)
	}

	// First upload arrives; the powered-on display leaves idle on its own.
	source.setItems([]models.ContentItem{imageItem("a", "a")})
	seq.Refresh("mutation")

	waitFor(t, "playback resumes", func() bool { return slotB.revealCount() == 1 })
	state := seq.State()
	if state.ActiveIndex != 0 {
		t.Errorf("active index = %d, want 0", state.ActiveIndex)
	}
	if !state.PoweredOn {
		t.Error("resume must not change power state")
	}
}

func TestRepopulatedPlaylistResumesAfterIdle(t *testing.T) {
	itemA := imageItem("a", "a")
	source := newFakeSource(itemA)
	seq, slotA, slotB := startSequencer(t, source)
	waitFor(t, "autostart", func() bool { return slotB.revealCount() == 1 })

	source.setItems(nil)
	seq.Refresh("mutation")
	waitFor(t, "idle after emptied registry", func() bool {
		slotB.mu.Lock()
		defer slotB.mu.Unlock()
		return slotB.conceals > 0
	})

	source.setItems([]models.ContentItem{itemA})
	seq.Refresh("mutation")
	waitFor(t, "playback resumes", func() bool {
		return slotA.revealCount()+slotB.revealCount() == 2
	})
	if got := seq.State().ActiveIndex; got != 0 {
		t.Errorf("active index = %d, want 0 after resume", got)
	}
}

func timedImage(id string, seconds int) models.ContentItem {
	item := imageItem(id, id)
	item.DurationSeconds = &seconds
	return item
}

func TestAdvanceTimerMovesToNextEntry(t *testing.T) {
	source := newFakeSource(timedImage("a", 1), timedImage("b", 1))
	seq, _, slotB := startSequencer(t, source)
	waitFor(t, "autostart", func() bool { return slotB.revealCount() == 1 })

	_, duration, _ := slotB.lastPrepared()
	if duration != time.Second {
		t.Fatalf("entry duration = %s, want 1s override", duration)
	}

	waitFor(t, "timer advance", func() bool { return seq.State().ActiveIndex == 1 })
}

func TestPowerOffCancelsAdvanceTimer(t *testing.T) {
	source := newFakeSource(timedImage("a", 1), timedImage("b", 1))
	seq, slotA, slotB := startSequencer(t, source)
	waitFor(t, "autostart", func() bool { return slotB.revealCount() == 1 })

	seq.SetPower(false)
	waitFor(t, "power off", func() bool { return !seq.State().PoweredOn })
	revealsAtOff := slotA.revealCount() + slotB.revealCount()

	// Sleep past the armed deadline; the cancelled timer must never land.
	time.Sleep(1200 * time.Millisecond)
	state := seq.State()
	if state.ActiveIndex != 0 {
		t.Errorf("active index = %d, want 0 after cancelled timer", state.ActiveIndex)
	}
	if state.PoweredOn {
		t.Error("display powered itself back on")
	}
	if got := slotA.revealCount() + slotB.revealCount(); got != revealsAtOff {
		t.Errorf("cancelled timer revealed: %d reveals, want %d", got, revealsAtOff)
	}
}
