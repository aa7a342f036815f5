//go:build tinygo

package hal

import "time"

// tickSource publishes a millisecond sequence number from a goroutine.
// Values are dropped while the channel is full; consumers follow the newest.
type tickSource struct {
	ch  chan uint64
	seq uint64
}

func newTickSource() *tickSource {
	t := &tickSource{ch: make(chan uint64, 16)}
	go t.loop()
	return t
}

func (t *tickSource) loop() {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		t.seq++
		select {
		case t.ch <- t.seq:
		default:
		}
	}
}

func (t *tickSource) Ticks() <-chan uint64 { return t.ch }
