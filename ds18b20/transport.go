// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds18b20

import (
	"iter"
	"sync"

	"periph.io/x/conn/v3/onewire"
)

// Transport is the bus master used by Dev.
//
// Reset issues a reset pulse and fails if no device answers with a presence
// pulse. Write and Read transfer bytes using write and read time slots.
// Enumerate runs the search algorithm and yields the raw ROM code of every
// device on the bus, regardless of its family.
type Transport interface {
	Reset() error
	Write(w []byte) error
	Read(r []byte) error
	Enumerate() iter.Seq2[onewire.Address, error]
}

// Committer is implemented by transports that hold back writes until the
// command sequence is complete.
//
// Commands that end with a write call Commit. power selects the pull-up to
// apply after the last byte, onewire.StrongPullup powers parasitic devices
// during a conversion.
type Committer interface {
	Commit(power onewire.Pullup) error
}

// BusTransport adapts a onewire.Bus to Transport.
//
// onewire.Bus only exposes whole transactions that start with a reset, so
// BusTransport accumulates the bytes written since the last Reset and sends
// them in a single Tx when the sequence ends with a Read or a Commit.
type BusTransport struct {
	mu      sync.Mutex
	bus     onewire.Bus
	pending []byte
}

// NewBusTransport returns a Transport running on b.
func NewBusTransport(b onewire.Bus) *BusTransport {
	return &BusTransport{bus: b}
}

func (t *BusTransport) String() string {
	return t.bus.String()
}

// Reset discards the bytes of an unfinished sequence. The reset pulse itself
// is emitted by the bus at the start of the next transaction.
func (t *BusTransport) Reset() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = t.pending[:0]
	return nil
}

// Write queues w.
func (t *BusTransport) Write(w []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = append(t.pending, w...)
	return nil
}

// Read sends the queued bytes and reads len(r) bytes back.
func (t *BusTransport) Read(r []byte) error {
	return t.flush(r, onewire.WeakPullup)
}

// Commit implements Committer.
func (t *BusTransport) Commit(power onewire.Pullup) error {
	return t.flush(nil, power)
}

func (t *BusTransport) flush(r []byte, power onewire.Pullup) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.pending) == 0 && len(r) == 0 {
		return nil
	}
	w := append([]byte(nil), t.pending...)
	t.pending = t.pending[:0]
	return t.bus.Tx(w, r, power)
}

// Enumerate implements Transport.
//
// If the search fails, the addresses found so far are yielded before the
// error.
func (t *BusTransport) Enumerate() iter.Seq2[onewire.Address, error] {
	return func(yield func(onewire.Address, error) bool) {
		addrs, err := t.bus.Search(false)
		for _, a := range addrs {
			if !yield(a, nil) {
				return
			}
		}
		if err != nil {
			yield(0, err)
		}
	}
}

var _ Transport = &BusTransport{}
var _ Committer = &BusTransport{}
