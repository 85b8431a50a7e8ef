package session

import (
	"math/rand"
)

// idAllocator hands out 64-bit session IDs unique among live sessions.
// It is owned by the control loop; acquire and release must only be
// called from loop tasks. A released ID may be handed out again, but
// release happens only after the previous holder has been destroyed.
type idAllocator struct {
	rng   *rand.Rand
	inUse map[uint64]struct{}
}

func newIDAllocator(seed int64) *idAllocator {
	return &idAllocator{
		rng:   rand.New(rand.NewSource(seed)),
		inUse: make(map[uint64]struct{}),
	}
}

func (a *idAllocator) acquire() uint64 {
	for {
		id := a.rng.Uint64()
		if _, taken := a.inUse[id]; taken {
			continue
		}
		a.inUse[id] = struct{}{}
		return id
	}
}

func (a *idAllocator) release(id uint64) {
	delete(a.inUse, id)
}
