// Package registry implements the server's session registry: fixed-capacity
// client and room slot tables, each guarded against concurrent access the
// way the rest of this codebase guards shared mutable state — a
// sync.RWMutex held only across the critical section, with callers handed
// copies rather than pointers into the table.
package registry

import (
	"bytes"
	"errors"
	"sync"

	"github.com/tectonicboy/rosetta/internal/wire"
)

var (
	ErrFull           = errors.New("registry: no free slot")
	ErrDuplicate      = errors.New("registry: duplicate pubkey or room id")
	ErrNotOccupied    = errors.New("registry: slot not occupied")
	ErrQueueFull      = errors.New("registry: pending-message queue full")
	ErrRoomNotEmpty   = errors.New("registry: room still has occupants")
)

// Client is one occupied client slot: its room membership and public key,
// plus a bounded queue of opaque envelopes awaiting poll.
type Client struct {
	RoomIx  uint32
	Pubkey  [wire.PubkeyBytes]byte
	Pending [][]byte
}

// Room is one occupied room slot. RoomID is the client-chosen identifier
// carried in a create/join request's payload (e.g. 0xAA...) — distinct from
// the slot index ix, which is this registry's own leftmost-empty allocation
// and never chosen by a client. Key holds the room's shared ChaCha20 key,
// established at creation and re-wrapped for every subsequent joiner.
type Room struct {
	NumPeople uint32
	OwnerIx   uint32
	RoomID    uint64
	Key       [wire.SessionKey]byte
}

// Registry holds the fixed MAX_CLIENTS/MAX_ROOMS slot arrays. Capacity is
// fixed at compile time (wire.MaxClients, wire.MaxRooms), so — unlike the
// teacher's map-based routing.Table — this is backed by plain arrays with a
// bitmask of occupancy rather than a map, matching the reference registry's
// fixed-capacity design (I1-I3).
type Registry struct {
	mu sync.RWMutex

	clients         [wire.MaxClients]Client
	clientOccupied  [wire.MaxClients]bool
	clientsBitmask  uint64
	nextFreeUserIx  uint32

	rooms          [wire.MaxRooms]Room
	roomOccupied   [wire.MaxRooms]bool
	roomsBitmask   uint64
	nextFreeRoomIx uint32
}

// New returns an empty registry. Room slot 0 is reserved to mean "not in
// any room" (I2) and is never allocated.
func New() *Registry {
	r := &Registry{}
	r.roomOccupied[0] = true // reserved, never freed, never a real room
	r.roomsBitmask = 1 << 63
	r.nextFreeRoomIx = 1
	return r
}

// AllocateClient inserts a new client at the leftmost free slot, rejecting
// an exact-byte duplicate of an already-registered public key (§4.3).
func (r *Registry) AllocateClient(pubkey [wire.PubkeyBytes]byte) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.clients {
		if r.clientOccupied[i] && bytes.Equal(r.clients[i].Pubkey[:], pubkey[:]) {
			return 0, ErrDuplicate
		}
	}

	if r.nextFreeUserIx >= wire.MaxClients {
		return 0, ErrFull
	}
	ix := r.nextFreeUserIx

	r.clients[ix] = Client{Pubkey: pubkey}
	r.clientOccupied[ix] = true
	r.clientsBitmask |= 1 << (63 - ix)
	r.nextFreeUserIx = r.leftmostFreeClient()

	return ix, nil
}

// FreeClient releases a client slot, restoring the leftmost-empty invariant
// (I3) in O(MaxClients).
func (r *Registry) FreeClient(ix uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ix >= wire.MaxClients || !r.clientOccupied[ix] {
		return ErrNotOccupied
	}
	r.clients[ix] = Client{}
	r.clientOccupied[ix] = false
	r.clientsBitmask &^= 1 << (63 - ix)
	if ix < r.nextFreeUserIx {
		r.nextFreeUserIx = ix
	}
	return nil
}

func (r *Registry) leftmostFreeClient() uint32 {
	for i := uint32(0); i < wire.MaxClients; i++ {
		if !r.clientOccupied[i] {
			return i
		}
	}
	return wire.MaxClients
}

// GetClient returns a copy of the client at ix.
func (r *Registry) GetClient(ix uint32) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if ix >= wire.MaxClients || !r.clientOccupied[ix] {
		return Client{}, ErrNotOccupied
	}
	return r.cloneClient(ix), nil
}

func (r *Registry) cloneClient(ix uint32) Client {
	c := r.clients[ix]
	if len(c.Pending) > 0 {
		c.Pending = make([][]byte, len(r.clients[ix].Pending))
		for i, env := range r.clients[ix].Pending {
			c.Pending[i] = append([]byte(nil), env...)
		}
	}
	return c
}

// SetClientRoom updates a client's room membership (I2: RoomIx is 0 xor an
// occupied room).
func (r *Registry) SetClientRoom(ix uint32, roomIx uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ix >= wire.MaxClients || !r.clientOccupied[ix] {
		return ErrNotOccupied
	}
	r.clients[ix].RoomIx = roomIx
	return nil
}

// EnqueuePending appends an envelope to a client's pending queue, rejecting
// once MaxPending is reached.
func (r *Registry) EnqueuePending(ix uint32, envelope []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ix >= wire.MaxClients || !r.clientOccupied[ix] {
		return ErrNotOccupied
	}
	if len(r.clients[ix].Pending) >= wire.MaxPending {
		return ErrQueueFull
	}
	r.clients[ix].Pending = append(r.clients[ix].Pending, envelope)
	return nil
}

// DrainPending removes and returns every envelope queued for a client.
func (r *Registry) DrainPending(ix uint32) ([][]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ix >= wire.MaxClients || !r.clientOccupied[ix] {
		return nil, ErrNotOccupied
	}
	drained := r.clients[ix].Pending
	r.clients[ix].Pending = nil
	return drained, nil
}

// AllocateRoom inserts a new room at the leftmost free slot (excluding the
// reserved slot 0), rejecting a room_id already in use by another occupied
// room (§7's "Duplicate" error category covers both pubkeys and room ids).
func (r *Registry) AllocateRoom(ownerIx uint32, roomID uint64, key [wire.SessionKey]byte) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.rooms {
		if r.roomOccupied[i] && r.rooms[i].RoomID == roomID {
			return 0, ErrDuplicate
		}
	}

	if r.nextFreeRoomIx >= wire.MaxRooms {
		return 0, ErrFull
	}
	ix := r.nextFreeRoomIx

	r.rooms[ix] = Room{OwnerIx: ownerIx, RoomID: roomID, Key: key, NumPeople: 1}
	r.roomOccupied[ix] = true
	r.roomsBitmask |= 1 << (63 - ix)
	r.nextFreeRoomIx = r.leftmostFreeRoom()

	return ix, nil
}

// FindRoomByRoomID returns the registry slot index of the occupied room
// whose client-chosen RoomID matches, or ErrNotOccupied if none does.
func (r *Registry) FindRoomByRoomID(roomID uint64) (uint32, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := range r.rooms {
		if r.roomOccupied[i] && r.rooms[i].RoomID == roomID {
			return uint32(i), nil
		}
	}
	return 0, ErrNotOccupied
}

func (r *Registry) leftmostFreeRoom() uint32 {
	for i := uint32(1); i < wire.MaxRooms; i++ {
		if !r.roomOccupied[i] {
			return i
		}
	}
	return wire.MaxRooms
}

// FreeRoom releases a room slot when its owner leaves.
func (r *Registry) FreeRoom(ix uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ix == 0 || ix >= wire.MaxRooms || !r.roomOccupied[ix] {
		return ErrNotOccupied
	}
	r.rooms[ix] = Room{}
	r.roomOccupied[ix] = false
	r.roomsBitmask &^= 1 << (63 - ix)
	if ix < r.nextFreeRoomIx {
		r.nextFreeRoomIx = ix
	}
	return nil
}

// GetRoom returns a copy of the room at ix.
func (r *Registry) GetRoom(ix uint32) (Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if ix == 0 || ix >= wire.MaxRooms || !r.roomOccupied[ix] {
		return Room{}, ErrNotOccupied
	}
	return r.rooms[ix], nil
}

// RoomOccupants returns the indices of every client currently in roomIx.
func (r *Registry) RoomOccupants(roomIx uint32) []uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var occupants []uint32
	for i := range r.clients {
		if r.clientOccupied[i] && r.clients[i].RoomIx == roomIx {
			occupants = append(occupants, uint32(i))
		}
	}
	return occupants
}

// IncrementRoomPeople adjusts a room's occupant count by delta (positive on
// join, negative on leave), clamped at zero.
func (r *Registry) IncrementRoomPeople(roomIx uint32, delta int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if roomIx == 0 || roomIx >= wire.MaxRooms || !r.roomOccupied[roomIx] {
		return ErrNotOccupied
	}
	n := int32(r.rooms[roomIx].NumPeople) + delta
	if n < 0 {
		n = 0
	}
	r.rooms[roomIx].NumPeople = uint32(n)
	return nil
}
