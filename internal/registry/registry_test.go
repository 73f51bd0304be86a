package registry

import (
	"testing"

	"github.com/tectonicboy/rosetta/internal/wire"
)

func pubkey(seed byte) [wire.PubkeyBytes]byte {
	var p [wire.PubkeyBytes]byte
	p[0] = seed
	return p
}

func TestAllocateClientLeftmostEmpty(t *testing.T) {
	r := New()
	ix1, err := r.AllocateClient(pubkey(1))
	if err != nil || ix1 != 0 {
		t.Fatalf("first alloc: ix=%d err=%v", ix1, err)
	}
	ix2, err := r.AllocateClient(pubkey(2))
	if err != nil || ix2 != 1 {
		t.Fatalf("second alloc: ix=%d err=%v", ix2, err)
	}

	if err := r.FreeClient(ix1); err != nil {
		t.Fatalf("free: %v", err)
	}
	ix3, err := r.AllocateClient(pubkey(3))
	if err != nil || ix3 != 0 {
		t.Fatalf("third alloc should reuse freed slot 0: ix=%d err=%v", ix3, err)
	}
}

func TestAllocateClientRejectsDuplicate(t *testing.T) {
	r := New()
	pk := pubkey(7)
	if _, err := r.AllocateClient(pk); err != nil {
		t.Fatalf("first alloc: %v", err)
	}
	if _, err := r.AllocateClient(pk); err != ErrDuplicate {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
}

func TestAllocateClientRejectsWhenFull(t *testing.T) {
	r := New()
	for i := 0; i < wire.MaxClients; i++ {
		if _, err := r.AllocateClient(pubkey(byte(i))); err != nil {
			t.Fatalf("alloc %d: %v", i, err)
		}
	}
	if _, err := r.AllocateClient(pubkey(200)); err != ErrFull {
		t.Errorf("expected ErrFull, got %v", err)
	}
}

func TestFreeClientNotOccupied(t *testing.T) {
	r := New()
	if err := r.FreeClient(5); err != ErrNotOccupied {
		t.Errorf("expected ErrNotOccupied, got %v", err)
	}
}

func TestPendingQueueBoundedAndDrains(t *testing.T) {
	r := New()
	ix, _ := r.AllocateClient(pubkey(1))

	for i := 0; i < wire.MaxPending; i++ {
		if err := r.EnqueuePending(ix, []byte{byte(i)}); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	if err := r.EnqueuePending(ix, []byte("overflow")); err != ErrQueueFull {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}

	drained, err := r.DrainPending(ix)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(drained) != wire.MaxPending {
		t.Errorf("drained %d envelopes, want %d", len(drained), wire.MaxPending)
	}

	drainedAgain, err := r.DrainPending(ix)
	if err != nil {
		t.Fatalf("second drain: %v", err)
	}
	if len(drainedAgain) != 0 {
		t.Errorf("expected empty queue after drain, got %d", len(drainedAgain))
	}
}

func TestAllocateRoomSkipsReservedSlotZero(t *testing.T) {
	r := New()
	ix, err := r.AllocateRoom(0, 0xAA, [wire.SessionKey]byte{})
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	if ix == 0 {
		t.Error("room slot 0 is reserved and must never be allocated")
	}
}

func TestFreeRoomRejectsReservedSlotZero(t *testing.T) {
	r := New()
	if err := r.FreeRoom(0); err != ErrNotOccupied {
		t.Errorf("expected ErrNotOccupied for slot 0, got %v", err)
	}
}

func TestRoomOccupantsTracksMembership(t *testing.T) {
	r := New()
	roomIx, _ := r.AllocateRoom(0, 0xAA, [wire.SessionKey]byte{})
	a, _ := r.AllocateClient(pubkey(1))
	b, _ := r.AllocateClient(pubkey(2))
	c, _ := r.AllocateClient(pubkey(3))

	if err := r.SetClientRoom(a, roomIx); err != nil {
		t.Fatalf("set room a: %v", err)
	}
	if err := r.SetClientRoom(b, roomIx); err != nil {
		t.Fatalf("set room b: %v", err)
	}
	_ = c

	occupants := r.RoomOccupants(roomIx)
	if len(occupants) != 2 {
		t.Fatalf("got %d occupants, want 2", len(occupants))
	}
}

func TestIncrementRoomPeopleClampsAtZero(t *testing.T) {
	r := New()
	roomIx, _ := r.AllocateRoom(0, 0xAA, [wire.SessionKey]byte{})
	if err := r.IncrementRoomPeople(roomIx, -5); err != nil {
		t.Fatalf("decrement: %v", err)
	}
	room, err := r.GetRoom(roomIx)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if room.NumPeople != 0 {
		t.Errorf("NumPeople = %d, want 0 (clamped)", room.NumPeople)
	}
}

func TestGetClientReturnsIndependentCopy(t *testing.T) {
	r := New()
	ix, _ := r.AllocateClient(pubkey(1))
	_ = r.EnqueuePending(ix, []byte("msg"))

	got, err := r.GetClient(ix)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got.Pending[0][0] = 0xFF

	original, _ := r.GetClient(ix)
	if original.Pending[0][0] == 0xFF {
		t.Error("mutating a returned copy affected the registry's internal state")
	}
}
