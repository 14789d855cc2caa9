package login

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSessionStorePutGetTake(t *testing.T) {
	store := NewCacheSessionStore(time.Minute)

	if _, found := store.Get("absent"); found {
		t.Fatalf("expected miss for unknown session id")
	}

	store.Put("cookie", Session{Nonce: "00000000000000000000000000000001", Valid: true})
	session, found := store.Get("cookie")
	if !found || !session.Valid {
		t.Fatalf("expected stored session back, got %+v found=%v", session, found)
	}

	taken, takenFound := store.Take("cookie")
	if !takenFound || taken.Nonce != session.Nonce {
		t.Fatalf("expected take to return the session, got %+v found=%v", taken, takenFound)
	}
	if _, foundAfter := store.Get("cookie"); foundAfter {
		t.Fatalf("expected session gone after take")
	}
}

func TestSessionTakeConsumesExactlyOnce(t *testing.T) {
	store := NewCacheSessionStore(time.Minute)
	store.Put("cookie", Session{Valid: true})

	var winners int32
	var waitGroup sync.WaitGroup
	for worker := 0; worker < 16; worker++ {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			if _, found := store.Take("cookie"); found {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	waitGroup.Wait()

	if winners != 1 {
		t.Fatalf("expected exactly one take to win, got %d", winners)
	}
}
