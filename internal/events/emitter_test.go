package events

import "testing"

func TestEmitOrderAndOnce(t *testing.T) {
	em := NewEmitter()
	var seen []string
	em.On(Ready, func(any) { seen = append(seen, "a") })
	em.Once(Ready, func(any) { seen = append(seen, "once") })
	em.On(Ready, func(p any) { seen = append(seen, p.(string)) })

	if n := em.Emit(Ready, "c"); n != 3 {
		t.Fatalf("expected 3 listeners, got %d", n)
	}
	if n := em.Emit(Ready, "c"); n != 2 {
		t.Fatalf("once listener must fire only once, got %d", n)
	}
	want := []string{"a", "once", "c", "a", "c"}
	if len(seen) != len(want) {
		t.Fatalf("unexpected calls: %v", seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("unexpected order: %v", seen)
		}
	}
}

func TestRemoveListener(t *testing.T) {
	em := NewEmitter()
	calls := 0
	id := em.On(Error, func(any) { calls++ })
	if !em.RemoveListener(Error, id) {
		t.Fatalf("expected listener to be removed")
	}
	if em.RemoveListener(Error, id) {
		t.Fatalf("second removal must report false")
	}
	em.Emit(Error, nil)
	if calls != 0 {
		t.Fatalf("removed listener was called")
	}
	if em.On(Error, nil) != 0 {
		t.Fatalf("nil listener must not subscribe")
	}
}

func TestListenerMayUnsubscribeDuringEmit(t *testing.T) {
	em := NewEmitter()
	var id ListenerID
	calls := 0
	id = em.On(Destroy, func(any) {
		calls++
		em.RemoveListener(Destroy, id)
	})
	em.On(Destroy, func(any) { calls++ })
	em.Emit(Destroy, nil)
	em.Emit(Destroy, nil)
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRemoveAll(t *testing.T) {
	em := NewEmitter()
	em.On(Ready, func(any) {})
	em.On(Error, func(any) {})
	em.RemoveAll(Ready)
	if em.ListenerCount(Ready) != 0 || em.ListenerCount(Error) != 1 {
		t.Fatalf("RemoveAll(Ready) removed wrong listeners")
	}
	em.RemoveAll()
	if em.ListenerCount(Error) != 0 {
		t.Fatalf("RemoveAll() must clear everything")
	}
}
