package port

import (
	"testing"
	"time"
)

func TestSendAndPop(t *testing.T) {
	p := NewPort()
	m := NewMessage([]byte(`"hi"`), nil)
	if ok := p.Send(m); !ok {
		t.Fatalf("Send returned false on a live port")
	}

	p.Lock()
	got, ok := p.PopFrontLocked()
	p.Unlock()
	if !ok {
		t.Fatalf("expected a message, got none")
	}
	if got != m {
		t.Errorf("popped message = %v, want %v", got, m)
	}
	if got.next != nil {
		t.Errorf("popped message retained a next pointer")
	}
}

func TestSendFIFOOrder(t *testing.T) {
	p := NewPort()
	want := [][]byte{[]byte("1"), []byte("2"), []byte("3")}
	for _, b := range want {
		p.Send(NewMessage(b, nil))
	}

	for _, w := range want {
		p.Lock()
		m, ok := p.PopFrontLocked()
		p.Unlock()
		if !ok {
			t.Fatalf("expected a message")
		}
		if string(m.Payload) != string(w) {
			t.Errorf("got payload %s, want %s", m.Payload, w)
		}
	}
}

func TestSendOnTerminatedPortDrops(t *testing.T) {
	p := NewPort()
	p.Terminate()
	if ok := p.Send(NewMessage([]byte("x"), nil)); ok {
		t.Errorf("Send on a terminated port returned true, want false")
	}
	p.Lock()
	empty := p.EmptyLocked()
	p.Unlock()
	if !empty {
		t.Errorf("message was enqueued on a terminated port")
	}
}

func TestSendOnDisconnectedPortDrops(t *testing.T) {
	p := NewPort()
	p.Disconnect()
	if ok := p.Send(NewMessage([]byte("x"), nil)); ok {
		t.Errorf("Send on a disconnected port returned true, want false")
	}
}

func TestSendClearsWaiting(t *testing.T) {
	p := NewPort()
	p.SetWaiting(true)
	p.Send(NewMessage([]byte("x"), nil))
	if p.Waiting() {
		t.Errorf("waiting flag still set after Send")
	}
}

func TestRefcountAndReleaseWakesWaiter(t *testing.T) {
	p := NewPort()
	p.Acquire() // refcount now 2

	done := make(chan struct{})
	go func() {
		p.WaitUntilReleased()
		close(done)
	}()

	p.Release() // back to 1, should not wake WaitUntilReleased yet
	select {
	case <-done:
		t.Fatalf("WaitUntilReleased returned before refcount reached zero")
	case <-time.After(20 * time.Millisecond):
	}

	p.Release() // refcount 0
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("WaitUntilReleased did not return after refcount reached zero")
	}
}

func TestTerminateIsIdempotent(t *testing.T) {
	p := NewPort()
	p.Terminate()
	p.Terminate()
	if !p.Terminated() {
		t.Errorf("expected port to be terminated")
	}
}

func TestCondWaitWakesOnSend(t *testing.T) {
	p := NewPort()
	woke := make(chan struct{})

	go func() {
		p.Lock()
		for p.EmptyLocked() {
			p.CondWait()
		}
		p.Unlock()
		close(woke)
	}()

	time.Sleep(10 * time.Millisecond)
	p.Send(NewMessage([]byte("x"), nil))

	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatalf("CondWait did not wake after Send")
	}
}
