package cync

import "testing"

func TestObserversSubscribeNotify(t *testing.T) {
	var o Observers
	var calls []string

	a := o.Subscribe(func() { calls = append(calls, "a") })
	o.Subscribe(func() { calls = append(calls, "b") })

	o.Notify()
	if len(calls) != 2 || calls[0] != "a" || calls[1] != "b" {
		t.Fatalf("calls = %v, want [a b]", calls)
	}

	if !o.Unsubscribe(a) {
		t.Fatal("Unsubscribe(a) = false")
	}
	if o.Unsubscribe(a) {
		t.Error("second Unsubscribe(a) = true")
	}

	calls = nil
	o.Notify()
	if len(calls) != 1 || calls[0] != "b" {
		t.Errorf("calls = %v, want [b]", calls)
	}
	if o.Len() != 1 {
		t.Errorf("Len() = %d, want 1", o.Len())
	}
}

func TestObserversTokensAreDistinct(t *testing.T) {
	var o Observers
	a := o.Subscribe(func() {})
	b := o.Subscribe(func() {})
	if a == b {
		t.Fatalf("tokens collide: %s", a)
	}
	if a.String() == "" {
		t.Error("empty token string")
	}
}

func TestObserversRecoversPanics(t *testing.T) {
	var o Observers
	called := false
	o.Subscribe(func() { panic("boom") })
	o.Subscribe(func() { called = true })

	o.Notify()
	if !called {
		t.Error("subscriber after panicking one was not called")
	}
}

func TestObserversUnsubscribeDuringNotify(t *testing.T) {
	var o Observers
	var token Subscription
	token = o.Subscribe(func() { o.Unsubscribe(token) })
	o.Notify()
	if o.Len() != 0 {
		t.Errorf("Len() = %d, want 0", o.Len())
	}
}
