package driver

import (
	"sync"
	"testing"
	"time"
)

func TestShutdownConditionInitiateIsIdempotent(t *testing.T) {
	s := NewShutdownCondition()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(bySignal bool) {
			defer wg.Done()
			s.Initiate(bySignal)
		}(i%2 == 0)
	}
	wg.Wait()

	select {
	case <-s.Wait():
	default:
		t.Fatal("Wait() channel should be closed after Initiate")
	}
	if !s.Triggered() {
		t.Error("Triggered() should report true")
	}
}

func TestShutdownConditionBySignalLocksInFirstCaller(t *testing.T) {
	s := NewShutdownCondition()
	s.Initiate(true)
	s.Initiate(false)
	if !s.BySignal() {
		t.Error("BySignal() should reflect the first Initiate call")
	}
}

func TestShutdownConditionNotTriggeredInitially(t *testing.T) {
	s := NewShutdownCondition()
	if s.Triggered() {
		t.Error("Triggered() should be false before Initiate")
	}
	select {
	case <-s.Wait():
		t.Fatal("Wait() channel should not be closed yet")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestShutdownConditionPending(t *testing.T) {
	s := NewShutdownCondition()
	s.AddPending(3)
	s.AddPending(-1)
	if got := s.Pending(); got != 2 {
		t.Errorf("Pending() = %d, want 2", got)
	}
}
