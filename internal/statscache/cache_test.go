package statscache

import (
	"errors"
	"testing"
	"time"
)

func TestGetOrLoadCachesWithinTTL(t *testing.T) {
	c := New(50 * time.Millisecond)
	calls := 0
	load := func() (any, error) {
		calls++
		return 42, nil
	}
	for i := 0; i < 3; i++ {
		v, err := c.GetOrLoad("k", load)
		if err != nil || v != 42 {
			t.Fatalf("unexpected v=%v err=%v", v, err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected loader called once, got %d", calls)
	}
}

func TestGetOrLoadRefreshesAfterTTL(t *testing.T) {
	c := New(10 * time.Millisecond)
	calls := 0
	load := func() (any, error) {
		calls++
		return calls, nil
	}
	if _, err := c.GetOrLoad("k", load); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	v, err := c.GetOrLoad("k", load)
	if err != nil {
		t.Fatal(err)
	}
	if v != 2 {
		t.Fatalf("expected refreshed value 2, got %v", v)
	}
}

func TestGetOrLoadDoesNotCacheErrors(t *testing.T) {
	c := New(time.Minute)
	_, err := c.GetOrLoad("k", func() (any, error) { return nil, errors.New("boom") })
	if err == nil {
		t.Fatalf("expected error")
	}
	v, err := c.GetOrLoad("k", func() (any, error) { return "ok", nil })
	if err != nil || v != "ok" {
		t.Fatalf("expected fresh load after error, got v=%v err=%v", v, err)
	}
}
