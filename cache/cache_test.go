package cache

import (
	"errors"
	"fmt"
	"testing"
)

func TestCacheSetGet(t *testing.T) {
	c := New(0)

	if err := c.Set("teachers", []byte(`[]`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, ok := c.Get("teachers")
	if !ok {
		t.Fatal("Get returned no value for cached key")
	}
	if string(got) != `[]` {
		t.Errorf("Get returned wrong value: got %s", got)
	}

	if _, ok := c.Get("missing"); ok {
		t.Error("Get returned a value for a missing key")
	}
}

func TestCacheQuotaLeavesPriorIntact(t *testing.T) {
	c := New(16)

	if err := c.Set("exam-routines", []byte(`["small"]`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	err := c.Set("exam-routines", make([]byte, 64))
	if err == nil {
		t.Fatal("Expected quota error, got nil")
	}
	var quota *ErrQuotaExceeded
	if !errors.As(err, &quota) {
		t.Fatalf("Expected ErrQuotaExceeded, got %T", err)
	}

	got, ok := c.Get("exam-routines")
	if !ok {
		t.Fatal("prior value gone after failed write")
	}
	if string(got) != `["small"]` {
		t.Errorf("prior value not intact: got %s", got)
	}
}

func TestCacheReplaceAccountsSize(t *testing.T) {
	c := New(32)

	// Replacing a value must account for the freed bytes, not just the
	// new ones.
	if err := c.Set("k", make([]byte, 30)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := c.Set("k", make([]byte, 28)); err != nil {
		t.Errorf("replace within quota failed: %v", err)
	}

	metrics := c.GetMetrics()
	if metrics.Size != 28 {
		t.Errorf("expected size 28, got %d", metrics.Size)
	}
	if metrics.Keys != 1 {
		t.Errorf("expected 1 key, got %d", metrics.Keys)
	}
}

func TestCacheDelete(t *testing.T) {
	c := New(0)

	c.Set("gallery", []byte(`[]`))
	c.Delete("gallery")

	if _, ok := c.Get("gallery"); ok {
		t.Error("value still present after delete")
	}
	if c.GetMetrics().Size != 0 {
		t.Errorf("size not reclaimed after delete: %d", c.GetMetrics().Size)
	}

	// Deleting a missing key is a no-op.
	c.Delete("missing")
}

func TestCacheConcurrent(t *testing.T) {
	c := New(0)

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(i int) {
			key := fmt.Sprintf("key-%d", i)
			value := []byte(fmt.Sprintf(`"value-%d"`, i))

			if err := c.Set(key, value); err != nil {
				t.Errorf("Concurrent Set failed: %v", err)
			}
			if got, ok := c.Get(key); !ok || string(got) != string(value) {
				t.Errorf("Concurrent Get returned wrong value: got %s, want %s", got, value)
			}

			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}
}
