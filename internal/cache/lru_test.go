package cache

import (
	"testing"
	"time"
)

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRU[string, int](2, 0)
	c.Put("a", 1)
	c.Put("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("Get(a) missed")
	}
	c.Put("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("b survived eviction, want it dropped as least recently used")
	}
	for _, k := range []string{"a", "c"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("Get(%s) missed", k)
		}
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestLRU_Expiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewLRU[string, string](4, time.Minute)
	c.now = func() time.Time { return now }

	c.Put("k", "v")
	now = now.Add(30 * time.Second)
	if v, ok := c.Get("k"); !ok || v != "v" {
		t.Errorf("Get() before expiry = %q, %v", v, ok)
	}
	now = now.Add(time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Error("Get() after expiry hit")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d after expired read, want 0", c.Len())
	}
}

func TestLRU_PutReplacesAndPurge(t *testing.T) {
	type key struct {
		family string
		bucket string
	}
	c := NewLRU[key, []string](4, 0)
	c.Put(key{"expense", "food"}, []string{"old"})
	c.Put(key{"expense", "food"}, []string{"new"})
	if v, _ := c.Get(key{"expense", "food"}); len(v) != 1 || v[0] != "new" {
		t.Errorf("Get() = %v, want [new]", v)
	}
	c.Purge()
	if c.Len() != 0 {
		t.Errorf("Len() after Purge = %d", c.Len())
	}
	if _, ok := c.Get(key{"expense", "food"}); ok {
		t.Error("Get() after Purge hit")
	}
}
