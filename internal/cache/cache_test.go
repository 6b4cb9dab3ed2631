package cache

import (
	"testing"
	"time"

	"github.com/MrSnakeDoc/nexus/internal/domain"
)

func TestMemoryExpires(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemory(3*time.Second, func() time.Time { return now })

	if _, ok := c.Get(); ok {
		t.Fatal("empty cache reported a hit")
	}

	c.Put([]domain.SearchResult{{SessionID: "A"}})

	now = now.Add(2 * time.Second)
	got, ok := c.Get()
	if !ok || len(got) != 1 || got[0].SessionID != "A" {
		t.Fatalf("Get() = %v, %v", got, ok)
	}

	now = now.Add(time.Second)
	if _, ok := c.Get(); ok {
		t.Error("entry still served at its ttl")
	}
}

func TestMemoryReturnsCopies(t *testing.T) {
	c := NewMemory(time.Minute, nil)
	in := []domain.SearchResult{{
		SessionID:  "A",
		Attributes: map[string]domain.Value{"MAP": domain.StringValue("Arena")},
	}}
	c.Put(in)
	in[0].Attributes["MAP"] = domain.StringValue("changed")

	got, _ := c.Get()
	got[0].SessionID = "mutated"

	again, _ := c.Get()
	if again[0].SessionID != "A" {
		t.Errorf("cache aliased a returned slice: %q", again[0].SessionID)
	}
	if again[0].Attributes["MAP"].Str != "Arena" {
		t.Errorf("cache aliased the stored input: %q", again[0].Attributes["MAP"].Str)
	}
}

func TestMemoryInvalidate(t *testing.T) {
	c := NewMemory(time.Minute, nil)
	c.Put([]domain.SearchResult{{SessionID: "A"}})
	c.Invalidate()
	if _, ok := c.Get(); ok {
		t.Error("Get() hit after Invalidate")
	}
}

func TestMemoryCachesEmptyResults(t *testing.T) {
	c := NewMemory(time.Minute, nil)
	c.Put(nil)
	got, ok := c.Get()
	if !ok || len(got) != 0 {
		t.Errorf("Get() = %v, %v; want empty hit", got, ok)
	}
}
