package cache

import (
	"context"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestLRUSetGet(t *testing.T) {
	c := NewLRUCache(10)
	ctx := context.Background()

	if err := c.Set(ctx, "k1", []byte("v1"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	val, err := c.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(val) != "v1" {
		t.Errorf("Get = %q, want v1", val)
	}
}

func TestLRUMissReturnsNil(t *testing.T) {
	c := NewLRUCache(10)
	val, err := c.Get(context.Background(), "absent")
	if err != nil || val != nil {
		t.Errorf("miss = %v, %v; want nil, nil", val, err)
	}
}

func TestLRUExpiry(t *testing.T) {
	c := NewLRUCache(10)
	ctx := context.Background()

	c.Set(ctx, "k1", []byte("v1"), 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	val, _ := c.Get(ctx, "k1")
	if val != nil {
		t.Error("expired entry still present")
	}
}

func TestLRUEviction(t *testing.T) {
	c := NewLRUCache(2)
	ctx := context.Background()

	c.Set(ctx, "k1", []byte("v1"), time.Minute)
	c.Set(ctx, "k2", []byte("v2"), time.Minute)
	c.Get(ctx, "k1") // k1 becomes most recent
	c.Set(ctx, "k3", []byte("v3"), time.Minute)

	if val, _ := c.Get(ctx, "k2"); val != nil {
		t.Error("least recently used entry not evicted")
	}
	if val, _ := c.Get(ctx, "k1"); val == nil {
		t.Error("recently used entry evicted")
	}
}

func TestLRUDelete(t *testing.T) {
	c := NewLRUCache(10)
	ctx := context.Background()

	c.Set(ctx, "k1", []byte("v1"), time.Minute)
	c.Delete(ctx, "k1")
	if val, _ := c.Get(ctx, "k1"); val != nil {
		t.Error("deleted entry still present")
	}
}

func TestIncrementCounterWindow(t *testing.T) {
	c := NewLRUCache(10)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := c.IncrementCounter(ctx, "velocity:u1", time.Minute)
		if err != nil {
			t.Fatalf("IncrementCounter: %v", err)
		}
		if got != want {
			t.Errorf("count = %d, want %d", got, want)
		}
	}

	// expired window restarts the count
	c.IncrementCounter(ctx, "fast", 5*time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	got, _ := c.IncrementCounter(ctx, "fast", time.Minute)
	if got != 1 {
		t.Errorf("count after window expiry = %d, want 1", got)
	}
}

func TestAssessmentRoundTrip(t *testing.T) {
	c := NewLRUCache(10)
	ctx := context.Background()

	in := &domain.CombinedAssessment{
		Score: 72.5,
		Level: domain.RiskHigh,
		Categories: map[domain.Category]float64{
			domain.CategoryRules: 85,
		},
	}
	if err := SetAssessment(ctx, c, "http://evil.example", in, time.Minute); err != nil {
		t.Fatalf("SetAssessment: %v", err)
	}

	out, err := GetAssessment(ctx, c, "http://evil.example")
	if err != nil {
		t.Fatalf("GetAssessment: %v", err)
	}
	if out == nil || out.Score != 72.5 || out.Level != domain.RiskHigh {
		t.Errorf("round trip = %+v", out)
	}
}

func TestNewSelectsLRUForMemory(t *testing.T) {
	c, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 100})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := c.(*LRUCache); !ok {
		t.Errorf("New(memory) = %T, want *LRUCache", c)
	}
}

func TestNewRejectsUnknownType(t *testing.T) {
	if _, err := New(domain.CacheConfig{Type: "etcd"}); err == nil {
		t.Error("unknown cache type accepted")
	}
}
