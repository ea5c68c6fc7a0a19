package memkv

import (
	"sort"
	"testing"
	"time"
)

func TestSetGetCopies(t *testing.T) {
	s := New(Options{})
	defer s.Close()

	in := []byte("abc")
	if created := s.Set("k1", in, 0); !created {
		t.Fatalf("expected created=true on first Set")
	}
	in[0] = 'X'
	v, ok := s.Get("k1")
	if !ok || string(v) != "abc" {
		t.Fatalf("Get mismatch: ok=%v v=%q", ok, v)
	}
	v[0] = 'Y'
	if v2, _ := s.Get("k1"); string(v2) != "abc" {
		t.Fatalf("store shares memory with a returned value: %q", v2)
	}
	if created := s.Set("k1", []byte("def"), 0); created {
		t.Fatalf("expected created=false on overwrite")
	}
}

func TestExpireTTL(t *testing.T) {
	s := New(Options{})
	defer s.Close()

	s.Set("k3", []byte("v"), 50*time.Millisecond)
	if _, ok := s.Get("k3"); !ok {
		t.Fatalf("expected key present before TTL")
	}
	time.Sleep(120 * time.Millisecond)
	if _, ok := s.Get("k3"); ok {
		t.Fatalf("expected key expired")
	}
	if _, ok := s.TTL("k3"); ok {
		t.Fatalf("expected TTL to report missing after expiry")
	}
	if s.Update("k3", func(b []byte) []byte { return b }) {
		t.Fatalf("expired key must not be updated")
	}
}

func TestExpireUpdateTTL(t *testing.T) {
	s := New(Options{})
	defer s.Close()

	s.Set("k4", []byte("v"), 0)
	if d, ok := s.TTL("k4"); !ok || d != 0 {
		t.Fatalf("no-expiry key: %v %v", d, ok)
	}
	if ok := s.Expire("k4", 30*time.Millisecond); !ok {
		t.Fatalf("Expire returned false")
	}
	if d, ok := s.TTL("k4"); !ok || d <= 0 {
		t.Fatalf("TTL should be >0 and ok, got %v %v", d, ok)
	}
	time.Sleep(80 * time.Millisecond)
	if _, ok := s.TTL("k4"); ok {
		t.Fatalf("expected key expired")
	}
}

func TestSweeperReclaims(t *testing.T) {
	s := New(Options{SweepInterval: 10 * time.Millisecond})
	defer s.Close()

	s.Set("gone", []byte("v"), 20*time.Millisecond)
	s.Set("kept", []byte("v"), 0)
	deadline := time.Now().Add(2 * time.Second)
	for s.Metrics().Keys != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("sweeper never reclaimed expired key: %+v", s.Metrics())
		}
		time.Sleep(5 * time.Millisecond)
	}
	if s.Metrics().Expired != 1 {
		t.Fatalf("expected one expiry, got %+v", s.Metrics())
	}
}

func TestKeysByPrefix(t *testing.T) {
	s := New(Options{})
	defer s.Close()
	s.Set("instance:a", nil, 0)
	s.Set("instance:b[1]", nil, 0)
	s.Set("dims:a", nil, 0)

	got := s.Keys("instance:")
	sort.Strings(got)
	if len(got) != 2 || got[0] != "instance:a" || got[1] != "instance:b[1]" {
		t.Fatalf("Keys mismatch: %v", got)
	}
}

func TestMetrics(t *testing.T) {
	s := New(Options{})
	defer s.Close()

	s.Set("a", []byte("123"), 0)
	s.Set("b", []byte("5"), 0)
	s.Update("a", func(old []byte) []byte { return append(old, "++"...) })
	s.Get("a")
	s.Get("missing")
	s.Delete("b")

	st := s.Metrics()
	if st.Keys != 1 || st.Sets != 2 || st.Dels != 1 {
		t.Fatalf("Keys/Sets/Dels mismatch: %+v", st)
	}
	if st.Hits != 1 || st.Misses != 1 {
		t.Fatalf("Hits/Misses mismatch: %+v", st)
	}
	if v, _ := s.Get("a"); string(v) != "123++" {
		t.Fatalf("update lost: %q", v)
	}
}
