// Package memkv is a sharded in-memory key/value store with per-key TTLs. It
// backs the in-process instance registry.
package memkv

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Options struct {
	Shards        int           // default 64
	SweepInterval time.Duration // how often expired keys are reclaimed; default 1s
}

func (o Options) withDefaults() Options {
	if o.Shards <= 0 {
		o.Shards = 64
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = time.Second
	}
	return o
}

// Store is safe for concurrent use. Values are copied on the way in and out.
type Store struct {
	shards  []shard
	nowFn   func() time.Time
	closeCh chan struct{}
	wg      sync.WaitGroup
	once    sync.Once

	mKeys    atomic.Int64
	mSets    atomic.Uint64
	mHits    atomic.Uint64
	mMisses  atomic.Uint64
	mDels    atomic.Uint64
	mExpired atomic.Uint64
}

type shard struct {
	mu sync.RWMutex
	m  map[string]*entry
}

type entry struct {
	val      []byte
	expireAt int64 // unix nano; 0 = never
}

func (e *entry) expired(now int64) bool { return e.expireAt != 0 && e.expireAt <= now }

func New(opts Options) *Store {
	opts = opts.withDefaults()
	s := &Store{
		shards:  make([]shard, opts.Shards),
		nowFn:   time.Now,
		closeCh: make(chan struct{}),
	}
	for i := range s.shards {
		s.shards[i].m = make(map[string]*entry)
	}
	s.wg.Add(1)
	go s.sweeper(opts.SweepInterval)
	return s
}

// Close stops the background sweeper.
func (s *Store) Close() {
	s.once.Do(func() { close(s.closeCh) })
	s.wg.Wait()
}

func (s *Store) shardFor(key string) *shard {
	// FNV-1a
	var h uint64 = 1469598103934665603
	for i := 0; i < len(key); i++ {
		h ^= uint64(key[i])
		h *= 1099511628211
	}
	return &s.shards[h%uint64(len(s.shards))]
}

func (s *Store) deadline(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return s.nowFn().Add(ttl).UnixNano()
}

// Set stores val under key. A ttl of zero keeps it until deleted. It reports
// whether the key was newly created.
func (s *Store) Set(key string, val []byte, ttl time.Duration) bool {
	e := &entry{val: append([]byte(nil), val...), expireAt: s.deadline(ttl)}
	now := s.nowFn().UnixNano()
	sh := s.shardFor(key)
	sh.mu.Lock()
	prev, existed := sh.m[key]
	if existed && prev.expired(now) {
		existed = false
		s.mExpired.Add(1)
		s.mKeys.Add(-1)
	}
	sh.m[key] = e
	sh.mu.Unlock()
	if !existed {
		s.mKeys.Add(1)
	}
	s.mSets.Add(1)
	return !existed
}

// Get returns a copy of the value under key.
func (s *Store) Get(key string) ([]byte, bool) {
	now := s.nowFn().UnixNano()
	sh := s.shardFor(key)
	sh.mu.RLock()
	e, ok := sh.m[key]
	var out []byte
	live := ok && !e.expired(now)
	if live {
		out = append([]byte(nil), e.val...)
	}
	sh.mu.RUnlock()
	if !live {
		s.mMisses.Add(1)
		return nil, false
	}
	s.mHits.Add(1)
	return out, true
}

// Update replaces the value under key with fn(old) if the key is live,
// keeping its TTL. It reports whether an update happened.
func (s *Store) Update(key string, fn func(old []byte) []byte) bool {
	now := s.nowFn().UnixNano()
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.m[key]
	if !ok || e.expired(now) {
		return false
	}
	e.val = append([]byte(nil), fn(e.val)...)
	return true
}

// Delete removes key and reports whether it was live.
func (s *Store) Delete(key string) bool {
	now := s.nowFn().UnixNano()
	sh := s.shardFor(key)
	sh.mu.Lock()
	e, ok := sh.m[key]
	if ok {
		delete(sh.m, key)
	}
	sh.mu.Unlock()
	if !ok {
		return false
	}
	s.mKeys.Add(-1)
	if e.expired(now) {
		s.mExpired.Add(1)
		return false
	}
	s.mDels.Add(1)
	return true
}

// Expire sets a new TTL on a live key. A ttl of zero or less deletes it.
func (s *Store) Expire(key string, ttl time.Duration) bool {
	if ttl <= 0 {
		return s.Delete(key)
	}
	now := s.nowFn().UnixNano()
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.m[key]
	if !ok || e.expired(now) {
		return false
	}
	e.expireAt = s.deadline(ttl)
	return true
}

// TTL returns the remaining lifetime of key; zero with ok means no expiry.
func (s *Store) TTL(key string) (time.Duration, bool) {
	now := s.nowFn().UnixNano()
	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	e, ok := sh.m[key]
	if !ok || e.expired(now) {
		return 0, false
	}
	if e.expireAt == 0 {
		return 0, true
	}
	return time.Duration(e.expireAt - now), true
}

// Keys returns the live keys starting with prefix, in no particular order.
func (s *Store) Keys(prefix string) []string {
	now := s.nowFn().UnixNano()
	var out []string
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for k, e := range sh.m {
			if strings.HasPrefix(k, prefix) && !e.expired(now) {
				out = append(out, k)
			}
		}
		sh.mu.RUnlock()
	}
	return out
}

// Stats is a snapshot of store counters.
type Stats struct {
	Keys    int64
	Sets    uint64
	Hits    uint64
	Misses  uint64
	Dels    uint64
	Expired uint64
}

func (s *Store) Metrics() Stats {
	return Stats{
		Keys:    s.mKeys.Load(),
		Sets:    s.mSets.Load(),
		Hits:    s.mHits.Load(),
		Misses:  s.mMisses.Load(),
		Dels:    s.mDels.Load(),
		Expired: s.mExpired.Load(),
	}
}

func (s *Store) sweeper(every time.Duration) {
	defer s.wg.Done()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-s.closeCh:
			return
		case <-t.C:
			s.sweep()
		}
	}
}

func (s *Store) sweep() {
	now := s.nowFn().UnixNano()
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for k, e := range sh.m {
			if e.expired(now) {
				delete(sh.m, k)
				s.mKeys.Add(-1)
				s.mExpired.Add(1)
			}
		}
		sh.mu.Unlock()
	}
}
