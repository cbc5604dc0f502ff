package config

import (
	"sync/atomic"
)

// Store holds [Settings], for concurrent use. Readers always observe a
// consistent snapshot.
type Store struct {
	v atomic.Pointer[Settings]
}

// NewStore initialises a store with s.
func NewStore(s Settings) *Store {
	x := new(Store)
	x.v.Store(&s)
	return x
}

// Get returns the current settings. A nil store has zero settings.
func (x *Store) Get() Settings {
	if x == nil {
		return Settings{}
	}
	if s := x.v.Load(); s != nil {
		return *s
	}
	return Settings{}
}

// Set replaces the settings, returning the previous value.
func (x *Store) Set(s Settings) Settings {
	if prev := x.v.Swap(&s); prev != nil {
		return *prev
	}
	return Settings{}
}

// Update atomically modifies the settings, returning the previous value.
func (x *Store) Update(fn func(s *Settings)) Settings {
	for {
		prev := x.v.Load()
		var next Settings
		if prev != nil {
			next = *prev
		}
		fn(&next)
		if x.v.CompareAndSwap(prev, &next) {
			if prev == nil {
				return Settings{}
			}
			return *prev
		}
	}
}
