package prefs

import "strings"

// DefaultRetainKeys is the number of application keys kept by eviction.
const DefaultRetainKeys = 10

// EvictionPolicy picks the keys to remove from the current key list.
// Implementations must be pure: the same input yields the same output.
type EvictionPolicy interface {
	Select(keys []string) []string
}

// EvictionFunc adapts a function to EvictionPolicy.
type EvictionFunc func(keys []string) []string

// Select implements EvictionPolicy.
func (f EvictionFunc) Select(keys []string) []string {
	return f(keys)
}

// PrefixRetention evicts keys outside the application prefix first, then
// the oldest application keys beyond Retain. Keys are assumed oldest first.
type PrefixRetention struct {
	Prefix string
	Retain int

	// EvictForeign allows removal of keys that do not carry Prefix.
	// In a store shared with other consumers this deletes their data.
	EvictForeign bool
}

// Select implements EvictionPolicy.
func (p PrefixRetention) Select(keys []string) []string {
	var own, foreign []string
	for _, k := range keys {
		if strings.HasPrefix(k, p.Prefix) {
			own = append(own, k)
		} else {
			foreign = append(foreign, k)
		}
	}

	var victims []string
	if p.EvictForeign {
		victims = append(victims, foreign...)
	}
	retain := p.Retain
	if retain < 0 {
		retain = 0
	}
	if len(own) > retain {
		victims = append(victims, own[:len(own)-retain]...)
	}
	return victims
}

var _ EvictionPolicy = PrefixRetention{}
