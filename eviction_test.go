package prefs

import (
	"fmt"
	"reflect"
	"testing"
)

func TestPrefixRetention_ForeignFirstThenOldest(t *testing.T) {
	keys := []string{"other_a"}
	for i := 0; i < 12; i++ {
		keys = append(keys, fmt.Sprintf("app_%02d", i))
	}
	keys = append(keys, "other_b")

	got := PrefixRetention{Prefix: "app_", Retain: 10, EvictForeign: true}.Select(keys)
	want := []string{"other_a", "other_b", "app_00", "app_01"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestPrefixRetention_KeepsForeignWhenDisabled(t *testing.T) {
	keys := []string{"other", "app_1", "app_2", "app_3"}
	got := PrefixRetention{Prefix: "app_", Retain: 2}.Select(keys)
	if !reflect.DeepEqual(got, []string{"app_1"}) {
		t.Errorf("expected [app_1], got %v", got)
	}
}

func TestPrefixRetention_UnderRetention(t *testing.T) {
	got := PrefixRetention{Prefix: "app_", Retain: 10}.Select([]string{"app_1", "app_2"})
	if len(got) != 0 {
		t.Errorf("expected nothing evicted, got %v", got)
	}
}

func TestPrefixRetention_NegativeRetainEvictsAll(t *testing.T) {
	got := PrefixRetention{Prefix: "app_", Retain: -1}.Select([]string{"app_1", "app_2"})
	if !reflect.DeepEqual(got, []string{"app_1", "app_2"}) {
		t.Errorf("expected all app keys, got %v", got)
	}
}

func TestPrefixRetention_Pure(t *testing.T) {
	keys := []string{"x", "app_1", "app_2"}
	p := PrefixRetention{Prefix: "app_", Retain: 1, EvictForeign: true}
	first := p.Select(keys)
	if !reflect.DeepEqual(p.Select(keys), first) {
		t.Error("expected same selection for same input")
	}
	if !reflect.DeepEqual(keys, []string{"x", "app_1", "app_2"}) {
		t.Errorf("expected input untouched, got %v", keys)
	}
}

func TestEvictionFunc(t *testing.T) {
	var p EvictionPolicy = EvictionFunc(func(keys []string) []string { return keys[:1] })
	if got := p.Select([]string{"a", "b"}); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("expected [a], got %v", got)
	}
}
