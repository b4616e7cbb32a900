package downloader

import (
	"testing"
)

func TestRegistryGet(t *testing.T) {
	r := NewRegistry()
	muse := newFakePlatform("muse")
	r.Register(muse)

	got, ok := r.Get("muse")
	if !ok || got != Platform(muse) {
		t.Errorf("Expected registered platform, got %v (ok=%v)", got, ok)
	}

	if _, ok := r.Get("spotify"); ok {
		t.Error("Expected lookup miss for unregistered platform")
	}
}

func TestRegistryMatchFollowsRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	first := newFakePlatform("first")
	second := newFakePlatform("second")
	// both recognize this URL
	second.urlPrefix = first.urlPrefix
	r.Register(first)
	r.Register(second)

	p, parsed := r.Match(first.urlPrefix + "42")
	if p == nil || p.Name() != "first" {
		t.Fatalf("Expected the first registered platform to win, got %v", p)
	}
	if parsed.ID != "42" {
		t.Errorf("Expected ID 42, got %q", parsed.ID)
	}
}

func TestRegistryMatchMiss(t *testing.T) {
	r := NewRegistry()
	r.Register(newFakePlatform("muse"))

	p, parsed := r.Match("https://example.org/not-music")
	if p != nil || parsed != nil {
		t.Errorf("Expected no match, got %v %v", p, parsed)
	}
}

func TestRegistryDuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected duplicate registration to panic")
		}
	}()

	r := NewRegistry()
	r.Register(newFakePlatform("muse"))
	r.Register(newFakePlatform("muse"))
}

func TestRegistryPlatformsIsACopy(t *testing.T) {
	r := NewRegistry()
	r.Register(newFakePlatform("muse"))

	list := r.Platforms()
	list[0] = nil
	if got := r.Platforms(); got[0] == nil {
		t.Error("Expected Platforms to return an independent copy")
	}
}
