package mem

import "testing"

func TestRefcountRoundTrip(t *testing.T) {
	pm := NewPhysmem(8)
	pa, ok := pm.RefpgNew()
	if !ok {
		t.Fatal("expected allocation to succeed")
	}
	if pm.Refcnt(pa) != 0 {
		t.Fatalf("fresh frame should start at refcount 0, got %d", pm.Refcnt(pa))
	}
	pm.Refup(pa)
	pm.Refup(pa)
	if got := pm.Refcnt(pa); got != 2 {
		t.Fatalf("refcnt = %d, want 2", got)
	}
	if pm.Refdown(pa) {
		t.Fatal("refdown should not report freed at refcount 1")
	}
	if !pm.Refdown(pa) {
		t.Fatal("refdown should report freed at refcount 0")
	}
}

func TestZeroFill(t *testing.T) {
	pm := NewPhysmem(2)
	pa, _ := pm.RefpgNew()
	b := pm.Bytes(pa)
	for _, x := range b {
		if x != 0 {
			t.Fatalf("RefpgNew page not zeroed")
		}
	}
}

func TestFreelistExhaustion(t *testing.T) {
	pm := NewPhysmem(2)
	if _, ok := pm.RefpgNew(); !ok {
		t.Fatal("expected first alloc to succeed")
	}
	if _, ok := pm.RefpgNew(); !ok {
		t.Fatal("expected second alloc to succeed")
	}
	if _, ok := pm.RefpgNew(); ok {
		t.Fatal("expected third alloc to fail: arena exhausted")
	}
}

func TestFreedFrameIsReused(t *testing.T) {
	pm := NewPhysmem(1)
	pa, _ := pm.RefpgNew()
	pm.Refup(pa)
	pm.Refdown(pa)
	if _, ok := pm.RefpgNew(); !ok {
		t.Fatal("expected freed frame to be reusable")
	}
}
