package indexer

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestIndexCache_fresh(t *testing.T) {
	c := newIndexCache(4, time.Hour, zap.NewNop())
	snap := &snapshot{manifest: manifest{Revision: 1}}

	if _, ok := c.fresh("p", time.Minute); ok {
		t.Fatal("empty cache reported a fresh snapshot")
	}
	c.put("p", snap)
	if got, ok := c.fresh("p", time.Minute); !ok || got != snap {
		t.Fatalf("fresh after put = %v, %v", got, ok)
	}
	if _, ok := c.fresh("p", 0); ok {
		t.Error("zero window must always revalidate")
	}

	c.verified["p"] = time.Now().Add(-2 * time.Minute)
	if _, ok := c.fresh("p", time.Minute); ok {
		t.Error("snapshot verified outside the window reported fresh")
	}
	c.markVerified("p")
	if _, ok := c.fresh("p", time.Minute); !ok {
		t.Error("markVerified did not renew the window")
	}

	c.remove("p")
	if _, ok := c.fresh("p", time.Minute); ok {
		t.Error("removed snapshot reported fresh")
	}
	c.markVerified("p")
	if _, ok := c.verified["p"]; ok {
		t.Error("markVerified recorded a project that is not cached")
	}
}

func TestIndexCache_putIfNewerKeepsLaterRevision(t *testing.T) {
	c := newIndexCache(4, time.Hour, zap.NewNop())
	newer := &snapshot{manifest: manifest{Revision: 3}}
	c.put("p", newer)
	c.putIfNewer("p", &snapshot{manifest: manifest{Revision: 2}})
	if got, _ := c.get("p"); got != newer {
		t.Errorf("stale publish replaced revision 3 with %d", got.manifest.Revision)
	}
}
