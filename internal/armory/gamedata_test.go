package armory

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/armory-kit/armory/internal/cache"
	"github.com/armory-kit/armory/internal/upstream"
)

func gameDataHandler(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/wow/pvp/arena/Ruin/2v2":
		_, _ = w.Write([]byte(`{"arenateam":[{"name":"Team","ranking":1}]}`))
	case "/api/wow/item/38268":
		_, _ = w.Write([]byte(`{"id":38268,"name":"Spare Hand"}`))
	case "/api/wow/quest/13146":
		_, _ = w.Write([]byte(`{"id":13146,"title":"Generosity Abounds"}`))
	case "/api/wow/data/character/races":
		_, _ = w.Write([]byte(`{"races":[{"id":1,"name":"Human"}]}`))
	default:
		http.NotFound(w, r)
	}
}

func TestArenaLadder(t *testing.T) {
	f := newFixture(t, Options{}, upstream.FetcherOptions{}, gameDataHandler)
	ctx := context.Background()

	res, err := f.client.ArenaLadder(ctx, "Ruin", "2", Lookup{})
	if err != nil {
		t.Fatalf("ladder error: %v", err)
	}
	if string(res.Raw) != `{"arenateam":[{"name":"Team","ranking":1}]}` {
		t.Fatalf("unexpected ladder %s", res.Raw)
	}
	if _, err := f.backend.Fetch(ctx, cache.GroupMisc, "eu/ladder/Ruin/2v2"); err != nil {
		t.Fatalf("ladder should be cached in misc: %v", err)
	}
	if _, err := f.client.ArenaLadder(ctx, "Ruin", "4", Lookup{}); !errors.Is(err, ErrInvalidTeamSize) {
		t.Fatalf("expected ErrInvalidTeamSize, got %v", err)
	}
	if _, err := f.client.ArenaLadder(ctx, " ", "2v2", Lookup{}); err == nil {
		t.Fatalf("empty battlegroup should fail")
	}
}

func TestItemAndQuestByID(t *testing.T) {
	f := newFixture(t, Options{}, upstream.FetcherOptions{}, gameDataHandler)
	ctx := context.Background()

	if _, err := f.client.Item(ctx, 38268, Lookup{}); err != nil {
		t.Fatalf("item error: %v", err)
	}
	if _, err := f.client.Quest(ctx, 13146, Lookup{}); err != nil {
		t.Fatalf("quest error: %v", err)
	}
	if _, err := f.backend.Fetch(ctx, cache.GroupMisc, "eu/item/38268"); err != nil {
		t.Fatalf("item should be cached: %v", err)
	}
	if _, err := f.backend.Fetch(ctx, cache.GroupMisc, "eu/quest/13146"); err != nil {
		t.Fatalf("quest should be cached: %v", err)
	}

	// 静态数据缓存一天
	f.clock.Advance(23 * time.Hour)
	if _, err := f.client.Item(ctx, 38268, Lookup{}); err != nil {
		t.Fatalf("item error: %v", err)
	}
	if n := f.count("/api/wow/item/38268"); n != 1 {
		t.Fatalf("item should still be cached, calls=%d", n)
	}

	if _, err := f.client.Item(ctx, 0, Lookup{}); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
	if _, err := ParseID("12a"); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID for non-integer id, got %v", err)
	}
	if id, err := ParseID("38268"); err != nil || id != 38268 {
		t.Fatalf("unexpected id %d %v", id, err)
	}
}

func TestDataResource(t *testing.T) {
	f := newFixture(t, Options{}, upstream.FetcherOptions{}, gameDataHandler)
	ctx := context.Background()

	res, err := f.client.DataResource(ctx, "/Character/Races/", Lookup{})
	if err != nil {
		t.Fatalf("data resource error: %v", err)
	}
	if string(res.Raw) != `{"races":[{"id":1,"name":"Human"}]}` {
		t.Fatalf("unexpected data %s", res.Raw)
	}
	if _, err := f.backend.Fetch(ctx, cache.GroupMisc, "eu/data/character/races"); err != nil {
		t.Fatalf("data resource should be cached: %v", err)
	}
	for _, bad := range []string{"", "character//races", "../realm", "races?x=1"} {
		if _, err := f.client.DataResource(ctx, bad, Lookup{}); !errors.Is(err, ErrInvalidDataResource) {
			t.Fatalf("%q: expected ErrInvalidDataResource, got %v", bad, err)
		}
	}
}
