package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"

	"github.com/concertbot/server/internal/agent/model"
	errx "github.com/concertbot/server/internal/core/error"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func conversationRepos(t *testing.T, limit int) map[string]model.ConversationRepository {
	_, rdb := newRedis(t)
	return map[string]model.ConversationRepository{
		"redis":  NewRedisConversationRepository(rdb, time.Minute, limit),
		"memory": NewMemoryConversationRepository(limit),
	}
}

func TestConversationHistoryIsCapped(t *testing.T) {
	ctx := context.Background()
	for name, r := range conversationRepos(t, 10) {
		for i := range 12 {
			if err := r.AddMessage(ctx, "s1", schema.UserMessage(fmt.Sprintf("m%d", i))); err != nil {
				t.Fatalf("%s: AddMessage: %v", name, err)
			}
		}
		h, err := r.LoadHistory(ctx, "s1")
		if err != nil {
			t.Fatalf("%s: LoadHistory: %v", name, err)
		}
		if len(h.Messages) != 10 || h.Messages[0].Content != "m2" || h.Messages[9].Content != "m11" {
			t.Fatalf("%s: got %d messages, first=%q", name, len(h.Messages), h.Messages[0].Content)
		}
		n, err := r.GetMessageCount(ctx, "s1")
		if err != nil || n != 10 {
			t.Fatalf("%s: count=%d err=%v", name, n, err)
		}

		if err := r.ClearHistory(ctx, "s1"); err != nil {
			t.Fatalf("%s: ClearHistory: %v", name, err)
		}
		h, _ = r.LoadHistory(ctx, "s1")
		if len(h.Messages) != 0 {
			t.Fatalf("%s: history not cleared", name)
		}
	}
}

func TestConversationKeepsRoles(t *testing.T) {
	ctx := context.Background()
	for name, r := range conversationRepos(t, 10) {
		_ = r.AddMessage(ctx, "s1", schema.UserMessage("hi"))
		_ = r.AddMessage(ctx, "s1", schema.AssistantMessage("hello", nil))
		h, _ := r.LoadHistory(ctx, "s1")
		if len(h.Messages) != 2 || h.Messages[0].Role != schema.User || h.Messages[1].Role != schema.Assistant {
			t.Fatalf("%s: unexpected history %+v", name, h.Messages)
		}
	}
}

func TestRedisConversationTTL(t *testing.T) {
	mr, rdb := newRedis(t)
	r := NewRedisConversationRepository(rdb, time.Minute, 10)
	_ = r.AddMessage(context.Background(), "s1", schema.UserMessage("hi"))
	if ttl := mr.TTL("session:s1:messages"); ttl != time.Minute {
		t.Fatalf("ttl = %v", ttl)
	}
}

func TestSessionRepositories(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newRedis(t)
	repos := map[string]model.SessionRepository{
		"redis":  NewRedisSessionRepository(rdb, time.Minute),
		"memory": NewMemorySessionRepository(),
	}
	for name, r := range repos {
		if _, err := r.Get(ctx, "missing"); !errors.Is(err, errx.ErrSessionNotFound) {
			t.Fatalf("%s: Get missing: %v", name, err)
		}

		s := &model.Session{ID: "s1", Stage: model.StageAwaitingName, DefaultLocation: model.Location{City: "Denver", Country: "United States"}}
		if err := r.Save(ctx, s); err != nil {
			t.Fatalf("%s: Save: %v", name, err)
		}
		s.CollectName("Bob")
		if err := r.Save(ctx, s); err != nil {
			t.Fatalf("%s: Save: %v", name, err)
		}

		got, err := r.Get(ctx, "s1")
		if err != nil {
			t.Fatalf("%s: Get: %v", name, err)
		}
		if got.UserName != "Bob" || !got.NameCollected() || got.DefaultLocation.City != "Denver" {
			t.Fatalf("%s: got %+v", name, got)
		}

		if err := r.Delete(ctx, "s1"); err != nil {
			t.Fatalf("%s: Delete: %v", name, err)
		}
		if _, err := r.Get(ctx, "s1"); !errors.Is(err, errx.ErrSessionNotFound) {
			t.Fatalf("%s: Get after delete: %v", name, err)
		}
	}
	if mr.Exists("session:s1") {
		t.Fatal("redis key survived Delete")
	}
}

func TestRedisConcertCacheWriteOnce(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newRedis(t)
	c := NewRedisConcertCache(rdb, time.Minute)
	key := model.NewQueryKey(model.QueryByGenre, "Chicago", "Rock", "")

	if _, ok, err := c.Get(ctx, "s1", key); ok || err != nil {
		t.Fatalf("empty cache: ok=%v err=%v", ok, err)
	}
	_ = c.Put(ctx, "s1", key, []model.ConcertRecord{{Name: "first"}})
	_ = c.Put(ctx, "s1", key, []model.ConcertRecord{{Name: "second"}})

	recs, ok, err := c.Get(ctx, "s1", key)
	if err != nil || !ok || len(recs) != 1 || recs[0].Name != "first" {
		t.Fatalf("got %v ok=%v err=%v", recs, ok, err)
	}
	if mr.HGet("session:s1:concerts", "genre:rock:chicago") == "" {
		t.Fatalf("unexpected keys %v", mr.Keys())
	}

	other := model.NewQueryKey(model.QueryByCity, "Chicago", "", "")
	_ = c.Put(ctx, "s2", other, []model.ConcertRecord{{Name: "kept"}})

	if err := c.Forget(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := c.Get(ctx, "s1", key); ok {
		t.Fatal("entry survived Forget")
	}
	if _, ok, _ := c.Get(ctx, "s2", other); !ok {
		t.Fatal("Forget dropped another session's entry")
	}
}

func TestRedisConcertCacheLivesWithSession(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newRedis(t)
	ttl := 30 * time.Minute
	sessions := NewRedisSessionRepository(rdb, ttl)
	c := NewRedisConcertCache(rdb, ttl)
	key := model.NewQueryKey(model.QueryByCity, "Chicago", "", "")

	s := &model.Session{ID: "s1", Stage: model.StageConversing}
	if err := sessions.Save(ctx, s); err != nil {
		t.Fatal(err)
	}
	if err := c.Put(ctx, "s1", key, []model.ConcertRecord{{Name: "first"}}); err != nil {
		t.Fatal(err)
	}

	// four turns, ten minutes apart
	for range 4 {
		mr.FastForward(10 * time.Minute)
		if err := sessions.Save(ctx, s); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := sessions.Get(ctx, "s1"); err != nil {
		t.Fatalf("session expired: %v", err)
	}
	recs, ok, err := c.Get(ctx, "s1", key)
	if err != nil || !ok || recs[0].Name != "first" {
		t.Fatalf("cache entry expired while the session was active: ok=%v err=%v", ok, err)
	}

	mr.FastForward(ttl + time.Second)
	if mr.Exists("session:s1") || mr.Exists("session:s1:concerts") {
		t.Fatalf("keys outlived the session: %v", mr.Keys())
	}
}

func TestMemorySessionIdleSince(t *testing.T) {
	ctx := context.Background()
	r := NewMemorySessionRepository()
	base := time.Date(2025, 3, 12, 12, 0, 0, 0, time.UTC)

	r.now = func() time.Time { return base }
	_ = r.Save(ctx, &model.Session{ID: "old"})
	r.now = func() time.Time { return base.Add(10 * time.Minute) }
	_ = r.Save(ctx, &model.Session{ID: "fresh"})

	ids := r.IdleSince(base.Add(5 * time.Minute))
	if len(ids) != 1 || ids[0] != "old" {
		t.Fatalf("idle = %v", ids)
	}

	r.now = func() time.Time { return base.Add(20 * time.Minute) }
	_ = r.Save(ctx, &model.Session{ID: "old"})
	if ids := r.IdleSince(base.Add(15 * time.Minute)); len(ids) != 1 || ids[0] != "fresh" {
		t.Fatalf("saving should refresh the session, idle = %v", ids)
	}
}
