package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/classboard/internal/kv"
)

var errBoom = errors.New("boom")

// faultyStore 在 MemoryStore 之上按需注入读写错误。
type faultyStore struct {
	*kv.MemoryStore
	failGet bool
	failSet bool
}

func (s *faultyStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s.failGet {
		return "", false, errBoom
	}
	return s.MemoryStore.Get(ctx, key)
}

func (s *faultyStore) Set(ctx context.Context, key, value string) error {
	if s.failSet {
		return errBoom
	}
	return s.MemoryStore.Set(ctx, key, value)
}

type activityRecorderStub struct {
	mu    sync.Mutex
	names []string
	err   error
}

func (a *activityRecorderStub) RecordUserActivity(_ context.Context, identity string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.names = append(a.names, identity)
	return a.err
}

// steppingClock 每次调用前进一秒。
func steppingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := current
		current = current.Add(time.Second)
		return now
	}
}

func adminToken(t *testing.T) AdminToken {
	t.Helper()
	ctx := context.Background()
	gate := NewSessionGate(kv.NewMemoryStore(), kv.NewMemoryStore(), "")
	if !gate.Login(ctx, DefaultAdminPassword) {
		t.Fatal("login failed")
	}
	token, err := gate.Authorize(ctx)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	return token
}

func TestLocalPostStore_CreateAssignsFieldsAndRecordsActivity(t *testing.T) {
	ctx := context.Background()
	activity := &activityRecorderStub{}
	base := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	store := NewLocalPostStore(kv.NewMemoryStore(), PostStoreOptions{
		Activity: activity,
		Now:      func() time.Time { return base },
	})

	post, err := store.Create(ctx, PostInput{Content: "  hi  ", Author: " alice "})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if post.ID == "" {
		t.Fatal("expected id to be assigned")
	}
	if !post.CreatedAt.Equal(base) {
		t.Fatalf("expected createdAt %v, got %v", base, post.CreatedAt)
	}
	if post.Views != 1 || post.IsPopular {
		t.Fatalf("expected views=1 isPopular=false, got views=%d isPopular=%v", post.Views, post.IsPopular)
	}
	if post.Content != "hi" || post.Author != "alice" || post.Title != DefaultPostTitle {
		t.Fatalf("unexpected normalized fields: %+v", post)
	}
	if len(activity.names) != 1 || activity.names[0] != "alice" {
		t.Fatalf("expected activity recorded for alice, got %v", activity.names)
	}

	posts, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(posts) != 1 || posts[0].ID != post.ID || posts[0].CreatedAt.IsZero() {
		t.Fatalf("expected created post in list, got %+v", posts)
	}
}

func TestLocalPostStore_CreateRejectsBlankFields(t *testing.T) {
	ctx := context.Background()
	activity := &activityRecorderStub{}
	backing := kv.NewMemoryStore()
	store := NewLocalPostStore(backing, PostStoreOptions{Activity: activity})

	cases := []PostInput{
		{Content: "   ", Author: "alice"},
		{Content: "hi", Author: "\t\n"},
		{Content: "<b></b>", Author: "bob"},
	}
	for _, input := range cases {
		if _, err := store.Create(ctx, input); !errors.Is(err, ErrInvalidPost) {
			t.Fatalf("expected ErrInvalidPost for %+v, got %v", input, err)
		}
	}

	if _, ok, _ := backing.Get(ctx, localPostsKey); ok {
		t.Fatal("rejected posts must not reach the store")
	}
	if len(activity.names) != 0 {
		t.Fatalf("activity must not be recorded for rejected posts, got %v", activity.names)
	}
}

func TestLocalPostStore_CreateStripsMarkup(t *testing.T) {
	store := NewLocalPostStore(kv.NewMemoryStore(), PostStoreOptions{})

	post, err := store.Create(context.Background(), PostInput{Content: "<b>great</b> class & fun", Author: "<i>bob</i>"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if post.Content != "great class & fun" {
		t.Fatalf("unexpected content %q", post.Content)
	}
	if post.Author != "bob" {
		t.Fatalf("unexpected author %q", post.Author)
	}
}

func TestLocalPostStore_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewLocalPostStore(kv.NewMemoryStore(), PostStoreOptions{
		Now: steppingClock(time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)),
	})

	var created []*Post
	for i := 0; i < 5; i++ {
		post, err := store.Create(ctx, PostInput{Content: fmt.Sprintf("post %d", i), Author: "alice"})
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		created = append(created, post)
	}

	posts, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(posts) != len(created) {
		t.Fatalf("expected %d posts, got %d", len(created), len(posts))
	}
	for i := range posts {
		want := created[len(created)-1-i]
		if posts[i].ID != want.ID {
			t.Fatalf("position %d: expected %s, got %s", i, want.Content, posts[i].Content)
		}
		if i > 0 && posts[i].CreatedAt.After(posts[i-1].CreatedAt) {
			t.Fatalf("list not in descending createdAt order at %d", i)
		}
	}
}

func TestLocalPostStore_TiesKeepLatestInsertFirst(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	store := NewLocalPostStore(kv.NewMemoryStore(), PostStoreOptions{
		Now: func() time.Time { return fixed },
	})

	a, err := store.Create(ctx, PostInput{Content: "hi", Author: "alice"})
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	b, err := store.Create(ctx, PostInput{Content: "yo", Author: "bob"})
	if err != nil {
		t.Fatalf("create b: %v", err)
	}

	posts, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(posts) != 2 || posts[0].ID != b.ID || posts[1].ID != a.ID {
		t.Fatalf("expected [B, A], got %+v", posts)
	}
}

func TestLocalPostStore_DeleteOne(t *testing.T) {
	ctx := context.Background()
	store := NewLocalPostStore(kv.NewMemoryStore(), PostStoreOptions{
		Now: steppingClock(time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)),
	})
	token := adminToken(t)

	a, _ := store.Create(ctx, PostInput{Content: "a", Author: "alice"})
	b, _ := store.Create(ctx, PostInput{Content: "b", Author: "bob"})
	c, _ := store.Create(ctx, PostInput{Content: "c", Author: "carol"})

	deleted, err := store.DeleteOne(ctx, token, "missing")
	if err != nil || deleted {
		t.Fatalf("expected (false, nil) for missing id, got (%v, %v)", deleted, err)
	}
	posts, _ := store.List(ctx)
	if len(posts) != 3 {
		t.Fatalf("missing id must leave list unchanged, got %d posts", len(posts))
	}

	deleted, err = store.DeleteOne(ctx, token, b.ID)
	if err != nil || !deleted {
		t.Fatalf("expected (true, nil), got (%v, %v)", deleted, err)
	}
	deleted, err = store.DeleteOne(ctx, token, b.ID)
	if err != nil || deleted {
		t.Fatalf("second delete should return (false, nil), got (%v, %v)", deleted, err)
	}

	posts, _ = store.List(ctx)
	if len(posts) != 2 || posts[0].ID != c.ID || posts[1].ID != a.ID {
		t.Fatalf("expected [c, a] to remain, got %+v", posts)
	}
}

func TestLocalPostStore_MutationsRequireAdminToken(t *testing.T) {
	ctx := context.Background()
	store := NewLocalPostStore(kv.NewMemoryStore(), PostStoreOptions{})
	post, err := store.Create(ctx, PostInput{Content: "hi", Author: "alice"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := store.DeleteOne(ctx, AdminToken{}, post.ID); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if _, err := store.DeleteAll(ctx, AdminToken{}); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}

	posts, _ := store.List(ctx)
	if len(posts) != 1 {
		t.Fatalf("unauthorized calls must not change the list, got %d posts", len(posts))
	}
}

func TestLocalPostStore_DeleteAll(t *testing.T) {
	ctx := context.Background()
	store := NewLocalPostStore(kv.NewMemoryStore(), PostStoreOptions{})
	token := adminToken(t)

	a, _ := store.Create(ctx, PostInput{Content: "hi", Author: "alice"})
	b, _ := store.Create(ctx, PostInput{Content: "yo", Author: "bob"})

	result, err := store.DeleteAll(ctx, token)
	if err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if len(result.Deleted) != 2 || len(result.Failed) != 0 {
		t.Fatalf("unexpected purge result %+v", result)
	}
	seen := map[string]bool{}
	for _, id := range result.Deleted {
		seen[id] = true
	}
	if !seen[a.ID] || !seen[b.ID] {
		t.Fatalf("expected both ids reported, got %v", result.Deleted)
	}

	posts, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(posts) != 0 {
		t.Fatalf("expected empty list, got %d posts", len(posts))
	}
}

func TestLocalPostStore_DeleteAllKeepsPostsWhenReadFails(t *testing.T) {
	ctx := context.Background()
	backing := &faultyStore{MemoryStore: kv.NewMemoryStore()}
	store := NewLocalPostStore(backing, PostStoreOptions{Strict: true})

	if _, err := store.Create(ctx, PostInput{Content: "hi", Author: "alice"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	backing.failGet = true
	result, err := store.DeleteAll(ctx, adminToken(t))
	if !errors.Is(err, ErrStorageFault) || !errors.Is(err, errBoom) {
		t.Fatalf("expected wrapped storage fault, got %v", err)
	}
	if len(result.Deleted) != 0 || len(result.Failed) != 0 {
		t.Fatalf("expected empty purge result, got %+v", result)
	}

	backing.failGet = false
	posts, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("failed purge must keep stored posts, got %d", len(posts))
	}
}

func TestLocalPostStore_ListFailSoftAndStrict(t *testing.T) {
	ctx := context.Background()
	backing := &faultyStore{MemoryStore: kv.NewMemoryStore(), failGet: true}

	soft := NewLocalPostStore(backing, PostStoreOptions{})
	posts, err := soft.List(ctx)
	if err != nil {
		t.Fatalf("soft list should swallow faults, got %v", err)
	}
	if posts == nil || len(posts) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", posts)
	}

	strict := NewLocalPostStore(backing, PostStoreOptions{Strict: true})
	if _, err := strict.List(ctx); !errors.Is(err, ErrStorageFault) || !errors.Is(err, errBoom) {
		t.Fatalf("expected wrapped storage fault, got %v", err)
	}
}

func TestLocalPostStore_CreateSurfacesWriteFault(t *testing.T) {
	ctx := context.Background()
	activity := &activityRecorderStub{}
	backing := &faultyStore{MemoryStore: kv.NewMemoryStore(), failSet: true}
	store := NewLocalPostStore(backing, PostStoreOptions{Activity: activity})

	if _, err := store.Create(ctx, PostInput{Content: "hi", Author: "alice"}); !errors.Is(err, ErrStorageFault) {
		t.Fatalf("expected ErrStorageFault, got %v", err)
	}
	if len(activity.names) != 0 {
		t.Fatal("activity must not be recorded when the write fails")
	}
}

func TestLocalPostStore_CreateIgnoresActivityFailure(t *testing.T) {
	store := NewLocalPostStore(kv.NewMemoryStore(), PostStoreOptions{Activity: &activityRecorderStub{err: errBoom}})

	if _, err := store.Create(context.Background(), PostInput{Content: "hi", Author: "alice"}); err != nil {
		t.Fatalf("activity failure must not fail create, got %v", err)
	}
}

func TestLocalPostStore_MalformedJSONFallsBackToEmpty(t *testing.T) {
	ctx := context.Background()
	backing := kv.NewMemoryStore()
	if err := backing.Set(ctx, localPostsKey, "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	store := NewLocalPostStore(backing, PostStoreOptions{Strict: true})

	posts, err := store.List(ctx)
	if err != nil {
		t.Fatalf("parse faults must not propagate, got %v", err)
	}
	if len(posts) != 0 {
		t.Fatalf("expected empty list, got %d", len(posts))
	}

	if _, err := store.Create(ctx, PostInput{Content: "hi", Author: "alice"}); err != nil {
		t.Fatalf("create after malformed data: %v", err)
	}
	posts, _ = store.List(ctx)
	if len(posts) != 1 {
		t.Fatalf("expected store to recover with one post, got %d", len(posts))
	}
}

func TestLocalPostStore_PersistedDatesRoundTrip(t *testing.T) {
	ctx := context.Background()
	backing := kv.NewMemoryStore()
	created := time.Date(2026, 10, 16, 9, 30, 15, 0, time.UTC)
	writer := NewLocalPostStore(backing, PostStoreOptions{Now: func() time.Time { return created }})
	if _, err := writer.Create(ctx, PostInput{Content: "hi", Author: "alice"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	reader := NewLocalPostStore(backing, PostStoreOptions{})
	posts, err := reader.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(posts) != 1 || !posts[0].CreatedAt.Equal(created) {
		t.Fatalf("expected createdAt %v after reload, got %+v", created, posts)
	}
}

func TestLocalPostStore_SubscribeDeliversOnce(t *testing.T) {
	ctx := context.Background()
	store := NewLocalPostStore(kv.NewMemoryStore(), PostStoreOptions{})
	if _, err := store.Create(ctx, PostInput{Content: "hi", Author: "alice"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	calls := 0
	var last []Post
	unsubscribe := store.Subscribe(ctx, func(posts []Post) {
		calls++
		last = posts
	}, func(err error) {
		t.Fatalf("unexpected error: %v", err)
	})

	if calls != 1 || len(last) != 1 {
		t.Fatalf("expected one initial snapshot with 1 post, got calls=%d posts=%d", calls, len(last))
	}

	if _, err := store.Create(ctx, PostInput{Content: "yo", Author: "bob"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if calls != 1 {
		t.Fatalf("local backend must not push further updates, got %d calls", calls)
	}

	unsubscribe()
	unsubscribe()
}

func TestLocalPostStore_SubscribeReportsReadFault(t *testing.T) {
	backing := &faultyStore{MemoryStore: kv.NewMemoryStore(), failGet: true}
	store := NewLocalPostStore(backing, PostStoreOptions{})

	var got error
	store.Subscribe(context.Background(), func([]Post) {
		t.Fatal("onUpdate must not be called on fault")
	}, func(err error) {
		got = err
	})
	if !errors.Is(got, ErrStorageFault) {
		t.Fatalf("expected ErrStorageFault via onError, got %v", got)
	}
}
