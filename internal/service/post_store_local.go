package service

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/classboard/internal/kv"
)

const localPostsKey = "bulletin-board-posts"

// LocalPostStore 把全部留言作为一个 JSON 数组保存在单个键下。
// 它没有跨进程的变更通知，Subscribe 只会推送一次当前列表。
type LocalPostStore struct {
	store kv.Store
	opts  PostStoreOptions
	mu    sync.Mutex
}

var _ PostStore = (*LocalPostStore)(nil)

// NewLocalPostStore 构造基于键值存储的留言后端。
func NewLocalPostStore(store kv.Store, opts PostStoreOptions) *LocalPostStore {
	return &LocalPostStore{store: store, opts: opts.withDefaults()}
}

// List 返回按创建时间倒序排列的全部留言。
func (s *LocalPostStore) List(ctx context.Context) ([]Post, error) {
	posts, err := s.fetch(ctx)
	return failSoft(s.opts.Strict, posts, err)
}

func (s *LocalPostStore) fetch(ctx context.Context) ([]Post, error) {
	s.mu.Lock()
	posts, err := s.load(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	sortPostsNewestFirst(posts)
	return posts, nil
}

// Create 校验输入、分配 ID 与时间并把新留言放在列表最前面。
func (s *LocalPostStore) Create(ctx context.Context, input PostInput) (*Post, error) {
	normalized, err := normalizePostInput(input)
	if err != nil {
		return nil, err
	}

	post := Post{
		ID:        s.opts.NewID(),
		Title:     normalized.Title,
		Content:   normalized.Content,
		Author:    normalized.Author,
		CreatedAt: s.opts.Now(),
		Views:     1,
		Replies:   0,
		IsPopular: false,
	}

	s.mu.Lock()
	posts, err := s.load(ctx)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	err = s.save(ctx, append([]Post{post}, posts...))
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	recordAuthorActivity(ctx, s.opts.Activity, post.Author)
	return &post, nil
}

// DeleteOne 删除指定 ID 的留言，不存在时返回 false。
func (s *LocalPostStore) DeleteOne(ctx context.Context, token AdminToken, id string) (bool, error) {
	if !token.Valid() {
		return false, ErrNotAuthorized
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	posts, err := s.load(ctx)
	if err != nil {
		return false, err
	}

	kept := make([]Post, 0, len(posts))
	for _, post := range posts {
		if post.ID != id {
			kept = append(kept, post)
		}
	}
	if len(kept) == len(posts) {
		return false, nil
	}

	if err := s.save(ctx, kept); err != nil {
		return false, err
	}
	return true, nil
}

// DeleteAll 用一次写入清空列表，因此要么全部删除要么全部保留。
func (s *LocalPostStore) DeleteAll(ctx context.Context, token AdminToken) (PurgeResult, error) {
	if !token.Valid() {
		return PurgeResult{}, ErrNotAuthorized
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// 读不到现有 ID 时不写入，否则无法如实报告删除了哪些留言
	posts, err := s.load(ctx)
	if err != nil {
		return PurgeResult{Deleted: []string{}, Failed: []string{}}, err
	}
	ids := make([]string, 0, len(posts))
	for _, post := range posts {
		ids = append(ids, post.ID)
	}

	if err := s.save(ctx, []Post{}); err != nil {
		return PurgeResult{Deleted: []string{}, Failed: ids}, err
	}
	return PurgeResult{Deleted: ids, Failed: []string{}}, nil
}

// Subscribe 只推送一次当前列表，返回的取消函数什么也不做。
func (s *LocalPostStore) Subscribe(ctx context.Context, onUpdate func([]Post), onError func(error)) func() {
	posts, err := s.fetch(ctx)
	if err != nil {
		if onError != nil {
			onError(err)
		}
	} else if onUpdate != nil {
		onUpdate(posts)
	}
	return func() {}
}

// load 读取持久化的列表；数据损坏时记录日志并视为空列表。
func (s *LocalPostStore) load(ctx context.Context) ([]Post, error) {
	raw, ok, err := s.store.Get(ctx, localPostsKey)
	if err != nil {
		return nil, storageFault("load posts", err)
	}
	if !ok || raw == "" {
		return []Post{}, nil
	}

	var posts []Post
	if err := json.Unmarshal([]byte(raw), &posts); err != nil {
		log.Printf("[posts] malformed persisted posts, falling back to empty list: %v", err)
		return []Post{}, nil
	}
	if posts == nil {
		posts = []Post{}
	}
	return posts, nil
}

func (s *LocalPostStore) save(ctx context.Context, posts []Post) error {
	data, err := json.Marshal(posts)
	if err != nil {
		return storageFault("encode posts", err)
	}
	if err := s.store.Set(ctx, localPostsKey, string(data)); err != nil {
		return storageFault("save posts", err)
	}
	return nil
}
