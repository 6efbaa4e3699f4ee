package service

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// postDocument 是留言在 MongoDB 中的文档结构。
type postDocument struct {
	ID        string    `bson:"_id"`
	Title     string    `bson:"title"`
	Content   string    `bson:"content"`
	Author    string    `bson:"author"`
	CreatedAt time.Time `bson:"createdAt"`
	Views     int       `bson:"views"`
	Replies   int       `bson:"replies"`
	IsPopular bool      `bson:"isPopular"`
}

func (d postDocument) toPost() Post {
	return Post{
		ID:        d.ID,
		Title:     d.Title,
		Content:   d.Content,
		Author:    d.Author,
		CreatedAt: d.CreatedAt,
		Views:     d.Views,
		Replies:   d.Replies,
		IsPopular: d.IsPopular,
	}
}

// MongoPostStore 把每条留言保存为 posts 集合中的一个文档。
// createdAt 由服务器赋值；Subscribe 通过 change stream 推送变更。
type MongoPostStore struct {
	coll *mongo.Collection
	opts PostStoreOptions
}

var _ PostStore = (*MongoPostStore)(nil)

// NewMongoPostStore 构造基于 MongoDB 集合的留言后端。
func NewMongoPostStore(coll *mongo.Collection, opts PostStoreOptions) *MongoPostStore {
	return &MongoPostStore{coll: coll, opts: opts.withDefaults()}
}

var newestFirstSort = bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}

// List 查询全部留言，按 createdAt 倒序，时间相同时 ID 较大（较新）的在前。
func (s *MongoPostStore) List(ctx context.Context) ([]Post, error) {
	posts, err := s.fetch(ctx)
	return failSoft(s.opts.Strict, posts, err)
}

func (s *MongoPostStore) fetch(ctx context.Context) ([]Post, error) {
	cursor, err := s.coll.Find(ctx, bson.D{}, options.Find().SetSort(newestFirstSort))
	if err != nil {
		return nil, storageFault("find posts", err)
	}
	defer cursor.Close(ctx)

	var docs []postDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, storageFault("decode posts", err)
	}

	posts := make([]Post, 0, len(docs))
	for _, doc := range docs {
		posts = append(posts, doc.toPost())
	}
	sortPostsNewestFirst(posts)
	return posts, nil
}

// Create 用一次 upsert 写入新文档，createdAt 取服务器时间 $$NOW，并返回写入后的文档。
func (s *MongoPostStore) Create(ctx context.Context, input PostInput) (*Post, error) {
	normalized, err := normalizePostInput(input)
	if err != nil {
		return nil, err
	}

	id := s.opts.NewID()
	// 用户输入包在 $literal 里，避免以 $ 开头的文本被当成字段路径
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "title", Value: bson.D{{Key: "$literal", Value: normalized.Title}}},
			{Key: "content", Value: bson.D{{Key: "$literal", Value: normalized.Content}}},
			{Key: "author", Value: bson.D{{Key: "$literal", Value: normalized.Author}}},
			{Key: "createdAt", Value: "$$NOW"},
			{Key: "views", Value: 1},
			{Key: "replies", Value: 0},
			{Key: "isPopular", Value: false},
		}}},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var doc postDocument
	if err := s.coll.FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: id}}, update, opts).Decode(&doc); err != nil {
		return nil, storageFault("insert post", err)
	}

	post := doc.toPost()
	recordAuthorActivity(ctx, s.opts.Activity, post.Author)
	return &post, nil
}

// DeleteOne 删除指定 ID 的文档，不存在时返回 false。
func (s *MongoPostStore) DeleteOne(ctx context.Context, token AdminToken, id string) (bool, error) {
	if !token.Valid() {
		return false, ErrNotAuthorized
	}

	res, err := s.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return false, storageFault("delete post", err)
	}
	return res.DeletedCount > 0, nil
}

type purgeOutcome struct {
	index int
	id    string
	err   error
}

// DeleteAll 逐个删除文档。这不是事务：部分失败时已删除的不会恢复，
// 失败的 ID 会列在 PurgeResult.Failed 中，错误为 ErrPartialPurge。
func (s *MongoPostStore) DeleteAll(ctx context.Context, token AdminToken) (PurgeResult, error) {
	if !token.Valid() {
		return PurgeResult{}, ErrNotAuthorized
	}

	ids, err := s.listIDs(ctx)
	if err != nil {
		return PurgeResult{Deleted: []string{}, Failed: []string{}}, err
	}

	p := pool.NewWithResults[purgeOutcome]().WithMaxGoroutines(s.opts.PurgeConcurrency)
	for i, id := range ids {
		p.Go(func() purgeOutcome {
			_, err := s.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
			return purgeOutcome{index: i, id: id, err: err}
		})
	}
	outcomes := p.Wait()
	sort.Slice(outcomes, func(a, b int) bool { return outcomes[a].index < outcomes[b].index })

	result := PurgeResult{Deleted: []string{}, Failed: []string{}}
	for _, outcome := range outcomes {
		if outcome.err != nil {
			log.Printf("[posts] purge failed for %s: %v", outcome.id, outcome.err)
			result.Failed = append(result.Failed, outcome.id)
			continue
		}
		result.Deleted = append(result.Deleted, outcome.id)
	}

	if len(result.Failed) > 0 {
		return result, ErrPartialPurge
	}
	return result, nil
}

func (s *MongoPostStore) listIDs(ctx context.Context) ([]string, error) {
	cursor, err := s.coll.Find(ctx, bson.D{}, options.Find().SetProjection(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, storageFault("list post ids", err)
	}
	defer cursor.Close(ctx)

	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, storageFault("decode post ids", err)
	}

	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.ID)
	}
	return ids, nil
}

// Subscribe 先推送一次当前列表，之后集合每发生一次变更就重新查询并推送。
// 回调在后台 goroutine 中执行。取消函数会关闭 change stream 并等待 goroutine 退出。
func (s *MongoPostStore) Subscribe(ctx context.Context, onUpdate func([]Post), onError func(error)) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	report := func(err error) {
		if ctx.Err() != nil || onError == nil {
			return
		}
		onError(err)
	}
	deliver := func() {
		posts, err := s.fetch(ctx)
		if err != nil {
			report(err)
			return
		}
		if onUpdate != nil && ctx.Err() == nil {
			onUpdate(posts)
		}
	}

	go func() {
		defer close(done)

		stream, err := s.coll.Watch(ctx, mongo.Pipeline{})
		if err != nil {
			deliver()
			report(storageFault("watch posts", err))
			return
		}
		defer stream.Close(context.Background())

		deliver()
		for stream.Next(ctx) {
			deliver()
		}
		if err := stream.Err(); err != nil && !errors.Is(err, context.Canceled) {
			report(storageFault("watch posts", err))
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}
