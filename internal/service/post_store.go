package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/classboard/internal/kv"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"go.mongodb.org/mongo-driver/mongo"
)

// DefaultPostTitle 是留言表单固定提交的标题。
const DefaultPostTitle = "コメント"

var (
	// ErrInvalidPost 表示内容或昵称在去除空白后为空。
	ErrInvalidPost = errors.New("post content and author are required")
	// ErrStorageFault 表示底层存储读写失败。
	ErrStorageFault = errors.New("post storage fault")
	// ErrPartialPurge 表示批量删除只完成了一部分，已删除的不会回滚。
	ErrPartialPurge = errors.New("some posts could not be deleted")
)

// Post 是一条留言。
type Post struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
	Views     int       `json:"views"`
	Replies   int       `json:"replies"`
	IsPopular bool      `json:"isPopular"`
}

// PostInput 是创建留言时调用方提供的字段。
type PostInput struct {
	Title   string
	Content string
	Author  string
}

// PurgeResult 列出批量删除中成功与失败的留言 ID，便于调用方精确重试。
type PurgeResult struct {
	Deleted []string `json:"deleted"`
	Failed  []string `json:"failed"`
}

// ActivityHook 在留言创建成功后被调用，用于记录当天的活跃用户。
type ActivityHook interface {
	RecordUserActivity(ctx context.Context, identity string) error
}

// PostStore 是两种存储后端共同实现的留言存储契约。
//
// List 总是按 createdAt 倒序返回。DeleteOne 与 DeleteAll 需要 SessionGate 签发的 AdminToken。
// Subscribe 先推送一次当前列表；只有支持变更通知的后端才会继续推送。
type PostStore interface {
	List(ctx context.Context) ([]Post, error)
	Create(ctx context.Context, input PostInput) (*Post, error)
	DeleteOne(ctx context.Context, token AdminToken, id string) (bool, error)
	DeleteAll(ctx context.Context, token AdminToken) (PurgeResult, error)
	Subscribe(ctx context.Context, onUpdate func([]Post), onError func(error)) (unsubscribe func())
}

// PostStoreOptions 是两种后端共享的行为选项。
type PostStoreOptions struct {
	// Strict 为 true 时 List 会返回存储错误；否则记录日志并返回空列表。
	Strict bool
	// Activity 在创建留言后记录作者活跃度，可为空。
	Activity ActivityHook
	// Now 用于生成 createdAt，默认 time.Now。
	Now func() time.Time
	// NewID 用于生成留言 ID，默认 UUIDv7。
	NewID func() string
	// PurgeConcurrency 限制远程后端批量删除时的并发数，默认 8。
	PurgeConcurrency int
}

func (o PostStoreOptions) withDefaults() PostStoreOptions {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewID == nil {
		o.NewID = newPostID
	}
	if o.PurgeConcurrency <= 0 {
		o.PurgeConcurrency = 8
	}
	return o
}

// PostBackend 标识留言存储后端。
type PostBackend string

const (
	// BackendLocal 将留言保存在本地持久化键值存储中。
	BackendLocal PostBackend = "local"
	// BackendMongo 将留言保存在远程 MongoDB 集合中。
	BackendMongo PostBackend = "mongo"
)

// PostStoreDeps 是构造后端所需的存储依赖，只需提供所选后端对应的一项。
type PostStoreDeps struct {
	Local      kv.Store
	Collection *mongo.Collection
}

// NewPostStore 按配置选择后端并构造 PostStore。
func NewPostStore(backend PostBackend, deps PostStoreDeps, opts PostStoreOptions) (PostStore, error) {
	switch PostBackend(strings.ToLower(strings.TrimSpace(string(backend)))) {
	case BackendLocal, "":
		if deps.Local == nil {
			return nil, errors.New("local post backend requires a kv store")
		}
		return NewLocalPostStore(deps.Local, opts), nil
	case BackendMongo:
		if deps.Collection == nil {
			return nil, errors.New("mongo post backend requires a collection")
		}
		return NewMongoPostStore(deps.Collection, opts), nil
	default:
		return nil, fmt.Errorf("unknown post backend %q", backend)
	}
}

var plainTextPolicy = bluemonday.StrictPolicy()

// normalizePostInput 去除标记与首尾空白，并拒绝空内容或空昵称。
func normalizePostInput(input PostInput) (PostInput, error) {
	normalized := PostInput{
		Title:   sanitizePlainText(input.Title),
		Content: sanitizePlainText(input.Content),
		Author:  sanitizePlainText(input.Author),
	}
	if normalized.Content == "" || normalized.Author == "" {
		return PostInput{}, ErrInvalidPost
	}
	if normalized.Title == "" {
		normalized.Title = DefaultPostTitle
	}
	return normalized, nil
}

func sanitizePlainText(value string) string {
	stripped := plainTextPolicy.Sanitize(strings.TrimSpace(value))
	return strings.TrimSpace(html.UnescapeString(stripped))
}

// sortPostsNewestFirst 按 createdAt 倒序排列，时间相同的保持原有顺序。
func sortPostsNewestFirst(posts []Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
}

func newPostID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// storageFault 把底层错误包装为 ErrStorageFault，两者都可以用 errors.Is 匹配。
func storageFault(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageFault, op, err)
}

// failSoft 实现 List 的容错策略。
func failSoft(strict bool, posts []Post, err error) ([]Post, error) {
	if err == nil {
		return posts, nil
	}
	if strict {
		return nil, err
	}
	log.Printf("[posts] list failed, returning empty list: %v", err)
	return []Post{}, nil
}

func recordAuthorActivity(ctx context.Context, hook ActivityHook, author string) {
	if hook == nil {
		return
	}
	if err := hook.RecordUserActivity(ctx, author); err != nil {
		log.Printf("[posts] record activity for %q failed: %v", author, err)
	}
}
