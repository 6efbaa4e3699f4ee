package service

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/classboard/internal/kv"
	"golang.org/x/crypto/blake2b"
)

const (
	activityKeyPrefix     = "activity-"
	activityDateLayout    = "2006-01-02"
	activityRetentionDays = 7
)

// dailyActivity 是某一天的活跃记录，users 为发过留言的昵称，visitors 为全部访客标识。
type dailyActivity struct {
	Date     string   `json:"date"`
	Users    []string `json:"users"`
	Visitors []string `json:"visitors"`
}

// ActivityService 按自然日记录访客与发言者。
type ActivityService struct {
	store kv.Store
	now   func() time.Time
	loc   *time.Location
	mu    sync.Mutex
}

// NewActivityService 创建 ActivityService，默认使用本地时区划分日期。
func NewActivityService(store kv.Store) *ActivityService {
	return &ActivityService{store: store, now: time.Now, loc: time.Local}
}

// WithClock 替换时间来源，主要面向测试。
func (s *ActivityService) WithClock(now func() time.Time) *ActivityService {
	if now == nil {
		return s
	}
	s.now = now
	return s
}

// WithLocation 指定用于划分自然日的时区。
func (s *ActivityService) WithLocation(loc *time.Location) *ActivityService {
	if loc == nil {
		return s
	}
	s.loc = loc
	return s
}

func (s *ActivityService) today() time.Time {
	now := s.now().In(s.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
}

func (s *ActivityService) todayKey() string {
	return s.today().Format(activityDateLayout)
}

// RecordUserActivity 把 identity 同时记入今天的发言者与访客集合，重复调用没有额外效果。
func (s *ActivityService) RecordUserActivity(ctx context.Context, identity string) error {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil
	}
	return s.update(ctx, func(day *dailyActivity) {
		day.Users = addUnique(day.Users, identity)
		day.Visitors = addUnique(day.Visitors, identity)
	})
}

// RecordVisitor 把匿名访客指纹记入今天的访客集合。
func (s *ActivityService) RecordVisitor(ctx context.Context, fingerprint string) error {
	fingerprint = strings.TrimSpace(fingerprint)
	if fingerprint == "" {
		return nil
	}
	return s.update(ctx, func(day *dailyActivity) {
		day.Visitors = addUnique(day.Visitors, fingerprint)
	})
}

// TodayActiveUsers 返回今天的访客数。
func (s *ActivityService) TodayActiveUsers(ctx context.Context) int {
	day, err := s.load(ctx, s.todayKey())
	if err != nil {
		log.Printf("[activity] load today failed: %v", err)
		return 0
	}
	return len(day.Visitors)
}

// TodayPostingUsers 返回今天发过留言的人数。
func (s *ActivityService) TodayPostingUsers(ctx context.Context) int {
	day, err := s.load(ctx, s.todayKey())
	if err != nil {
		log.Printf("[activity] load today failed: %v", err)
		return 0
	}
	return len(day.Users)
}

// CleanupOldActivity 删除日期在 7 个自然日之前（含第 7 天）的记录，返回删除条数。
func (s *ActivityService) CleanupOldActivity(ctx context.Context) (int, error) {
	keys, err := s.store.Keys(ctx, activityKeyPrefix)
	if err != nil {
		return 0, fmt.Errorf("list activity keys: %w", err)
	}

	cutoff := s.today().AddDate(0, 0, -activityRetentionDays)
	removed := 0
	var errs []error
	for _, key := range keys {
		date, err := time.ParseInLocation(activityDateLayout, strings.TrimPrefix(key, activityKeyPrefix), s.loc)
		if err != nil {
			continue
		}
		if date.After(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, key); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}

	if removed > 0 {
		log.Printf("[activity] removed %d stale daily records", removed)
	}
	return removed, errors.Join(errs...)
}

func (s *ActivityService) update(ctx context.Context, mutate func(*dailyActivity)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.todayKey()
	day, err := s.load(ctx, key)
	if err != nil {
		return err
	}
	mutate(&day)

	data, err := json.Marshal(day)
	if err != nil {
		return fmt.Errorf("encode activity: %w", err)
	}
	return s.store.Set(ctx, activityKeyPrefix+key, string(data))
}

// load 读取某天的记录；不存在或数据损坏时返回空记录。
func (s *ActivityService) load(ctx context.Context, date string) (dailyActivity, error) {
	empty := dailyActivity{Date: date, Users: []string{}, Visitors: []string{}}

	raw, ok, err := s.store.Get(ctx, activityKeyPrefix+date)
	if err != nil {
		return empty, fmt.Errorf("load activity %s: %w", date, err)
	}
	if !ok {
		return empty, nil
	}

	var day dailyActivity
	if err := json.Unmarshal([]byte(raw), &day); err != nil {
		log.Printf("[activity] malformed record for %s, starting fresh: %v", date, err)
		return empty, nil
	}
	day.Date = date
	if day.Users == nil {
		day.Users = []string{}
	}
	if day.Visitors == nil {
		day.Visitors = []string{}
	}
	return day, nil
}

func addUnique(values []string, value string) []string {
	for _, existing := range values {
		if existing == value {
			return values
		}
	}
	return append(values, value)
}

// Fingerprint 把请求特征（User-Agent、语言、IP 等）哈希成匿名访客标识。
func Fingerprint(parts ...string) string {
	hash, err := blake2b.New(16, nil)
	if err != nil {
		// 只有 size 或 key 非法时才会失败
		panic(err)
	}
	hash.Write([]byte(strings.Join(parts, "|")))
	return "visitor_" + hex.EncodeToString(hash.Sum(nil))
}
