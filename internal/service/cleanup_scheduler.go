package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/robfig/cron/v3"
)

// DefaultCleanupSchedule 是活跃记录清理任务的默认 cron 表达式。
const DefaultCleanupSchedule = "@daily"

type activityCleaner interface {
	CleanupOldActivity(ctx context.Context) (int, error)
}

// CleanupScheduler 定时清理过期的每日活跃记录。
type CleanupScheduler struct {
	cron     *cron.Cron
	activity activityCleaner
}

// NewCleanupScheduler 按 schedule 注册清理任务，schedule 为空时使用 @daily。
func NewCleanupScheduler(activity activityCleaner, schedule string) (*CleanupScheduler, error) {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		schedule = DefaultCleanupSchedule
	}

	s := &CleanupScheduler{cron: cron.New(), activity: activity}
	if _, err := s.cron.AddFunc(schedule, func() {
		s.RunNow(context.Background())
	}); err != nil {
		return nil, fmt.Errorf("schedule activity cleanup %q: %w", schedule, err)
	}
	return s, nil
}

// RunNow 立即执行一次清理。
func (s *CleanupScheduler) RunNow(ctx context.Context) {
	removed, err := s.activity.CleanupOldActivity(ctx)
	if err != nil {
		log.Printf("[activity] cleanup failed after removing %d records: %v", removed, err)
	}
}

// Start 启动定时任务。
func (s *CleanupScheduler) Start() {
	s.cron.Start()
	log.Println("[activity] cleanup scheduler started")
}

// Stop 停止调度并等待正在执行的任务结束。
func (s *CleanupScheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Println("[activity] cleanup scheduler stopped")
}
