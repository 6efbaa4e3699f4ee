package db

import "time"

// KVEntry 存储一条持久化的键值对，对应浏览器端 localStorage 中的一项。
// 没有软删除：删除即物理删除。
type KVEntry struct {
	Key       string `gorm:"primaryKey;size:191"`
	Value     string `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName 自定义表名以保持命名一致。
func (KVEntry) TableName() string {
	return "kv_entries"
}
