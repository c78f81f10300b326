package models

import "time"

// KVEntry backs the "database" store backend: one row per key. The relay
// treats the table strictly as a key-value namespace, so there are no
// relations and no surrogate ids.
type KVEntry struct {
	Key       string `gorm:"primaryKey;size:255"`
	Value     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

func (KVEntry) TableName() string {
	return "kv_entries"
}
