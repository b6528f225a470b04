package model

import "time"

// UserStats 租户级聚合计数
type UserStats struct {
	UserID         string     `gorm:"primaryKey;size:36" json:"-"`
	TotalDocuments int        `gorm:"default:0" json:"total_documents"`
	TotalQueries   int        `gorm:"default:0" json:"total_queries"`
	StorageUsed    int64      `gorm:"default:0" json:"storage_used"`
	LastActivity   *time.Time `json:"last_activity"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"-"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"-"`
}

// StorageUsedMB storage in megabytes, rounded to two decimals.
func (s *UserStats) StorageUsedMB() float64 {
	mb := float64(s.StorageUsed) / (1024 * 1024)
	return float64(int64(mb*100+0.5)) / 100
}

func (UserStats) TableName() string {
	return "user_stats"
}
