package domain

import "time"

// User 表示注册用户的业务实体。
//
// 传输引擎本身不校验用户身份，只在列表查询时用 Login 标注对端；
// 注册与认证由 auth 包处理。
type User struct {
	ID           string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Login        string     `json:"login" gorm:"uniqueIndex;type:varchar(100);not null"`
	PasswordHash string     `json:"-" gorm:"type:varchar(255)"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
}
