package domain

import "time"

// Transfer 表示一次点对点文件传输的元数据记录。
//
// 记录一经写入不可修改，只会被三种途径销毁：
// 接收者完整下载、发送者主动删除、过期清理任务。
// 同一 (SenderID, ReceiverID, Filename) 三元组同一时刻至多存在一条记录，
// 由存储层的原子插入约束保证。
type Transfer struct {
	ID         string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Filename   string    `json:"filename" gorm:"type:varchar(255);not null;uniqueIndex:idx_transfer_triple,priority:3"`
	MimeType   string    `json:"mimeType" gorm:"type:varchar(100)"`
	Size       int64     `json:"size"`
	SenderID   string    `json:"senderId" gorm:"type:varchar(36);not null;index;uniqueIndex:idx_transfer_triple,priority:1"`
	ReceiverID string    `json:"receiverId" gorm:"type:varchar(36);not null;index;uniqueIndex:idx_transfer_triple,priority:2"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpireAt   time.Time `json:"expireAt" gorm:"index"`
}

// Expired 判断记录在指定时刻是否已过期。
func (t *Transfer) Expired(now time.Time) bool {
	return !t.ExpireAt.After(now)
}

// SentEntry 发送列表条目，附带接收者登录名。
type SentEntry struct {
	Filename      string    `json:"filename"`
	CreatedAt     time.Time `json:"createdAt"`
	ReceiverLogin string    `json:"receiverLogin"`
}

// ReceivedEntry 接收列表条目，附带发送者登录名。
type ReceivedEntry struct {
	Filename    string    `json:"filename"`
	CreatedAt   time.Time `json:"createdAt"`
	SenderLogin string    `json:"senderLogin"`
}
