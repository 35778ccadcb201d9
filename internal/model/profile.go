package model

import "time"

// Profile 对应于数据库中的 'profiles' 表。
// 每个用户恰好注册三门学科，学科集合是两条管线做归属校验的唯一依据。
type Profile struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint      `gorm:"uniqueIndex;not null" json:"userId"`
	Subject1  string    `gorm:"type:varchar(100);not null" json:"subject1"`
	Subject2  string    `gorm:"type:varchar(100);not null" json:"subject2"`
	Subject3  string    `gorm:"type:varchar(100);not null" json:"subject3"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Profile) TableName() string {
	return "profiles"
}

// Subjects 返回该档案注册的全部学科。
func (p *Profile) Subjects() []string {
	return []string{p.Subject1, p.Subject2, p.Subject3}
}

// HasSubject 判断学科是否在该档案注册的学科之中。
func (p *Profile) HasSubject(subject string) bool {
	return subject == p.Subject1 || subject == p.Subject2 || subject == p.Subject3
}
