package model

import "time"

// localTimeLayout 是接口返回时间字段的统一格式。
const localTimeLayout = "2006-01-02 15:04:05"

// LocalTime 在序列化为 JSON 时按 localTimeLayout 输出，
// 用于接口 DTO 中需要人类可读时间的字段。
type LocalTime time.Time

// MarshalJSON 实现 json.Marshaler 接口。
func (t LocalTime) MarshalJSON() ([]byte, error) {
	b := make([]byte, 0, len(localTimeLayout)+2)
	b = append(b, '"')
	b = time.Time(t).AppendFormat(b, localTimeLayout)
	b = append(b, '"')
	return b, nil
}
