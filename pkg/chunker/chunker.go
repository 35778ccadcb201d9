// Package chunker 提供了将长文本切分为带重叠窗口的纯函数。
package chunker

import (
	"askmynotes-go/pkg/apperr"
)

// Split 以滑动窗口将 text 切分为若干块。chunkSize 为每块的最大长度（按 rune 计），
// overlap 为相邻块的重叠长度；负的 overlap 按 0 处理。窗口自左向右推进，
// 末尾不足一个窗口时产生一个较短的块，文本中的每个字符至少落入一个块。
// chunkSize 不为正、或重叠不小于块长（步长将无法前进）时返回配置错误。
func Split(text string, chunkSize, overlap int) ([]string, error) {
	if chunkSize <= 0 {
		return nil, apperr.Configf("chunk size must be positive, got %d", chunkSize)
	}
	if overlap < 0 {
		overlap = 0
	}
	step := chunkSize - overlap
	if step <= 0 {
		return nil, apperr.Configf("overlap %d leaves no forward step for chunk size %d", overlap, chunkSize)
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}

	chunks := make([]string, 0, (len(runes)+step-1)/step)
	for start := 0; start < len(runes); start += step {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks, nil
}
