// Package segment splits extracted document text into overlapping chunks.
//
// Chunks are cut at the strongest natural boundary available in the back half of
// each window (paragraph, line, sentence, clause, word) and fall back to a hard
// character cut. Lengths are counted in characters (runes), not bytes.
//
// Windows that contain only whitespace are dropped. The chunks on either side of
// such a gap do not share the overlap with each other; nothing retrievable is
// lost, since the gap holds no text.
package segment

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultSeparators 分隔符优先级，从高到低
var DefaultSeparators = []string{"\n\n", "\n", ". ", "! ", "? ", ", ", " "}

// ErrInvalidSize chunk size / overlap 参数非法
var ErrInvalidSize = errors.New("invalid chunk size")

// Segmenter 文本分块器，无状态，可并发使用
type Segmenter struct {
	size       int
	overlap    int
	separators [][]rune
}

// New 创建分块器，要求 0 <= overlap < size
func New(size, overlap int) (*Segmenter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidSize, size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: overlap must not be negative, got %d", ErrInvalidSize, overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than chunk size %d", ErrInvalidSize, overlap, size)
	}

	seps := make([][]rune, len(DefaultSeparators))
	for i, sep := range DefaultSeparators {
		seps[i] = []rune(sep)
	}
	return &Segmenter{size: size, overlap: overlap, separators: seps}, nil
}

// Size 目标块大小
func (s *Segmenter) Size() int { return s.size }

// Overlap 相邻块重叠字符数
func (s *Segmenter) Overlap() int { return s.overlap }

// Split 将文本切分为有序块
// Every chunk is at most Size characters and the last Overlap characters of a
// chunk are the first Overlap characters of the next one, except across a
// dropped whitespace-only window.
func (s *Segmenter) Split(text string) []string {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	var chunks []string
	start := 0
	for {
		end := start + s.size
		if end >= n {
			end = n
		} else {
			end = s.breakPoint(runes, start, end)
		}

		chunk := string(runes[start:end])
		if strings.TrimSpace(chunk) != "" {
			chunks = append(chunks, chunk)
		}
		if end == n {
			break
		}
		start = end - s.overlap
	}
	return chunks
}

// breakPoint picks the cut position for the window [start, end).
// The cut is never before start+overlap+1, so the next window always advances.
func (s *Segmenter) breakPoint(runes []rune, start, end int) int {
	lo := start + s.overlap + 1
	if half := start + s.size/2; half > lo {
		lo = half
	}

	for _, sep := range s.separators {
		for cut := end; cut >= lo; cut-- {
			if endsWith(runes, start, cut, sep) {
				return cut
			}
		}
	}
	return end
}

// endsWith reports whether runes[start:cut] ends with sep.
func endsWith(runes []rune, start, cut int, sep []rune) bool {
	from := cut - len(sep)
	if from < start {
		return false
	}
	for i, r := range sep {
		if runes[from+i] != r {
			return false
		}
	}
	return true
}

// CountWords 按空白统计词数
func CountWords(text string) int {
	return len(strings.Fields(text))
}
