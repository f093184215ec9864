package str

import (
	"math"
	"strings"
	"unicode"
)

// Hashcode 计算字符串的hashcode
func Hashcode(s string) int32 {
	var hash int32 = 0
	for _, c := range s {
		hash = c + ((hash << 5) - hash)
	}
	return hash
}

// HashMode 计算字符串的hashcode后取余
func HashMode(s string, num int32) int {
	if num <= 0 {
		return 0
	}
	hash := Hashcode(s)
	return int(math.Abs(float64(hash % num)))
}

// IsBlank reports whether s is empty or only whitespace.
func IsBlank(s string) bool {
	return strings.TrimFunc(s, unicode.IsSpace) == ""
}
