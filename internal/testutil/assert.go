// Package testutil 提供测试辅助工具
package testutil

import (
	"errors"
	"strings"
	"testing"
)

// AssertHelper 提供断言相关的测试辅助
type AssertHelper struct {
	t *testing.T
}

// NewAssertHelper 创建断言辅助器
func NewAssertHelper(t *testing.T) *AssertHelper {
	return &AssertHelper{t: t}
}

// NoError 断言没有错误
func (h *AssertHelper) NoError(err error, msgAndArgs ...interface{}) {
	h.t.Helper()
	if err != nil {
		h.t.Fatalf("Unexpected error: %v %v", err, msgAndArgs)
	}
}

// Error 断言有错误
func (h *AssertHelper) Error(err error, msgAndArgs ...interface{}) {
	h.t.Helper()
	if err == nil {
		h.t.Fatalf("Expected error, got nil %v", msgAndArgs)
	}
}

// ErrorIs 断言错误链包含 target
func (h *AssertHelper) ErrorIs(err, target error, msgAndArgs ...interface{}) {
	h.t.Helper()
	if !errors.Is(err, target) {
		h.t.Fatalf("Expected error %v, got %v %v", target, err, msgAndArgs)
	}
}

// ErrorContains 断言错误包含指定字符串
func (h *AssertHelper) ErrorContains(err error, substr string, msgAndArgs ...interface{}) {
	h.t.Helper()
	if err == nil {
		h.t.Fatal("Expected error, got nil")
	}
	if !strings.Contains(err.Error(), substr) {
		h.t.Fatalf("Error %q does not contain %q %v", err.Error(), substr, msgAndArgs)
	}
}

// Equal 断言相等
func (h *AssertHelper) Equal(expected, actual interface{}, msgAndArgs ...interface{}) {
	h.t.Helper()
	if expected != actual {
		h.t.Fatalf("Expected %v, got %v %v", expected, actual, msgAndArgs)
	}
}

// Contains 断言字符串包含子串
func (h *AssertHelper) Contains(s, substr string, msgAndArgs ...interface{}) {
	h.t.Helper()
	if !strings.Contains(s, substr) {
		h.t.Fatalf("%q does not contain %q %v", s, substr, msgAndArgs)
	}
}

// NotEmpty 断言非空
func (h *AssertHelper) NotEmpty(s string, msgAndArgs ...interface{}) {
	h.t.Helper()
	if s == "" {
		h.t.Fatalf("Expected non-empty string %v", msgAndArgs)
	}
}

// Len 断言长度
func (h *AssertHelper) Len(n, want int, msgAndArgs ...interface{}) {
	h.t.Helper()
	if n != want {
		h.t.Fatalf("Expected length %d, got %d %v", want, n, msgAndArgs)
	}
}

// True 断言为真
func (h *AssertHelper) True(condition bool, msgAndArgs ...interface{}) {
	h.t.Helper()
	if !condition {
		h.t.Fatalf("Expected true, got false %v", msgAndArgs)
	}
}

// False 断言为假
func (h *AssertHelper) False(condition bool, msgAndArgs ...interface{}) {
	h.t.Helper()
	if condition {
		h.t.Fatalf("Expected false, got true %v", msgAndArgs)
	}
}
