package repository

import (
	"errors"
	"fmt"
)

// MalformedError はバックエンドの応答が期待するスキーマに一致しないことを表す。
// 通信失敗とは区別して扱う。
type MalformedError struct {
	Op     string
	Reason string
}

// Error はerrorインターフェースを実装する。
func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed backend response (%s): %s", e.Op, e.Reason)
}

// IsMalformed はerrがMalformedErrorを含むかを判定する。
func IsMalformed(err error) bool {
	var m *MalformedError
	return errors.As(err, &m)
}

func malformed(op, format string, args ...any) error {
	return &MalformedError{Op: op, Reason: fmt.Sprintf(format, args...)}
}
