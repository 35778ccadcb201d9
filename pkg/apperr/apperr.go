// Package apperr 定义了业务错误的分类模型，供各层统一区分客户端错误与系统故障。
package apperr

import (
	"errors"
	"fmt"
)

// Kind 标识错误的类别，决定对外暴露时的处理方式。
type Kind int

const (
	// KindValidation 表示调用方输入不合法，例如未注册的学科或缺失的档案。
	KindValidation Kind = iota + 1
	// KindInfrastructure 表示下游依赖故障，例如向量库不可达或嵌入服务超时。
	KindInfrastructure
	// KindConfiguration 表示配置不合法，启动期或首次使用时即为致命错误。
	KindConfiguration
)

// String 返回类别的可读名称。
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindInfrastructure:
		return "infrastructure"
	case KindConfiguration:
		return "configuration"
	default:
		return "unknown"
	}
}

// Error 是带类别标签的错误，保留底层错误链。
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Msg != "" {
			return fmt.Sprintf("%s: %v", e.Msg, e.Err)
		}
		return e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validationf 构造一个 validation 类别的错误。
func Validationf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// Infraf 构造一个 infrastructure 类别的错误。
func Infraf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInfrastructure, Msg: fmt.Sprintf(format, args...)}
}

// Configf 构造一个 configuration 类别的错误。
func Configf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConfiguration, Msg: fmt.Sprintf(format, args...)}
}

// WrapValidation 将底层错误包装为 validation 类别，msg 描述失败的操作。
func WrapValidation(msg string, err error) *Error {
	return &Error{Kind: KindValidation, Msg: msg, Err: err}
}

// WrapInfra 将底层错误包装为 infrastructure 类别，msg 描述失败的操作。
func WrapInfra(msg string, err error) *Error {
	return &Error{Kind: KindInfrastructure, Msg: msg, Err: err}
}

// WrapConfig 将底层错误包装为 configuration 类别，msg 描述失败的操作。
func WrapConfig(msg string, err error) *Error {
	return &Error{Kind: KindConfiguration, Msg: msg, Err: err}
}

// KindOf 返回错误链上携带的类别；无标签时返回 0。
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return 0
}

// IsValidation 判断错误链上是否带有 validation 标签。
func IsValidation(err error) bool {
	return KindOf(err) == KindValidation
}

// IsInfrastructure 判断错误链上是否带有 infrastructure 标签。
func IsInfrastructure(err error) bool {
	return KindOf(err) == KindInfrastructure
}

// IsConfiguration 判断错误链上是否带有 configuration 标签。
func IsConfiguration(err error) bool {
	return KindOf(err) == KindConfiguration
}
