package carve

import "errors"

// 使用 errors.Is 判断具体的错误类型
var (
	// ErrNoSegmentation 未提供分割网络
	ErrNoSegmentation = errors.New("carve: 未初始化分割网络")

	// ErrLengthMismatch 同一阶段的输入列表长度不一致
	ErrLengthMismatch = errors.New("carve: 输入列表长度不一致")

	// ErrEmptyInput 输入列表为空
	ErrEmptyInput = errors.New("carve: 输入列表为空")

	// ErrColorMode 不支持的颜色模式
	ErrColorMode = errors.New("carve: 不支持的颜色模式")

	// ErrSizeMismatch 图片与掩码尺寸不一致
	ErrSizeMismatch = errors.New("carve: 图片与掩码尺寸不一致")

	// ErrUnsupportedSource 无法识别的图片来源
	ErrUnsupportedSource = errors.New("carve: 不支持的图片来源")

	// ErrInvalidConfig 配置项无效
	ErrInvalidConfig = errors.New("carve: 配置无效")
)
