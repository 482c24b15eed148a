package pipeline

import (
	"github.com/getcharzp/go-carve/download"
	"github.com/getcharzp/go-carve/nn"
	"go.uber.org/zap"
)

type options struct {
	downloader download.Downloader
	loader     nn.Loader
	logger     *zap.Logger
}

// Option Build 的可选参数
type Option func(*options)

// WithDownloader 指定模型下载器, 默认使用 download.DefaultDownloader
func WithDownloader(d download.Downloader) Option {
	return func(o *options) { o.downloader = d }
}

// WithLoader 指定模型加载方式, 默认使用 nn.LoadOnnx
func WithLoader(l nn.Loader) Option {
	return func(o *options) { o.loader = l }
}

// WithLogger 指定日志
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}
