package download

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
)

// 使用 errors.Is 判断具体的错误类型
var (
	// ErrModelNotFound 注册表中没有该模型, 或远程返回 404, 不会尝试备用下载器
	ErrModelNotFound = errors.New("download: 模型不存在")

	// ErrConnection 网络错误、非 2xx 响应或下载中断
	ErrConnection = errors.New("download: 下载模型失败")

	// ErrChecksumMismatch 下载后的文件摘要与注册表不一致 (仅在开启 VerifyDownloads 时出现)
	ErrChecksumMismatch = errors.New("download: 模型摘要不一致")
)

const (
	partSuffix = ".part"
	lockSuffix = ".lock"

	// DefaultTimeout 建立连接与等待响应头的超时时间
	DefaultTimeout = 10 * time.Second
	// DefaultLockTimeout 等待其它进程完成同一模型下载的最长时间
	DefaultLockTimeout = 30 * time.Minute
)

// Downloader 模型下载器
type Downloader interface {
	// Name 下载器名称, 用于日志
	Name() string
	// DownloadModel 返回模型在本地缓存中的路径, 必要时下载
	DownloadModel(ctx context.Context, name string) (string, error)
}

// ProgressFunc 下载进度回调, total 未知时为 -1
type ProgressFunc func(name string, written, total int64)

// Config 下载器的初始化参数
type Config struct {
	Name     string    // 下载器名称
	BaseURL  string    // 兼容 Hugging Face 的站点地址
	CacheDir string    // 模型缓存根目录
	Registry *Registry // (可选) 模型注册表, 默认 DefaultRegistry

	// 可选参数
	HTTPClient      *http.Client  // (可选) 默认使用 NewHTTPClient(DefaultTimeout)
	Fallback        Downloader    // (可选) 下载失败后使用的备用下载器
	Logger          *zap.Logger   // (可选) 日志
	VerifyDownloads bool          // (可选) 下载完成后再次校验摘要
	Progress        ProgressFunc  // (可选) 下载进度回调
	LockTimeout     time.Duration // (可选) 等待文件锁的超时时间
	UserAgent       string        // (可选) 请求头 User-Agent
}

// HuggingFaceDownloader 从兼容 Hugging Face 的站点下载模型并缓存到本地
//
// 下载地址: <BaseURL>/<Repository>/resolve/<Revision>/<Filename>
// 缓存路径: <CacheDir>/<仓库短名>/<模型名>
type HuggingFaceDownloader struct {
	config Config
	client *http.Client
	logger *zap.Logger
}

// NewHuggingFaceDownloader 创建下载器
func NewHuggingFaceDownloader(cfg Config) *HuggingFaceDownloader {
	if cfg.Name == "" {
		cfg.Name = HuggingFaceName
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = HuggingFaceURL
	}
	if cfg.Registry == nil {
		cfg.Registry = DefaultRegistry()
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = DefaultLockTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "go-carve"
	}
	client := cfg.HTTPClient
	if client == nil {
		client = NewHTTPClient(DefaultTimeout)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HuggingFaceDownloader{
		config: cfg,
		client: client,
		logger: logger.With(zap.String("downloader", cfg.Name)),
	}
}

// NewHTTPClient 创建连接与响应头均有超时的 HTTP 客户端, 响应体的读取由 ctx 控制
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext
	transport.TLSHandshakeTimeout = timeout
	transport.ResponseHeaderTimeout = timeout
	return &http.Client{Transport: transport}
}

// Name 下载器名称
func (d *HuggingFaceDownloader) Name() string {
	return d.config.Name
}

// Fallback 备用下载器
func (d *HuggingFaceDownloader) Fallback() Downloader {
	return d.config.Fallback
}

// Path 模型在本地缓存中的路径, 不检查文件是否存在
func (d *HuggingFaceDownloader) Path(name string) (string, error) {
	a, ok := d.config.Registry.Lookup(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}
	return filepath.Join(d.config.CacheDir, a.ShortName(), name), nil
}

// URL 模型的下载地址
func (d *HuggingFaceDownloader) URL(name string) (string, error) {
	a, ok := d.config.Registry.Lookup(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}
	return d.artifactURL(a), nil
}

func (d *HuggingFaceDownloader) artifactURL(a Artifact) string {
	return fmt.Sprintf("%s/%s/resolve/%s/%s", d.config.BaseURL, a.Repository, a.Revision, a.Filename)
}

// DownloadModel 获取模型, 失败时 (模型不存在除外) 交给备用下载器重试.
// 备用下载器也失败时, 返回的错误同时包含两次失败的原因.
func (d *HuggingFaceDownloader) DownloadModel(ctx context.Context, name string) (string, error) {
	path, err := d.DownloadModelBase(ctx, name)
	if err == nil {
		return path, nil
	}
	if errors.Is(err, ErrModelNotFound) || ctx.Err() != nil {
		return "", err
	}

	fb := d.config.Fallback
	if fb == nil {
		d.logger.Warn("下载模型失败, 没有可用的备用下载器", zap.String("model", name), zap.Error(err))
		return "", err
	}
	d.logger.Warn("下载模型失败, 尝试备用下载器",
		zap.String("model", name),
		zap.String("fallback", fb.Name()),
		zap.Error(err),
	)
	path, fbErr := fb.DownloadModel(ctx, name)
	if fbErr != nil {
		return "", fmt.Errorf("%w; 备用下载器 %s: %w", err, fb.Name(), fbErr)
	}
	return path, nil
}

// DownloadModelBase 只使用当前站点获取模型
//
// 缓存文件摘要正确时直接返回, 摘要错误的缓存文件会被删除并重新下载.
// 同一模型的检查、下载与重命名在进程内与进程间都是互斥的.
func (d *HuggingFaceDownloader) DownloadModelBase(ctx context.Context, name string) (string, error) {
	a, ok := d.config.Registry.Lookup(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}
	path := filepath.Join(d.config.CacheDir, a.ShortName(), name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("创建缓存目录失败: %w", err)
	}

	unlock, err := lockPath(ctx, path, d.config.LockTimeout)
	if err != nil {
		return "", fmt.Errorf("锁定模型 %s 失败: %w", name, err)
	}
	defer unlock()

	hit, err := d.checkCache(name, a, path)
	if err != nil {
		return "", err
	}
	if hit {
		d.logger.Debug("命中模型缓存", zap.String("model", name), zap.String("path", path))
		return path, nil
	}

	if err := d.fetch(ctx, name, a, path); err != nil {
		return "", err
	}
	return path, nil
}

// checkCache 检查缓存文件, 摘要不一致时删除
func (d *HuggingFaceDownloader) checkCache(name string, a Artifact, path string) (bool, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("读取缓存文件失败: %w", err)
	}
	digest, err := Checksum(path)
	if err != nil {
		return false, err
	}
	if digest == a.Digest {
		return true, nil
	}

	d.logger.Warn("模型摘要不一致, 重新下载", zap.String("model", name), zap.String("path", path))
	if err := os.Remove(path); err != nil {
		return false, fmt.Errorf("删除损坏的模型文件失败: %w", err)
	}
	return false, nil
}

// fetch 下载到临时文件, 成功后重命名为 path, 任何失败都会删除临时文件
func (d *HuggingFaceDownloader) fetch(ctx context.Context, name string, a Artifact, path string) (err error) {
	url := d.artifactURL(a)
	start := time.Now()
	d.logger.Info("开始下载模型", zap.String("model", name), zap.String("url", url))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: 模型 %s: %w", ErrConnection, name, err)
	}
	req.Header.Set("User-Agent", d.config.UserAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: 模型 %s: %w", ErrConnection, name, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s (%s)", ErrModelNotFound, name, d.config.Name)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%w: 模型 %s: HTTP %d", ErrConnection, name, resp.StatusCode)
	}

	part := fmt.Sprintf("%s.%s%s", path, ksuid.New().String(), partSuffix)
	f, err := os.Create(part)
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(part)
		}
	}()

	var w io.Writer = f
	if d.config.Progress != nil {
		w = &progressWriter{w: f, name: name, total: resp.ContentLength, fn: d.config.Progress}
	}
	written, err := io.Copy(w, resp.Body)
	if err != nil {
		return fmt.Errorf("%w: 模型 %s: %w", ErrConnection, name, err)
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("写入模型文件失败: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("写入模型文件失败: %w", err)
	}

	if d.config.VerifyDownloads {
		digest, cErr := Checksum(part)
		if cErr != nil {
			return cErr
		}
		if digest != a.Digest {
			return fmt.Errorf("%w: %s", ErrChecksumMismatch, name)
		}
	}

	if err = os.Rename(part, path); err != nil {
		return fmt.Errorf("重命名模型文件失败: %w", err)
	}
	d.logger.Info("模型下载完成",
		zap.String("model", name),
		zap.Int64("bytes", written),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// Checksum 计算文件的 SHA-512 十六进制摘要
func Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("打开文件失败: %w", err)
	}
	defer f.Close()
	h := sha512.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("读取文件失败: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

type progressWriter struct {
	w       io.Writer
	name    string
	total   int64
	written int64
	fn      ProgressFunc
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)
	p.fn(p.name, p.written, p.total)
	return n, err
}
