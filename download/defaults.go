package download

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	HuggingFaceName = "Huggingface.co"
	HuggingFaceURL  = "https://huggingface.co"

	CarveCDNName = "Carve CDN"
	CarveCDNURL  = "https://cdn.carve.photos"

	// CacheDirEnv 指定模型缓存根目录的环境变量, 优先级最高
	CacheDirEnv = "CARVEKIT_CHECKPOINTS_DIR"
)

// DefaultDownloader 先从 Carve CDN 下载, 失败后回退到 Hugging Face
func DefaultDownloader(cacheDir string, logger *zap.Logger) *HuggingFaceDownloader {
	fallback := NewHuggingFaceDownloader(Config{
		Name:     HuggingFaceName,
		BaseURL:  HuggingFaceURL,
		CacheDir: cacheDir,
		Logger:   logger,
	})
	return NewHuggingFaceDownloader(Config{
		Name:     CarveCDNName,
		BaseURL:  CarveCDNURL,
		CacheDir: cacheDir,
		Fallback: fallback,
		Logger:   logger,
	})
}

// ResolveCacheDir 缓存根目录: 环境变量 > configured > 用户缓存目录/carvekit/checkpoints
func ResolveCacheDir(configured string) string {
	if dir := os.Getenv(CacheDirEnv); dir != "" {
		return dir
	}
	if configured != "" {
		return configured
	}
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "carvekit", "checkpoints")
}

// Cleanup 删除缓存目录中修改时间早于 maxAge 的临时下载文件与未被占用的锁文件, 返回删除的文件数
func Cleanup(root string, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if entry.IsDir() {
			return nil
		}
		name := entry.Name()
		if !strings.HasSuffix(name, partSuffix) && !strings.HasSuffix(name, lockSuffix) {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if strings.HasSuffix(name, lockSuffix) {
			// 仍被持有的锁文件保留
			ok, err := removeLockFile(path)
			if err != nil {
				return err
			}
			if ok {
				removed++
			}
			return nil
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		removed++
		return nil
	})
	return removed, err
}
