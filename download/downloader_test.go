package download

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const testModel = "weights.onnx"

var testContent = []byte("pretend these are model weights")

func digest(b []byte) string {
	sum := sha512.Sum512(b)
	return hex.EncodeToString(sum[:])
}

func testRegistry() *Registry {
	return NewRegistry(map[string]Artifact{
		testModel: {
			Repository: "Carve/test-model",
			Revision:   "abc123",
			Filename:   "remote.onnx",
			Digest:     digest(testContent),
		},
	})
}

// modelServer 返回固定内容并统计请求次数
type modelServer struct {
	*httptest.Server
	hits atomic.Int32
}

func newModelServer(t *testing.T, handler http.HandlerFunc) *modelServer {
	t.Helper()
	s := &modelServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

func serveContent(content []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/resolve/") {
			http.NotFound(w, r)
			return
		}
		w.Write(content)
	}
}

func failWith(code int) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(code)
	}
}

func TestDownloadModelBase_CacheHit(t *testing.T) {
	var gotPath atomic.Value
	srv := newModelServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.Path)
		w.Write(testContent)
	})
	d := NewHuggingFaceDownloader(Config{BaseURL: srv.URL, CacheDir: t.TempDir(), Registry: testRegistry()})

	first, err := d.DownloadModelBase(context.Background(), testModel)
	require.NoError(t, err)
	second, err := d.DownloadModelBase(context.Background(), testModel)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, srv.hits.Load())
	assert.Equal(t, "/Carve/test-model/resolve/abc123/remote.onnx", gotPath.Load())

	want, err := d.Path(testModel)
	require.NoError(t, err)
	assert.Equal(t, want, first)
	assert.Equal(t, "test-model", filepath.Base(filepath.Dir(first)))

	data, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, testContent, data)
}

func TestDownloadModelBase_CorruptCache(t *testing.T) {
	fresh := []byte("freshly downloaded basnet")
	srv := newModelServer(t, serveContent(fresh))
	core, logs := observer.New(zapcore.WarnLevel)
	d := NewHuggingFaceDownloader(Config{BaseURL: srv.URL, CacheDir: t.TempDir(), Logger: zap.New(core)})

	path, err := d.Path("basnet.pth")
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("corrupted"), 0o644))

	got, err := d.DownloadModelBase(context.Background(), "basnet.pth")
	require.NoError(t, err)
	assert.Equal(t, path, got)
	assert.EqualValues(t, 1, srv.hits.Load())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, fresh, data)
	assert.Equal(t, 1, logs.FilterMessage("模型摘要不一致, 重新下载").Len())
}

func TestDownloadModel_Fallback(t *testing.T) {
	primary := newModelServer(t, failWith(http.StatusBadGateway))
	backup := newModelServer(t, serveContent(testContent))
	core, logs := observer.New(zapcore.WarnLevel)

	backupDir := t.TempDir()
	fb := NewHuggingFaceDownloader(Config{Name: "backup", BaseURL: backup.URL, CacheDir: backupDir, Registry: testRegistry()})
	d := NewHuggingFaceDownloader(Config{
		Name:     "primary",
		BaseURL:  primary.URL,
		CacheDir: t.TempDir(),
		Registry: testRegistry(),
		Fallback: fb,
		Logger:   zap.New(core),
	})

	path, err := d.DownloadModel(context.Background(), testModel)
	require.NoError(t, err)

	want, err := fb.Path(testModel)
	require.NoError(t, err)
	assert.Equal(t, want, path)
	assert.True(t, strings.HasPrefix(path, backupDir))
	assert.EqualValues(t, 1, primary.hits.Load())
	assert.EqualValues(t, 1, backup.hits.Load())
	assert.Equal(t, 1, logs.FilterMessage("下载模型失败, 尝试备用下载器").Len())
}

func TestDownloadModel_NoFallback(t *testing.T) {
	srv := newModelServer(t, failWith(http.StatusInternalServerError))
	d := NewHuggingFaceDownloader(Config{BaseURL: srv.URL, CacheDir: t.TempDir(), Registry: testRegistry()})

	_, err := d.DownloadModel(context.Background(), testModel)
	require.ErrorIs(t, err, ErrConnection)
	assert.Contains(t, err.Error(), testModel)
	assert.Contains(t, err.Error(), "500")
}

func TestDownloadModel_TransportError(t *testing.T) {
	srv := newModelServer(t, serveContent(testContent))
	url := srv.URL
	srv.Close()

	d := NewHuggingFaceDownloader(Config{BaseURL: url, CacheDir: t.TempDir(), Registry: testRegistry()})
	_, err := d.DownloadModel(context.Background(), testModel)
	require.ErrorIs(t, err, ErrConnection)
}

func TestDownloadModel_BothFail(t *testing.T) {
	primary := newModelServer(t, failWith(http.StatusServiceUnavailable))
	backup := newModelServer(t, failWith(http.StatusBadGateway))

	fb := NewHuggingFaceDownloader(Config{Name: "backup", BaseURL: backup.URL, CacheDir: t.TempDir(), Registry: testRegistry()})
	d := NewHuggingFaceDownloader(Config{Name: "primary", BaseURL: primary.URL, CacheDir: t.TempDir(), Registry: testRegistry(), Fallback: fb})

	_, err := d.DownloadModel(context.Background(), testModel)
	require.ErrorIs(t, err, ErrConnection)
	msg := err.Error()
	assert.Contains(t, msg, "503")
	assert.Contains(t, msg, "502")
	assert.Less(t, strings.Index(msg, "503"), strings.Index(msg, "502"))
}

func TestDownloadModel_NotFoundSkipsFallback(t *testing.T) {
	primary := newModelServer(t, failWith(http.StatusNotFound))
	backup := newModelServer(t, serveContent(testContent))

	fb := NewHuggingFaceDownloader(Config{BaseURL: backup.URL, CacheDir: t.TempDir(), Registry: testRegistry()})
	d := NewHuggingFaceDownloader(Config{BaseURL: primary.URL, CacheDir: t.TempDir(), Registry: testRegistry(), Fallback: fb})

	_, err := d.DownloadModel(context.Background(), testModel)
	require.ErrorIs(t, err, ErrModelNotFound)
	assert.NotErrorIs(t, err, ErrConnection)
	assert.EqualValues(t, 0, backup.hits.Load())
}

func TestDownloadModel_UnknownModel(t *testing.T) {
	srv := newModelServer(t, serveContent(testContent))
	d := NewHuggingFaceDownloader(Config{BaseURL: srv.URL, CacheDir: t.TempDir(), Registry: testRegistry()})

	_, err := d.DownloadModel(context.Background(), "missing.pth")
	require.ErrorIs(t, err, ErrModelNotFound)
	assert.EqualValues(t, 0, srv.hits.Load())
}

func TestDownloadModel_ConcurrentSingleTransfer(t *testing.T) {
	srv := newModelServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.Write(testContent)
	})
	cacheDir := t.TempDir()

	var wg sync.WaitGroup
	paths := make([]string, 8)
	errs := make([]error, 8)
	for i := range paths {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// 每个协程使用独立的下载器, 共享缓存目录
			d := NewHuggingFaceDownloader(Config{BaseURL: srv.URL, CacheDir: cacheDir, Registry: testRegistry()})
			paths[i], errs[i] = d.DownloadModel(context.Background(), testModel)
		}()
	}
	wg.Wait()

	for i := range paths {
		require.NoError(t, errs[i])
		assert.Equal(t, paths[0], paths[i])
	}
	assert.EqualValues(t, 1, srv.hits.Load())
}

func TestDownloadModel_PartialFileRemoved(t *testing.T) {
	srv := newModelServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", "1000")
		w.Write(testContent)
	})
	d := NewHuggingFaceDownloader(Config{BaseURL: srv.URL, CacheDir: t.TempDir(), Registry: testRegistry()})

	_, err := d.DownloadModel(context.Background(), testModel)
	require.ErrorIs(t, err, ErrConnection)

	path, err := d.Path(testModel)
	require.NoError(t, err)
	assert.NoFileExists(t, path)
	parts, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*"+partSuffix))
	require.NoError(t, err)
	assert.Empty(t, parts)
}

func TestDownloadModel_VerifyDownloads(t *testing.T) {
	srv := newModelServer(t, serveContent([]byte("tampered")))
	d := NewHuggingFaceDownloader(Config{
		BaseURL:         srv.URL,
		CacheDir:        t.TempDir(),
		Registry:        testRegistry(),
		VerifyDownloads: true,
	})

	_, err := d.DownloadModel(context.Background(), testModel)
	require.ErrorIs(t, err, ErrChecksumMismatch)
	path, _ := d.Path(testModel)
	assert.NoFileExists(t, path)
}

func TestDownloadModel_Progress(t *testing.T) {
	srv := newModelServer(t, serveContent(testContent))
	var last atomic.Int64
	d := NewHuggingFaceDownloader(Config{
		BaseURL:  srv.URL,
		CacheDir: t.TempDir(),
		Registry: testRegistry(),
		Progress: func(name string, written, _ int64) {
			if name == testModel {
				last.Store(written)
			}
		},
	})

	_, err := d.DownloadModel(context.Background(), testModel)
	require.NoError(t, err)
	assert.EqualValues(t, len(testContent), last.Load())
}

func TestURL(t *testing.T) {
	d := NewHuggingFaceDownloader(Config{BaseURL: "https://example.com", CacheDir: t.TempDir()})
	url, err := d.URL("u2net.pth")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/Carve/u2net-universal/resolve/10305d785481cf4b2eee1d447c39cd6e5f43d74b/full_weights.pth", url)

	_, err = d.URL("nope")
	require.ErrorIs(t, err, ErrModelNotFound)
}

func TestDefaultDownloader(t *testing.T) {
	d := DefaultDownloader(t.TempDir(), nil)
	assert.Equal(t, CarveCDNName, d.Name())
	require.NotNil(t, d.Fallback())
	assert.Equal(t, HuggingFaceName, d.Fallback().Name())
}
