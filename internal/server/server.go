// Package server 背景去除的 HTTP 接口
package server

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"time"

	"github.com/getcharzp/go-carve"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MaxUploadSize 单次上传的请求体大小上限
const MaxUploadSize = 32 << 20

// Remover 背景去除, 参考 carve.Interface
type Remover interface {
	Remove(ctx context.Context, sources []carve.Source) ([]image.Image, error)
}

// Server HTTP 服务
//
//	POST /api/removebg  表单字段 image (图片文件), bg_color (可选, 背景颜色), 返回 PNG
//	GET  /healthz       健康检查
type Server struct {
	remover   Remover
	logger    *zap.Logger
	engine    *gin.Engine
	maxUpload int64
}

// New 创建 HTTP 服务
func New(remover Remover, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		remover:   remover,
		logger:    logger,
		engine:    gin.New(),
		maxUpload: MaxUploadSize,
	}
	s.engine.MaxMultipartMemory = MaxUploadSize
	s.engine.Use(gin.Recovery(), s.accessLog())
	s.engine.GET("/healthz", s.health)
	s.engine.POST("/api/removebg", s.removeBackground)
	return s
}

// Handler 返回 http.Handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run 监听 addr, ctx 取消后优雅退出
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP 服务已启动", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) removeBackground(c *gin.Context) {
	// 解析表单之前限制请求体大小
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload)
	file, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "图片过大"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少图片文件 image"})
		return
	}

	var bg color.Color
	if v := c.PostForm("bg_color"); v != "" {
		if bg, err = carve.ParseColor(v); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "读取图片失败"})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "读取图片失败"})
		return
	}
	img, err := carve.LoadImage(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	out, err := s.remover.Remove(c.Request.Context(), []carve.Source{img})
	if err != nil {
		s.logger.Error("去除背景失败", zap.String("file", file.Filename), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "去除背景失败"})
		return
	}
	result := out[0]
	if bg != nil {
		result = carve.Flatten(result, bg)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, result); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "编码图片失败"})
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

// accessLog 使用 zap 记录请求日志
func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("请求完成",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}
