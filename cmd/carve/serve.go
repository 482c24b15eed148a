package main

import (
	"time"

	"github.com/getcharzp/go-carve/download"
	"github.com/getcharzp/go-carve/internal/server"
	"github.com/getcharzp/go-carve/pipeline"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// staleAge 超过该时间的临时下载文件与锁文件会被清理
const staleAge = 24 * time.Hour

func serveCmd(a *app) *cobra.Command {
	var (
		addr  string
		flags configFlags
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 服务",
		Long:  "启动背景去除 HTTP 服务: POST /api/removebg, GET /healthz",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := flags.resolve(cmd.Flags(), a.configPath)
			if err != nil {
				return err
			}

			p, err := pipeline.Build(ctx, cfg, pipeline.WithLogger(a.logger))
			if err != nil {
				return err
			}
			defer p.Destroy()

			// 定时清理中断下载留下的文件
			cacheDir := download.ResolveCacheDir(cfg.CheckpointsDir)
			c := cron.New()
			if _, err := c.AddFunc("@hourly", func() {
				n, err := download.Cleanup(cacheDir, staleAge)
				if err != nil {
					a.logger.Warn("清理模型缓存失败", zap.Error(err))
					return
				}
				if n > 0 {
					a.logger.Info("已清理模型缓存中的临时文件", zap.Int("count", n))
				}
			}); err != nil {
				return err
			}
			c.Start()
			defer c.Stop()

			return server.New(p, a.logger).Run(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "监听地址")
	flags.register(cmd.Flags())
	return cmd
}
