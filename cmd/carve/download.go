package main

import (
	"fmt"
	"sync"

	"github.com/getcharzp/go-carve"
	"github.com/getcharzp/go-carve/download"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func downloadCmd(a *app) *cobra.Command {
	var (
		checkpointsDir string
		verify         bool
		quiet          bool
	)

	cmd := &cobra.Command{
		Use:   "download [model...]",
		Short: "预先下载模型",
		Long:  "下载并校验模型文件, 不指定模型时下载全部模型",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dir := checkpointsDir
			if dir == "" && a.configPath != "" {
				cfg, err := carve.LoadConfig(a.configPath)
				if err != nil {
					return err
				}
				dir = cfg.CheckpointsDir
			}
			dir = download.ResolveCacheDir(dir)

			names := args
			if len(names) == 0 {
				names = download.DefaultRegistry().Names()
			}

			var progress download.ProgressFunc
			if !quiet {
				var (
					mu   sync.Mutex
					last = make(map[string]int64)
				)
				progress = func(name string, written, total int64) {
					mu.Lock()
					defer mu.Unlock()
					// 每 10MB 输出一次
					if written-last[name] < 10<<20 && written != total {
						return
					}
					last[name] = written
					if total > 0 {
						fmt.Fprintf(cmd.OutOrStdout(), "%s: %.1f%%\n", name, float64(written)*100/float64(total))
					} else {
						fmt.Fprintf(cmd.OutOrStdout(), "%s: %d bytes\n", name, written)
					}
				}
			}

			d := newDownloader(dir, verify, progress, a.logger)
			for _, name := range names {
				path, err := d.DownloadModel(ctx, name)
				if err != nil {
					return err
				}
				a.logger.Debug("模型已就绪", zap.String("model", name), zap.String("path", path))
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&checkpointsDir, "checkpoints_dir", "", "模型缓存目录")
	cmd.Flags().BoolVar(&verify, "verify", true, "下载完成后校验摘要")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "不输出下载进度")
	return cmd
}

// newDownloader 与 download.DefaultDownloader 相同的下载链, 额外支持校验与进度回调
func newDownloader(dir string, verify bool, progress download.ProgressFunc, logger *zap.Logger) download.Downloader {
	fallback := download.NewHuggingFaceDownloader(download.Config{
		Name:            download.HuggingFaceName,
		BaseURL:         download.HuggingFaceURL,
		CacheDir:        dir,
		Logger:          logger,
		VerifyDownloads: verify,
		Progress:        progress,
	})
	return download.NewHuggingFaceDownloader(download.Config{
		Name:            download.CarveCDNName,
		BaseURL:         download.CarveCDNURL,
		CacheDir:        dir,
		Fallback:        fallback,
		Logger:          logger,
		VerifyDownloads: verify,
		Progress:        progress,
	})
}
