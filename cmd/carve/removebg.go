package main

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/getcharzp/go-carve"
	"github.com/getcharzp/go-carve/pipeline"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func removeBgCmd(a *app) *cobra.Command {
	var (
		input, output string
		recursive     bool
		batchSize     int
		bgColor       string
		flags         configFlags
	)

	cmd := &cobra.Command{
		Use:   "removebg",
		Short: "去除图片背景",
		Long:  "去除指定图片的背景, 默认保存为 <原文件目录>/<原文件名>_bg_removed.png",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := flags.resolve(cmd.Flags(), a.configPath)
			if err != nil {
				return err
			}
			if batchSize <= 0 {
				return fmt.Errorf("--batch_size 必须大于 0")
			}
			var bg color.Color
			if bgColor != "" {
				if bg, err = carve.ParseColor(bgColor); err != nil {
					return err
				}
			}

			files, err := collectImages(input, recursive)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "没有找到图片")
				return nil
			}

			p, err := pipeline.Build(ctx, cfg, pipeline.WithLogger(a.logger))
			if err != nil {
				return err
			}
			defer p.Destroy()

			batches := carve.Batches(len(files), batchSize)
			for n, batch := range batches {
				chunk := files[batch.Start:batch.End]
				sources := make([]carve.Source, len(chunk))
				for i, f := range chunk {
					sources[i] = f
				}
				images, err := p.Remove(ctx, sources)
				if err != nil {
					return err
				}

				if _, err := carve.ParallelMap(ctx, chunk, cfg.Workers, func(_ context.Context, i int, src string) (struct{}, error) {
					return struct{}{}, save(output, src, images[i], bg)
				}); err != nil {
					return err
				}
				a.logger.Info("批次完成", zap.Int("batch", n+1), zap.Int("total", len(batches)))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "已处理 %d 张图片\n", len(files))
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "图片文件或目录, 使用 --recursive 时必须是目录")
	cmd.Flags().StringVarP(&output, "output", "o", "", "输出文件或目录")
	cmd.Flags().BoolVar(&recursive, "recursive", false, "递归查找目录中的图片")
	cmd.Flags().IntVar(&batchSize, "batch_size", 10, "每次加载到内存中的图片数")
	cmd.Flags().StringVar(&bgColor, "bg-color", "", "背景颜色, 例如 #ffffff, 默认透明")
	flags.register(cmd.Flags())
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

// save 保存结果, bg 不为 nil 时铺上纯色背景
func save(output, src string, img image.Image, bg color.Color) error {
	path, err := outputPath(output, src)
	if err != nil {
		return err
	}
	if bg != nil {
		img = carve.Flatten(img, bg)
	}
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("保存 %s 失败: %w", path, err)
	}
	return nil
}
