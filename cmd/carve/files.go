package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const removedSuffix = "_bg_removed"

// 可处理的图片扩展名
var allowedExts = []string{".jpg", ".jpeg", ".png", ".bmp", ".tiff", ".tif", ".webp", ".gif"}

// collectImages 收集待处理的图片, 跳过已经去除过背景的结果文件
func collectImages(input string, recursive bool) ([]string, error) {
	info, err := os.Stat(input)
	if err != nil {
		return nil, fmt.Errorf("文件 %s 不存在", input)
	}
	if !info.IsDir() {
		if recursive {
			return nil, fmt.Errorf("使用 --recursive 时 -i 必须是目录")
		}
		return []string{input}, nil
	}

	var files []string
	err = filepath.WalkDir(input, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if path != input && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		name := entry.Name()
		if !slices.Contains(allowedExts, strings.ToLower(filepath.Ext(name))) || strings.Contains(name, removedSuffix) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// outputPath 结果的保存路径
//
//	output 为空: <原文件目录>/<原文件名>_bg_removed.png
//	output 为已存在的目录或没有扩展名: <output>/<原文件名>.png
//	否则 output 视为文件路径, 扩展名替换为 .png
func outputPath(output, input string) (string, error) {
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	if output == "" {
		return filepath.Join(filepath.Dir(input), stem+removedSuffix+".png"), nil
	}
	if info, err := os.Stat(output); err == nil && info.IsDir() {
		return filepath.Join(output, stem+".png"), nil
	}
	ext := filepath.Ext(output)
	switch strings.ToLower(ext) {
	case "":
		if err := os.MkdirAll(output, 0o755); err != nil {
			return "", fmt.Errorf("创建输出目录失败: %w", err)
		}
		return filepath.Join(output, stem+".png"), nil
	case ".png", ".jpg", ".jpeg":
		return strings.TrimSuffix(output, ext) + ".png", nil
	}
	return "", fmt.Errorf("不支持的输出格式 %s, 仅支持 png", ext)
}
