package trimap

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// 二值平面上的形态学运算, 使用 OpenCV 默认边界: 图像之外的像素不参与计算

// dilate 使用 (2r+1)x(2r+1) 的方形核膨胀
func dilate(src []bool, w, h, r int) ([]bool, error) {
	if r <= 0 {
		return append([]bool(nil), src...), nil
	}
	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(2*r+1, 2*r+1))
	defer kernel.Close()
	return morph(src, w, h, 1, func(in gocv.Mat, out *gocv.Mat) error {
		return gocv.Dilate(in, out, kernel)
	})
}

// erode 使用 3x3 的方形核腐蚀 iters 次
func erode(src []bool, w, h, iters int) ([]bool, error) {
	if iters <= 0 {
		return append([]bool(nil), src...), nil
	}
	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(3, 3))
	defer kernel.Close()
	return morph(src, w, h, iters, func(in gocv.Mat, out *gocv.Mat) error {
		return gocv.Erode(in, out, kernel)
	})
}

// morph 将二值平面转为 8 位 Mat, 执行 iters 次 op 后转回
func morph(src []bool, w, h, iters int, op func(in gocv.Mat, out *gocv.Mat) error) ([]bool, error) {
	buf := make([]byte, len(src))
	for i, v := range src {
		if v {
			buf[i] = 255
		}
	}
	cur, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC1, buf)
	if err != nil {
		return nil, fmt.Errorf("创建 Mat 失败: %w", err)
	}
	defer func() { cur.Close() }()

	for k := 0; k < iters; k++ {
		next := gocv.NewMat()
		err := op(cur, &next)
		cur.Close()
		cur = next
		if err != nil {
			return nil, fmt.Errorf("形态学运算失败: %w", err)
		}
	}

	data := cur.ToBytes()
	if len(data) != len(src) {
		return nil, fmt.Errorf("形态学运算输出大小 %d, 期望 %d", len(data), len(src))
	}
	out := make([]bool, len(src))
	for i, v := range data {
		out[i] = v > 0
	}
	return out, nil
}
