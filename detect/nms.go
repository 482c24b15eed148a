package detect

import (
	"image"
	"sort"
)

type candidate struct {
	classID int
	score   float32
	box     image.Rectangle
}

// nms 按类别分别做非极大值抑制, 结果按置信度从高到低排列
//
// # Params:
//
//	cands: 候选框
//	iouThresh: IOU 阈值
func nms(cands []candidate, iouThresh float32) []candidate {
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].score > cands[j].score
	})

	keep := make([]candidate, 0)
	suppressed := make([]bool, len(cands))
	for i := range cands {
		if suppressed[i] {
			continue
		}
		keep = append(keep, cands[i])
		for j := i + 1; j < len(cands); j++ {
			if suppressed[j] || cands[j].classID != cands[i].classID {
				continue
			}
			if computeIOU(cands[i].box, cands[j].box) > iouThresh {
				suppressed[j] = true
			}
		}
	}
	return keep
}

func computeIOU(r1, r2 image.Rectangle) float32 {
	intersect := r1.Intersect(r2)
	if intersect.Empty() {
		return 0
	}
	interArea := intersect.Dx() * intersect.Dy()
	area1 := r1.Dx() * r1.Dy()
	area2 := r2.Dx() * r2.Dy()
	return float32(interArea) / float32(area1+area2-interArea)
}
