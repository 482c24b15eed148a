package scene

import (
	"context"
	"fmt"
	"image"

	"github.com/getcharzp/go-carve"
	"github.com/getcharzp/go-carve/detect"
	"go.uber.org/zap"
)

// SceneClassifier 场景分类阶段, 参考 Classifier
type SceneClassifier interface {
	Classify(ctx context.Context, images []image.Image) ([][]ClassResult, error)
}

// ObjectClassifier 物体分类阶段, 参考 detect.Engine
type ObjectClassifier interface {
	Objects(ctx context.Context, images []image.Image) ([][]detect.Group, error)
}

// AutoScene 按场景选择分割网络的预处理方法
//
// 图片按分类结果分组, 每组使用 Networks 中对应的分割网络,
// 没有配置对应网络的场景使用 Interface 自身的分割网络
type AutoScene struct {
	Classifier SceneClassifier
	Networks   map[Scene]carve.Segmenter
	Logger     *zap.Logger
}

// Preprocess 实现 carve.Preprocessor
func (a *AutoScene) Preprocess(ctx context.Context, iface *carve.Interface, images []image.Image) ([]*image.Gray, error) {
	if iface == nil || a.Classifier == nil {
		return nil, fmt.Errorf("%w: 未指定场景分类器", carve.ErrInvalidConfig)
	}
	scenes, err := topScenes(ctx, a.Classifier, images)
	if err != nil {
		return nil, err
	}
	return segmentGroups(ctx, iface, scenes, a.Networks, a.Logger, images)
}

// Auto 结合场景分类与物体检测, 为每张图片选择分割网络 (规则见 SelectNetwork)
//
// 选出的网络不在 Networks 中时使用 Interface 自身的分割网络
type Auto struct {
	Classifier SceneClassifier
	Objects    ObjectClassifier
	Networks   map[carve.SegNetwork]carve.Segmenter
	Logger     *zap.Logger
}

// Preprocess 实现 carve.Preprocessor
func (a *Auto) Preprocess(ctx context.Context, iface *carve.Interface, images []image.Image) ([]*image.Gray, error) {
	if iface == nil || a.Classifier == nil || a.Objects == nil {
		return nil, fmt.Errorf("%w: 未指定场景分类器或物体分类器", carve.ErrInvalidConfig)
	}
	scenes, err := topScenes(ctx, a.Classifier, images)
	if err != nil {
		return nil, err
	}
	objects, err := a.Objects.Objects(ctx, images)
	if err != nil {
		return nil, err
	}
	if len(objects) != len(images) {
		return nil, fmt.Errorf("%w: 图片 %d 张, 物体分类结果 %d 个", carve.ErrLengthMismatch, len(images), len(objects))
	}

	networks := make([]carve.SegNetwork, len(images))
	for i := range images {
		networks[i] = SelectNetwork(scenes[i], objects[i])
	}
	return segmentGroups(ctx, iface, networks, a.Networks, a.Logger, images)
}

// SelectNetwork 根据场景与检测到的物体选择分割网络
//
//	digital: tracer_b7
//	没有检测到物体: tracer_b7
//	hard: 有人或车辆时 tracer_b7, 只有动物时 u2net, 其它 tracer_b7
//	soft: 有人时 u2net, 有车辆时 tracer_b7, 其它 u2net
func SelectNetwork(scene Scene, objects []detect.Group) carve.SegNetwork {
	if scene == SceneDigital || len(objects) == 0 {
		return carve.NetTracerB7
	}
	count := make(map[detect.Group]int)
	for _, o := range objects {
		count[o]++
	}

	switch scene {
	case SceneHard:
		switch {
		case count[detect.GroupHuman] > 0, count[detect.GroupCars] > 0:
			return carve.NetTracerB7
		case count[detect.GroupAnimals] > 0:
			return carve.NetU2Net
		}
		return carve.NetTracerB7
	case SceneSoft:
		switch {
		case count[detect.GroupHuman] > 0:
			return carve.NetU2Net
		case count[detect.GroupCars] > 0:
			return carve.NetTracerB7
		}
		return carve.NetU2Net
	}
	return carve.NetTracerB7
}

// topScenes 每张图片概率最高的场景, 没有结果时为空
func topScenes(ctx context.Context, classifier SceneClassifier, images []image.Image) ([]Scene, error) {
	results, err := classifier.Classify(ctx, images)
	if err != nil {
		return nil, err
	}
	if len(results) != len(images) {
		return nil, fmt.Errorf("%w: 图片 %d 张, 分类结果 %d 个", carve.ErrLengthMismatch, len(images), len(results))
	}
	scenes := make([]Scene, len(results))
	for i, r := range results {
		if len(r) > 0 {
			scenes[i] = r[0].Scene
		}
	}
	return scenes, nil
}

// group 使用同一分割网络的图片下标
type group[K ~string] struct {
	key     K // 为空表示使用 Interface 的分割网络
	indexes []int
}

// segmentGroups 按 keys 分组分割, 组的顺序为首次出现的顺序, 掩码按输入顺序返回
func segmentGroups[K ~string](ctx context.Context, iface *carve.Interface, keys []K,
	networks map[K]carve.Segmenter, logger *zap.Logger, images []image.Image) ([]*image.Gray, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var groups []*group[K]
	byKey := make(map[K]*group[K])
	for i, k := range keys {
		if networks[k] == nil {
			k = ""
		}
		g, ok := byKey[k]
		if !ok {
			g = &group[K]{key: k}
			byKey[k] = g
			groups = append(groups, g)
		}
		g.indexes = append(g.indexes, i)
	}

	masks := make([]*image.Gray, len(images))
	for _, g := range groups {
		subset := make([]image.Image, len(g.indexes))
		for k, i := range g.indexes {
			subset[k] = images[i]
		}

		var (
			part []*image.Gray
			err  error
		)
		if g.key != "" {
			part, err = networks[g.key].Segment(ctx, subset)
		} else {
			part, err = iface.Segment(ctx, subset)
		}
		if err != nil {
			return nil, fmt.Errorf("分割 %q 组失败: %w", g.key, err)
		}
		if len(part) != len(subset) {
			return nil, fmt.Errorf("%w: %q 组图片 %d 张, 掩码 %d 张", carve.ErrLengthMismatch, g.key, len(subset), len(part))
		}
		for k, i := range g.indexes {
			masks[i] = part[k]
		}
		logger.Debug("分组分割完成", zap.String("group", string(g.key)), zap.Int("count", len(subset)))
	}
	return masks, nil
}
