package download

import (
	"maps"
	"slices"
	"strings"
)

// Artifact 远程模型文件的描述
type Artifact struct {
	Repository string // 仓库, 例如 Carve/basnet-universal
	Revision   string // 固定的版本
	Filename   string // 仓库中的文件名
	Digest     string // SHA-512 十六进制摘要
}

// ShortName 仓库短名, 用作缓存子目录
func (a Artifact) ShortName() string {
	if i := strings.LastIndex(a.Repository, "/"); i >= 0 {
		return a.Repository[i+1:]
	}
	return a.Repository
}

// Registry 模型名称到远程文件的静态映射, 创建后只读
type Registry struct {
	artifacts map[string]Artifact
}

// NewRegistry 创建模型注册表, 传入的 map 会被复制
func NewRegistry(artifacts map[string]Artifact) *Registry {
	return &Registry{artifacts: maps.Clone(artifacts)}
}

// Lookup 查找模型
func (r *Registry) Lookup(name string) (Artifact, bool) {
	a, ok := r.artifacts[name]
	return a, ok
}

// Names 按字典序返回所有模型名称
func (r *Registry) Names() []string {
	return slices.Sorted(maps.Keys(r.artifacts))
}

var defaultRegistry = NewRegistry(map[string]Artifact{
	"basnet.pth": {
		Repository: "Carve/basnet-universal",
		Revision:   "870becbdb364fda6d8fdb2c10b072542f8d08701",
		Filename:   "basnet.pth",
		Digest:     "e409cb709f4abca87cb11bd44a9ad3f909044a917977ab65244b4c94dd338b1a37755c4253d7cb54526b7763622a094d7b676d34b5e6886689256754e5a5e6ad",
	},
	"deeplab.pth": {
		Repository: "Carve/deeplabv3-resnet101",
		Revision:   "d504005392fc877565afdf58aad0cd524682d2b0",
		Filename:   "deeplab.pth",
		Digest:     "9c5a1795bc8baa267200a44b49ac544a1ba2687d210f63777e4bd715387324469a59b072f8a289cc471c637b367932177e5b312e8ea6351c1763d9ff44b4857c",
	},
	"fba_matting.pth": {
		Repository: "Carve/fba",
		Revision:   "a5d3457df0fb9c88ea19ed700d409756ca2069d1",
		Filename:   "fba_matting.pth",
		Digest:     "890906ec94c1bfd2ad08707a63e4ccb0955d7f5d25e32853950c24c784cbad2e59be277999defc3754905d0f15aa75702cdead3cfe669ff72f08811c52971613",
	},
	"u2net.pth": {
		Repository: "Carve/u2net-universal",
		Revision:   "10305d785481cf4b2eee1d447c39cd6e5f43d74b",
		Filename:   "full_weights.pth",
		Digest:     "16f8125e2fedd8c85db0e001ee15338b4aa2fda77bab8ba70c25ebea1533fda5ee70a909b934a9bd495b432cef89d629f00a07858a517742476fa8b346de24f7",
	},
	"tracer_b7.pth": {
		Repository: "Carve/tracer_b7",
		Revision:   "d8a8fd9e7b3fa0d2f1506fe7242966b34381e9c5",
		Filename:   "tracer_b7.pth",
		Digest:     "c439c5c12d4d43d5f9be9ec61e68b2e54658a541bccac2577ef5a54fb252b6e8415d41f7ec2487033d0c02b4dd08367958e4e62091318111c519f93e2632be7b",
	},
	"scene_classifier.pth": {
		Repository: "Carve/scene_classifier",
		Revision:   "71c8e4c771dd5a20ff0c5c9e3c8f1c9cf8082740",
		Filename:   "scene_classifier.pth",
		Digest:     "6d8692510abde453b406a1fea557afdea62fd2a2a2677283a3ecc2341a4895ee99ed65cedcb79b80775db14c3ffcfc0aad2caec1d85140678852039d2d4e76b4",
	},
	"yolov4_coco_with_classes.pth": {
		Repository: "Carve/yolov4_coco",
		Revision:   "e3fc9cd22f86e456d2749d1ae148400f2f950fb3",
		Filename:   "yolov4_coco_with_classes.pth",
		Digest:     "44b6ec2dd35dc3802bf8c512002f76e00e97bfbc86bc7af6de2fafce229a41b4ca12c6f3d7589278c71cd4ddd62df80389b148c19b84fa03216905407a107fff",
	},
	"cascadepsp.pth": {
		Repository: "Carve/cascadepsp",
		Revision:   "3ca1e5e432344b1277bc88d1c6d4265c46cff62f",
		Filename:   "cascadepsp.pth",
		Digest:     "3f895f5126d80d6f73186f045557ea7c8eab4dfa3d69a995815bb2c03d564573f36c474f04d7bf0022a27829f583a1a793b036adf801cb423e41a4831b830122",
	},
	"isnet.pth": {
		Repository: "Carve/isnet",
		Revision:   "91475fcb280243259a551653597c4702eabe9ff1",
		Filename:   "isnet.pth",
		Digest:     "e996b95c78aefe4573950ce1ed2eec20fa3c869381e9b5233c361a8e1dff09f844f6c054c9cfa55377ae16a4cf55e727926599df0b1b8af65de478eccfac4708",
	},
	"isnet-97-carveset.pth": {
		Repository: "Carve/isnet",
		Revision:   "743f5677b76322c87f09288cf913023a284f75c6",
		Filename:   "isnet-97-carveset.pth",
		Digest:     "8df0bd65367928ebb81b6f0fdb24ae991dc8c574a39d5e353d86844366b21d0c483ed71b0352d752ae5792b3dc6adc46bfb72934046656239cb2ddc615953365",
	},
	"tracer-b7-carveset-finetuned.pth": {
		Repository: "Carve/tracer_b7",
		Revision:   "c5cd31d81855f1b6fe4188fa226cb468494cea85",
		Filename:   "tracer-b7-carveset-finetuned.pth",
		Digest:     "6e6f553580a5db48fb27a145132b32481bceb55ef5b39b1b1fa2e3fda97c44625d0fba24153209efb737cdcb4c1ef781138e3ea95e766c379915bf76a28c92e6",
	},
	"cascadepsp_finetuned_carveset.pth": {
		Repository: "Carve/cascadepsp",
		Revision:   "f29a969d48f5266e4727668cbca78723a518d1cd",
		Filename:   "cascadepsp_finetuned_carveset.pth",
		Digest:     "44e045eb9f9551b53e0554041c7939340056db129b6c6351011e8db86e5ef4cb49c210722feffa4587f747dfb8c0299ee1609da4986c9223c4d474ae7bcea71b",
	},
})

// DefaultRegistry 内置的模型注册表
func DefaultRegistry() *Registry {
	return defaultRegistry
}
