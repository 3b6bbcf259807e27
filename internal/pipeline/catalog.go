package pipeline

import (
	"fmt"
	"os"

	"github.com/dpxrk/Pactwise-sub001/internal/agents"
	"github.com/dpxrk/Pactwise-sub001/internal/common"

	"gopkg.in/yaml.v3"
)

// Catalog 流水线类型目录
// 内置 default 与 document_only 两种固定编排；
// 可通过 yaml 文件补充自定义类型，但内置类型不可被覆盖。
type Catalog struct {
	kinds map[Kind][]StageSpec
}

// NewCatalog 创建内置目录
func NewCatalog() *Catalog {
	return &Catalog{
		kinds: map[Kind][]StageSpec{
			KindDefault: {
				{AgentType: agents.AgentTypeExtraction, Operation: DefaultOperation(agents.AgentTypeExtraction)},
				{AgentType: agents.AgentTypeLegalReview, Operation: DefaultOperation(agents.AgentTypeLegalReview)},
				{AgentType: agents.AgentTypeCompliance, Operation: DefaultOperation(agents.AgentTypeCompliance),
					DependsOn: []agents.AgentType{agents.AgentTypeLegalReview}},
				{AgentType: agents.AgentTypeFinancialReview, Operation: DefaultOperation(agents.AgentTypeFinancialReview),
					DependsOn: []agents.AgentType{agents.AgentTypeLegalReview}},
			},
			KindDocumentOnly: {
				{AgentType: agents.AgentTypeExtraction, Operation: DefaultOperation(agents.AgentTypeExtraction)},
				{AgentType: agents.AgentTypeCompliance, Operation: DefaultOperation(agents.AgentTypeCompliance),
					DependsOn: []agents.AgentType{agents.AgentTypeLegalReview}},
			},
		},
	}
}

// catalogFile yaml 目录文件结构
type catalogFile struct {
	Pipelines map[string][]StageSpec `yaml:"pipelines"`
}

// LoadFile 从 yaml 文件补充自定义流水线类型
func (c *Catalog) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("读取流水线目录文件失败: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("解析流水线目录文件失败: %w", err)
	}

	for name, specs := range file.Pipelines {
		kind := Kind(name)
		// 内置类型不可覆盖
		if kind == KindDefault || kind == KindDocumentOnly {
			continue
		}
		for i := range specs {
			if specs[i].Operation == "" {
				specs[i].Operation = DefaultOperation(specs[i].AgentType)
			}
			if !specs[i].AgentType.Valid() {
				return fmt.Errorf("流水线 %s 含未知 Agent 类型: %s", name, specs[i].AgentType)
			}
		}
		c.kinds[kind] = specs
	}
	return nil
}

// StagesFor 解析本次执行的阶段列表
// 显式自定义列表优先；否则按类型取目录，未知类型报错。
// 返回的是副本，调用方可安全修改。
func (c *Catalog) StagesFor(opts RunOptions) ([]StageSpec, error) {
	if len(opts.Stages) > 0 {
		specs := make([]StageSpec, len(opts.Stages))
		copy(specs, opts.Stages)
		for i := range specs {
			if specs[i].Operation == "" {
				specs[i].Operation = DefaultOperation(specs[i].AgentType)
			}
		}
		return specs, nil
	}

	kind := opts.Kind
	if kind == "" {
		kind = KindDefault
	}

	specs, ok := c.kinds[kind]
	if !ok {
		return nil, common.NewBusinessError(common.CodePipelineNotFound,
			fmt.Sprintf("流水线类型不存在: %s", kind))
	}

	out := make([]StageSpec, len(specs))
	copy(out, specs)
	return out, nil
}
