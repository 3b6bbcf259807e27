package extraction

import "strings"

// classRule 分类关键词规则
type classRule struct {
	classification string
	keywords       []string
}

// 规则按声明顺序匹配，先命中多的优先
var classRules = []classRule{
	{"nda", []string{"non-disclosure", "nondisclosure", "confidentiality agreement", "保密协议"}},
	{"service_agreement", []string{"service agreement", "services agreement", "statement of work", "服务协议"}},
	{"purchase_order", []string{"purchase order", "采购订单", "po number"}},
	{"lease_agreement", []string{"lease", "landlord", "tenant shall", "租赁"}},
	{"employment_contract", []string{"employment", "employee", "雇佣合同"}},
	{"invoice", []string{"invoice", "amount due", "发票"}},
}

// classify 基于关键词的轻量级分类
// 返回分类标签与 0~1 的置信度；无命中时回退 general_document。
func classify(text string) (string, float64) {
	lowered := strings.ToLower(text)

	best := ""
	bestHits := 0
	for _, rule := range classRules {
		hits := 0
		for _, kw := range rule.keywords {
			if strings.Contains(lowered, kw) {
				hits++
			}
		}
		if hits > bestHits {
			best = rule.classification
			bestHits = hits
		}
	}

	if best == "" {
		return "general_document", 0.3
	}

	// 命中越多置信度越高，封顶 0.95
	confidence := 0.5 + 0.15*float64(bestHits)
	if confidence > 0.95 {
		confidence = 0.95
	}
	return best, confidence
}
