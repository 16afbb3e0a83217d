package model

// Product 商品
type Product struct {
	Name        string   `yaml:"name" json:"name"`
	Price       float64  `yaml:"price" json:"price"`
	Description string   `yaml:"description" json:"description,omitempty"`
	Benefits    []string `yaml:"benefits" json:"benefits,omitempty"`
	Dosage      string   `yaml:"dosage" json:"dosage,omitempty"`
	Warnings    []string `yaml:"warnings" json:"warnings,omitempty"`
	// Tags 匹配的健康类别 / 目标（与 textrules 的类别名一致）
	Tags []string `yaml:"tags" json:"tags,omitempty"`
}

// Recommendation 推荐结果
type Recommendation struct {
	Product        Product  `json:"product"`
	RelevanceScore float64  `json:"relevance_score"`
	Reason         string   `json:"reason"`
	Benefits       []string `json:"benefits,omitempty"`
}

// Assessment 健康评估（推荐协作者的输入）
type Assessment struct {
	Symptoms   []string `json:"symptoms,omitempty"`
	Conditions []string `json:"conditions,omitempty"`
	Severity   string   `json:"severity,omitempty"`
	Duration   string   `json:"duration,omitempty"`
	Goals      []string `json:"goals,omitempty"`
}
