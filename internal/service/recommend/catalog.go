package recommend

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"mint/internal/model"
)

// catalogFile 目录文件格式
type catalogFile struct {
	Products []model.Product `yaml:"products"`
}

// Catalog 商品目录，只读
type Catalog struct {
	products []model.Product
}

// NewCatalog 用给定商品创建目录
func NewCatalog(products []model.Product) *Catalog {
	return &Catalog{products: append([]model.Product(nil), products...)}
}

// LoadCatalog 读取 YAML 目录文件，路径为空时使用内置目录
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return ParseCatalog([]byte(defaultCatalog))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return ParseCatalog(data)
}

// ParseCatalog 解析 YAML 目录
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	seen := make(map[string]bool, len(f.Products))
	for i, p := range f.Products {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return nil, fmt.Errorf("parse catalog: product #%d has no name", i+1)
		}
		if seen[strings.ToLower(name)] {
			return nil, fmt.Errorf("parse catalog: duplicate product %q", name)
		}
		if p.Price < 0 {
			return nil, fmt.Errorf("parse catalog: product %q has negative price", name)
		}
		seen[strings.ToLower(name)] = true
		f.Products[i].Name = name
	}
	return NewCatalog(f.Products), nil
}

// Products 全部商品（副本）
func (c *Catalog) Products() []model.Product {
	return append([]model.Product(nil), c.products...)
}

// Find 按名称查找（忽略大小写）
func (c *Catalog) Find(name string) (model.Product, bool) {
	for _, p := range c.products {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return model.Product{}, false
}

const defaultCatalog = `
products:
  - name: Fiber Plus
    price: 450
    description: Prebiotic fiber blend with psyllium husk and inulin.
    benefits: [Supports regular bowel movements, Reduces bloating, Feeds good gut bacteria, Helps you feel full longer]
    dosage: 1 sachet mixed in a glass of water before breakfast.
    warnings: [Drink plenty of water during the day, Separate from medicines by 2 hours]
    tags: [digestion, weight]
  - name: Sleep Well
    price: 590
    description: Magnesium glycinate with chamomile and L-theanine.
    benefits: [Helps you fall asleep faster, Calms the mind before bed, Supports muscle relaxation]
    dosage: 2 capsules 30 minutes before bed.
    warnings: [May cause drowsiness, Not for pregnant or breastfeeding women]
    tags: [sleep, stress]
  - name: Gluco Balance
    price: 890
    description: Bitter melon, cinnamon and chromium.
    benefits: [Supports healthy blood sugar levels, Reduces sugar cravings]
    dosage: 1 capsule after each main meal.
    warnings: [Consult your doctor if you take diabetes medication, Monitor blood sugar regularly]
    tags: [blood_sugar, weight]
  - name: Heart Omega
    price: 750
    description: Fish oil with high EPA and DHA.
    benefits: [Supports healthy cholesterol levels, Supports heart and blood vessel health, Supports brain function]
    dosage: 2 softgels daily with a meal.
    warnings: [Not suitable for people allergic to fish, Consult your doctor if you take blood thinners]
    tags: [cholesterol, blood_pressure]
  - name: Joint Flex
    price: 990
    description: Glucosamine, chondroitin and turmeric extract.
    benefits: [Supports joint comfort, Helps maintain cartilage, Supports mobility]
    dosage: 2 tablets daily after a meal.
    warnings: [Not suitable for people allergic to shellfish]
    tags: [joints]
  - name: Immune Shield
    price: 520
    description: Vitamin C, zinc and elderberry.
    benefits: [Supports the immune system, Helps reduce the duration of colds, Antioxidant protection]
    dosage: 1 tablet daily.
    warnings: [Do not exceed the recommended dose]
    tags: [immunity, energy, skin]
  - name: Vital B Complex
    price: 390
    description: Full B vitamin complex with iron.
    benefits: [Reduces tiredness and fatigue, Supports energy metabolism, Supports focus]
    dosage: 1 tablet with breakfast.
    warnings: ["May turn urine bright yellow, which is harmless"]
    tags: [energy, stress]
  - name: Collagen Glow
    price: 690
    description: Hydrolysed marine collagen with vitamin C and hyaluronic acid.
    benefits: [Supports skin hydration, Supports skin elasticity, Supports healthy hair and nails]
    dosage: 1 scoop daily in water or juice.
    warnings: [Not suitable for people allergic to fish]
    tags: [skin, joints]
`
