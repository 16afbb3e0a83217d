package recommend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"mint/internal/model"
)

func TestCatalog(t *testing.T) {
	Convey("商品目录", t, func() {
		Convey("内置目录", func() {
			c, err := LoadCatalog("")
			So(err, ShouldBeNil)
			So(len(c.Products()), ShouldEqual, 8)

			p, ok := c.Find("fiber plus")
			So(ok, ShouldBeTrue)
			So(p.Price, ShouldEqual, 450)
			So(p.Tags, ShouldResemble, []string{"digestion", "weight"})

			vb, _ := c.Find("Vital B Complex")
			So(vb.Warnings, ShouldHaveLength, 1)
		})

		Convey("读取文件", func() {
			path := filepath.Join(t.TempDir(), "catalog.yaml")
			data := "products:\n  - name: ' Test Item '\n    price: 10\n    tags: [sleep]\n"
			So(os.WriteFile(path, []byte(data), 0o600), ShouldBeNil)

			c, err := LoadCatalog(path)
			So(err, ShouldBeNil)
			So(c.Products()[0].Name, ShouldEqual, "Test Item")
		})

		Convey("非法目录", func() {
			_, err := ParseCatalog([]byte("products:\n  - price: 10\n"))
			So(err, ShouldNotBeNil)

			_, err = ParseCatalog([]byte("products:\n  - name: A\n  - name: a\n"))
			So(err, ShouldNotBeNil)

			_, err = ParseCatalog([]byte("products: [unclosed"))
			So(err, ShouldNotBeNil)

			_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
			So(err, ShouldNotBeNil)
		})
	})
}

func TestRecommender(t *testing.T) {
	Convey("推荐", t, func() {
		c, err := LoadCatalog("")
		So(err, ShouldBeNil)
		r := NewRecommender(c)
		ctx := context.Background()

		Convey("按症状推荐，相关度降序", func() {
			recs, err := r.Recommend(ctx, model.Assessment{Symptoms: []string{"I feel bloated and I want to lose weight"}}, model.Preferences{})
			So(err, ShouldBeNil)
			So(len(recs), ShouldBeGreaterThanOrEqualTo, 2)
			So(recs[0].Product.Name, ShouldEqual, "Fiber Plus")
			So(recs[0].RelevanceScore, ShouldEqual, 1.0)
			So(recs[0].Reason, ShouldStartWith, "Targets digestion and weight")
			So(recs[0].Benefits, ShouldHaveLength, 3)
			for i := 1; i < len(recs); i++ {
				So(recs[i-1].RelevanceScore, ShouldBeGreaterThanOrEqualTo, recs[i].RelevanceScore)
			}
		})

		Convey("预算过滤", func() {
			recs, err := r.Recommend(ctx, model.Assessment{Conditions: []string{"energy"}}, model.Preferences{Budget: "under 400"})
			So(err, ShouldBeNil)
			So(recs, ShouldHaveLength, 1)
			So(recs[0].Product.Name, ShouldEqual, "Vital B Complex")
			So(recs[0].Reason, ShouldEndWith, "(within budget)")
		})

		Convey("无匹配返回空", func() {
			recs, err := r.Recommend(ctx, model.Assessment{Symptoms: []string{"hello"}}, model.Preferences{})
			So(err, ShouldBeNil)
			So(recs, ShouldBeEmpty)
		})

		Convey("已取消的 context", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := r.Recommend(cctx, model.Assessment{Conditions: []string{"sleep"}}, model.Preferences{})
			So(err, ShouldEqual, context.Canceled)
		})
	})
}

func TestAssessmentFrom(t *testing.T) {
	Convey("由上下文构造评估", t, func() {
		cc := &model.ConversationContext{}
		cc.Metadata.Preferences.HealthConditions = []string{"sleep"}
		cc.Metadata.DietProfile = &model.DietProfile{Goal: "lose weight"}
		cc.Metadata.KeyPoints = []string{"goal: sleep better", "budget: 500"}

		a := AssessmentFrom(cc, "any tips?")
		So(a.Symptoms, ShouldResemble, []string{"any tips?"})
		So(a.Conditions, ShouldResemble, []string{"sleep"})
		So(a.Goals, ShouldResemble, []string{"lose weight", "sleep better"})

		So(AssessmentFrom(nil, "x").Conditions, ShouldBeEmpty)
	})
}
