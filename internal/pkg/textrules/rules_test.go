package textrules

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestTable(t *testing.T) {
	Convey("规则表匹配", t, func() {
		Convey("整词匹配，忽略大小写", func() {
			So(Health.Categories("I feel BLOATED and tired after lunch"), ShouldResemble, []string{HealthDigestion, HealthEnergy})
			So(Intents.Has("that's great", IntentDietFollowUp), ShouldBeFalse)
			So(Intents.Has("I usually eat late", IntentDietFollowUp), ShouldBeTrue)
		})

		Convey("First 返回表顺序上的第一个类别", func() {
			c, ok := Intents.First("I want to buy the diet pack")
			So(ok, ShouldBeTrue)
			So(c, ShouldEqual, IntentDiet)

			_, ok = Health.First("hello there")
			So(ok, ShouldBeFalse)
		})

		Convey("回复信号", func() {
			So(Replies.Has("Thank you for your order! We will ship tomorrow.", ReplyClosing), ShouldBeTrue)
			So(Replies.Has("Could you share your full address?", ReplyAddressRequest), ShouldBeTrue)
			So(Replies.Has("I recommend Fiber Plus for you.", ReplyRecommendation), ShouldBeTrue)
		})

		Convey("新问题判定", func() {
			So(IsFreshQuestion("anything for sleep?"), ShouldBeTrue)
			So(IsFreshQuestion("What about my knees"), ShouldBeTrue)
			So(IsFreshQuestion("thanks"), ShouldBeFalse)
		})

		Convey("最后一轮归类", func() {
			So(ClassifyTurn("how much is it"), ShouldEqual, TurnPricingQuestion)
			So(ClassifyTurn("I want to order two"), ShouldEqual, TurnOrderingInterest)
			So(ClassifyTurn("is it good for my gut"), ShouldEqual, TurnBenefitQuestion)
			So(ClassifyTurn("I have insomnia"), ShouldEqual, TurnHealthTopic)
			So(ClassifyTurn("hello"), ShouldEqual, TurnGeneral)
		})
	})
}

func TestExtractCustomer(t *testing.T) {
	Convey("客户信息抽取", t, func() {
		Convey("姓名、电话、地址", func() {
			d := ExtractCustomer("My name is Somchai Jaidee, phone 081-234-5678")
			So(d[FieldName], ShouldEqual, "Somchai Jaidee")
			So(d[FieldPhone], ShouldEqual, "0812345678")

			d = ExtractCustomer("Please deliver to 99/1 Sukhumvit Road, Bangkok 10110")
			So(d[FieldAddress], ShouldEqual, "99/1 Sukhumvit Road, Bangkok 10110")
		})

		Convey("支付与配送方式归一化", func() {
			d := ExtractCustomer("I'll pay by bank transfer, express please")
			So(d[FieldPayment], ShouldEqual, "bank_transfer")
			So(d[FieldShipping], ShouldEqual, "express")
		})

		Convey("数字太短不算电话", func() {
			d := ExtractCustomer("I want 2 bottles for 450")
			_, ok := d[FieldPhone]
			So(ok, ShouldBeFalse)
			So(HasCustomerDetail("I want 2 bottles for 450"), ShouldBeFalse)
		})

		Convey("小写开头不当作姓名", func() {
			_, ok := ExtractCustomer("i am tired all the time")[FieldName]
			So(ok, ShouldBeFalse)
		})
	})
}
