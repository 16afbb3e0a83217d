package textrules

import "strings"

// 健康关注点规范类别
const (
	HealthDigestion     = "digestion"
	HealthSleep         = "sleep"
	HealthWeight        = "weight"
	HealthBloodSugar    = "blood_sugar"
	HealthBloodPressure = "blood_pressure"
	HealthCholesterol   = "cholesterol"
	HealthJoints        = "joints"
	HealthImmunity      = "immunity"
	HealthEnergy        = "energy"
	HealthSkin          = "skin"
	HealthStress        = "stress"
)

// Health 症状关键词 -> 规范类别
var Health = Table{
	NewRule(HealthDigestion, "bloating", "bloated", "constipation", "constipated", "indigestion", "stomach", "gut", "acid reflux", "heartburn", "diarrhea"),
	NewRule(HealthSleep, "insomnia", "can't sleep", "cannot sleep", "sleepless", "sleep", "wake up at night"),
	NewRule(HealthWeight, "overweight", "lose weight", "weight loss", "weight", "belly fat", "obese"),
	NewRule(HealthBloodSugar, "diabetes", "diabetic", "blood sugar", "glucose", "insulin"),
	NewRule(HealthBloodPressure, "blood pressure", "hypertension"),
	NewRule(HealthCholesterol, "cholesterol", "triglyceride", "ldl"),
	NewRule(HealthJoints, "joint", "joints", "knee", "arthritis", "back pain", "stiff"),
	NewRule(HealthImmunity, "immune", "immunity", "catch a cold", "always sick", "flu", "allergy", "allergies"),
	NewRule(HealthEnergy, "tired", "fatigue", "exhausted", "no energy", "low energy", "weak"),
	NewRule(HealthSkin, "acne", "skin", "wrinkle", "wrinkles", "dry skin", "pimple"),
	NewRule(HealthStress, "stress", "stressed", "anxiety", "anxious", "headache", "migraine"),
}

// 意图类别
const (
	IntentDiet           = "diet"
	IntentDietFollowUp   = "diet_follow_up"
	IntentOrder          = "order"
	IntentAffirm         = "affirm"
	IntentProduct        = "product"
	IntentFreshQuestion  = "fresh_question"
	IntentGoal           = "goal"
	IntentBudget         = "budget"
	IntentBrief          = "brief"
	IntentNoEmoji        = "no_emoji"
	ReplyClosing         = "closing"
	ReplyRecommendation  = "recommendation"
	ReplyAddressRequest  = "address_request"
	TurnPricingQuestion  = "pricing question"
	TurnOrderingInterest = "ordering interest"
	TurnBenefitQuestion  = "benefit question"
	TurnHealthTopic      = "health topic"
	TurnGeneral          = "general"
)

// Intents 用户消息意图
var Intents = Table{
	NewRule(IntentDiet, "diet", "meal plan", "meal plans", "what should i eat", "calorie", "calories", "nutrition", "menu", "keto", "intermittent fasting", "eating plan"),
	NewRule(IntentDietFollowUp, "eat", "eating", "snack", "snacks", "drink", "coffee", "sugar", "rice", "fried", "vegetables", "fruit", "breakfast", "lunch", "dinner", "times a day", "usually", "habit", "portion", "meals"),
	NewRule(IntentOrder, "order", "buy", "purchase", "checkout", "i'll take", "i will take", "add to cart", "want to get", "cash on delivery", "how do i pay"),
	NewRule(IntentAffirm, "yes", "yep", "yeah", "confirm", "confirmed", "correct", "ok", "okay", "sure", "that's right", "go ahead", "proceed", "sounds good"),
	NewRule(IntentProduct, "product", "products", "price", "prices", "cost", "how much", "benefit", "benefits", "ingredient", "ingredients", "recommend", "supplement", "dosage", "side effect", "side effects", "what is good for"),
	NewRule(IntentFreshQuestion, "what", "how", "can you", "do you", "is there", "which", "want", "need", "could you", "tell me"),
	NewRule(IntentGoal, "goal", "want to", "trying to", "hope to", "aim to", "target"),
	NewRule(IntentBudget, "budget", "cheap", "affordable", "expensive", "under", "less than", "not more than"),
	NewRule(IntentBrief, "short answer", "keep it short", "be brief", "briefly", "tl;dr", "in short"),
	NewRule(IntentNoEmoji, "no emoji", "no emojis", "without emoji", "stop using emoji", "don't use emoji"),
}

// Replies 助手回复中的信号
var Replies = Table{
	NewRule(ReplyClosing, "thank you for your order", "order has been confirmed", "order is confirmed", "order confirmed", "we will ship", "will be shipped", "have a great day", "take care"),
	NewRule(ReplyRecommendation, "i recommend", "i would recommend", "recommended", "i suggest", "good fit for you", "you could try", "best option"),
	NewRule(ReplyAddressRequest, "full address", "shipping address", "delivery address", "where should we deliver", "your address"),
}

// LastTurn 最后一轮用户消息的归类（优先级按表顺序）
var LastTurn = Table{
	NewRule(TurnPricingQuestion, "price", "cost", "how much", "expensive", "cheap", "discount", "promotion"),
	NewRule(TurnOrderingInterest, "order", "buy", "purchase", "deliver", "shipping", "pay"),
	NewRule(TurnBenefitQuestion, "benefit", "benefits", "does it help", "good for", "work for", "effective"),
}

// IsFreshQuestion 含问号或意图动词
func IsFreshQuestion(text string) bool {
	return strings.Contains(text, "?") || Intents.Has(text, IntentFreshQuestion)
}

// ClassifyTurn 用户消息的一行归类
func ClassifyTurn(text string) string {
	if c, ok := LastTurn.First(text); ok {
		return c
	}
	if Health.Any(text) {
		return TurnHealthTopic
	}
	return TurnGeneral
}
