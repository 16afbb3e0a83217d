package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"mint/internal/ai"
	"mint/internal/ai/component"
	"mint/internal/model"
	"mint/internal/pkg/resilience"
	"mint/internal/repository"
	"mint/internal/service/compress"
	"mint/internal/service/flow"
	"mint/internal/service/prompt"
	"mint/internal/service/recommend"
	"mint/internal/service/shaper"
	"mint/internal/service/usage"
)

// scriptedLLM 按调用序号返回结果，并记录请求
type scriptedLLM struct {
	mu    sync.Mutex
	reqs  []ai.Request
	reply func(call int, req ai.Request) (ai.Reply, error)
}

func (s *scriptedLLM) Send(ctx context.Context, req ai.Request) (ai.Reply, error) {
	s.mu.Lock()
	s.reqs = append(s.reqs, req)
	call := len(s.reqs)
	s.mu.Unlock()
	return s.reply(call, req)
}

func (s *scriptedLLM) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reqs)
}

func (s *scriptedLLM) last() ai.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reqs[len(s.reqs)-1]
}

func okReply(call int, req ai.Request) (ai.Reply, error) {
	return ai.Reply{Text: fmt.Sprintf("Reply number %d. How can I help?", call), OutputTokens: 12}, nil
}

type memUsage struct {
	mu   sync.Mutex
	recs []model.UsageRecord
}

func (m *memUsage) Append(ctx context.Context, rec model.UsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return nil
}

// flakyStore 保存失败
type flakyStore struct {
	*repository.MemoryStore
	saveErr error
}

func (f *flakyStore) Save(ctx context.Context, cc *model.ConversationContext) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.MemoryStore.Save(ctx, cc)
}

type panickyRecommender struct{}

func (panickyRecommender) Recommend(context.Context, model.Assessment, model.Preferences) ([]model.Recommendation, error) {
	panic("index out of range")
}

func testInvoker(name string) *resilience.Invoker {
	b := resilience.NewBreaker(resilience.BreakerConfig{
		Name:             name,
		FailureThreshold: 3,
		RecoveryTimeout:  time.Hour,
		HalfOpenMaxCalls: 2,
	})
	return resilience.NewInvoker(b, resilience.RetryPolicy{MaxAttempts: 1})
}

type fixture struct {
	orch    *Orchestrator
	store   *repository.MemoryStore
	ledger  *usage.Ledger
	monitor *prompt.CacheMonitor
	usage   *memUsage
}

func newFixture(llm LLM, opts Options, mutate ...func(*Deps)) *fixture {
	catalog, err := recommend.LoadCatalog("")
	if err != nil {
		panic(err)
	}
	f := &fixture{
		store:   repository.NewMemoryStore(),
		monitor: prompt.NewCacheMonitor(),
		usage:   &memUsage{},
	}
	f.ledger = usage.NewLedger(usage.DefaultPricing(), usage.WithCacheMetrics(f.monitor))

	deps := Deps{
		Store:          f.store,
		LLM:            llm,
		Recommender:    recommend.NewRecommender(catalog),
		Usage:          f.usage,
		Ledger:         f.ledger,
		CacheMonitor:   f.monitor,
		Assembler:      prompt.NewAssembler(prompt.Options{}),
		Shaper:         shaper.New(shaper.WithTokenizer(strings.Fields)),
		Compressor:     compress.New(compress.Options{OrderLevel: 8, PreserveDetails: true}, catalog),
		Classifier:     flow.NewClassifier(),
		Metadata:       flow.NewMetadataUpdater(catalog),
		Flow:           flow.NewController(),
		LLMInvoker:     testInvoker("llm"),
		StorageInvoker: testInvoker("storage"),
	}
	for _, m := range mutate {
		m(&deps)
	}
	f.orch = NewOrchestrator(deps, opts)
	return f
}

func TestOrchestrator_HandleTurn(t *testing.T) {
	ctx := context.Background()

	Convey("完整的一轮", t, func() {
		mock := ai.NewClientWithModel(component.NewMockChatModel(), 0)
		f := newFixture(mock, Options{IncludeRealTime: true})

		res, err := f.orch.HandleTurn(ctx, "u1", "", "hello")
		So(err, ShouldBeNil)
		So(res.Failed, ShouldBeFalse)
		So(res.Stage, ShouldEqual, model.StageProductRecommendation)
		So(res.Reply, ShouldNotBeEmpty)
		So(res.Usage, ShouldNotBeNil)
		So(res.Usage.CacheHit, ShouldBeFalse)

		cc, err := f.store.Load(ctx, "u1")
		So(err, ShouldBeNil)
		So(cc.Messages, ShouldHaveLength, 2)
		So(cc.Messages[0].Content, ShouldEqual, "hello")
		So(cc.Messages[1].Content, ShouldEqual, res.Reply)
		So(cc.Stage, ShouldEqual, model.StageProductRecommendation)

		Convey("第二轮命中静态段缓存并记账", func() {
			res, err := f.orch.HandleTurn(ctx, "u1", "", "I can't sleep at night")
			So(err, ShouldBeNil)
			So(res.Stage, ShouldEqual, model.StageHealthInquiry)
			So(res.Usage.CacheHit, ShouldBeTrue)

			cc, _ := f.store.Load(ctx, "u1")
			So(cc.Messages, ShouldHaveLength, 4)
			So(cc.Metadata.Preferences.HealthConditions, ShouldContain, "sleep")

			a := f.orch.Analytics()
			So(a.TotalTurns, ShouldEqual, 2)
			So(a.Optimization.CacheHits, ShouldEqual, 1)
			So(f.monitor.CacheStats().Misses, ShouldEqual, 1)
			So(f.usage.recs, ShouldHaveLength, 2)

			f.orch.ResetMetrics()
			So(f.orch.Analytics().TotalTurns, ShouldEqual, 0)
			So(f.monitor.CacheStats().Hits, ShouldEqual, 0)
		})
	})

	Convey("模型请求内容", t, func() {
		llm := &scriptedLLM{reply: okReply}
		f := newFixture(llm, Options{})

		_, err := f.orch.HandleTurn(ctx, "u1", "", "  I feel bloated after meals  ")
		So(err, ShouldBeNil)

		req := llm.last()
		So(req.Cacheable, ShouldBeTrue)
		So(req.CacheKey, ShouldEqual, prompt.Fingerprint(req.Static))
		So(req.Dynamic, ShouldContainSubstring, "Stage: health_inquiry")
		So(req.Dynamic, ShouldContainSubstring, "Fiber Plus")
		So(req.Dynamic, ShouldNotContainSubstring, "## Now")
		So(req.History, ShouldHaveLength, 1)
		So(req.History[0].Content, ShouldEqual, "I feel bloated after meals")
		So(req.MaxTokens, ShouldEqual, shaper.BudgetFor(model.StageHealthInquiry, model.Preferences{}).MaxTokens)
	})

	Convey("输入用量以服务端上报为准", t, func() {
		llm := &scriptedLLM{reply: func(call int, req ai.Request) (ai.Reply, error) {
			r, err := okReply(call, req)
			r.InputTokens = 2500
			return r, err
		}}
		f := newFixture(llm, Options{})

		res, err := f.orch.HandleTurn(ctx, "u1", "", "I feel bloated after meals")
		So(err, ShouldBeNil)
		So(res.Usage.StaticTokens+res.Usage.DynamicTokens+res.Usage.HistoryTokens, ShouldEqual, 2500)
		So(res.Usage.StaticTokens, ShouldBeGreaterThan, 0)
		So(res.Usage.HistoryTokens, ShouldBeGreaterThan, 0)
		So(f.orch.Analytics().TotalInputTokens, ShouldEqual, int64(2500))

		Convey("未上报时按估算记账", func() {
			f := newFixture(&scriptedLLM{reply: okReply}, Options{})
			res, err := f.orch.HandleTurn(ctx, "u1", "", "I feel bloated after meals")
			So(err, ShouldBeNil)
			So(res.Usage.HistoryTokens, ShouldEqual, shaper.EstimateTokens("I feel bloated after meals"))
		})
	})

	Convey("输入校验", t, func() {
		llm := &scriptedLLM{reply: okReply}
		f := newFixture(llm, Options{MaxMessageLength: 10})

		_, err := f.orch.HandleTurn(ctx, "u1", "", "   ")
		So(errors.Is(err, ErrInvalidMessage), ShouldBeTrue)

		_, err = f.orch.HandleTurn(ctx, "", "", "hello")
		So(errors.Is(err, ErrInvalidMessage), ShouldBeTrue)

		_, err = f.orch.HandleTurn(ctx, "u1", "", "this message is too long")
		So(errors.Is(err, ErrInvalidMessage), ShouldBeTrue)

		So(llm.calls(), ShouldEqual, 0)
	})
}

func TestOrchestrator_Failures(t *testing.T) {
	ctx := context.Background()

	Convey("模型失败时致歉且不改动已保存的上下文", t, func() {
		fail := false
		llm := &scriptedLLM{reply: func(call int, req ai.Request) (ai.Reply, error) {
			if fail {
				return ai.Reply{}, errors.New("503 provider overloaded")
			}
			return okReply(call, req)
		}}
		f := newFixture(llm, Options{})

		_, err := f.orch.HandleTurn(ctx, "u1", "", "Tell me about Fiber Plus")
		So(err, ShouldBeNil)
		_, err = f.orch.HandleTurn(ctx, "u1", "", "I want to order 2 boxes")
		So(err, ShouldBeNil)
		before, _ := f.store.Load(ctx, "u1")
		So(before.Metadata.CurrentOrder, ShouldNotBeNil)

		fail = true
		res, err := f.orch.HandleTurn(ctx, "u1", "", "my name is John Smith")
		So(err, ShouldNotBeNil)
		So(errors.Is(err, ErrServiceUnavailable), ShouldBeFalse)
		So(res.Failed, ShouldBeTrue)
		So(res.Reply, ShouldEqual, apologyReply)

		after, _ := f.store.Load(ctx, "u1")
		So(after, ShouldResemble, before)

		Convey("连续失败后熔断，不再调用模型", func() {
			for i := 0; i < 2; i++ {
				f.orch.HandleTurn(ctx, "u1", "", "hello again")
			}
			calls := llm.calls()

			res, err := f.orch.HandleTurn(ctx, "u1", "", "anyone there?")
			So(errors.Is(err, ErrServiceUnavailable), ShouldBeTrue)
			So(errors.Is(err, resilience.ErrCircuitOpen), ShouldBeTrue)
			So(res.Reply, ShouldEqual, unavailableReply)
			So(llm.calls(), ShouldEqual, calls)

			snaps := f.orch.Breakers()
			So(snaps[0].Name, ShouldEqual, "llm")
			So(snaps[0].State, ShouldEqual, "open")
			So(snaps[1].State, ShouldEqual, "closed")
		})
	})

	Convey("保存失败时仍返回回复", t, func() {
		llm := &scriptedLLM{reply: okReply}
		f := newFixture(llm, Options{}, func(d *Deps) {
			d.Store = &flakyStore{MemoryStore: repository.NewMemoryStore(), saveErr: errors.New("not primary")}
		})

		res, err := f.orch.HandleTurn(ctx, "u1", "", "hello")
		So(err, ShouldBeNil)
		So(res.Failed, ShouldBeFalse)
		So(res.Reply, ShouldStartWith, "Reply number 1")
	})

	Convey("启发式组件异常时降级", t, func() {
		llm := &scriptedLLM{reply: okReply}
		f := newFixture(llm, Options{}, func(d *Deps) { d.Recommender = panickyRecommender{} })

		res, err := f.orch.HandleTurn(ctx, "u1", "", "I can't sleep")
		So(err, ShouldBeNil)
		So(res.Failed, ShouldBeFalse)
		So(llm.last().Dynamic, ShouldContainSubstring, "## Products")
	})
}

func TestOrchestrator_Dedup(t *testing.T) {
	ctx := context.Background()

	Convey("重复投递只处理一次", t, func() {
		llm := &scriptedLLM{reply: okReply}
		f := newFixture(llm, Options{})

		first, err := f.orch.HandleTurn(ctx, "u1", "m1", "hello")
		So(err, ShouldBeNil)
		second, err := f.orch.HandleTurn(ctx, "u1", "m1", "hello")
		So(err, ShouldBeNil)
		So(second.Duplicate, ShouldBeTrue)
		So(second.Reply, ShouldEqual, first.Reply)
		So(llm.calls(), ShouldEqual, 1)

		_, err = f.orch.HandleTurn(ctx, "u2", "m1", "hello")
		So(err, ShouldBeNil)
		So(llm.calls(), ShouldEqual, 2)
	})

	Convey("失败的消息可以重投", t, func() {
		llm := &scriptedLLM{reply: func(call int, req ai.Request) (ai.Reply, error) {
			if call == 1 {
				return ai.Reply{}, errors.New("connection reset by peer")
			}
			return okReply(call, req)
		}}
		f := newFixture(llm, Options{})

		_, err := f.orch.HandleTurn(ctx, "u1", "m1", "hello")
		So(err, ShouldNotBeNil)

		res, err := f.orch.HandleTurn(ctx, "u1", "m1", "hello")
		So(err, ShouldBeNil)
		So(res.Duplicate, ShouldBeFalse)
		So(res.Reply, ShouldStartWith, "Reply number 2")
	})
}

func TestOrchestrator_Concurrency(t *testing.T) {
	Convey("同一用户串行，不同用户并发", t, func() {
		llm := &scriptedLLM{reply: func(call int, req ai.Request) (ai.Reply, error) {
			time.Sleep(time.Millisecond)
			return okReply(call, req)
		}}
		f := newFixture(llm, Options{})
		ctx := context.Background()

		var wg sync.WaitGroup
		for _, user := range []string{"u1", "u2", "u3"} {
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func(user string, i int) {
					defer wg.Done()
					_, err := f.orch.HandleTurn(ctx, user, fmt.Sprintf("m%d", i), fmt.Sprintf("question %d", i))
					if err != nil {
						t.Error(err)
					}
				}(user, i)
			}
		}
		wg.Wait()

		for _, user := range []string{"u1", "u2", "u3"} {
			cc, err := f.store.Load(ctx, user)
			So(err, ShouldBeNil)
			So(cc.Messages, ShouldHaveLength, 20)
			for i := 0; i < len(cc.Messages); i += 2 {
				So(cc.Messages[i].Role, ShouldEqual, model.RoleUser)
				So(cc.Messages[i+1].Role, ShouldEqual, model.RoleAssistant)
			}
		}
		So(f.orch.Analytics().TotalTurns, ShouldEqual, 30)
		So(f.orch.locks.Len(), ShouldEqual, 0)
	})
}

func TestOrchestrator_Compression(t *testing.T) {
	Convey("压缩只影响发给模型的历史", t, func() {
		llm := &scriptedLLM{reply: okReply}
		f := newFixture(llm, Options{CompressionEnabled: true, CompressionLevel: 1})
		ctx := context.Background()

		var last TurnResult
		for i := 0; i < 4; i++ {
			res, err := f.orch.HandleTurn(ctx, "u1", "", fmt.Sprintf("question number %d", i))
			So(err, ShouldBeNil)
			last = res
		}

		So(last.Compression, ShouldEqual, compress.OutcomeCompressed)
		req := llm.last()
		So(req.History, ShouldHaveLength, 2)
		So(req.History[0].Content, ShouldStartWith, compress.SummaryMarker)
		So(req.History[1].Content, ShouldEqual, "question number 3")

		cc, _ := f.store.Load(ctx, "u1")
		So(cc.Messages, ShouldHaveLength, 8)
	})
}

func TestKeyedMutex(t *testing.T) {
	Convey("按 key 互斥", t, func() {
		k := NewKeyedMutex()
		var (
			mu      sync.Mutex
			active  int
			maxSeen int
			wg      sync.WaitGroup
		)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock := k.Lock("same")
				defer unlock()
				mu.Lock()
				active++
				maxSeen = max(maxSeen, active)
				mu.Unlock()
				time.Sleep(100 * time.Microsecond)
				mu.Lock()
				active--
				mu.Unlock()
			}()
		}
		wg.Wait()
		So(maxSeen, ShouldEqual, 1)
		So(k.Len(), ShouldEqual, 0)
	})
}

func TestMemoryDeduper(t *testing.T) {
	Convey("内存去重按 TTL 过期", t, func() {
		now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
		d := NewMemoryDeduper(time.Minute, func() time.Time { return now })
		ctx := context.Background()

		ok, _ := d.Claim(ctx, "u1", "m1")
		So(ok, ShouldBeTrue)
		ok, _ = d.Claim(ctx, "u1", "m1")
		So(ok, ShouldBeFalse)

		now = now.Add(time.Minute)
		ok, _ = d.Claim(ctx, "u1", "m1")
		So(ok, ShouldBeTrue)

		So(d.Release(ctx, "u1", "m1"), ShouldBeNil)
		ok, _ = d.Claim(ctx, "u1", "m1")
		So(ok, ShouldBeTrue)
	})
}
