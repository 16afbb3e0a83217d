package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	. "github.com/smartystreets/goconvey/convey"

	"mint/internal/model"
	"mint/internal/pkg/resilience"
	"mint/internal/service"
	"mint/internal/service/usage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeTurns struct {
	res     service.TurnResult
	err     error
	gotUser string
	gotMsg  string
	gotID   string
	ctxErr  error
}

func (f *fakeTurns) HandleTurn(ctx context.Context, userID, messageID, message string) (service.TurnResult, error) {
	f.gotUser, f.gotID, f.gotMsg = userID, messageID, message
	f.ctxErr = ctx.Err()
	return f.res, f.err
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Detail  string          `json:"detail"`
	Data    json.RawMessage `json:"data"`
}

func do(r *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func TestChatHandler(t *testing.T) {
	Convey("对话接口", t, func() {
		turns := &fakeTurns{}
		r := gin.New()
		r.POST("/chat", NewChatHandler(turns).Chat)

		Convey("请求体缺少字段", func() {
			w, env := do(r, http.MethodPost, "/chat", map[string]string{"user_id": "u1"})
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(env.Code, ShouldEqual, 40001)
		})

		Convey("成功", func() {
			turns.res = service.TurnResult{
				Reply:         "Hello!",
				Stage:         model.StageGreeting,
				TokenEstimate: 3,
				Efficiency:    0.8,
			}
			w, env := do(r, http.MethodPost, "/chat", model.ChatRequest{UserID: "u1", MessageID: "m1", Message: "hi"})
			So(w.Code, ShouldEqual, http.StatusOK)
			So(env.Code, ShouldEqual, 0)
			So(turns.gotUser, ShouldEqual, "u1")
			So(turns.gotID, ShouldEqual, "m1")
			So(turns.gotMsg, ShouldEqual, "hi")
			So(turns.ctxErr, ShouldBeNil)

			var data model.ChatResponse
			So(json.Unmarshal(env.Data, &data), ShouldBeNil)
			So(data.Message, ShouldEqual, "Hello!")
			So(data.Stage, ShouldEqual, model.StageGreeting)
		})

		Convey("消息不合法", func() {
			turns.err = fmt.Errorf("%w: message too long", service.ErrInvalidMessage)
			w, env := do(r, http.MethodPost, "/chat", model.ChatRequest{UserID: "u1", Message: "x"})
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(env.Code, ShouldEqual, 40002)
		})

		Convey("依赖熔断", func() {
			turns.res = service.TurnResult{Reply: "busy, try later", Failed: true}
			turns.err = fmt.Errorf("%w: %w", service.ErrServiceUnavailable, resilience.ErrCircuitOpen)
			w, env := do(r, http.MethodPost, "/chat", model.ChatRequest{UserID: "u1", Message: "x"})
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			So(env.Message, ShouldEqual, "busy, try later")
		})

		Convey("其他失败返回致歉文案", func() {
			turns.res = service.TurnResult{Reply: "sorry", Failed: true}
			turns.err = errors.New("llm: boom")
			w, env := do(r, http.MethodPost, "/chat", model.ChatRequest{UserID: "u1", Message: "x"})
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
			So(env.Message, ShouldEqual, "sorry")
			So(env.Detail, ShouldBeEmpty)
		})
	})
}

type fakeMetrics struct {
	resets int
}

func (f *fakeMetrics) Analytics() usage.Analytics { return usage.Analytics{TotalTurns: 7} }
func (f *fakeMetrics) Export() usage.Export {
	return usage.Export{Summary: usage.Analytics{TotalTurns: 7}, Records: []model.UsageRecord{{ID: "r1"}}}
}
func (f *fakeMetrics) ResetMetrics() { f.resets++ }

func TestAnalyticsHandler(t *testing.T) {
	Convey("统计接口", t, func() {
		m := &fakeMetrics{}
		h := NewAnalyticsHandler(m)
		r := gin.New()
		r.GET("/analytics", h.Analytics)
		r.GET("/export", h.Export)
		r.POST("/reset", h.Reset)

		_, env := do(r, http.MethodGet, "/analytics", nil)
		var a usage.Analytics
		So(json.Unmarshal(env.Data, &a), ShouldBeNil)
		So(a.TotalTurns, ShouldEqual, 7)

		_, env = do(r, http.MethodGet, "/export", nil)
		var e usage.Export
		So(json.Unmarshal(env.Data, &e), ShouldBeNil)
		So(e.Records, ShouldHaveLength, 1)

		w, _ := do(r, http.MethodPost, "/reset", nil)
		So(w.Code, ShouldEqual, http.StatusOK)
		So(m.resets, ShouldEqual, 1)
	})
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type fakeBreakers []resilience.Snapshot

func (f fakeBreakers) Breakers() []resilience.Snapshot { return f }

func TestHealthHandler(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })
	closed := resilience.Snapshot{Name: "llm", State: resilience.StateClosed.String()}
	open := resilience.Snapshot{Name: "llm", State: resilience.StateOpen.String()}

	cases := []struct {
		name     string
		deps     map[string]Pinger
		breakers fakeBreakers
		code     int
		status   string
	}{
		{"全部正常", map[string]Pinger{"mongo": ok, "redis": ok}, fakeBreakers{closed}, http.StatusOK, "ready"},
		{"未配置依赖", map[string]Pinger{"mongo": nil}, fakeBreakers{closed}, http.StatusOK, "ready"},
		{"熔断打开", map[string]Pinger{"mongo": ok}, fakeBreakers{open}, http.StatusOK, "degraded"},
		{"依赖不可达", map[string]Pinger{"mongo": ok, "redis": down}, fakeBreakers{open}, http.StatusServiceUnavailable, "not_ready"},
	}

	Convey("健康检查", t, func() {
		for _, tc := range cases {
			Convey(tc.name, func() {
				h := NewHealthHandler(tc.breakers, tc.deps)
				r := gin.New()
				r.GET("/health", h.Health)
				r.GET("/ready", h.Ready)

				w, _ := do(r, http.MethodGet, "/health", nil)
				So(w.Code, ShouldEqual, http.StatusOK)

				w, _ = do(r, http.MethodGet, "/ready", nil)
				So(w.Code, ShouldEqual, tc.code)
				var st ReadyStatus
				So(json.Unmarshal(w.Body.Bytes(), &st), ShouldBeNil)
				So(st.Status, ShouldEqual, tc.status)
				So(st.Breakers, ShouldHaveLength, 1)
			})
		}
	})
}
