package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kenzic/unhinged-side-quest-research-agent/internal/http/handler"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/model"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/service"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/stream"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/transcript"
)

func postJSON(router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeError(w *httptest.ResponseRecorder) map[string]string {
	var resp map[string]string
	Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
	return resp
}

const beirutBody = `{"messages":[{"role":"user","content":"What is the capital of Lebanon?"}]}`

var _ = Describe("ChatHandler", func() {
	var (
		router *gin.Engine
		svc    *mockChatService
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		svc = &mockChatService{}
		h := handler.NewChatHandler(svc)
		router.POST("/chat", h.Chat)
		router.POST("/chat/async", h.ChatAsync)
		router.GET("/conversations/:id", h.Conversation)
		router.GET("/turns/:turn_id/events", h.TurnEvents)
	})

	Describe("Chat", func() {
		It("streams the turn as server-sent events", func() {
			var got service.ChatRequest
			svc.prepareFn = func(_ context.Context, req service.ChatRequest) (*service.PreparedTurn, error) {
				got = req
				return &service.PreparedTurn{Turn: model.Turn{ID: 7, ConversationID: 8, MessageID: "9"}}, nil
			}
			svc.streamFn = func(ctx context.Context, p *service.PreparedTurn, sinks ...stream.Sink) (model.TurnOutcome, error) {
				em := stream.NewEmitter(p.Turn.ID, sinks...)
				Expect(em.Submit()).To(Succeed())
				Expect(em.Start(ctx, p.Turn.ConversationID, p.Turn.MessageID)).To(Succeed())
				Expect(em.TextDelta(ctx, "## Answer\nBeirut")).To(Succeed())
				Expect(em.StepFinish(ctx, 1)).To(Succeed())
				Expect(em.Finish(ctx, 1, "natural")).To(Succeed())
				return model.TurnOutcome{Status: model.TurnReady, Steps: 1}, nil
			}

			w := postJSON(router, "/chat", beirutBody)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get("Content-Type")).To(Equal("text/event-stream"))
			Expect(got.ConversationID).To(BeNil())
			Expect(got.Messages).To(Equal([]service.ChatMessage{
				{Role: transcript.RoleUser, Content: "What is the capital of Lebanon?"},
			}))

			body := w.Body.String()
			Expect(body).To(ContainSubstring("id: 1\nevent: turn-start\n"))
			Expect(body).To(ContainSubstring("event: text-delta"))
			Expect(body).To(ContainSubstring("id: 4\nevent: turn-finish\n"))
			Expect(strings.Index(body, "turn-start")).To(BeNumerically("<", strings.Index(body, "turn-finish")))
		})

		It("reads conversation_id as a string", func() {
			var got service.ChatRequest
			svc.prepareFn = func(_ context.Context, req service.ChatRequest) (*service.PreparedTurn, error) {
				got = req
				return &service.PreparedTurn{}, nil
			}

			w := postJSON(router, "/chat", `{"conversation_id":"42","messages":[{"role":"user","content":"more?"}]}`)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(got.ConversationID).NotTo(BeNil())
			Expect(*got.ConversationID).To(Equal(int64(42)))
		})

		DescribeTable("rejects malformed bodies with 400 JSON",
			func(body string) {
				called := false
				svc.prepareFn = func(context.Context, service.ChatRequest) (*service.PreparedTurn, error) {
					called = true
					return nil, nil
				}

				w := postJSON(router, "/chat", body)

				Expect(w.Code).To(Equal(http.StatusBadRequest))
				Expect(decodeError(w)["code"]).To(Equal("invalid_request"))
				Expect(called).To(BeFalse())
			},
			Entry("broken JSON", `{`),
			Entry("no messages", `{"messages":[]}`),
			Entry("system role", `{"messages":[{"role":"system","content":"x"}]}`),
			Entry("missing content", `{"messages":[{"role":"user"}]}`),
		)

		It("maps service validation errors to 400", func() {
			svc.prepareFn = func(context.Context, service.ChatRequest) (*service.PreparedTurn, error) {
				return nil, fmt.Errorf("%w: last message must come from the user", service.ErrInvalidRequest)
			}

			w := postJSON(router, "/chat", beirutBody)

			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(decodeError(w)["error"]).To(ContainSubstring("last message must come from the user"))
		})

		It("returns 404 for an unknown conversation", func() {
			svc.prepareFn = func(context.Context, service.ChatRequest) (*service.PreparedTurn, error) {
				return nil, service.ErrConversationNotFound
			}

			w := postJSON(router, "/chat", `{"conversation_id":"5","messages":[{"role":"user","content":"hi"}]}`)

			Expect(w.Code).To(Equal(http.StatusNotFound))
			Expect(decodeError(w)["code"]).To(Equal("conversation_not_found"))
		})

		It("hides internal errors", func() {
			svc.prepareFn = func(context.Context, service.ChatRequest) (*service.PreparedTurn, error) {
				return nil, errors.New("pq: connection refused")
			}

			w := postJSON(router, "/chat", beirutBody)

			Expect(w.Code).To(Equal(http.StatusInternalServerError))
			Expect(decodeError(w)["error"]).To(Equal("internal server error"))
			Expect(w.Body.String()).NotTo(ContainSubstring("connection refused"))
		})
	})

	Describe("ChatAsync", func() {
		It("returns 202 with string ids and the events url", func() {
			svc.enqueueFn = func(context.Context, service.ChatRequest) (*model.Turn, error) {
				return &model.Turn{ID: 11, ConversationID: 12, MessageID: "13"}, nil
			}

			w := postJSON(router, "/chat/async", beirutBody)

			Expect(w.Code).To(Equal(http.StatusAccepted))
			var resp map[string]string
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp).To(Equal(map[string]string{
				"conversation_id": "12",
				"turn_id":         "11",
				"message_id":      "13",
				"events_url":      "/api/v1/turns/11/events",
			}))
		})

		It("returns 503 without a queue", func() {
			svc.enqueueFn = func(context.Context, service.ChatRequest) (*model.Turn, error) {
				return nil, service.ErrAsyncUnavailable
			}

			w := postJSON(router, "/chat/async", beirutBody)

			Expect(w.Code).To(Equal(http.StatusServiceUnavailable))
			Expect(decodeError(w)["code"]).To(Equal("unavailable"))
		})
	})

	Describe("Conversation", func() {
		It("returns messages with their parts and sources", func() {
			svc.conversationFn = func(_ context.Context, id int64) (*service.ConversationView, error) {
				Expect(id).To(Equal(int64(21)))
				return &service.ConversationView{
					Conversation: model.Conversation{ID: 21, Title: "capital of Lebanon", CreatedAt: time.Now()},
					Messages: []model.Message{
						{ID: 1, Role: transcript.RoleUser, Parts: []transcript.Part{transcript.TextPart("capital?")}},
						{ID: 2, Role: transcript.RoleAssistant, Parts: []transcript.Part{
							transcript.TextPart("## Answer\nBeirut"),
							{Type: transcript.PartSourceURL, URL: "https://example.com/beirut", Title: "Beirut"},
						}},
					},
					Turns: []model.Turn{{ID: 3, MessageID: "2", Status: model.TurnReady, Steps: 4, Error: "secret"}},
				}, nil
			}

			req := httptest.NewRequest(http.MethodGet, "/conversations/21", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).NotTo(ContainSubstring("secret"))

			var resp struct {
				ID       string `json:"id"`
				Messages []struct {
					ID      string              `json:"id"`
					Parts   []transcript.Part   `json:"parts"`
					Sources []transcript.Source `json:"sources"`
				} `json:"messages"`
				Turns []struct {
					Status string `json:"status"`
					Steps  int    `json:"steps"`
				} `json:"turns"`
			}
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.ID).To(Equal("21"))
			Expect(resp.Messages).To(HaveLen(2))
			Expect(resp.Messages[1].Parts).To(HaveLen(2))
			Expect(resp.Messages[1].Sources).To(Equal([]transcript.Source{{URL: "https://example.com/beirut", Title: "Beirut"}}))
			Expect(resp.Turns[0].Status).To(Equal("ready"))
			Expect(resp.Turns[0].Steps).To(Equal(4))
		})

		It("returns 400 for a non-numeric id", func() {
			req := httptest.NewRequest(http.MethodGet, "/conversations/abc", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 404 when missing", func() {
			req := httptest.NewRequest(http.MethodGet, "/conversations/99", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("TurnEvents", func() {
		get := func(path string) *httptest.ResponseRecorder {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			return w
		}

		It("replays mirrored events with entry ids", func() {
			var gotLast string
			svc.turnEventsFn = func(_ context.Context, turnID int64, lastID string, fn stream.TailFunc, keepalive stream.KeepaliveFunc) error {
				Expect(turnID).To(Equal(int64(5)))
				gotLast = lastID
				Expect(fn("1-0", stream.Event{Seq: 1, Type: stream.EventTurnStart, TurnID: 5})).To(Succeed())
				Expect(keepalive()).To(Succeed())
				return fn("1-1", stream.Event{Seq: 2, Type: stream.EventTurnFinish, TurnID: 5})
			}

			w := get("/turns/5/events?last_id=0-5")

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(gotLast).To(Equal("0-5"))
			Expect(w.Header().Get("Content-Type")).To(Equal("text/event-stream"))
			body := w.Body.String()
			Expect(body).To(ContainSubstring("id: 1-0\nevent: turn-start\n"))
			Expect(body).To(ContainSubstring("event: ping\n"))
			Expect(body).To(ContainSubstring("id: 1-1\nevent: turn-finish\n"))
		})

		It("replays from the start by default", func() {
			var gotLast string
			svc.turnEventsFn = func(_ context.Context, _ int64, lastID string, _ stream.TailFunc, _ stream.KeepaliveFunc) error {
				gotLast = lastID
				return nil
			}

			get("/turns/5/events")

			Expect(gotLast).To(Equal("0"))
		})

		It("returns JSON 503 when replay is unavailable", func() {
			w := get("/turns/5/events")

			Expect(w.Code).To(Equal(http.StatusServiceUnavailable))
			Expect(w.Header().Get("Content-Type")).To(ContainSubstring("application/json"))
		})

		It("returns JSON 404 for an unknown turn", func() {
			svc.turnEventsFn = func(context.Context, int64, string, stream.TailFunc, stream.KeepaliveFunc) error {
				return service.ErrTurnNotFound
			}

			w := get("/turns/5/events")

			Expect(w.Code).To(Equal(http.StatusNotFound))
			Expect(decodeError(w)["code"]).To(Equal("turn_not_found"))
		})
	})
})
