package service_test

import (
	"context"
	"errors"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"github.com/kenzic/unhinged-side-quest-research-agent/common/llm"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/brain"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/model"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/queue"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/service"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/store"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/stream"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/transcript"
)

func ask(question string) service.ChatRequest {
	return service.ChatRequest{Messages: []service.ChatMessage{{Role: transcript.RoleUser, Content: question}}}
}

func eventTypes(rec *stream.Recorder) []stream.EventType {
	var out []stream.EventType
	for _, ev := range rec.Events() {
		out = append(out, ev.Type)
	}
	return out
}

var _ = DescribeTable("ValidateRequest",
	func(req service.ChatRequest, message string) {
		err := service.ValidateRequest(req)
		if message == "" {
			Expect(err).NotTo(HaveOccurred())
			return
		}
		Expect(err).To(MatchError(service.ErrInvalidRequest))
		Expect(err.Error()).To(ContainSubstring(message))
	},
	Entry("single question", ask("What is the capital of Lebanon?"), ""),
	Entry("multi-turn history", service.ChatRequest{Messages: []service.ChatMessage{
		{Role: transcript.RoleUser, Content: "hi"},
		{Role: transcript.RoleAssistant, Content: "hello"},
		{Role: transcript.RoleUser, Content: "capital of Lebanon?"},
	}}, ""),
	Entry("no messages", service.ChatRequest{}, "must not be empty"),
	Entry("blank content", ask("   "), "content must not be blank"),
	Entry("system role", service.ChatRequest{Messages: []service.ChatMessage{{Role: "system", Content: "x"}}}, "role must be user or assistant"),
	Entry("assistant last", service.ChatRequest{Messages: []service.ChatMessage{
		{Role: transcript.RoleUser, Content: "hi"},
		{Role: transcript.RoleAssistant, Content: "hello"},
	}}, "last message must come from the user"),
)

var _ = Describe("ChatService", func() {
	var (
		ctx      context.Context
		mem      *store.Memory
		runner   *mockTurnRunner
		producer *mockProducer
		svc      service.ChatService
		rec      *stream.Recorder
	)

	build := func(cfg service.ChatServiceConfig, mirror *stream.RedisMirror) {
		svc = service.NewChatService(service.ChatServiceDeps{
			Agent:    runner,
			Stores:   mem,
			TxRunner: mem,
			Mirror:   mirror,
			Producer: producer,
		}, cfg)
	}

	BeforeEach(func() {
		ctx = context.Background()
		mem = store.NewMemory()
		runner = &mockTurnRunner{}
		producer = &mockProducer{}
		rec = stream.NewRecorder()
		build(service.ChatServiceConfig{}, nil)
	})

	Describe("Prepare", func() {
		It("creates a conversation, the user message and a running turn", func() {
			prepared, err := svc.Prepare(ctx, ask("What is the capital of Lebanon?"))
			Expect(err).NotTo(HaveOccurred())

			turn, err := mem.Turns().GetByID(ctx, prepared.Turn.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(turn.Status).To(Equal(model.TurnRunning))
			Expect(turn.MessageID).NotTo(BeEmpty())

			conv, err := mem.Conversations().GetByID(ctx, prepared.Turn.ConversationID)
			Expect(err).NotTo(HaveOccurred())
			Expect(conv.Title).To(Equal("What is the capital of Lebanon?"))

			msgs, _ := mem.Messages().ListByConversation(ctx, conv.ID)
			Expect(msgs).To(HaveLen(1))
			Expect(msgs[0].Text()).To(Equal("What is the capital of Lebanon?"))

			Expect(prepared.History).To(Equal([]llm.Message{{Role: llm.RoleUser, Content: "What is the capital of Lebanon?"}}))
		})

		It("appends only the latest user message to an existing conversation", func() {
			first, err := svc.Prepare(ctx, ask("hi"))
			Expect(err).NotTo(HaveOccurred())
			convID := first.Turn.ConversationID

			_, err = svc.Prepare(ctx, service.ChatRequest{
				ConversationID: &convID,
				Messages: []service.ChatMessage{
					{Role: transcript.RoleUser, Content: "hi"},
					{Role: transcript.RoleAssistant, Content: "hello"},
					{Role: transcript.RoleUser, Content: "capital of Lebanon?"},
				},
			})
			Expect(err).NotTo(HaveOccurred())

			msgs, _ := mem.Messages().ListByConversation(ctx, convID)
			Expect(msgs).To(HaveLen(2))
			Expect(msgs[1].Text()).To(Equal("capital of Lebanon?"))
		})

		It("rejects an unknown conversation", func() {
			missing := int64(404)
			req := ask("hi")
			req.ConversationID = &missing

			_, err := svc.Prepare(ctx, req)

			Expect(err).To(MatchError(service.ErrConversationNotFound))
		})

		It("rejects invalid requests before touching the stores", func() {
			_, err := svc.Prepare(ctx, ask(""))

			Expect(err).To(MatchError(service.ErrInvalidRequest))
			Expect(runner.callCount).To(BeZero())
		})
	})

	Describe("Stream", func() {
		var prepared *service.PreparedTurn

		BeforeEach(func() {
			var err error
			prepared, err = svc.Prepare(ctx, ask("What is the capital of Lebanon?"))
			Expect(err).NotTo(HaveOccurred())
		})

		It("streams a ready turn and stores the assistant message", func() {
			outcome, err := svc.Stream(ctx, prepared, rec)

			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Status).To(Equal(model.TurnReady))
			Expect(eventTypes(rec)).To(Equal([]stream.EventType{
				stream.EventTurnStart, stream.EventTextDelta, stream.EventStepFinish, stream.EventTurnFinish,
			}))
			Expect(rec.Events()[0].MessageID).To(Equal(prepared.Turn.MessageID))

			turn, _ := mem.Turns().GetByID(ctx, prepared.Turn.ID)
			Expect(turn.Status).To(Equal(model.TurnReady))
			Expect(turn.Steps).To(Equal(1))
			Expect(turn.StopReason).To(Equal("natural"))

			msgs, _ := mem.Messages().ListByConversation(ctx, prepared.Turn.ConversationID)
			Expect(msgs).To(HaveLen(2))
			Expect(msgs[1].Role).To(Equal(transcript.RoleAssistant))
			Expect(msgs[1].Text()).To(Equal("## Answer\nok"))
		})

		It("lists questions before their answers across turns", func() {
			_, err := svc.Stream(ctx, prepared, rec)
			Expect(err).NotTo(HaveOccurred())

			convID := prepared.Turn.ConversationID
			next, err := svc.Prepare(ctx, service.ChatRequest{
				ConversationID: &convID,
				Messages: []service.ChatMessage{
					{Role: transcript.RoleUser, Content: "What is the capital of Lebanon?"},
					{Role: transcript.RoleAssistant, Content: "## Answer\nok"},
					{Role: transcript.RoleUser, Content: "And its population?"},
				},
			})
			Expect(err).NotTo(HaveOccurred())
			_, err = svc.Stream(ctx, next, stream.NewRecorder())
			Expect(err).NotTo(HaveOccurred())

			msgs, _ := mem.Messages().ListByConversation(ctx, convID)
			var roles []transcript.Role
			for _, m := range msgs {
				roles = append(roles, m.Role)
			}
			Expect(roles).To(Equal([]transcript.Role{
				transcript.RoleUser, transcript.RoleAssistant, transcript.RoleUser, transcript.RoleAssistant,
			}))
			Expect(msgs[2].Text()).To(Equal("And its population?"))
		})

		It("records an aborted turn and keeps what streamed", func() {
			cctx, cancel := context.WithCancel(ctx)
			runner.runFn = func(ctx context.Context, _ []llm.Message, em *stream.Emitter) (brain.TurnResult, error) {
				_ = em.TextDelta(ctx, "partial")
				cancel()
				return brain.TurnResult{Steps: 1}, ctx.Err()
			}

			outcome, err := svc.Stream(cctx, prepared, rec)

			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Status).To(Equal(model.TurnAborted))
			last := rec.Events()[len(rec.Events())-1]
			Expect(last.Type).To(Equal(stream.EventTurnError))
			Expect(last.Reason).To(Equal(stream.ReasonAborted))

			turn, _ := mem.Turns().GetByID(ctx, prepared.Turn.ID)
			Expect(turn.Status).To(Equal(model.TurnAborted))
			msgs, _ := mem.Messages().ListByConversation(ctx, prepared.Turn.ConversationID)
			Expect(msgs[len(msgs)-1].Text()).To(Equal("partial"))
		})

		It("hides model failures behind a generic message", func() {
			runner.runFn = func(context.Context, []llm.Message, *stream.Emitter) (brain.TurnResult, error) {
				return brain.TurnResult{Steps: 1}, errors.New("chat step 1: 500 internal secret detail")
			}

			outcome, err := svc.Stream(ctx, prepared, rec)

			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Status).To(Equal(model.TurnError))
			last := rec.Events()[len(rec.Events())-1]
			Expect(last.Type).To(Equal(stream.EventTurnError))
			Expect(last.Reason).To(Equal(stream.ReasonFailed))
			Expect(last.Message).To(Equal("the assistant failed to respond"))
			for _, ev := range rec.Events() {
				Expect(ev.Message).NotTo(ContainSubstring("secret"))
			}

			turn, _ := mem.Turns().GetByID(ctx, prepared.Turn.ID)
			Expect(turn.Status).To(Equal(model.TurnError))
			Expect(turn.Error).To(ContainSubstring("secret"))
		})

		It("fails a turn that outlives the turn timeout", func() {
			build(service.ChatServiceConfig{TurnTimeout: 20 * time.Millisecond}, nil)
			runner.runFn = func(ctx context.Context, _ []llm.Message, _ *stream.Emitter) (brain.TurnResult, error) {
				<-ctx.Done()
				return brain.TurnResult{}, ctx.Err()
			}

			outcome, err := svc.Stream(ctx, prepared, rec)

			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Status).To(Equal(model.TurnError))
		})
	})

	Describe("async turns", func() {
		It("needs a producer", func() {
			svc = service.NewChatService(service.ChatServiceDeps{Agent: runner, Stores: mem, TxRunner: mem}, service.ChatServiceConfig{})

			_, err := svc.Enqueue(ctx, ask("hi"))

			Expect(err).To(MatchError(service.ErrAsyncUnavailable))
		})

		It("enqueues a prepared turn and runs it from stored history", func() {
			turn, err := svc.Enqueue(ctx, ask("What is the capital of Lebanon?"))
			Expect(err).NotTo(HaveOccurred())
			Expect(producer.tasks).To(HaveLen(1))
			Expect(producer.tasks[0].TurnID).To(Equal(turn.ID))

			outcome, err := svc.RunQueued(ctx, producer.tasks[0])

			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Status).To(Equal(model.TurnReady))
			Expect(runner.histories[0]).To(Equal([]llm.Message{{Role: llm.RoleUser, Content: "What is the capital of Lebanon?"}}))

			_, err = svc.RunQueued(ctx, producer.tasks[0])
			Expect(err).To(MatchError(service.ErrTurnNotRunnable))
			Expect(runner.callCount).To(Equal(1))
		})

		It("marks the turn failed when enqueueing fails", func() {
			producer.enqueueFn = func(context.Context, queue.TurnTask) error { return errors.New("redis down") }

			_, err := svc.Enqueue(ctx, ask("hi"))

			Expect(err).To(MatchError(ContainSubstring("redis down")))
			turn, _ := mem.Turns().GetByID(ctx, producer.tasks[0].TurnID)
			Expect(turn.Status).To(Equal(model.TurnError))
		})

		It("reports unknown turns", func() {
			_, err := svc.RunQueued(ctx, queue.TurnTask{TurnID: 999})

			Expect(err).To(MatchError(service.ErrTurnNotFound))
			Expect(svc.Abandon(ctx, 999, "gone")).To(MatchError(service.ErrTurnNotFound))
		})

		It("abandons a running turn once", func() {
			turn, err := svc.Enqueue(ctx, ask("hi"))
			Expect(err).NotTo(HaveOccurred())

			Expect(svc.Abandon(ctx, turn.ID, "worker crashed")).To(Succeed())
			stored, _ := mem.Turns().GetByID(ctx, turn.ID)
			Expect(stored.Status).To(Equal(model.TurnError))
			Expect(stored.Error).To(Equal("worker crashed"))

			Expect(svc.Abandon(ctx, turn.ID, "again")).To(Succeed())
			stored, _ = mem.Turns().GetByID(ctx, turn.ID)
			Expect(stored.Error).To(Equal("worker crashed"))
		})
	})

	Describe("Conversation", func() {
		It("returns messages and turns", func() {
			prepared, err := svc.Prepare(ctx, ask("hi"))
			Expect(err).NotTo(HaveOccurred())
			_, err = svc.Stream(ctx, prepared)
			Expect(err).NotTo(HaveOccurred())

			view, err := svc.Conversation(ctx, prepared.Turn.ConversationID)

			Expect(err).NotTo(HaveOccurred())
			Expect(view.Messages).To(HaveLen(2))
			Expect(view.Turns).To(HaveLen(1))
			Expect(view.Turns[0].Status).To(Equal(model.TurnReady))
		})

		It("reports unknown conversations", func() {
			_, err := svc.Conversation(ctx, 1)

			Expect(err).To(MatchError(service.ErrConversationNotFound))
		})
	})

	Describe("TurnEvents", func() {
		It("needs the redis mirror", func() {
			err := svc.TurnEvents(ctx, 1, "", nil, nil)

			Expect(err).To(MatchError(service.ErrReplayUnavailable))
		})

		It("replays a finished turn from the mirror", func() {
			mr, err := miniredis.Run()
			Expect(err).NotTo(HaveOccurred())
			defer mr.Close()
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			defer client.Close()

			build(service.ChatServiceConfig{}, stream.NewRedisMirror(client, stream.RedisMirrorConfig{}))
			prepared, err := svc.Prepare(ctx, ask("hi"))
			Expect(err).NotTo(HaveOccurred())
			_, err = svc.Stream(ctx, prepared, rec)
			Expect(err).NotTo(HaveOccurred())

			var seqs []int64
			err = svc.TurnEvents(ctx, prepared.Turn.ID, "", func(_ string, ev stream.Event) error {
				seqs = append(seqs, ev.Seq)
				return nil
			}, nil)

			Expect(err).NotTo(HaveOccurred())
			Expect(seqs).To(Equal([]int64{1, 2, 3, 4}))

			Expect(svc.TurnEvents(ctx, 12345, "", nil, nil)).To(MatchError(service.ErrTurnNotFound))
		})

		It("reports a finished turn whose events expired as not found", func() {
			mr, err := miniredis.Run()
			Expect(err).NotTo(HaveOccurred())
			defer mr.Close()
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			defer client.Close()

			build(service.ChatServiceConfig{}, stream.NewRedisMirror(client, stream.RedisMirrorConfig{}))
			prepared, err := svc.Prepare(ctx, ask("hi"))
			Expect(err).NotTo(HaveOccurred())
			_, err = svc.Stream(ctx, prepared, rec)
			Expect(err).NotTo(HaveOccurred())
			mr.Del(stream.StreamName(prepared.Turn.ID))

			err = svc.TurnEvents(ctx, prepared.Turn.ID, "", func(string, stream.Event) error { return nil }, nil)

			Expect(err).To(MatchError(service.ErrTurnNotFound))
		})
	})
})
