package logger_test

import (
	"bytes"
	"context"
	"log/slog"

	"github.com/kenzic/unhinged-side-quest-research-agent/common/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LogFields", func() {
	It("merges newer values over existing ones", func() {
		ctx := logger.WithLogFields(context.Background(), logger.LogFields{
			ConversationID: logger.Ptr(int64(1)),
			Agent:          "chat",
		})
		ctx = logger.WithLogFields(ctx, logger.LogFields{
			Agent:      "fact_checker",
			ToolCallID: logger.Ptr("call_1"),
		})

		fields := logger.GetLogFields(ctx)
		Expect(*fields.ConversationID).To(Equal(int64(1)))
		Expect(fields.Agent).To(Equal("fact_checker"))
		Expect(*fields.ToolCallID).To(Equal("call_1"))
		Expect(fields.TurnID).To(BeNil())
	})

	It("returns empty fields for a bare context", func() {
		Expect(logger.GetLogFields(context.Background())).To(Equal(logger.LogFields{}))
	})
})

var _ = Describe("TraceHandler", func() {
	It("adds context fields to every record", func() {
		var buf bytes.Buffer
		log := slog.New(logger.NewTraceHandler(slog.NewTextHandler(&buf, nil)))

		ctx := logger.WithLogFields(context.Background(), logger.LogFields{
			TurnID:    logger.Ptr(int64(42)),
			Step:      logger.Ptr(3),
			Component: "sidequest.brain.chat",
		})
		log.InfoContext(ctx, "step finished")

		out := buf.String()
		Expect(out).To(ContainSubstring("turn_id=42"))
		Expect(out).To(ContainSubstring("step=3"))
		Expect(out).To(ContainSubstring("component=sidequest.brain.chat"))
		Expect(out).NotTo(ContainSubstring("trace_id"))
	})
})

var _ = Describe("Truncate", func() {
	It("keeps short strings and clips long ones", func() {
		Expect(logger.Truncate("abc", 5)).To(Equal("abc"))
		Expect(logger.Truncate("abcdef", 3)).To(Equal("abc..."))
	})
})
