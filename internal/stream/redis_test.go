package stream_test

import (
	"context"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/stream"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"
)

var _ = Describe("RedisMirror", func() {
	var (
		ctx    context.Context
		mr     *miniredis.Miniredis
		client *redis.Client
		mirror *stream.RedisMirror
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		mr, err = miniredis.Run()
		Expect(err).NotTo(HaveOccurred())
		client = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		mirror = stream.NewRedisMirror(client, stream.RedisMirrorConfig{TTL: time.Minute})
	})

	AfterEach(func() {
		_ = client.Close()
		mr.Close()
	})

	It("replays a finished turn in order and stops at the terminal event", func() {
		emitter := stream.NewEmitter(77, mirror.Sink())
		Expect(emitter.Submit()).To(Succeed())
		Expect(emitter.Start(ctx, 1, "m")).To(Succeed())
		Expect(emitter.TextDelta(ctx, "Beirut")).To(Succeed())
		Expect(emitter.Finish(ctx, 1, "natural")).To(Succeed())

		exists, err := mirror.Exists(ctx, 77)
		Expect(err).NotTo(HaveOccurred())
		Expect(exists).To(BeTrue())
		Expect(mr.TTL(stream.StreamName(77))).To(Equal(time.Minute))

		var got []stream.Event
		err = mirror.Tail(ctx, 77, "0", func(_ string, ev stream.Event) error {
			got = append(got, ev)
			return nil
		}, nil)

		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(3))
		Expect(got[0].Type).To(Equal(stream.EventTurnStart))
		Expect(got[1].Delta).To(Equal("Beirut"))
		Expect(got[2].Type).To(Equal(stream.EventTurnFinish))
	})

	It("resumes after a given stream id", func() {
		emitter := stream.NewEmitter(78, mirror.Sink())
		Expect(emitter.Submit()).To(Succeed())
		Expect(emitter.Start(ctx, 1, "m")).To(Succeed())
		Expect(emitter.TextDelta(ctx, "one")).To(Succeed())
		Expect(emitter.Finish(ctx, 1, "natural")).To(Succeed())

		var ids []string
		Expect(mirror.Tail(ctx, 78, "0", func(id string, _ stream.Event) error {
			ids = append(ids, id)
			return nil
		}, nil)).To(Succeed())

		var resumed []stream.Event
		Expect(mirror.Tail(ctx, 78, ids[0], func(_ string, ev stream.Event) error {
			resumed = append(resumed, ev)
			return nil
		}, nil)).To(Succeed())

		Expect(resumed).To(HaveLen(2))
		Expect(resumed[0].Seq).To(Equal(int64(2)))
	})
})
