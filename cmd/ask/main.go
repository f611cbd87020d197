// Command ask runs the research chat in the terminal. Each question is
// answered in-process; the conversation lives for the session.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/kenzic/unhinged-side-quest-research-agent/common/id"
	"github.com/kenzic/unhinged-side-quest-research-agent/common/logger"
	"github.com/kenzic/unhinged-side-quest-research-agent/core/config"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/app"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/model"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/service"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/transcript"
)

func main() {
	question := flag.String("q", "", "ask a single question and exit")
	verbose := flag.Bool("v", false, "write service logs to stderr")
	plain := flag.Bool("plain", false, "print the answer as raw markdown")
	flag.Parse()

	cfg, err := config.Load(config.ServiceTypeCLI)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logOut := io.Discard
	if *verbose {
		logOut = os.Stderr
	}
	slog.SetDefault(logger.New(cfg, logOut))

	if err := id.Init(3); err != nil {
		fmt.Fprintln(os.Stderr, "id:", err)
		os.Exit(1)
	}

	ctx := context.Background()
	storage, err := app.OpenStorage(ctx, cfg.DB)
	if err != nil {
		fmt.Fprintln(os.Stderr, "storage:", err)
		os.Exit(1)
	}
	defer storage.Close()

	agent, err := app.NewChatAgent(cfg, app.NewSearchProvider(cfg.Search))
	if err != nil {
		fmt.Fprintln(os.Stderr, "agent:", err)
		os.Exit(1)
	}

	s := &session{
		chat:     app.NewChatService(cfg, agent, storage, nil),
		renderer: newRenderer(os.Stdout, *plain),
	}

	if *question != "" {
		if err := s.ask(ctx, *question); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	fmt.Println("Ask a research question. Ctrl-C aborts a running answer, Ctrl-D quits.")
	in := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !in.Scan() {
			fmt.Println()
			return
		}
		q := strings.TrimSpace(in.Text())
		if q == "" {
			continue
		}
		if err := s.ask(ctx, q); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
}

// session keeps the history the client resubmits with each question.
type session struct {
	chat           service.ChatService
	renderer       *renderer
	conversationID *int64
	history        []service.ChatMessage
}

func (s *session) ask(ctx context.Context, question string) error {
	msgs := append(s.history, service.ChatMessage{Role: transcript.RoleUser, Content: question})

	prepared, err := s.chat.Prepare(ctx, service.ChatRequest{ConversationID: s.conversationID, Messages: msgs})
	if err != nil {
		return err
	}
	s.conversationID = &prepared.Turn.ConversationID

	turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	progress := newProgress(s.renderer)
	outcome, err := s.chat.Stream(turnCtx, prepared, progress)
	if err != nil {
		return err
	}

	snap := progress.reducer.Snapshot()
	s.renderer.turn(snap, outcome)

	// A failed or aborted answer is not resubmitted as context.
	s.history = msgs
	if outcome.Status == model.TurnReady {
		if text := strings.TrimSpace(snap.Message.Text()); text != "" {
			s.history = append(s.history, service.ChatMessage{Role: transcript.RoleAssistant, Content: text})
		}
	} else {
		s.history = s.history[:len(s.history)-1]
	}
	return nil
}
