package chat_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/connect-extensions/internal/domain/chat"
	"github.com/okian/connect-extensions/internal/domain/ttlcache"
	"github.com/okian/connect-extensions/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(logger.WithWriter(io.Discard)); err != nil {
		panic(err)
	}
	m.Run()
}

type fakeStreamer struct {
	deltas []string
	err    error
	last   chat.Request
}

func (f *fakeStreamer) Stream(_ context.Context, req chat.Request, onDelta func(string) error) error {
	f.last = req
	for _, d := range f.deltas {
		if err := onDelta(d); err != nil {
			return err
		}
	}
	return f.err
}

func TestSelectModel(t *testing.T) {
	Convey("Explicit models win, then the credential default", t, func() {
		So(chat.SelectModel("claude-x", true), ShouldEqual, "claude-x")
		So(chat.SelectModel("", true), ShouldEqual, chat.DefaultBedrockModel)
		So(chat.SelectModel("", false), ShouldEqual, chat.DefaultAnthropicModel)
	})
}

func TestBuildPrompt(t *testing.T) {
	Convey("Given a conversation", t, func() {
		Convey("No history sends the input alone", func() {
			So(chat.BuildPrompt(nil, "hi"), ShouldEqual, "hi")
		})

		Convey("History is folded into the prompt", func() {
			got := chat.BuildPrompt([]chat.Message{
				{Role: chat.RoleUser, Content: "2+2?"},
				{Role: chat.RoleAssistant, Content: "4"},
				{Role: "system", Content: "ignored"},
			}, "and 3+3?")
			So(got, ShouldEqual, "Previous conversation:\nUser: 2+2?\nAssistant: 4\n\n"+
				"Now respond to the user's latest message.\n\nUser: and 3+3?")
		})
	})
}

func TestErrorReply(t *testing.T) {
	Convey("Long errors are cut to 200 characters", t, func() {
		So(chat.ErrorReply(errors.New("boom")), ShouldEqual, "Sorry, an error occurred: boom")
		long := chat.ErrorReply(errors.New(strings.Repeat("x", 250)))
		So(long, ShouldEqual, "Sorry, an error occurred: "+strings.Repeat("x", 200)+"...")
	})
}

func TestRenderMarkdown(t *testing.T) {
	Convey("Markdown is rendered and scripts are stripped", t, func() {
		got := string(chat.RenderMarkdown("**bold** <script>alert(1)</script>"))
		So(got, ShouldContainSubstring, "<strong>bold</strong>")
		So(got, ShouldNotContainSubstring, "<script>")
	})
}

func TestService(t *testing.T) {
	Convey("Given a chat service", t, func() {
		streamer := &fakeStreamer{deltas: []string{"Hel", "lo"}}
		sessions := ttlcache.New[*chat.Session]()
		svc := chat.NewService(streamer, sessions, chat.WithModel("m1"), chat.WithMaxTokens(64))
		ctx := context.Background()
		var emitted []string
		emit := func(s string) error {
			emitted = append(emitted, s)
			return nil
		}

		Convey("Deltas are emitted and the turn recorded", func() {
			reply, err := svc.Send(ctx, "s1", " hi ", emit)
			So(err, ShouldBeNil)
			So(reply, ShouldEqual, "Hello")
			So(emitted, ShouldResemble, []string{"Hel", "lo"})
			So(streamer.last.Model, ShouldEqual, "m1")
			So(streamer.last.MaxTokens, ShouldEqual, 64)
			So(streamer.last.Prompt, ShouldEqual, "hi")

			Convey("The next prompt carries the history", func() {
				_, err := svc.Send(ctx, "s1", "again", emit)
				So(err, ShouldBeNil)
				So(streamer.last.Prompt, ShouldStartWith, "Previous conversation:\nUser: hi\nAssistant: Hello\n")

				hist := svc.History("s1")
				So(hist, ShouldHaveLength, 4)
				So(string(hist[1].HTML), ShouldContainSubstring, "<p>Hello</p>")
			})

			Convey("Reset drops the transcript", func() {
				svc.Reset("s1")
				So(svc.History("s1"), ShouldBeEmpty)
			})
		})

		Convey("Sessions are independent", func() {
			_, _ = svc.Send(ctx, "a", "one", emit)
			_, _ = svc.Send(ctx, "b", "two", emit)
			So(streamer.last.Prompt, ShouldEqual, "two")
		})

		Convey("An empty reply is replaced", func() {
			streamer.deltas = nil
			reply, err := svc.Send(ctx, "s1", "hi", emit)
			So(err, ShouldBeNil)
			So(reply, ShouldEqual, chat.NoResponse)
		})

		Convey("A failed stream emits the error reply", func() {
			streamer.deltas = nil
			streamer.err = errors.New("overloaded")
			reply, err := svc.Send(ctx, "s1", "hi", emit)
			So(err, ShouldNotBeNil)
			So(reply, ShouldEqual, "Sorry, an error occurred: overloaded")
			So(emitted, ShouldResemble, []string{reply})
		})

		Convey("Blank input is rejected", func() {
			_, err := svc.Send(ctx, "s1", "  ", emit)
			So(errors.Is(err, chat.ErrEmptyMessage), ShouldBeTrue)
		})
	})

	Convey("Without credentials Send fails", t, func() {
		svc := chat.NewService(nil, ttlcache.New[*chat.Session]())
		So(svc.Enabled(), ShouldBeFalse)
		_, err := svc.Send(context.Background(), "s", "hi", func(string) error { return nil })
		So(errors.Is(err, chat.ErrNoCredentials), ShouldBeTrue)
	})
}
