package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/go-go-golems/twin/pkg/conversation"
)

type fakeMarkdown struct {
	calls []string
	err   error
}

func (f *fakeMarkdown) Render(in string) (string, error) {
	f.calls = append(f.calls, in)
	if f.err != nil {
		return "", f.err
	}
	return "\n<md>" + in + "</md>\n", nil
}

func transcript(pending bool) conversation.Snapshot {
	at := time.Date(2025, 3, 1, 15, 4, 5, 0, time.UTC)
	return conversation.Snapshot{
		Messages: []conversation.Message{
			{ID: "1", Role: conversation.RoleUser, Content: "Hello", Timestamp: at},
			{ID: "2", Role: conversation.RoleAssistant, Content: "You said: Hello", Timestamp: at.Add(time.Second)},
		},
		Pending: pending,
		Version: 2,
	}
}

func TestRenderEmptyState(t *testing.T) {
	out := RenderTranscript(conversation.Snapshot{}, TranscriptOptions{
		Width:    60,
		Greeting: "Hello! I'm Dave's AI Twin.",
	})
	assert.Contains(t, out, "Hello! I'm Dave's AI Twin.")
	assert.Contains(t, out, "Ask me anything to get started!")

	out = RenderTranscript(conversation.Snapshot{}, TranscriptOptions{Width: 60, Hint: "Say hi"})
	assert.Contains(t, out, "Say hi")
	assert.NotContains(t, out, "Ask me anything")
}

func TestRenderMessages(t *testing.T) {
	out := RenderTranscript(transcript(false), TranscriptOptions{
		Width:         60,
		AssistantName: "Dave's AI Twin",
		Location:      time.UTC,
	})

	assert.Contains(t, out, "You")
	assert.Contains(t, out, "3:04:05 PM")
	assert.Contains(t, out, "3:04:06 PM")
	assert.Contains(t, out, "Dave's AI Twin")
	assert.Less(t, strings.Index(out, "Hello"), strings.Index(out, "You said: Hello"))
	assert.NotContains(t, out, "Ask me anything")
}

func TestRenderPendingIndicator(t *testing.T) {
	out := RenderTranscript(transcript(true), TranscriptOptions{Width: 60, Indicator: "∙∙●", Location: time.UTC})
	assert.True(t, strings.HasSuffix(strings.TrimRight(out, " \n"), "∙∙●"))

	out = RenderTranscript(conversation.Snapshot{Pending: true}, TranscriptOptions{Width: 60, Indicator: "..."})
	assert.NotContains(t, out, "Ask me anything", "a pending first message has no empty state")
	assert.Contains(t, out, "Twin ")
}

func TestRenderUsesMarkdownForAssistantOnly(t *testing.T) {
	md := &fakeMarkdown{}
	out := RenderTranscript(transcript(false), TranscriptOptions{Width: 60, Markdown: md, Location: time.UTC})

	assert.Equal(t, []string{"You said: Hello"}, md.calls)
	assert.Contains(t, out, "<md>You said: Hello</md>")
}

func TestRenderFallsBackToPlainText(t *testing.T) {
	md := &fakeMarkdown{err: errors.New("bad style")}
	out := RenderTranscript(transcript(false), TranscriptOptions{Width: 60, Markdown: md, Location: time.UTC})

	assert.Contains(t, out, "You said: Hello")
	assert.NotContains(t, out, "<md>")
}

func TestBubbleWidth(t *testing.T) {
	assert.Equal(t, 7, bubbleWidth("Hello", 40))
	assert.Equal(t, 40, bubbleWidth(strings.Repeat("x", 100), 40))
}
