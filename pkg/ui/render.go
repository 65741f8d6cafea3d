package ui

import (
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/twin/pkg/conversation"
)

const (
	timeLayout  = "3:04:05 PM"
	minBubble   = 16
	defaultHint = "Ask me anything to get started!"
)

// MarkdownRenderer turns assistant content into terminal output.
type MarkdownRenderer interface {
	Render(in string) (string, error)
}

// NewMarkdownRenderer returns a glamour renderer wrapping at width.
func NewMarkdownRenderer(width int) (MarkdownRenderer, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create markdown renderer")
	}
	return r, nil
}

// TranscriptOptions controls RenderTranscript.
type TranscriptOptions struct {
	Width         int
	AssistantName string
	Greeting      string
	Hint          string
	// Indicator is shown below the log while an exchange is pending.
	Indicator string
	Markdown  MarkdownRenderer
	Location  *time.Location
}

// RenderTranscript draws the message log of snap. It is a pure function of
// its arguments.
func RenderTranscript(snap conversation.Snapshot, opts TranscriptOptions) string {
	width := opts.Width
	if width <= 0 {
		width = 80
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	name := opts.AssistantName
	if name == "" {
		name = "Twin"
	}

	var blocks []string
	if len(snap.Messages) == 0 && !snap.Pending {
		hint := opts.Hint
		if hint == "" {
			hint = defaultHint
		}
		empty := lipgloss.JoinVertical(lipgloss.Center,
			"",
			emptyTitleStyle.Render(opts.Greeting),
			emptyHintStyle.Render(hint),
		)
		return lipgloss.PlaceHorizontal(width, lipgloss.Center, empty)
	}

	maxBubble := width * 3 / 4
	if maxBubble < minBubble {
		maxBubble = width
	}

	for _, m := range snap.Messages {
		stamp := timeStyle.Render(m.Timestamp.In(loc).Format(timeLayout))
		switch m.Role {
		case conversation.RoleUser:
			label := userLabelStyle.Render("You") + " " + stamp
			bubble := userBubbleStyle.Width(bubbleWidth(m.Content, maxBubble)).Render(m.Content)
			block := lipgloss.JoinVertical(lipgloss.Right, label, bubble)
			blocks = append(blocks, lipgloss.PlaceHorizontal(width, lipgloss.Right, block))
		default:
			label := assistantLabelStyle.Render(name) + " " + stamp
			blocks = append(blocks, lipgloss.JoinVertical(lipgloss.Left, label, renderAssistant(m.Content, maxBubble, opts.Markdown)))
		}
	}

	if snap.Pending {
		blocks = append(blocks, assistantLabelStyle.Render(name)+" "+indicatorStyle.Render(opts.Indicator))
	}

	return strings.Join(blocks, "\n\n")
}

func renderAssistant(content string, maxBubble int, md MarkdownRenderer) string {
	if md != nil {
		out, err := md.Render(content)
		if err == nil {
			return assistantBubbleStyle.Render(strings.Trim(out, "\n"))
		}
		log.Debug().Err(err).Str("component", "ui").Msg("markdown render failed, using plain text")
	}
	// the border sits outside Width, padding inside
	return assistantBubbleStyle.Width(bubbleWidth(content, maxBubble-2)).Render(content)
}

// bubbleWidth fits short messages tightly and wraps long ones at limit.
// The two extra cells are the horizontal padding.
func bubbleWidth(content string, limit int) int {
	w := lipgloss.Width(content) + 2
	if w > limit {
		return limit
	}
	return w
}
