// Package render turns a captured message's text plus the operator's wizard
// choices into the final published text. Everything here is pure; channel and
// nickname lookups happen before calling in.
package render

import (
	"strings"

	"repost-bot/internal/database/models"
)

// Classification mirrors the channel trust lists consumed from the channel
// repository.
type Classification string

const (
	ClassGreen        Classification = "green"
	ClassRed          Classification = "red"
	ClassUnclassified Classification = ""
)

// NicknameSelection captures the operator's explicit wizard choice.
// Chosen=false means "use automatic lookup"; Chosen=true with a nil Nickname
// means "explicitly no attribution".
type NicknameSelection struct {
	Chosen   bool
	Nickname *string
}

// Input is everything Render needs.
type Input struct {
	OriginalText   string
	TextHandling   string // models.TextKeep / TextRemove / TextQuote
	CustomText     string
	Forward        *models.ForwardInfo
	Action         string // models.ActionTransform / ActionForward
	Classification Classification
	Selection      NicknameSelection
	// LookedUpNickname is the persisted mapping for the original sender,
	// "" when there is none. Consulted only when no explicit selection
	// was made.
	LookedUpNickname string
}

// Render produces the final text. See Input for the knobs; forward-as-is
// posts skip attribution entirely.
func Render(in Input) string {
	text := applyTextHandling(in.OriginalText, in.TextHandling)

	if in.CustomText != "" {
		if text != "" {
			text = in.CustomText + "\n\n" + text
		} else {
			text = in.CustomText
		}
	}

	if in.Action == models.ActionForward {
		return text
	}

	attr := attribution(in)
	if text == "" {
		// Media-only posts get the attribution line without the leading
		// blank lines.
		return strings.TrimPrefix(attr, "\n\n")
	}
	return text + attr
}

func applyTextHandling(text, handling string) string {
	switch handling {
	case models.TextRemove:
		return ""
	case models.TextQuote:
		if text == "" {
			return ""
		}
		return "<blockquote>" + text + "</blockquote>"
	default:
		// Unknown modes behave like "keep".
		return text
	}
}

// resolveNickname applies the precedence rule: an explicit wizard selection
// (including the explicit "none") beats the automatic lookup.
func resolveNickname(in Input) string {
	if in.Selection.Chosen {
		if in.Selection.Nickname == nil {
			return ""
		}
		return *in.Selection.Nickname
	}
	return in.LookedUpNickname
}

func attribution(in Input) string {
	nickname := resolveNickname(in)

	if in.Forward.HasChannel() {
		switch in.Classification {
		case ClassGreen:
			// Green posts bypass the engine; nothing to append if one
			// lands here anyway.
			return ""
		case ClassRed:
			// The channel identity must never be surfaced.
			if nickname != "" {
				return "\n\nvia " + nickname
			}
			return ""
		default:
			link := in.Forward.Permalink()
			if link == "" {
				return ""
			}
			if nickname != "" {
				return "\n\nfrom " + nickname + " via " + link
			}
			return "\n\nvia " + link
		}
	}

	if in.Forward.HasUser() {
		if nickname != "" {
			return "\n\nvia " + nickname
		}
		return ""
	}

	// Operator-authored content: only an explicit non-nil selection counts.
	if in.Selection.Chosen && in.Selection.Nickname != nil && *in.Selection.Nickname != "" {
		return "\n\nvia " + *in.Selection.Nickname
	}
	return ""
}
