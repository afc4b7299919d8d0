package maestro

import (
	"math"

	"github.com/pkoukk/tiktoken-go"
)

// Token estimation constants. These mirror the accounting used by
// OpenAI-shape chat APIs; the counter produces an estimate for gating
// requests against max_input_tokens, never an exact provider count.
const (
	baseMessageTokens = 4 // per-message overhead
	formatTokens      = 2 // message-list overhead

	lowDetailImageTokens = 85
	highDetailTileTokens = 170
	maxImageDimension    = 2048
	imageShortSide       = 768
	imageTileSize        = 512
	mediumDetailDefault  = 1024
)

// Image detail levels accepted by CountImage.
const (
	DetailLow    = "low"
	DetailMedium = "medium"
	DetailHigh   = "high"
)

// TokenCounter estimates token cost of text, messages, and images.
type TokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTokenCounter builds a counter using the tokenizer for model when
// known, falling back to the generic cl100k_base encoding. If no encoding
// can be loaded at all (offline environment), counting degrades to a
// bytes/4 approximation.
func NewTokenCounter(model string) *TokenCounter {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, _ = tiktoken.GetEncoding("cl100k_base")
	}
	return &TokenCounter{enc: enc}
}

// CountText returns the token count of s.
func (c *TokenCounter) CountText(s string) int {
	if s == "" {
		return 0
	}
	if c.enc == nil {
		return (len(s) + 3) / 4
	}
	return len(c.enc.Encode(s, nil, nil))
}

// CountImage estimates tokens for an image at the given detail level.
// Width and height of 0 mean unknown dimensions.
func (c *TokenCounter) CountImage(detail string, width, height int) int {
	switch detail {
	case DetailLow:
		return lowDetailImageTokens
	case DetailMedium:
		if width > 0 && height > 0 {
			return c.highDetailTokens(width, height)
		}
		return mediumDetailDefault
	default:
		// high, and anything unrecognized
		if width > 0 && height > 0 {
			return c.highDetailTokens(width, height)
		}
		return c.highDetailTokens(1024, 1024)
	}
}

// highDetailTokens scales the image to fit 2048x2048, then scales the
// shortest side to 768, and charges 170 tokens per 512px tile plus 85.
func (c *TokenCounter) highDetailTokens(width, height int) int {
	w, h := float64(width), float64(height)
	if w > maxImageDimension || h > maxImageDimension {
		scale := maxImageDimension / math.Max(w, h)
		w *= scale
		h *= scale
	}
	scale := imageShortSide / math.Min(w, h)
	w *= scale
	h *= scale
	tiles := math.Ceil(w/imageTileSize) * math.Ceil(h/imageTileSize)
	return int(tiles)*highDetailTileTokens + lowDetailImageTokens
}

// CountMessage returns the estimated cost of a single message, including
// the per-message overhead, role/name fields, tool calls, and any
// attached image (charged at high detail with unknown dimensions).
func (c *TokenCounter) CountMessage(m Message) int {
	n := baseMessageTokens
	n += c.CountText(string(m.Role))
	n += c.CountText(m.Content)
	n += c.CountText(m.Name)
	n += c.CountText(m.ToolCallID)
	for _, tc := range m.ToolCalls {
		n += c.CountText(tc.Function.Name)
		n += c.CountText(tc.Function.Arguments)
	}
	if m.Base64Image != "" {
		n += c.CountImage(DetailHigh, 0, 0)
	}
	return n
}

// CountMessages returns the estimated cost of a full message list.
func (c *TokenCounter) CountMessages(msgs []Message) int {
	n := formatTokens
	for _, m := range msgs {
		n += c.CountMessage(m)
	}
	return n
}
