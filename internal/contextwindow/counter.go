package contextwindow

import (
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the BPE encoding of the gpt-4o family, gpt-4o-mini
// included.
const DefaultEncoding = "o200k_base"

// Counter counts the tokens of one piece of text.
type Counter interface {
	Count(text string) int
}

// CounterFunc adapts a function to Counter.
type CounterFunc func(text string) int

// Count implements Counter.
func (f CounterFunc) Count(text string) int { return f(text) }

// Estimator approximates token counts without an encoding table: roughly four
// ASCII bytes per token, and one token per non-ASCII rune.
type Estimator struct{}

// Count implements Counter.
func (Estimator) Count(text string) int {
	if text == "" {
		return 0
	}
	ascii, other := 0, 0
	for _, r := range text {
		if r < utf8.RuneSelf {
			ascii++
		} else {
			other++
		}
	}
	n := (ascii+3)/4 + other
	if n == 0 {
		n = 1
	}
	return n
}

// TiktokenCounter counts tokens with a tiktoken encoding. The encoding is
// loaded on first use; if it cannot be loaded the Estimator is used instead.
type TiktokenCounter struct {
	encoding string
	logger   *slog.Logger
	load     func(encoding string) (*tiktoken.Tiktoken, error)

	once     sync.Once
	enc      *tiktoken.Tiktoken
	fallback Counter
}

// NewTiktokenCounter creates a counter for the named encoding.
func NewTiktokenCounter(encoding string, logger *slog.Logger) *TiktokenCounter {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TiktokenCounter{
		encoding: encoding,
		logger:   logger,
		load:     tiktoken.GetEncoding,
		fallback: Estimator{},
	}
}

func (c *TiktokenCounter) init() {
	c.once.Do(func() {
		enc, err := c.load(c.encoding)
		if err != nil {
			c.logger.Warn("token encoding unavailable, estimating token counts",
				"encoding", c.encoding, "error", err)
			return
		}
		c.enc = enc
	})
}

// Count implements Counter.
func (c *TiktokenCounter) Count(text string) int {
	c.init()
	if c.enc == nil {
		return c.fallback.Count(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}
