package session

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Budget counts tokens for a model's encoding and trims history to fit a
// token budget, most-recent-first, the same backwards-fill strategy as
// hector's pkg/utils.TokenCounter.FitWithinLimit.
type Budget struct {
	encoding *tiktoken.Tiktoken
	mu       sync.Mutex
}

// NewBudget builds a Budget for model, falling back to the cl100k_base
// encoding (GPT-4/3.5 family) if the model isn't recognized by tiktoken-go —
// the same fallback hector's NewTokenCounter uses.
func NewBudget(model string) (*Budget, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}
	return &Budget{encoding: enc}, nil
}

const tokensPerMessage = 3 // <|start|>role\nmessage<|end|>, per OpenAI's counting convention

func (b *Budget) count(msg Message) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return tokensPerMessage + len(b.encoding.Encode(msg.Role, nil, nil)) + len(b.encoding.Encode(msg.Content, nil, nil))
}

// FitWithinLimit returns the suffix of history that fits within maxTokens,
// keeping the most recent messages and dropping the oldest ones first.
func (b *Budget) FitWithinLimit(history []Message, maxTokens int) []Message {
	if len(history) == 0 {
		return history
	}

	var fitted []Message
	total := 3 // reply priming, mirroring tokens.go's FitWithinLimit
	for i := len(history) - 1; i >= 0; i-- {
		n := b.count(history[i])
		if total+n > maxTokens {
			break
		}
		fitted = append([]Message{history[i]}, fitted...)
		total += n
	}
	return fitted
}
