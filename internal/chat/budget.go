package chat

import (
	"context"
	"fmt"

	"github.com/suPer8Hu/lexchat/internal/tokens"
)

const summaryPrefix = "Chat history summary: "

type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}

// Budget keeps the history handed to the model under a token limit by
// collapsing it into a single summary turn once the limit is exceeded.
type Budget struct {
	counter    tokens.Counter
	limit      int
	summarizer Summarizer
}

func NewBudget(counter tokens.Counter, limit int, summarizer Summarizer) *Budget {
	return &Budget{counter: counter, limit: limit, summarizer: summarizer}
}

func (b *Budget) Limit() int { return b.limit }

func (b *Budget) Count(text string) int {
	return b.counter.Count(text)
}

// Sum is the total content tokens of turns.
func (b *Budget) Sum(turns []Turn) int {
	total := 0
	for _, t := range turns {
		total += b.counter.Count(t.Content)
	}
	return total
}

// Bound returns turns unchanged while they fit the limit, otherwise a single
// system turn carrying a summary of all of them.
func (b *Budget) Bound(ctx context.Context, turns []Turn) ([]Turn, error) {
	if b.Sum(turns) <= b.limit {
		return turns, nil
	}
	summary, err := b.summarizer.Summarize(ctx, Transcript(turns))
	if err != nil {
		return nil, fmt.Errorf("bound history: %w", err)
	}
	return []Turn{{Role: RoleSystem, Content: summaryPrefix + summary}}, nil
}
