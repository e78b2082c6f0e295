// Package tokens counts model tokens in text.
package tokens

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

type Counter interface {
	Count(text string) int
}

var loaderOnce sync.Once

// Tiktoken counts with the BPE encoding of a fixed model id. The encoding
// tables are embedded, so no network access happens at runtime.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

func NewTiktoken(model string) (*Tiktoken, error) {
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, err
	}
	return &Tiktoken{enc: enc}, nil
}

func (t *Tiktoken) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.Encode(text, nil, nil))
}

// Estimator approximates one token per four characters.
type Estimator struct{}

func (Estimator) Count(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// New returns a tiktoken counter for model, or an Estimator when the encoding
// is unknown.
func New(model string) (Counter, error) {
	tk, err := NewTiktoken(model)
	if err != nil {
		return Estimator{}, err
	}
	return tk, nil
}
