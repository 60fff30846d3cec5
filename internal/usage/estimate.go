package usage

import (
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const defaultEncoding = "cl100k_base"

// Estimator approximates token counts for providers that omit usage in their
// responses. The BPE table is loaded lazily on first use; if it cannot be
// loaded the estimator falls back to a chars/4 heuristic.
type Estimator struct {
	once sync.Once
	load func() (*tiktoken.Tiktoken, error)
	enc  *tiktoken.Tiktoken
}

func NewEstimator() *Estimator {
	return &Estimator{
		load: func() (*tiktoken.Tiktoken, error) {
			return tiktoken.GetEncoding(defaultEncoding)
		},
	}
}

// Count returns the estimated number of tokens in text.
func (e *Estimator) Count(text string) int64 {
	if text == "" {
		return 0
	}
	e.once.Do(func() {
		enc, err := e.load()
		if err != nil {
			slog.Warn("usage: tokenizer unavailable, using heuristic", "encoding", defaultEncoding, "error", err)
			return
		}
		e.enc = enc
	})
	if e.enc == nil {
		return heuristicCount(text)
	}
	return int64(len(e.enc.Encode(text, nil, nil)))
}

func heuristicCount(text string) int64 {
	return int64((len(text) + 3) / 4)
}
