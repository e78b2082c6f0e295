package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/suPer8Hu/lexchat/internal/store/rabbitmq"
	"github.com/suPer8Hu/lexchat/internal/usage"
)

type usageStore interface {
	Store(ctx context.Context, ev usage.Event) error
}

var errBadEvent = errors.New("bad usage event")

// handleUsage decodes one queued usage event and writes it.
func handleUsage(ctx context.Context, repo usageStore, body []byte) error {
	ev, err := rabbitmq.DecodeUsage(body)
	if err != nil {
		return fmt.Errorf("%w: %v", errBadEvent, err)
	}
	if ev.UserID == "" || ev.TokensUsed < 0 {
		return fmt.Errorf("%w: user_id=%q tokens=%d", errBadEvent, ev.UserID, ev.TokensUsed)
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return repo.Store(cctx, ev)
}
