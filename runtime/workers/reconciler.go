package workers

import (
	"chat-relay/domain"
	"chat-relay/repositories"
	"context"
	"log/slog"
	"time"
)

// Reconciler is the subset of the conversation service the reconciler drives.
type Reconciler interface {
	Reconcile(ctx context.Context, chatID string) (domain.Chat, bool, error)
}

// ReconcilerWorker walks every chat at a fixed interval and repairs the
// counters that drifted from the message store.
// It is the repair path when posts are not written in a single transaction.
type ReconcilerWorker struct {
	log        *slog.Logger
	chats      repositories.IChatRepository
	reconciler Reconciler
	interval   time.Duration
}

func NewReconcilerWorker(log *slog.Logger, chats repositories.IChatRepository, reconciler Reconciler, interval time.Duration) *ReconcilerWorker {
	return &ReconcilerWorker{log: log, chats: chats, reconciler: reconciler, interval: interval}
}

func (w *ReconcilerWorker) Run(ctx context.Context) error {
	w.log.Info("Starting reconciler worker", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := w.Scan(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

// Scan reconciles every chat once and returns how many were repaired.
// A chat that fails is logged and skipped, only a failure to list chats aborts the scan.
func (w *ReconcilerWorker) Scan(ctx context.Context) (int, error) {
	ids, err := w.chats.ListChatIDs(ctx)
	if err != nil {
		return 0, err
	}
	repaired := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return repaired, ctx.Err()
		}
		_, ok, err := w.reconciler.Reconcile(ctx, id)
		if err != nil {
			w.log.Warn("Failed to reconcile chat", "chat_id", id, "error", err)
			continue
		}
		if ok {
			repaired++
		}
	}
	if repaired > 0 {
		w.log.Info("Reconciliation done", "chats", len(ids), "repaired", repaired)
	}
	return repaired, nil
}
