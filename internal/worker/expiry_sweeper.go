package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-train-ticket-lifecycle/internal/pkg/logger"
)

// ReservationSweeper は期限切れ予約を失効させるインターフェース
type ReservationSweeper interface {
	SweepExpired(ctx context.Context) []string
}

// ExpirySweeper は期限切れ予約を定期的に失効させるワーカー
type ExpirySweeper struct {
	ticketService ReservationSweeper
	interval      time.Duration
	stopCh        chan struct{}
	doneCh        chan struct{}
}

// NewExpirySweeper は新しいスイーパーを作成
func NewExpirySweeper(ts ReservationSweeper, interval time.Duration) *ExpirySweeper {
	return &ExpirySweeper{
		ticketService: ts,
		interval:      interval,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Start はスイーパーを開始
func (s *ExpirySweeper) Start(ctx context.Context) {
	logger.Info("期限切れ予約スイーパー開始",
		zap.Duration("interval", s.interval),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer close(s.doneCh)

	for {
		select {
		case <-ctx.Done():
			logger.Info("期限切れ予約スイーパー停止（コンテキストキャンセル）")
			return
		case <-s.stopCh:
			logger.Info("期限切れ予約スイーパー停止（シグナル受信）")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// Stop はスイーパーを停止
func (s *ExpirySweeper) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

// sweep は期限の到来した予約を失効させる
func (s *ExpirySweeper) sweep(ctx context.Context) {
	log := logger.Get()
	log.Debug("期限切れ予約のスイープ開始")

	expired := s.ticketService.SweepExpired(ctx)
	if len(expired) > 0 {
		log.Info("期限切れ予約を失効", zap.Int("count", len(expired)), zap.Strings("ticket_ids", expired))
	} else {
		log.Debug("期限切れ予約なし")
	}
}
