package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/sanosuguru/go-train-ticket-lifecycle/internal/notify"
)

// チケットイベントの配信チャンネル
const eventChannel = "tickets:events"

// PubSubNotifier はチケットイベントをRedisのPub/Subへ配信する通知先
type PubSubNotifier struct {
	client *redis.Client
}

// NewPubSubNotifier は新しいPubSubNotifierインスタンスを作成する
func NewPubSubNotifier(client *redis.Client) *PubSubNotifier {
	return &PubSubNotifier{client: client}
}

func (n *PubSubNotifier) Name() string { return "redis_pubsub" }

// Notify はイベントをJSONにして配信チャンネルへ発行する
func (n *PubSubNotifier) Notify(ctx context.Context, ev notify.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("イベントのシリアライズに失敗: %w", err)
	}
	if err := n.client.Publish(ctx, eventChannel, payload).Err(); err != nil {
		return fmt.Errorf("イベントの発行に失敗: %w", err)
	}
	return nil
}
