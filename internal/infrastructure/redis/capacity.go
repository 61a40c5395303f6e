package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/sanosuguru/go-train-ticket-lifecycle/internal/command"
)

// SeatCapacity はRedis上で路線ごとの残席数を管理する
// 複数プロセスから同じ路線の座席を扱う場合に使用する
type SeatCapacity struct {
	client       *redis.Client
	defaultSeats int
}

// NewSeatCapacity は新しいSeatCapacityインスタンスを作成する
// defaultSeats は未初期化の路線キーに対する初期残席数
func NewSeatCapacity(client *redis.Client, defaultSeats int) *SeatCapacity {
	return &SeatCapacity{client: client, defaultSeats: defaultSeats}
}

// reserveScript は残席の検査と減算をアトミックに実行する
// キーが存在しない場合はデフォルト残席数で初期化してから減算する
var reserveScript = redis.NewScript(`
	local current = redis.call("GET", KEYS[1])
	if current == false then
		current = tonumber(ARGV[2])
		redis.call("SET", KEYS[1], current)
	else
		current = tonumber(current)
	end
	local count = tonumber(ARGV[1])
	if current < count then
		return -1
	end
	return redis.call("DECRBY", KEYS[1], count)
`)

// ReserveSeats は路線の残席を検査しつつ確保する
// 残席不足の場合は状態を変えずに失敗する
func (c *SeatCapacity) ReserveSeats(ctx context.Context, routeKey string, count int) error {
	key := c.seatKey(routeKey)
	result, err := reserveScript.Run(ctx, c.client, []string{key}, count, c.defaultSeats).Int()
	if err != nil {
		return fmt.Errorf("座席確保に失敗: %w", err)
	}
	if result < 0 {
		return command.ErrNoCapacity
	}
	return nil
}

// ReleaseSeats は確保済みの座席を返却する
func (c *SeatCapacity) ReleaseSeats(ctx context.Context, routeKey string, count int) error {
	key := c.seatKey(routeKey)
	err := c.client.IncrBy(ctx, key, int64(count)).Err()
	if err != nil {
		return fmt.Errorf("座席返却に失敗: %w", err)
	}
	return nil
}

// Available は路線の残席数を返す
// キーが未初期化の場合はデフォルト残席数を返す
func (c *SeatCapacity) Available(ctx context.Context, routeKey string) (int, error) {
	key := c.seatKey(routeKey)
	val, err := c.client.Get(ctx, key).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return c.defaultSeats, nil
		}
		return 0, fmt.Errorf("残席数の取得に失敗: %w", err)
	}
	return val, nil
}

func (c *SeatCapacity) seatKey(routeKey string) string {
	return fmt.Sprintf("capacity:seats:%s", routeKey)
}
