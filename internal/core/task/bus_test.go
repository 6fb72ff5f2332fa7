package task

import (
	"context"
	"testing"
	"time"

	"github.com/ClareAI/astra-voicenote-service/pkg/redis"
	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisBus_PublishSubscribe(t *testing.T) {
	mini := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { client.Close() })
	bus := NewRedisBus(redis.NewRedisServiceFromClient(client))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan Task, 1)
	require.NoError(t, bus.Subscribe(ctx, func(task Task) {
		received <- task
	}))

	require.NoError(t, bus.Publish(ctx, Task{Type: TaskTypeRedeliverWebhook, WebhookID: "w1"}))

	select {
	case task := <-received:
		assert.Equal(t, TaskTypeRedeliverWebhook, task.Type)
		assert.Equal(t, "w1", task.WebhookID)
	case <-time.After(2 * time.Second):
		t.Fatal("task not received")
	}
}
