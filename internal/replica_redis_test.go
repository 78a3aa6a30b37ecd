package internal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCmdable struct {
	data      map[string]string
	published []publishCall
	setErr    error
}

type publishCall struct {
	channel string
	message string
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{data: map[string]string{}}
}

func (m *mockCmdable) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	if m.setErr != nil {
		return redis.NewStatusResult("", m.setErr)
	}
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	case string:
		m.data[key] = v
	}
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Publish(_ context.Context, channel string, message any) *redis.IntCmd {
	msg, _ := message.(string)
	m.published = append(m.published, publishCall{channel: channel, message: msg})
	return redis.NewIntResult(1, nil)
}

type fakeSubscription struct {
	ch     chan *redis.Message
	closed bool
}

func (f *fakeSubscription) Channel(...redis.ChannelOption) <-chan *redis.Message { return f.ch }

func (f *fakeSubscription) Close() error {
	f.closed = true
	return nil
}

func TestRedisReplica_ReadWrite(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	r := newRedisReplica(mock, ReplicaConfig{Key: "test:state"}, zerolog.Nop())

	_, err := r.ReadBlob(ctx)
	require.ErrorIs(t, err, ErrBlobNotFound)

	require.NoError(t, r.WriteBlob(ctx, []byte(`{"items":[]}`)))
	data, err := r.ReadBlob(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"items":[]}`, string(data))

	require.Len(t, mock.published, 1)
	assert.Equal(t, "test:state:changes", mock.published[0].channel)
	assert.Equal(t, r.instanceID, mock.published[0].message)
}

func TestRedisReplica_WriteError(t *testing.T) {
	mock := newMockCmdable()
	mock.setErr = errors.New("READONLY")
	r := newRedisReplica(mock, ReplicaConfig{}, zerolog.Nop())

	require.Error(t, r.WriteBlob(context.Background(), []byte(`{}`)))
	assert.Empty(t, mock.published, "no change is announced for a failed write")
}

func TestRedisReplica_WatchIgnoresOwnWrites(t *testing.T) {
	sub := &fakeSubscription{ch: make(chan *redis.Message, 4)}
	r := newRedisReplica(newMockCmdable(), ReplicaConfig{}, zerolog.Nop())
	r.subscribe = func(context.Context, string) (redisSubscription, error) { return sub, nil }

	ctx, cancel := context.WithCancel(context.Background())
	changes := make(chan struct{}, 4)
	done := make(chan error, 1)
	go func() { done <- r.Watch(ctx, func() { changes <- struct{}{} }) }()

	sub.ch <- &redis.Message{Payload: r.instanceID}
	sub.ch <- &redis.Message{Payload: "other-device"}

	select {
	case <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("change from another instance was not reported")
	}
	cancel()
	require.NoError(t, <-done)
	assert.Empty(t, changes, "own write must not be reported")
	assert.True(t, sub.closed)
}
