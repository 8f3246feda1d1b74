package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"PPRealtime/tools/errs"
)

func TestBuildBaseConfig(t *testing.T) {
	c := DefaultConfig()
	c.InitialOffset = "oldest"
	c.Compression = "lz4"
	c.Retries = 0

	cfg, err := BuildBaseConfig(c)
	require.NoError(t, err)
	assert.Equal(t, sarama.V2_8_0_0, cfg.Version)
	assert.Equal(t, sarama.OffsetOldest, cfg.Consumer.Offsets.Initial)
	assert.Equal(t, sarama.CompressionLZ4, cfg.Producer.Compression)
	assert.Equal(t, 1, cfg.Producer.Retry.Max)
	assert.True(t, cfg.Producer.Return.Successes)
	assert.Equal(t, "rt-gateway", cfg.ClientID)
}

func TestBuildBaseConfigBadVersion(t *testing.T) {
	c := DefaultConfig()
	c.Version = "not-a-version"
	_, err := BuildBaseConfig(c)
	assert.ErrorIs(t, err, errs.ErrConfig)
}

func TestBuildBaseConfigZstdNeedsNewBroker(t *testing.T) {
	c := DefaultConfig()
	c.Version = "1.1.0"
	c.Compression = "zstd"
	_, err := BuildBaseConfig(c)
	assert.ErrorIs(t, err, errs.ErrConfig)
}

func TestProducerSend(t *testing.T) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	mp := mocks.NewSyncProducer(t, cfg)
	mp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"a":1}` {
			return errors.New("unexpected value " + string(val))
		}
		return nil
	})
	mp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewProducerFrom(mp)
	_, _, err := p.Send("newPost", "k1", []byte(`{"a":1}`))
	require.NoError(t, err)
	_, _, err = p.Send("newPost", "", []byte(`{}`))
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}

type fakeSession struct {
	sarama.ConsumerGroupSession
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (s *fakeSession) Context() context.Context { return s.ctx }
func (s *fakeSession) MemberID() string         { return "m-1" }
func (s *fakeSession) GenerationID() int32      { return 1 }
func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	s.marked = append(s.marked, msg.Offset)
	s.mu.Unlock()
}

type fakeClaim struct {
	sarama.ConsumerGroupClaim
	ch chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.ch }

func TestGroupHandlerConsumeClaim(t *testing.T) {
	var got []string
	h := &groupHandler{
		h: func(_ context.Context, msg *sarama.ConsumerMessage) {
			got = append(got, string(msg.Value))
		},
		log:   zap.NewNop(),
		ready: make(chan struct{}),
	}
	sess := &fakeSession{ctx: context.Background()}

	require.NoError(t, h.Setup(sess))
	require.NoError(t, h.Setup(sess)) // rebalance 再次 Setup 不会 panic
	select {
	case <-h.ready:
	default:
		t.Fatal("ready not closed after setup")
	}

	claim := &fakeClaim{ch: make(chan *sarama.ConsumerMessage, 3)}
	claim.ch <- &sarama.ConsumerMessage{Topic: "newMessage", Offset: 10, Value: []byte("a")}
	claim.ch <- &sarama.ConsumerMessage{Topic: "newMessage", Offset: 11, Value: []byte("b")}
	close(claim.ch)

	require.NoError(t, h.ConsumeClaim(sess, claim))
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, []int64{10, 11}, sess.marked)
}

func TestGroupHandlerStopsOnSessionEnd(t *testing.T) {
	h := &groupHandler{
		h:     func(context.Context, *sarama.ConsumerMessage) { t.Fatal("unexpected message") },
		log:   zap.NewNop(),
		ready: make(chan struct{}),
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	claim := &fakeClaim{ch: make(chan *sarama.ConsumerMessage)}
	assert.NoError(t, h.ConsumeClaim(&fakeSession{ctx: ctx}, claim))
}

func TestTopicDetail(t *testing.T) {
	c := DefaultConfig()
	c.Partitions = 0
	c.ReplicationFactor = 3
	td := topicDetail(c)
	assert.Equal(t, int32(1), td.NumPartitions)
	assert.Equal(t, int16(3), td.ReplicationFactor)
	assert.Equal(t, "2", *td.ConfigEntries["min.insync.replicas"])
}
