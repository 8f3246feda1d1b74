package chat

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"PPRealtime/tools/errs"
)

type stubFollowers struct {
	graph map[string][]string
	err   error
	calls int
}

func (s *stubFollowers) Followers(_ context.Context, author string) ([]string, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	ids, ok := s.graph[author]
	if !ok {
		return nil, errs.ErrLookup.WrapMsg("no profile", "author", author)
	}
	return ids, nil
}

func drain(c *Client) []string {
	var out []string
	for {
		select {
		case b := <-c.send:
			out = append(out, string(b))
		default:
			return out
		}
	}
}

func newTestDispatcher(f FollowersLookup) (*Dispatcher, *Registry) {
	reg := NewRegistry()
	return NewDispatcher(reg, f, zap.NewNop()), reg
}

func TestDispatchMessageToEveryConnection(t *testing.T) {
	d, reg := newTestDispatcher(nil)
	c1 := newTestClient("c1", "u1")
	c2 := newTestClient("c2", "u1")
	other := newTestClient("c3", "u9")
	reg.Register("u1", c1)
	reg.Register("u1", c2)
	reg.Register("u9", other)

	res, err := d.Dispatch(context.Background(), NewMessage{
		RecipientID:    "u1",
		Message:        json.RawMessage(`{"text":"hi"}`),
		ConversationID: "conv1",
	})
	require.NoError(t, err)
	assert.Equal(t, DispatchResult{Targets: 1, Delivered: 2}, res)

	want := `{"event":"newMessage","data":{"message":{"text":"hi"},"conversationId":"conv1"}}`
	for _, c := range []*Client{c1, c2} {
		got := drain(c)
		require.Len(t, got, 1)
		assert.JSONEq(t, want, got[0])
	}
	assert.Empty(t, drain(other))
}

func TestDispatchToOfflineUserIsSilent(t *testing.T) {
	d, _ := newTestDispatcher(nil)
	res, err := d.Dispatch(context.Background(), NewNotification{
		RecipientUserID: "u2",
		Notification:    json.RawMessage(`{}`),
	})
	require.NoError(t, err)
	assert.Equal(t, DispatchResult{Targets: 1}, res)
}

func TestDispatchIsolatesFailedConnections(t *testing.T) {
	d, reg := newTestDispatcher(nil)
	closed := newTestClient("c1", "u1")
	closed.Close()
	full := NewClient("c2", "u1", nil, 1)
	require.NoError(t, full.Enqueue([]byte("busy")))
	ok := newTestClient("c3", "u1")
	reg.Register("u1", closed)
	reg.Register("u1", full)
	reg.Register("u1", ok)

	res, err := d.Dispatch(context.Background(), NewNotification{RecipientUserID: "u1", Notification: json.RawMessage(`{"n":1}`)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Delivered)
	assert.Equal(t, 2, res.Failed)
	assert.Len(t, drain(ok), 1)
}

func TestDispatchFailureDoesNotAffectOtherTargets(t *testing.T) {
	f := &stubFollowers{graph: map[string][]string{"a": {"v", "w"}}}
	d, reg := newTestDispatcher(f)
	broken := newTestClient("c1", "v")
	broken.Close()
	w := newTestClient("c2", "w")
	reg.Register("v", broken)
	reg.Register("w", w)

	res, err := d.Dispatch(context.Background(), NewPost{AuthorID: "a", Post: json.RawMessage(`{}`)})
	require.NoError(t, err)
	assert.Equal(t, DispatchResult{Targets: 2, Delivered: 1, Failed: 1}, res)
	assert.Len(t, drain(w), 1)
}

func TestDispatchLogsDeliveryFailure(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	reg := NewRegistry()
	d := NewDispatcher(reg, nil, zap.New(core))
	broken := newTestClient("c1", "u1")
	broken.Close()
	reg.Register("u1", broken)

	res, err := d.Dispatch(context.Background(), NewMessage{RecipientID: "u1", Message: json.RawMessage(`{}`)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	entries := logs.FilterMessage("deliver failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zap.WarnLevel, entries[0].Level)
	assert.Equal(t, "c1", entries[0].ContextMap()["conn"])
}

func TestDispatchPostToConnectedFollowersOnly(t *testing.T) {
	f := &stubFollowers{graph: map[string][]string{"A": {"F1", "F2", "F3"}}}
	d, reg := newTestDispatcher(f)
	f1 := newTestClient("c1", "F1")
	f2 := newTestClient("c2", "F2")
	author := newTestClient("c3", "A")
	stranger := newTestClient("c4", "S")
	for _, c := range []*Client{f1, f2, author, stranger} {
		reg.Register(c.UserID, c)
	}

	res, err := d.Dispatch(context.Background(), NewPost{AuthorID: "A", Post: json.RawMessage(`{"id":1}`)})
	require.NoError(t, err)
	assert.Equal(t, DispatchResult{Targets: 3, Delivered: 2}, res)

	want := `{"event":"newPost","data":{"post":{"id":1},"authorId":"A"}}`
	for _, c := range []*Client{f1, f2} {
		got := drain(c)
		require.Len(t, got, 1)
		assert.JSONEq(t, want, got[0])
	}
	assert.Empty(t, drain(author))
	assert.Empty(t, drain(stranger))
}

func TestDispatchPostOneFollowerOnline(t *testing.T) {
	f := &stubFollowers{graph: map[string][]string{"author": {"f1", "f2"}}}
	d, reg := newTestDispatcher(f)
	f1 := newTestClient("c1", "f1")
	reg.Register("f1", f1)

	res, err := d.Dispatch(context.Background(), NewPost{AuthorID: "author", Post: json.RawMessage(`{}`)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Delivered)
	assert.Len(t, drain(f1), 1)
}

func TestDispatchPostLookupFailureDropsEvent(t *testing.T) {
	f := &stubFollowers{err: errors.New("db down")}
	d, reg := newTestDispatcher(f)
	c := newTestClient("c1", "f1")
	reg.Register("f1", c)

	_, err := d.Dispatch(context.Background(), NewPost{AuthorID: "a", Post: json.RawMessage(`{}`)})
	assert.ErrorIs(t, err, errs.ErrLookup)
	assert.Empty(t, drain(c))

	// 作者不存在
	f.err = nil
	f.graph = map[string][]string{}
	_, err = d.Dispatch(context.Background(), NewPost{AuthorID: "ghost", Post: json.RawMessage(`{}`)})
	assert.ErrorIs(t, err, errs.ErrLookup)
	assert.Equal(t, 2, f.calls)
}

func TestDispatchPostWithoutLookup(t *testing.T) {
	d, _ := newTestDispatcher(nil)
	_, err := d.Dispatch(context.Background(), NewPost{AuthorID: "a", Post: json.RawMessage(`{}`)})
	assert.ErrorIs(t, err, errs.ErrLookup)
}

func TestDispatchDedupesFollowers(t *testing.T) {
	f := &stubFollowers{graph: map[string][]string{"a": {"f1", "f1", "", "f2"}}}
	d, reg := newTestDispatcher(f)
	c := newTestClient("c1", "f1")
	reg.Register("f1", c)

	res, err := d.Dispatch(context.Background(), NewPost{AuthorID: "a", Post: json.RawMessage(`{}`)})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Targets)
	assert.Len(t, drain(c), 1)
}

type slowFollowers struct{}

func (slowFollowers) Followers(ctx context.Context, _ string) ([]string, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestDispatchLookupTimeout(t *testing.T) {
	reg := NewRegistry()
	d := NewDispatcher(reg, slowFollowers{}, nil).WithLookupTimeout(20 * time.Millisecond)
	_, err := d.Dispatch(context.Background(), NewPost{AuthorID: "a", Post: json.RawMessage(`{}`)})
	assert.ErrorIs(t, err, errs.ErrLookup)
	assert.Contains(t, err.Error(), "deadline exceeded")
}
