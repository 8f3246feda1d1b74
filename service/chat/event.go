package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"PPRealtime/tools/errs"
)

// 总线频道，出站事件名与频道同名
const (
	ChannelNewMessage      = "newMessage"
	ChannelNewNotification = "newNotification"
	ChannelNewPost         = "newPost"
)

// Event 封闭的事件联合类型，只有本包内的类型可以实现
type Event interface {
	Channel() string
	isEvent()
}

type NewMessage struct {
	RecipientID    string          `json:"recipientId"`
	Message        json.RawMessage `json:"message"`
	ConversationID string          `json:"conversationId"`
}

type NewNotification struct {
	RecipientUserID string          `json:"recipientUserId"`
	Notification    json.RawMessage `json:"notification"`
}

// NewPost 接收者是作者的粉丝
type NewPost struct {
	Post     json.RawMessage `json:"post"`
	AuthorID string          `json:"authorId"`
}

func (NewMessage) Channel() string      { return ChannelNewMessage }
func (NewNotification) Channel() string { return ChannelNewNotification }
func (NewPost) Channel() string         { return ChannelNewPost }

func (NewMessage) isEvent()      {}
func (NewNotification) isEvent() {}
func (NewPost) isEvent()         {}

type decoderFunc func(raw []byte) (Event, error)

var decoders = map[string]decoderFunc{
	ChannelNewMessage: func(raw []byte) (Event, error) {
		var e NewMessage
		if err := strictUnmarshal(raw, &e); err != nil {
			return nil, err
		}
		if err := requireID("recipientId", e.RecipientID); err != nil {
			return nil, err
		}
		if err := requireBody("message", e.Message); err != nil {
			return nil, err
		}
		return e, nil
	},
	ChannelNewNotification: func(raw []byte) (Event, error) {
		var e NewNotification
		if err := strictUnmarshal(raw, &e); err != nil {
			return nil, err
		}
		if err := requireID("recipientUserId", e.RecipientUserID); err != nil {
			return nil, err
		}
		if err := requireBody("notification", e.Notification); err != nil {
			return nil, err
		}
		return e, nil
	},
	ChannelNewPost: func(raw []byte) (Event, error) {
		var e NewPost
		if err := strictUnmarshal(raw, &e); err != nil {
			return nil, err
		}
		if err := requireID("authorId", e.AuthorID); err != nil {
			return nil, err
		}
		if err := requireBody("post", e.Post); err != nil {
			return nil, err
		}
		return e, nil
	},
}

// Channels 订阅的全部频道
func Channels() []string {
	return []string{ChannelNewMessage, ChannelNewNotification, ChannelNewPost}
}

// DecodeEvent 按频道解码总线消息；失败返回 ErrDecode
func DecodeEvent(channel string, raw []byte) (Event, error) {
	dec, ok := decoders[channel]
	if !ok {
		return nil, errs.ErrDecode.WrapMsg("unknown channel", "channel", channel)
	}
	ev, err := dec(raw)
	if err != nil {
		return nil, errs.ErrDecode.WrapMsg(err.Error(), "channel", channel, "len", len(raw))
	}
	return ev, nil
}

// EncodeEvent 发布端使用：事件 -> 总线负载
func EncodeEvent(e Event) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, errs.ErrDecode.WrapMsg("encode event", "channel", e.Channel(), "err", err)
	}
	return b, nil
}

// Frame 出站帧：{"event": <channel>, "data": <payload>}
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type messageData struct {
	Message        json.RawMessage `json:"message"`
	ConversationID string          `json:"conversationId"`
}

// BuildFrame 事件 -> websocket 文本帧，newMessage 只下发 {message, conversationId}
func BuildFrame(e Event) ([]byte, error) {
	var data any
	switch ev := e.(type) {
	case NewMessage:
		data = messageData{Message: ev.Message, ConversationID: ev.ConversationID}
	case NewNotification:
		data = ev
	case NewPost:
		data = ev
	default:
		return nil, errs.ErrDecode.WrapMsg("unsupported event type")
	}
	b, err := json.Marshal(Frame{Event: e.Channel(), Data: data})
	if err != nil {
		return nil, errs.ErrDecode.WrapMsg("build frame", "channel", e.Channel(), "err", err)
	}
	return b, nil
}

func strictUnmarshal(raw []byte, v any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return fmt.Errorf("payload is not a JSON object")
	}
	return json.Unmarshal(raw, v)
}

func requireID(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("missing %s", field)
	}
	return nil
}

func requireBody(field string, v json.RawMessage) error {
	if len(v) == 0 || bytes.Equal(v, []byte("null")) {
		return fmt.Errorf("missing %s", field)
	}
	return nil
}
