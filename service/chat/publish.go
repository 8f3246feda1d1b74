package chat

import (
	"context"

	"PPRealtime/service/bus"
)

// Publish 供 API 侧使用：编码事件并发布到同名频道
func Publish(ctx context.Context, p bus.Publisher, e Event) error {
	data, err := EncodeEvent(e)
	if err != nil {
		return err
	}
	return p.Publish(ctx, e.Channel(), data)
}
