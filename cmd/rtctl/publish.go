package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"PPRealtime/service/bus"
	"PPRealtime/service/chat"
	"PPRealtime/tools"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var publishCmd = &cobra.Command{
	Use:   "publish <newMessage|newNotification|newPost> <targetId>",
	Short: "Publish an event to the broker",
	Long: `Publish an event to the broker the gateways subscribe to.

targetId is the recipient for newMessage and newNotification and the author
for newPost. The body must be a JSON object.`,
	Example: `  rtctl publish newMessage u1 --body '{"text":"hi"}' --conversation c1
  rtctl publish newPost author-1 --body '{"id":7}' --count 100 --rate 20`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		broker, _ := cmd.Flags().GetString("broker")
		body, _ := cmd.Flags().GetString("body")
		conversation, _ := cmd.Flags().GetString("conversation")
		count, _ := cmd.Flags().GetInt("count")
		perSec, _ := cmd.Flags().GetFloat64("rate")
		verbose, _ := cmd.Flags().GetBool("verbose")

		ev, err := buildEvent(args[0], args[1], conversation, body)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		log := zap.NewNop()
		if verbose {
			log, _ = zap.NewDevelopment()
		}
		b, err := bus.Open(ctx, broker, bus.Options{Log: log, NodeID: int64(tools.GetEnvInt("RT_NODE_ID", 0))})
		if err != nil {
			return err
		}
		defer b.Close()

		lim := rate.NewLimiter(rate.Inf, 1)
		if perSec > 0 {
			lim = rate.NewLimiter(rate.Limit(perSec), 1)
		}
		for i := 0; i < count; i++ {
			if err := lim.Wait(ctx); err != nil {
				return err
			}
			if err := chat.Publish(ctx, b, ev); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "published %d %s event(s) via %s\n", count, ev.Channel(), b.Name())
		return nil
	},
}

func init() {
	publishCmd.Flags().String("broker", tools.GetEnv("RT_BROKER_URL", "redis://127.0.0.1:6379/0"), "Broker URL")
	publishCmd.Flags().String("body", `{}`, "Event body (JSON object)")
	publishCmd.Flags().String("conversation", "", "Conversation id for newMessage")
	publishCmd.Flags().Int("count", 1, "Number of copies to publish")
	publishCmd.Flags().Float64("rate", 0, "Events per second, 0 for no limit")
	publishCmd.Flags().BoolP("verbose", "v", tools.GetEnvBool("RT_VERBOSE", false), "Log broker activity")
}

// buildEvent 经过与网关相同的解码校验，保证发出去的事件能被接收
func buildEvent(channel, target, conversation, body string) (chat.Event, error) {
	raw := json.RawMessage(body)
	var ev chat.Event
	switch channel {
	case chat.ChannelNewMessage:
		ev = chat.NewMessage{RecipientID: target, Message: raw, ConversationID: conversation}
	case chat.ChannelNewNotification:
		ev = chat.NewNotification{RecipientUserID: target, Notification: raw}
	case chat.ChannelNewPost:
		ev = chat.NewPost{AuthorID: target, Post: raw}
	default:
		return nil, fmt.Errorf("unknown channel %q", channel)
	}
	data, err := chat.EncodeEvent(ev)
	if err != nil {
		return nil, err
	}
	return chat.DecodeEvent(channel, data)
}
