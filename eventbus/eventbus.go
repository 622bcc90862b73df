package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"ad-eraser-server/storage"
)

// TopicScoreRecorded carries one message per successful score save.
const TopicScoreRecorded = "score.recorded"

// ScoreRecorded is the payload published after a save. Shared is set when the record
// reached the shared leaderboard.
type ScoreRecorded struct {
	PlayerName string    `json:"player_name,omitempty"`
	Score      int       `json:"score"`
	RecordedAt time.Time `json:"recorded_at"`
	Shared     bool      `json:"shared"`
}

// Bus is the in-process score event bus. Listeners subscribe once and refresh on every save.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger *slog.Logger
}

// New creates a bus. Messages published with no subscriber are dropped.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("tag", "eventbus")
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 64},
			watermill.NewSlogLogger(logger),
		),
		logger: logger,
	}
}

// PublishScoreRecorded announces rec. Failures are logged and otherwise ignored.
func (b *Bus) PublishScoreRecorded(rec storage.ScoreRecord, shared bool) {
	if b == nil {
		return
	}
	payload, err := json.Marshal(ScoreRecorded{
		PlayerName: rec.PlayerName,
		Score:      rec.Score,
		RecordedAt: rec.RecordedAt,
		Shared:     shared,
	})
	if err != nil {
		b.logger.Warn("encoding score event", "err", err)
		return
	}
	if err := b.pubsub.Publish(TopicScoreRecorded, message.NewMessage(watermill.NewUUID(), payload)); err != nil {
		b.logger.Warn("publishing score event", "err", err)
	}
}

// Subscribe returns a channel of score events that closes when ctx is done or the bus is closed.
// Every message is acked once decoded, whether or not the receiver keeps up.
func (b *Bus) Subscribe(ctx context.Context) (<-chan ScoreRecorded, error) {
	msgs, err := b.pubsub.Subscribe(ctx, TopicScoreRecorded)
	if err != nil {
		return nil, err
	}
	out := make(chan ScoreRecorded, 16)
	go func() {
		defer close(out)
		for msg := range msgs {
			var ev ScoreRecorded
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				b.logger.Warn("dropping malformed score event", "uuid", msg.UUID, "err", err)
				msg.Ack()
				continue
			}
			msg.Ack()
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close shuts the bus down and closes every subscription.
func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	return b.pubsub.Close()
}
