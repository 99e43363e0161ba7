package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/mmeshcher/gamestore/internal/model"
)

// KafkaNotifier публикует события в топик Kafka. Ключом сообщения служит покупатель,
// поэтому события одного покупателя попадают в одну партицию по порядку.
type KafkaNotifier struct {
	writer *kafka.Writer
	now    func() time.Time
}

// NewKafkaNotifier создаёт асинхронного издателя. Ошибки доставки логируются writer'ом.
func NewKafkaNotifier(brokers []string, topic string, logger *zap.Logger) *KafkaNotifier {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		BatchTimeout: 50 * time.Millisecond,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) {
			logger.Warn("kafka delivery failed", zap.String("error", fmt.Sprintf(msg, args...)))
		}),
	}
	return NewKafkaNotifierFromWriter(w)
}

// NewKafkaNotifierFromWriter оборачивает уже настроенный writer.
func NewKafkaNotifierFromWriter(w *kafka.Writer) *KafkaNotifier {
	return &KafkaNotifier{writer: w, now: time.Now}
}

// PublishPayment отправляет событие о платеже.
func (n *KafkaNotifier) PublishPayment(ctx context.Context, event string, p *model.Payment) error {
	msg, err := n.message(event, p)
	if err != nil {
		return err
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write kafka message: %w", err)
	}
	return nil
}

func (n *KafkaNotifier) message(event string, p *model.Payment) (kafka.Message, error) {
	value, err := NewPaymentEvent(event, p, n.now()).Encode()
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(p.BuyerID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(event)},
		},
		Time: n.now(),
	}, nil
}

// Close сбрасывает буфер и закрывает соединения.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

// LogNotifier пишет события в лог. Используется, когда брокеры не настроены.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier создаёт издателя, пишущего в лог.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// PublishPayment логирует событие.
func (n *LogNotifier) PublishPayment(_ context.Context, event string, p *model.Payment) error {
	n.logger.Info("payment event",
		zap.String("event", event),
		zap.String("payment_id", p.ID),
		zap.String("buyer_id", p.BuyerID),
		zap.String("status", string(p.Status)),
	)
	return nil
}
