package kafka

import (
	"time"

	"github.com/IBM/sarama"
)

func NewGroup(brokers []string, groupID, clientID string) (sarama.ConsumerGroup, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = clientID
	cfg.Version = sarama.V2_6_0_0
	cfg.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRange
	// Status events must not be skipped across restarts.
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Net.DialTimeout = 5 * time.Second
	return sarama.NewConsumerGroup(brokers, groupID, cfg)
}
