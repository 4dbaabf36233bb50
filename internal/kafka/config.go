package kafka

import (
	"github.com/IBM/sarama"
)

// Config configures event publishing
type Config struct {
	Brokers     []string
	TopicPrefix string
	Producer    ProducerConfig
}

// ProducerConfig tunes the sarama producer
type ProducerConfig struct {
	MaxMessageBytes  int
	Compression      sarama.CompressionCodec
	RequiredAcks     sarama.RequiredAcks
	FlushMaxMessages int
}

// NewConfig returns the defaults used by both drivers
func NewConfig(brokers []string, topicPrefix string) *Config {
	return &Config{
		Brokers:     brokers,
		TopicPrefix: topicPrefix,
		Producer: ProducerConfig{
			MaxMessageBytes:  1000000,
			Compression:      sarama.CompressionSnappy,
			RequiredAcks:     sarama.WaitForAll,
			FlushMaxMessages: 100,
		},
	}
}

// NewSaramaConfig builds a sync-producer configuration
func NewSaramaConfig(cfg *Config) *sarama.Config {
	saramaConfig := sarama.NewConfig()

	saramaConfig.Version = sarama.V3_3_0_0
	saramaConfig.ClientID = "entitlement-service"

	saramaConfig.Producer.MaxMessageBytes = cfg.Producer.MaxMessageBytes
	saramaConfig.Producer.Compression = cfg.Producer.Compression
	saramaConfig.Producer.RequiredAcks = cfg.Producer.RequiredAcks
	saramaConfig.Producer.Flush.MaxMessages = cfg.Producer.FlushMaxMessages
	// required by SyncProducer
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true

	return saramaConfig
}
