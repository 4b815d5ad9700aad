package kafka

import (
	"crypto/sha256"
	"crypto/sha512"
	"crypto/tls"
	"hash"
	"time"

	"github.com/Shopify/sarama"
	"github.com/flexprice/deprovisioner/internal/config"
	"github.com/xdg-go/scram"
)

// SaramaConfig builds the sarama client config from the kafka section,
// including SASL/SCRAM when configured.
func SaramaConfig(cfg *config.Configuration) *sarama.Config {
	sc := sarama.NewConfig()
	sc.Version = sarama.V2_1_0_0
	sc.ClientID = cfg.Kafka.ClientID

	// Start from the oldest offset so a new consumer group does not skip
	// subscription changes published before it joined.
	sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	sc.Consumer.Offsets.AutoCommit.Enable = true
	sc.Consumer.Offsets.AutoCommit.Interval = 5 * time.Second
	sc.Consumer.Offsets.Retry.Max = 3
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll

	if cfg.Kafka.TLS {
		sc.Net.TLS.Enable = true
		sc.Net.TLS.Config = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	if !cfg.Kafka.UseSASL {
		return sc
	}

	sc.Net.SASL.Enable = true
	sc.Net.TLS.Enable = true
	sc.Net.SASL.Mechanism = cfg.Kafka.SASLMechanism
	sc.Net.SASL.User = cfg.Kafka.SASLUser
	sc.Net.SASL.Password = cfg.Kafka.SASLPassword

	switch cfg.Kafka.SASLMechanism {
	case sarama.SASLTypeSCRAMSHA256, sarama.SASLTypeSCRAMSHA512:
		generator := hashGenerator(cfg.Kafka.SASLMechanism)
		sc.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
			return &scramClient{HashGeneratorFcn: generator}
		}
	}

	return sc
}

// scramClient implements sarama.SCRAMClient with xdg-go/scram.
type scramClient struct {
	*scram.ClientConversation
	scram.HashGeneratorFcn
}

func (x *scramClient) Begin(userName, password, authzID string) error {
	client, err := x.HashGeneratorFcn.NewClient(userName, password, authzID)
	if err != nil {
		return err
	}
	x.ClientConversation = client.NewConversation()
	return nil
}

func (x *scramClient) Step(challenge string) (string, error) {
	return x.ClientConversation.Step(challenge)
}

func (x *scramClient) Done() bool {
	return x.ClientConversation.Done()
}

func hashGenerator(mechanism sarama.SASLMechanism) scram.HashGeneratorFcn {
	if mechanism == sarama.SASLTypeSCRAMSHA256 {
		return func() hash.Hash { return sha256.New() }
	}
	return func() hash.Hash { return sha512.New() }
}
