package types

type RunMode string

const (
	ModeLocal          RunMode = "local"
	ModeAPI            RunMode = "api"
	ModeTemporalWorker RunMode = "temporal_worker"
	ModeConsumer       RunMode = "consumer"
)

func (m RunMode) IsValid() bool {
	switch m {
	case ModeLocal, ModeAPI, ModeTemporalWorker, ModeConsumer:
		return true
	}
	return false
}

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

type PubSubType string

const (
	PubSubTypeMemory PubSubType = "memory"
	PubSubTypeKafka  PubSubType = "kafka"
)
