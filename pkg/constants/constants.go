package constants

const (
	ConfigName   = "config"
	ConfigFormat = "yaml"
	EnvPrefix    = "TELECONSULT"

	ServiceName = "teleconsult"

	// SubjectPrefix is the NATS subject root for every event this service publishes.
	SubjectPrefix = "teleconsult"

	ActorHeader = "X-Actor-ID"
)
