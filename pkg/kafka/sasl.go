package kafka

import "github.com/confluentinc/confluent-kafka-go/v2/kafka"

// SASLConfig holds optional SASL authentication settings.
type SASLConfig struct {
	Username         string
	Password         string
	Mechanism        string // PLAIN, SCRAM-SHA-256, SCRAM-SHA-512
	SecurityProtocol string // SASL_SSL, SASL_PLAINTEXT
}

// Enabled reports whether SASL credentials are configured.
func (s SASLConfig) Enabled() bool {
	return s.Username != "" && s.Password != ""
}

// ApplyToConfigMap adds SASL settings to cfg when enabled.
func (s SASLConfig) ApplyToConfigMap(cfg *kafka.ConfigMap) {
	if !s.Enabled() {
		return
	}
	mechanism := s.Mechanism
	if mechanism == "" {
		mechanism = "PLAIN"
	}
	protocol := s.SecurityProtocol
	if protocol == "" {
		protocol = "SASL_SSL"
	}
	(*cfg)["sasl.username"] = s.Username
	(*cfg)["sasl.password"] = s.Password
	(*cfg)["sasl.mechanisms"] = mechanism
	(*cfg)["security.protocol"] = protocol
}
