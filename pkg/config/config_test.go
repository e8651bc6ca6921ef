package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse(nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if c.Retry.MaxAttempts != 3 || c.Retry.Min != time.Second || c.Retry.Max != time.Minute {
		t.Fatalf("unexpected retry defaults %+v", c.Retry)
	}
	if c.Broker.Driver != "redis" || c.Broker.Unregistered != "backlog" {
		t.Fatalf("unexpected broker defaults %+v", c.Broker)
	}
	if !reflect.DeepEqual(c.Queues, DefaultQueues()) {
		t.Fatalf("expected default queues, got %+v", c.Queues)
	}
	if c.Mail.SMTPHost != "smtp.ethereal.email" || c.Mail.SMTPPort != 587 {
		t.Fatalf("unexpected mail defaults %+v", c.Mail)
	}
}

func TestParseKeepsExplicitValues(t *testing.T) {
	c, err := Parse([]byte(`
metrics:
  enabled: false
queues:
  - name: email
    processors:
      - job: forgotPasswordEmail
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Metrics.Enabled {
		t.Fatal("explicit false should win over the default")
	}
	if len(c.Queues) != 1 || c.Queues[0].Processors[0].Concurrency != 1 {
		t.Fatalf("processor concurrency should default to 1: %+v", c.Queues)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad driver", "broker:\n  driver: rabbit\n"},
		{"zero concurrency", "queues:\n  - name: email\n    processors:\n      - job: x\n        concurrency: -1\n"},
		{"duplicate queue", "queues:\n  - name: email\n  - name: email\n"},
		{"duplicate processor", "queues:\n  - name: email\n    processors:\n      - job: x\n      - job: x\n"},
		{"kafka without brokers", "kafka:\n  enabled: true\n  brokers: []\n"},
		{"production without sendgrid", "environment: production\n"},
		{"max below min", "retry:\n  min: 10s\n  max: 1s\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Parse([]byte(tt.yaml))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if err := c.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	if _, err := Parse([]byte("brokr:\n  driver: redis\n")); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("environment: development\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("CLIENT_URL", "https://socially.example")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	c, err := LoadWithEnv(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Redis.Addr != "redis:6380" || c.ClientURL != "https://socially.example" {
		t.Fatalf("env overrides not applied: %+v", c)
	}
	if !c.Kafka.Enabled || !reflect.DeepEqual(c.Kafka.Brokers, []string{"k1:9092", "k2:9092"}) {
		t.Fatalf("kafka brokers override not applied: %+v", c.Kafka)
	}
}
