package content

import (
	"testing"
	"time"
)

func validConfig() StoreConfig {
	return StoreConfig{
		BucketName:      "genomes",
		AccessKeyID:     "test-key",
		SecretAccessKey: "test-secret",
		Endpoint:        "http://localhost:9000",
	}
}

func TestNewStoreValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*StoreConfig)
	}{
		{"missing bucket", func(c *StoreConfig) { c.BucketName = "" }},
		{"missing access key", func(c *StoreConfig) { c.AccessKeyID = "" }},
		{"missing secret", func(c *StoreConfig) { c.SecretAccessKey = "" }},
		{"missing endpoint", func(c *StoreConfig) { c.Endpoint = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			if _, err := NewStore(cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestNewStoreDefaultsExpiry(t *testing.T) {
	store, err := NewStore(validConfig())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if store.urlExpiry != 15*time.Minute {
		t.Errorf("url expiry = %v, want 15m default", store.urlExpiry)
	}

	cfg := validConfig()
	cfg.URLExpiryMinutes = 60
	store, err = NewStore(cfg)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if store.urlExpiry != time.Hour {
		t.Errorf("url expiry = %v, want 1h", store.urlExpiry)
	}
}

func TestObjectKey(t *testing.T) {
	if got := ObjectKey("sha256:abc123", "vcf"); got != "records/sha256:abc123.vcf" {
		t.Errorf("ObjectKey = %q", got)
	}
}
