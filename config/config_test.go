package config

import (
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		SubtaskID: 0,
		Write: Destination{
			Kind:      LocalFilesystem,
			Directory: "/tmp/out",
		},
		MaxParts:        1000,
		CheckpointURI:   "s3://test-bucket/checkpoints",
		ShutdownTimeout: time.Minute,
	}
}

func TestValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config to pass validation, got: %v", err)
	}
}

func TestMissingLocalDirectory(t *testing.T) {
	cfg := validConfig()
	cfg.Write.Directory = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing local directory")
	}
}

func TestS3DestinationRequiresBucket(t *testing.T) {
	cfg := validConfig()
	cfg.Write = Destination{Kind: S3Bucket}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing bucket")
	}
	cfg.Write.Bucket = "my-bucket"
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid s3 destination to pass, got: %v", err)
	}
}

func TestFolderURIDestinationRequiresURI(t *testing.T) {
	cfg := validConfig()
	cfg.Write = Destination{Kind: FolderURI}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing uri")
	}
	cfg.Write.URI = "gs://my-bucket/exports"
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid folder uri destination to pass, got: %v", err)
	}
}

func TestUnknownDestinationKind(t *testing.T) {
	cfg := validConfig()
	cfg.Write = Destination{Kind: DestinationKind(99)}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown destination kind")
	}
}

func TestNegativeRollingPolicyKnobs(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"max parts", func(c *Config) { c.MaxParts = -1 }},
		{"target file size", func(c *Config) { c.TargetFileSize = -1 }},
		{"inactivity seconds", func(c *Config) { c.InactivityRolloverSeconds = -1 }},
		{"rollover seconds", func(c *Config) { c.RolloverSeconds = -1 }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected error for negative %s", tc.name)
			}
		})
	}
}

func TestMissingCheckpointURI(t *testing.T) {
	cfg := validConfig()
	cfg.CheckpointURI = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing checkpoint uri")
	}
}

func TestInvalidCheckpointURIScheme(t *testing.T) {
	testCases := []string{"http://bucket/key", "gs://bucket/key", "bucket/key"}
	for _, uri := range testCases {
		t.Run(uri, func(t *testing.T) {
			cfg := validConfig()
			cfg.CheckpointURI = uri
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected error for invalid checkpoint uri: %s", uri)
			}
		})
	}
}

func TestCheckpointURIFileScheme(t *testing.T) {
	cfg := validConfig()
	cfg.CheckpointURI = "file:///tmp/checkpoints/state.json"
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid file checkpoint uri to pass, got: %v", err)
	}
	if got := cfg.GetCheckpointBucket(); got != "" {
		t.Errorf("expected no bucket parsed from a file uri, got %q", got)
	}
}

func TestInvalidShutdownTimeout(t *testing.T) {
	testCases := []time.Duration{0, 500 * time.Millisecond, -time.Second}
	for _, timeout := range testCases {
		t.Run("timeout", func(t *testing.T) {
			cfg := validConfig()
			cfg.ShutdownTimeout = timeout
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected error for invalid shutdown timeout: %v", timeout)
			}
		})
	}
}

func TestGetCheckpointBucket(t *testing.T) {
	cfg := validConfig()
	cfg.CheckpointURI = "s3://my-bucket/some/prefix"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validation failed: %v", err)
	}
	if got := cfg.GetCheckpointBucket(); got != "my-bucket" {
		t.Errorf("expected bucket name 'my-bucket', got '%s'", got)
	}
}

func TestRolloverDurationAndInactivityDurationDefaults(t *testing.T) {
	cfg := validConfig()
	if d := cfg.RolloverDuration(); d != 0 {
		t.Errorf("RolloverDuration() = %v, want 0 when unset", d)
	}
	if d := cfg.InactivityDuration(); d != 0 {
		t.Errorf("InactivityDuration() = %v, want 0 when unset", d)
	}

	cfg.RolloverSeconds = 45
	cfg.InactivityRolloverSeconds = 10
	if d := cfg.RolloverDuration(); d != 45*time.Second {
		t.Errorf("RolloverDuration() = %v, want 45s", d)
	}
	if d := cfg.InactivityDuration(); d != 10*time.Second {
		t.Errorf("InactivityDuration() = %v, want 10s", d)
	}
}
