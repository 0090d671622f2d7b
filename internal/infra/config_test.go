package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("HQ_PROVIDER", "")
	t.Setenv("FAST_PROVIDER", "")
	t.Setenv("RETRY_MAX_ATTEMPTS", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	t.Setenv("HTTP_WRITE_TIMEOUT_SECONDS", "")
	t.Setenv("FANOUT_TIMEOUT_SECONDS", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.AppEnv != "development" {
		t.Fatalf("AppEnv mismatch: got %q want %q", cfg.AppEnv, "development")
	}
	if cfg.RetryMaxAttempts != 3 || cfg.RetryStep != 2*time.Second {
		t.Fatalf("retry defaults mismatch: attempts=%d step=%s", cfg.RetryMaxAttempts, cfg.RetryStep)
	}
	if cfg.HighQualityProvider != "openai" || cfg.FastProvider != "gemini" {
		t.Fatalf("provider routes mismatch: hq=%q fast=%q", cfg.HighQualityProvider, cfg.FastProvider)
	}
	if cfg.HistoryLimit != 10 {
		t.Fatalf("HistoryLimit mismatch: got %d want 10", cfg.HistoryLimit)
	}
	if !cfg.AllowsSyntheticProviders() {
		t.Fatalf("development config should allow synthetic providers")
	}
	if cfg.FanoutTimeout != 285*time.Second {
		t.Fatalf("FanoutTimeout mismatch: got %s want 285s", cfg.FanoutTimeout)
	}
}

func TestLoadConfigFanoutTimeoutStaysBelowWriteTimeout(t *testing.T) {
	tests := []struct {
		name    string
		write   string
		fanout  string
		want    time.Duration
		wantErr bool
	}{
		{name: "derived from short write timeout", write: "1", want: 750 * time.Millisecond},
		{name: "explicit", write: "60", fanout: "45", want: 45 * time.Second},
		{name: "equal to write timeout", write: "60", fanout: "60", wantErr: true},
		{name: "above write timeout", write: "60", fanout: "90", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("HTTP_WRITE_TIMEOUT_SECONDS", tt.write)
			t.Setenv("FANOUT_TIMEOUT_SECONDS", tt.fanout)

			cfg, err := LoadConfig()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got fanout %s", cfg.FanoutTimeout)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadConfig returned error: %v", err)
			}
			if cfg.FanoutTimeout != tt.want {
				t.Fatalf("FanoutTimeout = %s, want %s", cfg.FanoutTimeout, tt.want)
			}
			if cfg.FanoutTimeout >= cfg.HTTPWriteTimeout {
				t.Fatalf("fan-out %s must end before write timeout %s", cfg.FanoutTimeout, cfg.HTTPWriteTimeout)
			}
		})
	}
}

func TestLoadConfigRejectsUnknownProvider(t *testing.T) {
	t.Setenv("HQ_PROVIDER", "midjourney")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestLoadConfigParsesOriginList(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://ads.example.com, ,https://studio.example.com ")
	t.Setenv("APP_ENV", "production")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	expected := []string{"https://ads.example.com", "https://studio.example.com"}
	if len(cfg.CORSAllowedOrigins) != len(expected) {
		t.Fatalf("CORSAllowedOrigins mismatch: got %#v want %#v", cfg.CORSAllowedOrigins, expected)
	}
	for i, origin := range expected {
		if cfg.CORSAllowedOrigins[i] != origin {
			t.Fatalf("CORSAllowedOrigins[%d] = %q, want %q", i, cfg.CORSAllowedOrigins[i], origin)
		}
	}
	if cfg.AllowsSyntheticProviders() {
		t.Fatalf("production config must not allow synthetic providers")
	}
}
