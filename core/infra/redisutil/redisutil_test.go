package redisutil

import "testing"

func TestNewClientRejectsBadURL(t *testing.T) {
	if _, err := NewClient("not-a-url"); err == nil {
		t.Fatalf("expected error for malformed url")
	}
}

func TestBoolEnv(t *testing.T) {
	cases := map[string]bool{
		"1":    true,
		"true": true,
		"YES":  true,
		"on":   true,
		"":     false,
		"no":   false,
		"off":  false,
	}
	for val, expect := range cases {
		t.Setenv(envRedisTLSInsecure, val)
		if got := boolEnv(envRedisTLSInsecure); got != expect {
			t.Fatalf("boolEnv(%q) = %v, want %v", val, got, expect)
		}
	}
}

func TestTLSConfigFromEnvDefaultsToExisting(t *testing.T) {
	t.Setenv(envRedisTLSCA, "")
	t.Setenv(envRedisTLSCert, "")
	t.Setenv(envRedisTLSKey, "")
	t.Setenv(envRedisTLSServerName, "")
	t.Setenv(envRedisTLSInsecure, "")
	cfg, err := tlsConfigFromEnv(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg != nil {
		t.Fatalf("expected nil config when no tls env is set")
	}
}

func TestTLSConfigFromEnvServerName(t *testing.T) {
	t.Setenv(envRedisTLSServerName, "redis.internal")
	cfg, err := tlsConfigFromEnv(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg == nil || cfg.ServerName != "redis.internal" {
		t.Fatalf("unexpected config: %#v", cfg)
	}
}

func TestTLSConfigFromEnvCertWithoutKey(t *testing.T) {
	t.Setenv(envRedisTLSCert, "/tmp/cert.pem")
	t.Setenv(envRedisTLSKey, "")
	if _, err := tlsConfigFromEnv(nil); err == nil {
		t.Fatalf("cert without key must error")
	}
}
