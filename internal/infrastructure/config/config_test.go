package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
site:
  id: "flat-3"
  timezone: "Europe/London"
mqtt:
  broker:
    host: "broker.lan"
    port: 1884
    client_id: "test-client"
  qos: 1
bridge:
  base_topic: "z2m"
automation:
  file: "/tmp/automations.json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "flat-3" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "flat-3")
	}
	if cfg.MQTT.Broker.Host != "broker.lan" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.lan")
	}
	if cfg.Bridge.BaseTopic != "z2m" {
		t.Errorf("Bridge.BaseTopic = %q, want %q", cfg.Bridge.BaseTopic, "z2m")
	}
	if cfg.Automation.File != "/tmp/automations.json" {
		t.Errorf("Automation.File = %q", cfg.Automation.File)
	}
	// Defaults survive for keys the file does not set.
	if cfg.MQTT.StatusTopic != "homecore/system/status" {
		t.Errorf("MQTT.StatusTopic = %q, want default", cfg.MQTT.StatusTopic)
	}
	if !cfg.Bridge.RefreshOnConnect {
		t.Error("Bridge.RefreshOnConnect should default to true")
	}

	loc, err := cfg.Location()
	if err != nil {
		t.Fatalf("Location() error = %v", err)
	}
	if loc.String() != "Europe/London" {
		t.Errorf("Location() = %q, want Europe/London", loc)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
mqtt:
  broker:
    host: "from-file"
`)
	t.Setenv("HOMECORE_MQTT_HOST", "from-env")
	t.Setenv("HOMECORE_MQTT_PORT", "8883")
	t.Setenv("HOMECORE_AUTOMATION_FILE", "/srv/rules.json")
	t.Setenv("HOMECORE_INFLUXDB_TOKEN", "secret-token")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MQTT.Broker.Host != "from-env" {
		t.Errorf("MQTT.Broker.Host = %q, want from-env", cfg.MQTT.Broker.Host)
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}
	if cfg.Automation.File != "/srv/rules.json" {
		t.Errorf("Automation.File = %q, want /srv/rules.json", cfg.Automation.File)
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token not overridden")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.Site.Timezone = "UTC"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "missing site id", mutate: func(c *Config) { c.Site.ID = "" }, wantErr: "site.id"},
		{name: "bad timezone", mutate: func(c *Config) { c.Site.Timezone = "Mars/Olympus" }, wantErr: "site.timezone"},
		{name: "invalid qos", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: "mqtt.qos"},
		{name: "wildcard base topic", mutate: func(c *Config) { c.Bridge.BaseTopic = "z2m/#" }, wantErr: "bridge.base_topic"},
		{name: "empty base topic", mutate: func(c *Config) { c.Bridge.BaseTopic = "/" }, wantErr: "bridge.base_topic"},
		{name: "missing automation file", mutate: func(c *Config) { c.Automation.File = "" }, wantErr: "automation.file"},
		{name: "api port out of range", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: "api.port"},
		{name: "api disabled ignores port", mutate: func(c *Config) { c.API.Enabled = false; c.API.Port = 0 }},
		{name: "influx enabled without url", mutate: func(c *Config) { c.InfluxDB.Enabled = true }, wantErr: "influxdb.url"},
		{name: "redis enabled without addr", mutate: func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" }, wantErr: "redis.addr"},
		{name: "history without database", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: "database.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateCollectsAllErrors(t *testing.T) {
	cfg := defaultConfig()
	cfg.Site.ID = ""
	cfg.MQTT.QoS = 9

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}
	if !strings.Contains(err.Error(), "site.id") || !strings.Contains(err.Error(), "mqtt.qos") {
		t.Errorf("Validate() error = %q, want both problems reported", err)
	}
}

func TestConfig_Durations(t *testing.T) {
	cfg := defaultConfig()
	if got := cfg.GetReadTimeout(); got != 30*time.Second {
		t.Errorf("GetReadTimeout() = %v, want 30s", got)
	}
	if got := cfg.GetIdleTimeout(); got != 60*time.Second {
		t.Errorf("GetIdleTimeout() = %v, want 60s", got)
	}
	if got := cfg.Redis.StateTTL(); got != 24*time.Hour {
		t.Errorf("StateTTL() = %v, want 24h", got)
	}
}
