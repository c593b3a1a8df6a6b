package main

import (
	"encoding/json"
	"os"
	"time"
)

type Config struct {
	HttpPort          int           `json:"http_port"`
	DbConnString      string        `json:"db_conn_string"`
	RedisAddr         string        `json:"redis_addr"`
	WebhookUrl        string        `json:"webhook_url"`
	WebhookToken      string        `json:"webhook_token"`
	MediaDir          string        `json:"media_dir"`
	SessionDir        string        `json:"session_dir"`
	GatewayID         string        `json:"gateway_id"`
	PublishMaxRetry   int           `json:"publish_max_retry"`
	ReconnectDelayStr string        `json:"reconnect_delay"`
	ReconnectDelay    time.Duration `json:"-"`
	InitRetryDelayStr string        `json:"init_retry_delay"`
	InitRetryDelay    time.Duration `json:"-"`
}

// ReadConfigJson reads json formatted configuration from the given file
func ReadConfigJson(configFile string) (*Config, error) {
	content, err := os.ReadFile(configFile)
	if err != nil {
		return nil, err
	}

	cfg := new(Config)

	if err = json.Unmarshal(content, cfg); err != nil {
		return nil, err
	}

	if cfg.ReconnectDelayStr != "" {
		cfg.ReconnectDelay, err = time.ParseDuration(cfg.ReconnectDelayStr)
		if err != nil {
			return nil, err
		}
	}
	if cfg.InitRetryDelayStr != "" {
		cfg.InitRetryDelay, err = time.ParseDuration(cfg.InitRetryDelayStr)
		if err != nil {
			return nil, err
		}
	}

	if cfg.GatewayID == "" {
		cfg.GatewayID = "whatsapp-gateway"
	}
	if cfg.MediaDir == "" {
		cfg.MediaDir = "./media"
	}
	if cfg.SessionDir == "" {
		cfg.SessionDir = "./session"
	}
	if cfg.PublishMaxRetry <= 0 {
		cfg.PublishMaxRetry = 3
	}

	return cfg, nil
}
