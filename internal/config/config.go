// Package config loads the daemon configuration file. Every field
// has a working default; an absent file is not an error.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so yaml values like "350ms" parse.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Config struct {
	// DataDir holds the seen-message store and other local state.
	DataDir string `yaml:"data_dir"`
	// DedupCapacity bounds the inbound dedup cache.
	DedupCapacity int `yaml:"dedup_capacity"`
	// AckInterval is the minimum spacing between outbound acks.
	AckInterval Duration `yaml:"ack_interval"`
	// SubscribeLimit caps backlog size on geohash subscriptions.
	SubscribeLimit int `yaml:"subscribe_limit"`
	// InboundQueueDepth bounds the transport-to-core event channel.
	InboundQueueDepth int `yaml:"inbound_queue_depth"`
	// MetricsAddr serves prometheus metrics when non-empty.
	MetricsAddr string `yaml:"metrics_addr"`
}

func Default() Config {
	return Config{
		DataDir:           defaultDataDir(),
		DedupCapacity:     2000,
		AckInterval:       Duration(350 * time.Millisecond),
		SubscribeLimit:    200,
		InboundQueueDepth: 512,
	}
}

// Load reads the file at path over the defaults. A missing file
// yields the defaults; a malformed file is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg.withDefaults(), nil
}

func (c Config) withDefaults() Config {
	def := Default()
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	if c.DedupCapacity <= 0 {
		c.DedupCapacity = def.DedupCapacity
	}
	if c.AckInterval <= 0 {
		c.AckInterval = def.AckInterval
	}
	if c.SubscribeLimit <= 0 {
		c.SubscribeLimit = def.SubscribeLimit
	}
	if c.InboundQueueDepth <= 0 {
		c.InboundQueueDepth = def.InboundQueueDepth
	}
	return c
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".bitchat"
	}
	return home + "/.bitchat"
}
