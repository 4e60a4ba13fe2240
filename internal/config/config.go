// Package config loads node configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vrischmann/envconfig"
	"go.uber.org/zap/zapcore"

	"github.com/ryandielhenn/zephyrgossip/pkg/gossip"
)

const (
	StoreNone = "none"
	StoreFile = "file"
	StoreEtcd = "etcd"
)

type Config struct {
	// SelfAddr is the gossip endpoint other nodes use to reach this one.
	SelfAddr   string   `envconfig:"SELF_ADDR"`
	GossipAddr string   `envconfig:"GOSSIP_ADDR,default=:7946"`
	HTTPAddr   string   `envconfig:"HTTP_ADDR,default=:8080"`
	Seeds      []string `envconfig:"SEEDS,optional"`
	LogLevel   string   `envconfig:"LOG_LEVEL,default=info"`

	EtcdEndpoints []string      `envconfig:"ETCD_ENDPOINTS,optional"`
	EtcdPrefix    string        `envconfig:"ETCD_PREFIX,default=/zephyrgossip"`
	EtcdLeaseTTL  int64         `envconfig:"ETCD_LEASE_TTL,default=10"`
	EtcdTimeout   time.Duration `envconfig:"ETCD_DIAL_TIMEOUT,default=5s"`

	StoreBackend string `envconfig:"STORE_BACKEND,default=file"`
	StorePath    string `envconfig:"STORE_PATH,default=data/peers.json"`

	TickInterval            time.Duration `envconfig:"GOSSIP_TICK_INTERVAL,default=50ms"`
	DisseminationInterval   time.Duration `envconfig:"GOSSIP_DISSEMINATION_INTERVAL,default=1s"`
	DisseminationTimeout    time.Duration `envconfig:"GOSSIP_DISSEMINATION_TIMEOUT,default=500ms"`
	FailureDetectionTimeout time.Duration `envconfig:"GOSSIP_FAILURE_DETECTION_TIMEOUT,default=1s"`
	ProbeTimeout            time.Duration `envconfig:"GOSSIP_PROBE_TIMEOUT,default=500ms"`
	SuspicionTimeout        time.Duration `envconfig:"GOSSIP_SUSPICION_TIMEOUT,default=5s"`
	PersistInterval         time.Duration `envconfig:"GOSSIP_PERSIST_INTERVAL,default=30s"`
	DisseminatorCapacity    int           `envconfig:"GOSSIP_DISSEMINATORS,default=1"`
	FailureDetectorCapacity int           `envconfig:"GOSSIP_FAILURE_DETECTORS,default=3"`
	RelayCapacity           int           `envconfig:"GOSSIP_RELAYS,default=3"`
	ProbeCapacity           int           `envconfig:"GOSSIP_PROBES,default=3"`
	InboxSize               int           `envconfig:"GOSSIP_INBOX_SIZE,default=256"`
	TieBreak                string        `envconfig:"GOSSIP_TIE_BREAK,default=severity"`

	Partitions        int `envconfig:"PARTITIONS,default=16"`
	ReplicationFactor int `envconfig:"REPLICATION_FACTOR,default=3"`
}

// Load reads the configuration from the environment and validates it.
func Load() (Config, error) {
	var c Config
	if err := envconfig.Init(&c); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.SelfAddr == "" {
		errs = append(errs, errors.New("SELF_ADDR must be set"))
	}
	switch c.StoreBackend {
	case StoreNone, StoreFile:
	case StoreEtcd:
		if len(c.EtcdEndpoints) == 0 {
			errs = append(errs, errors.New("STORE_BACKEND=etcd requires ETCD_ENDPOINTS"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend))
	}
	if c.Partitions < 1 {
		errs = append(errs, fmt.Errorf("PARTITIONS must be at least 1, got %d", c.Partitions))
	}
	if c.ReplicationFactor < 1 {
		errs = append(errs, fmt.Errorf("REPLICATION_FACTOR must be at least 1, got %d", c.ReplicationFactor))
	}
	if _, err := c.Gossip(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Gossip returns the protocol configuration.
func (c Config) Gossip() (gossip.Config, error) {
	tb, err := ParseTieBreak(c.TieBreak)
	if err != nil {
		return gossip.Config{}, err
	}
	g := gossip.Config{
		TickInterval:            c.TickInterval,
		DisseminationInterval:   c.DisseminationInterval,
		DisseminationTimeout:    c.DisseminationTimeout,
		FailureDetectionTimeout: c.FailureDetectionTimeout,
		ProbeTimeout:            c.ProbeTimeout,
		SuspicionTimeout:        c.SuspicionTimeout,
		DisseminatorCapacity:    c.DisseminatorCapacity,
		FailureDetectorCapacity: c.FailureDetectorCapacity,
		RelayCapacity:           c.RelayCapacity,
		ProbeCapacity:           c.ProbeCapacity,
		InboxSize:               c.InboxSize,
		TieBreak:                tb,
	}
	if c.StoreBackend != StoreNone {
		g.PersistInterval = c.PersistInterval
	}
	if err := g.Validate(); err != nil {
		return gossip.Config{}, fmt.Errorf("gossip config: %w", err)
	}
	return g, nil
}

func ParseTieBreak(s string) (gossip.TieBreak, error) {
	switch strings.ToLower(s) {
	case "", "severity":
		return gossip.TieBreakSeverity, nil
	case "liveness":
		return gossip.TieBreakLiveness, nil
	}
	return 0, fmt.Errorf("unknown tie-break policy %q", s)
}

// ZapLevel maps LOG_LEVEL to a zap level, defaulting to info.
func (c Config) ZapLevel() zapcore.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	}
	return zapcore.InfoLevel
}
