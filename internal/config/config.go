// Package config defines the typed configuration this daemon is
// constructed from: area assignments, per-interface overrides, and the
// handful of process-level knobs (metrics listener, log level). Loading
// it from disk and deciding which system interfaces to run on are kept
// out of this package deliberately — spec section 1 treats process
// bootstrap as a collaborator, not core protocol engine — so the loader
// here is a thin YAML decode plus flag overrides, and the daemon
// constructor takes the resulting struct directly.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/ospfd/ospfd"
)

// AreaConfig describes one OSPF area this router participates in.
type AreaConfig struct {
	ID                        string `yaml:"id"`
	Stub                      bool   `yaml:"stub"`
	ExternalRoutingCapability bool   `yaml:"external_routing_capability"`
}

// InterfaceConfig describes the OSPF parameters for one system network
// interface. NetworkType is read from the file but not consulted: the
// daemon derives every interface's link type from the kernel's interface
// flags.
type InterfaceConfig struct {
	Name          string        `yaml:"name"`
	AreaID        string        `yaml:"area_id"`
	Cost          uint16        `yaml:"cost"`
	Priority      uint8         `yaml:"priority"`
	HelloInterval time.Duration `yaml:"hello_interval"`
	DeadInterval  time.Duration `yaml:"dead_interval"`
	RxmtInterval  time.Duration `yaml:"rxmt_interval"`
	InfTransDelay time.Duration `yaml:"inf_trans_delay"`
	NetworkType   string        `yaml:"network_type"`
}

// Config is the complete, validated configuration for one daemon
// instance.
type Config struct {
	RouterID    string             `yaml:"router_id"`
	Areas       []AreaConfig       `yaml:"areas"`
	Interfaces  []InterfaceConfig  `yaml:"interfaces"`
	MetricsAddr string             `yaml:"metrics_addr"`
	LogLevel    string             `yaml:"log_level"`
	FIBProtocol int                `yaml:"fib_protocol_id"`
}

// Default returns a Config with the process-level defaults this daemon
// assumes when a field is left unset.
func Default() *Config {
	return &Config{
		MetricsAddr: ":9091",
		LogLevel:    "info",
		FIBProtocol: 89, // an RTPROT_* value reserved for routing daemons; overridable.
	}
}

// Load reads and parses a YAML configuration file at path, starting from
// Default and overlaying whatever the file specifies.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return cfg, nil
}

// BindFlags registers command-line overrides for the handful of settings
// an operator commonly wants to flip without editing the config file. It
// must be called before pflag.Parse.
func BindFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.RouterID, "router-id", cfg.RouterID, "this router's OSPF router ID (dotted quad)")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "address to serve Prometheus metrics on")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "zap log level (debug, info, warn, error)")
	fs.IntVar(&cfg.FIBProtocol, "fib-protocol-id", cfg.FIBProtocol, "netlink route protocol value to tag installed routes with")
}

// Validate reports the first structural problem found in cfg: a missing
// router ID, an interface naming an area that was never declared, or a
// duplicate interface name.
func (c *Config) Validate() error {
	if c.RouterID == "" {
		return fmt.Errorf("config: router_id is required")
	}
	if _, err := parseID(c.RouterID); err != nil {
		return fmt.Errorf("config: router_id: %w", err)
	}

	areaIDs := make(map[string]bool, len(c.Areas))
	for _, a := range c.Areas {
		if _, err := parseID(a.ID); err != nil {
			return fmt.Errorf("config: area %q: %w", a.ID, err)
		}
		areaIDs[a.ID] = true
	}

	seen := make(map[string]bool, len(c.Interfaces))
	for _, i := range c.Interfaces {
		if seen[i.Name] {
			return fmt.Errorf("config: interface %q declared more than once", i.Name)
		}
		seen[i.Name] = true

		if i.AreaID != "" && !areaIDs[i.AreaID] {
			return fmt.Errorf("config: interface %q references undeclared area %q", i.Name, i.AreaID)
		}
	}

	return nil
}

func parseID(s string) (ospf.ID, error) {
	var a, b, c, d int
	if n, err := fmt.Sscanf(s, "%d.%d.%d.%d", &a, &b, &c, &d); n != 4 || err != nil {
		return ospf.ID{}, fmt.Errorf("%q is not a dotted-quad identifier", s)
	}
	for _, v := range []int{a, b, c, d} {
		if v < 0 || v > 255 {
			return ospf.ID{}, fmt.Errorf("%q is not a dotted-quad identifier", s)
		}
	}
	return ospf.ID{byte(a), byte(b), byte(c), byte(d)}, nil
}

// ID returns the parsed router ID. Call only after Validate succeeds.
func (c *Config) ID() ospf.ID {
	id, _ := parseID(c.RouterID)
	return id
}

// AreaID returns the parsed area ID. Call only after Validate succeeds.
func (a AreaConfig) AreaID() ospf.ID {
	id, _ := parseID(a.ID)
	return id
}

// InterfaceAreaID returns the interface's parsed area ID.
func (i InterfaceConfig) InterfaceAreaID() ospf.ID {
	id, _ := parseID(i.AreaID)
	return id
}
