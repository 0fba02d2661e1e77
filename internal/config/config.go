// Package config loads simulator settings from an optional YAML file,
// applies environment overrides and validates the result.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/signalsfoundry/warehouse-mesh-simulator/core"
	"github.com/signalsfoundry/warehouse-mesh-simulator/model"
	"github.com/signalsfoundry/warehouse-mesh-simulator/timectrl"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

var validate = validator.New()

// Radio profiles selectable with comm / COMM.
const (
	CommBLE  = "BLE"
	CommWiFi = "WIFI"
)

// Radio holds the link budget constants. Choosing Comm in a config file or
// through COMM loads that profile; fields set next to it override the
// profile's values.
type Radio struct {
	Comm           string  `yaml:"comm" validate:"oneof=BLE WIFI"`
	FrequencyHz    float64 `yaml:"frequency_hz" validate:"gt=0"`
	TxPowerDBm     float64 `yaml:"tx_power_dbm"`
	BeamformGainDB float64 `yaml:"beamform_gain_db" validate:"gte=0"`
	Permittivity   float64 `yaml:"permittivity" validate:"gt=0"`
	SensitivityDBm float64 `yaml:"sensitivity_dbm"`
	MaxPaths       int     `yaml:"max_paths" validate:"gte=0"`
}

// Profile returns the defaults for a radio technology.
func Profile(comm string) (Radio, error) {
	switch strings.ToUpper(strings.TrimSpace(comm)) {
	case CommBLE, "":
		return Radio{
			Comm:           CommBLE,
			FrequencyHz:    core.DefaultFrequencyHz,
			TxPowerDBm:     core.DefaultTxPowerDBm,
			BeamformGainDB: core.DefaultBeamformGainDB,
			Permittivity:   core.DefaultPermittivity,
			SensitivityDBm: core.DefaultSensitivityDBm,
			MaxPaths:       core.DefaultMaxPaths,
		}, nil
	case CommWiFi:
		return Radio{
			Comm:           CommWiFi,
			FrequencyHz:    core.DefaultFrequencyHz,
			TxPowerDBm:     20,
			BeamformGainDB: core.DefaultBeamformGainDB,
			Permittivity:   core.DefaultPermittivity,
			SensitivityDBm: core.DefaultSensitivityDBm,
			MaxPaths:       core.DefaultMaxPaths,
		}, nil
	default:
		return Radio{}, fmt.Errorf("%w: unknown comm profile %q", ErrInvalidConfig, comm)
	}
}

// Layout sizes the generated warehouse.
type Layout struct {
	Width     int    `yaml:"width" validate:"min=4,max=512"`
	Depth     int    `yaml:"depth" validate:"min=4,max=512"`
	Height    int    `yaml:"height" validate:"min=2,max=128"`
	Partition bool   `yaml:"partition"`
	GridFile  string `yaml:"grid_file"`
}

// Nodes controls scattering and movement.
type Nodes struct {
	Count            int     `yaml:"count" validate:"min=1,max=4096"`
	BeamformFraction float64 `yaml:"beamform_fraction" validate:"gte=0,lte=1"`
	MobileFraction   float64 `yaml:"mobile_fraction" validate:"gte=0,lte=1"`
	MobileStep       float64 `yaml:"mobile_step" validate:"gte=0"`
	// Root pins the routing root. Empty draws one per tick.
	Root string `yaml:"root"`
}

// Bus addresses for the pub/sub bridge. Empty URLs disable the socket.
type Bus struct {
	PubURL    string `yaml:"pub_url"`
	ReloadURL string `yaml:"reload_url"`
	Compress  bool   `yaml:"compress"`
}

// API listen addresses. Empty disables the listener.
type API struct {
	HTTPAddr    string `yaml:"http_addr"`
	GRPCAddr    string `yaml:"grpc_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// Config is the full simulator configuration.
type Config struct {
	Layout Layout `yaml:"layout"`
	Nodes  Nodes  `yaml:"nodes"`
	Radio  Radio  `yaml:"radio"`

	Ticks        int           `yaml:"ticks" validate:"gte=0"`
	TickInterval time.Duration `yaml:"tick_interval" validate:"gte=0"`
	Accelerated  bool          `yaml:"accelerated"`
	Seed         uint64        `yaml:"seed"`

	LossMode  string             `yaml:"loss_mode" validate:"oneof=occlusion ray-path"`
	Densities map[string]float64 `yaml:"densities"`
	Workers   int                `yaml:"workers" validate:"gte=0"`

	OutputDir string `yaml:"output_dir"`
	Export    bool   `yaml:"export"`

	Bus Bus `yaml:"bus"`
	API API `yaml:"api"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	radio, _ := Profile(CommBLE)
	densities := make(map[string]float64)
	for k, v := range core.DefaultDensities() {
		densities[k.String()] = v
	}
	return Config{
		Layout: Layout{Width: 40, Depth: 30, Height: 8},
		Nodes: Nodes{
			Count:            20,
			BeamformFraction: 0.2,
			MobileFraction:   0.1,
			MobileStep:       1,
		},
		Radio:        radio,
		Ticks:        50,
		TickInterval: time.Second,
		Seed:         1,
		LossMode:     string(core.ModeOcclusion),
		Densities:    densities,
		Workers:      runtime.NumCPU(),
		OutputDir:    "out",
		Export:       true,
		Bus: Bus{
			PubURL:    "tcp://127.0.0.1:5555",
			ReloadURL: "tcp://127.0.0.1:5556",
		},
		API: API{
			HTTPAddr: ":8080",
			GRPCAddr: ":50051",
		},
	}
}

// Load reads path (if non-empty) over the defaults, applies environment
// overrides and validates.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := cfg.decodeYAML(data); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// decodeYAML applies a config document over c. A radio.comm entry first
// resets the radio to that profile; the document's other radio fields then
// override individual constants.
func (c *Config) decodeYAML(data []byte) error {
	var head struct {
		Radio struct {
			Comm string `yaml:"comm"`
		} `yaml:"radio"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return err
	}
	if strings.TrimSpace(head.Radio.Comm) != "" {
		radio, err := Profile(head.Radio.Comm)
		if err != nil {
			return err
		}
		c.Radio = radio
	}
	return yaml.Unmarshal(data, c)
}

// normalise rewrites accepted aliases to their canonical spelling.
func (c *Config) normalise() {
	c.Radio.Comm = strings.ToUpper(strings.TrimSpace(c.Radio.Comm))
	if mode, err := core.ParseLossMode(c.LossMode); err == nil {
		c.LossMode = string(mode)
	}
}

// ApplyEnv overrides fields from environment variables found by lookup.
// Setting COMM resets every radio constant to that profile.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		return nil
	}
	if v, ok := lookup("COMM"); ok {
		radio, err := Profile(v)
		if err != nil {
			return err
		}
		c.Radio = radio
	}

	ints := map[string]*int{
		"WIDTH":   &c.Layout.Width,
		"DEPTH":   &c.Layout.Depth,
		"HEIGHT":  &c.Layout.Height,
		"TICKS":   &c.Ticks,
		"NODES":   &c.Nodes.Count,
		"WORKERS": &c.Workers,
	}
	for key, dst := range ints {
		v, ok := lookup(key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, key, v, err)
		}
		*dst = n
	}

	strs := map[string]*string{
		"LOSS_MODE":      &c.LossMode,
		"BUS_PUB_URL":    &c.Bus.PubURL,
		"BUS_RELOAD_URL": &c.Bus.ReloadURL,
		"HTTP_ADDR":      &c.API.HTTPAddr,
		"GRPC_ADDR":      &c.API.GRPCAddr,
		"METRICS_ADDR":   &c.API.MetricsAddr,
		"OUTPUT_DIR":     &c.OutputDir,
		"ROOT_NODE":      &c.Nodes.Root,
		"GRID_FILE":      &c.Layout.GridFile,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	if v, ok := lookup("SEED"); ok {
		n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("%w: SEED=%q: %v", ErrInvalidConfig, v, err)
		}
		c.Seed = n
	}
	if v, ok := lookup("TICK_INTERVAL"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: TICK_INTERVAL=%q: %v", ErrInvalidConfig, v, err)
		}
		c.TickInterval = d
	}
	if v, ok := lookup("ACCELERATED"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: ACCELERATED=%q: %v", ErrInvalidConfig, v, err)
		}
		c.Accelerated = b
	}
	return nil
}

// Validate checks struct constraints and the density table.
func (c Config) Validate() error {
	c.normalise()
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	if _, err := c.DensityTable(); err != nil {
		return err
	}
	return nil
}

// DensityTable converts the configured densities, keyed by material name.
func (c Config) DensityTable() (core.DensityTable, error) {
	table := core.DefaultDensities()
	for name, v := range c.Densities {
		kind, err := model.ParseMaterialKind(name)
		if err != nil {
			return nil, fmt.Errorf("%w: densities: %v", ErrInvalidConfig, err)
		}
		table[kind] = v
	}
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return table, nil
}

// Mode returns the configured loss mode.
func (c Config) Mode() core.LossMode {
	mode, err := core.ParseLossMode(c.LossMode)
	if err != nil {
		return core.ModeOcclusion
	}
	return mode
}

// ClockMode maps Accelerated onto a tick pacing mode.
func (c Config) ClockMode() timectrl.Mode {
	if c.Accelerated {
		return timectrl.Accelerated
	}
	return timectrl.RealTime
}

// Combiner returns the signal combiner for the radio profile.
func (c Config) Combiner() core.Combiner {
	return core.Combiner{
		TxPowerDBm:     c.Radio.TxPowerDBm,
		BeamformGainDB: c.Radio.BeamformGainDB,
		MaxPaths:       c.Radio.MaxPaths,
	}
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	for _, e := range verrs {
		field := e.Namespace()
		switch e.Tag() {
		case "min", "gte", "gt":
			return fmt.Errorf("%w: %s must be at least %s, got %v", ErrInvalidConfig, field, e.Param(), e.Value())
		case "max", "lte":
			return fmt.Errorf("%w: %s must not exceed %s, got %v", ErrInvalidConfig, field, e.Param(), e.Value())
		case "oneof":
			return fmt.Errorf("%w: %s must be one of [%s], got %v", ErrInvalidConfig, field, e.Param(), e.Value())
		default:
			return fmt.Errorf("%w: %s failed %s", ErrInvalidConfig, field, e.Tag())
		}
	}
	return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
}
