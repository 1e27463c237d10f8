// Package config loads the aderseis run configuration from a yaml file,
// an optional .env file and ADERSEIS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/notargets/aderseis/element"
	"github.com/notargets/aderseis/utils"
	"github.com/notargets/aderseis/velocity"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. ADERSEIS_PREDICT_WORKERS
const EnvPrefix = "ADERSEIS"

// Config is the complete run configuration
type Config struct {
	Log      utils.LogConfig `mapstructure:"log" yaml:"log"`
	Predict  Predict         `mapstructure:"predict" yaml:"predict"`
	Exchange Exchange        `mapstructure:"exchange" yaml:"exchange"`
	Annotate Annotate        `mapstructure:"annotate" yaml:"annotate"`
	Velocity Velocity        `mapstructure:"velocity" yaml:"velocity"`
}

// Predict configures the time prediction benchmark
type Predict struct {
	Element    string  `mapstructure:"element" yaml:"element"`
	SpaceOrder int     `mapstructure:"space_order" yaml:"space_order"`
	TimeOrder  int     `mapstructure:"time_order" yaml:"time_order"`
	Elements   int     `mapstructure:"elements" yaml:"elements"`
	Steps      int     `mapstructure:"steps" yaml:"steps"`
	Dt         float64 `mapstructure:"dt" yaml:"dt"`
	Workers    int     `mapstructure:"workers" yaml:"workers"`
	Backend    string  `mapstructure:"backend" yaml:"backend"` // blas or occa
	Device     string  `mapstructure:"device" yaml:"device"`   // OCCA mode
	Mesh       string  `mapstructure:"mesh" yaml:"mesh"`       // geometry source instead of synthetic elements
}

// Exchange configures the LTS neighbour exchange
type Exchange struct {
	Ranks        int    `mapstructure:"ranks" yaml:"ranks"`
	TimeGroups   int    `mapstructure:"time_groups" yaml:"time_groups"`
	Elements     int    `mapstructure:"elements" yaml:"elements"` // synthetic chain length
	Mesh         string `mapstructure:"mesh" yaml:"mesh"`         // replaces the chain when set
	BytesPerFace int    `mapstructure:"bytes_per_face" yaml:"bytes_per_face"`
	IterComm     int    `mapstructure:"iter_comm" yaml:"iter_comm"`
	Cycles       int    `mapstructure:"cycles" yaml:"cycles"`
	Transport    string `mapstructure:"transport" yaml:"transport"` // local or mpi
}

// Annotate configures the mesh annotation
type Annotate struct {
	Mesh         string  `mapstructure:"mesh" yaml:"mesh"`
	PosFile      string  `mapstructure:"pos_file" yaml:"pos_file"`
	Output       string  `mapstructure:"output" yaml:"output"`
	ElmtsPerWave float64 `mapstructure:"elmts_per_wave" yaml:"elmts_per_wave"`
	CFL          float64 `mapstructure:"cfl" yaml:"cfl"`
	TimeGroups   int     `mapstructure:"time_groups" yaml:"time_groups"`
	Workers      int     `mapstructure:"workers" yaml:"workers"`
}

// Velocity selects the velocity model
type Velocity struct {
	Kind     string           `mapstructure:"kind" yaml:"kind"` // constant or layered
	Constant velocity.Sample  `mapstructure:"constant" yaml:"constant"`
	Layers   []velocity.Layer `mapstructure:"layers" yaml:"layers,omitempty"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.verbose", false)

	v.SetDefault("predict.element", "tet4")
	v.SetDefault("predict.space_order", 4)
	v.SetDefault("predict.time_order", 4)
	v.SetDefault("predict.elements", 4096)
	v.SetDefault("predict.steps", 10)
	v.SetDefault("predict.dt", 1e-3)
	v.SetDefault("predict.workers", 0)
	v.SetDefault("predict.backend", "blas")
	v.SetDefault("predict.device", "Serial")
	v.SetDefault("predict.mesh", "")

	v.SetDefault("exchange.ranks", 4)
	v.SetDefault("exchange.time_groups", 2)
	v.SetDefault("exchange.elements", 64)
	v.SetDefault("exchange.mesh", "")
	v.SetDefault("exchange.bytes_per_face", 8*9*6)
	v.SetDefault("exchange.iter_comm", 100)
	v.SetDefault("exchange.cycles", 4)
	v.SetDefault("exchange.transport", "local")

	v.SetDefault("annotate.mesh", "")
	v.SetDefault("annotate.pos_file", "")
	v.SetDefault("annotate.output", "")
	v.SetDefault("annotate.elmts_per_wave", 2.0)
	v.SetDefault("annotate.cfl", 0.5)
	v.SetDefault("annotate.time_groups", 3)
	v.SetDefault("annotate.workers", 0)

	v.SetDefault("velocity.kind", "constant")
	v.SetDefault("velocity.constant.vp", 6000.0)
	v.SetDefault("velocity.constant.vs", 3464.0)
	v.SetDefault("velocity.constant.rho", 2670.0)
}

// LoadEnv reads .env style files into the process environment without
// overriding variables that are already set. With no arguments it reads
// ./.env if present.
func LoadEnv(files ...string) error {
	err := godotenv.Load(files...)
	if len(files) == 0 && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Load reads the yaml file at path (defaults only when path is empty) and
// applies environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks ranges that the commands rely on
func (c *Config) Validate() error {
	if _, err := element.ParseType(c.Predict.Element); err != nil {
		return fmt.Errorf("predict: %w", err)
	}
	p := c.Predict
	switch {
	case p.SpaceOrder < 1 || p.SpaceOrder > element.MaxOrder:
		return fmt.Errorf("predict: space order %d outside 1..%d", p.SpaceOrder, element.MaxOrder)
	case p.TimeOrder < 1 || p.TimeOrder > p.SpaceOrder:
		return fmt.Errorf("predict: time order %d outside 1..%d", p.TimeOrder, p.SpaceOrder)
	case p.Elements < 1 || p.Steps < 1:
		return fmt.Errorf("predict: need at least one element and step")
	case p.Dt <= 0:
		return fmt.Errorf("predict: time step %g must be positive", p.Dt)
	case p.Backend != "blas" && p.Backend != "occa":
		return fmt.Errorf("predict: unknown backend %q", p.Backend)
	}

	x := c.Exchange
	switch {
	case x.Ranks < 1:
		return fmt.Errorf("exchange: %d ranks", x.Ranks)
	case x.TimeGroups < 1 || x.TimeGroups > 64:
		return fmt.Errorf("exchange: time groups %d outside 1..64", x.TimeGroups)
	case x.Mesh == "" && x.Elements < x.Ranks:
		return fmt.Errorf("exchange: %d elements cannot feed %d ranks", x.Elements, x.Ranks)
	case x.BytesPerFace < 8:
		return fmt.Errorf("exchange: %d bytes per face, need at least 8", x.BytesPerFace)
	case x.IterComm < 1 || x.Cycles < 1:
		return fmt.Errorf("exchange: iter comm and cycles must be positive")
	case x.Transport != "local" && x.Transport != "mpi":
		return fmt.Errorf("exchange: unknown transport %q", x.Transport)
	}

	a := c.Annotate
	if a.ElmtsPerWave <= 0 || a.CFL <= 0 || a.TimeGroups < 1 {
		return fmt.Errorf("annotate: elements per wave, cfl and time groups must be positive")
	}

	if _, err := c.Velocity.Model(); err != nil {
		return fmt.Errorf("velocity: %w", err)
	}
	return nil
}

// Model builds the configured velocity model
func (v Velocity) Model() (velocity.Model, error) {
	switch strings.ToLower(v.Kind) {
	case "constant":
		if err := v.Constant.Validate(); err != nil {
			return nil, err
		}
		return velocity.Constant(v.Constant), nil
	case "layered":
		return velocity.NewLayered(v.Layers)
	}
	return nil, fmt.Errorf("unknown velocity model %q", v.Kind)
}

// WriteYAML writes the effective configuration
func (c *Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}
