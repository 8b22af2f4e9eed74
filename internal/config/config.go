// Package config holds the flat configuration of a refinenet experiment.
//
// Values are layered: Default, then an optional YAML file (Load), then
// command-line flags (BindFlags / ApplyFlags). Validate checks the result.
package config

import (
	"flag"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/born-ml/refinenet/internal/integrate"
	"github.com/born-ml/refinenet/internal/odenet"
)

// Config describes one training run.
type Config struct {
	// Architecture.
	Model        string  `yaml:"model"` // dense, conv, mlp or skip_mlp
	InDim        int     `yaml:"in_dim"`
	OutDim       int     `yaml:"out_dim"`
	Width        int     `yaml:"width"`
	Hidden       int     `yaml:"hidden"`
	Depth        int     `yaml:"depth"` // hidden layers of the mlp baseline
	Activation   string  `yaml:"activation"`
	Channels     int     `yaml:"channels"`
	ImageSize    int     `yaml:"image_size"`
	UseBatchNorm bool    `yaml:"use_batch_norm"`
	Epsilon      float64 `yaml:"epsilon"`

	// ODE.
	TimeD      int    `yaml:"time_d"`
	NTimeSteps int    `yaml:"n_time_steps"`
	Scheme     string `yaml:"scheme"`
	UseAdjoint bool   `yaml:"use_adjoint"`

	// Training.
	LR         float64 `yaml:"lr"`
	Epochs     int     `yaml:"epochs"`
	Refines    int     `yaml:"refines"`
	BatchSize  int     `yaml:"batch_size"`
	Samples    int     `yaml:"samples"`
	Seed       uint64  `yaml:"seed"`
	PrintEvery int     `yaml:"print_every"`
	Task       string  `yaml:"task"` // classify or regress

	// Environment.
	OutDir string `yaml:"out_dir"`
	Device string `yaml:"device"` // cpu or webgpu
}

// Default returns the configuration of a small dense classification run.
func Default() *Config {
	return &Config{
		Model:      "dense",
		InDim:      2,
		OutDim:     3,
		Width:      4,
		Hidden:     8,
		Depth:      2,
		Activation: string(odenet.ReLU),
		Channels:   4,
		ImageSize:  6,
		Epsilon:    1,
		TimeD:      1,
		NTimeSteps: 1,
		Scheme:     integrate.Euler.Name,
		LR:         1e-3,
		Epochs:     2,
		Refines:    3,
		BatchSize:  32,
		Samples:    512,
		Seed:       1,
		PrintEvery: 100,
		Task:       "classify",
		Device:     "cpu",
	}
}

// Load returns Default overlaid with the YAML file at path. Unknown keys are
// rejected.
func Load(path string) (*Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open config")
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

// BindFlags registers one flag per field on fs, with the current values of
// cfg as defaults.
func (c *Config) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Model, "model", c.Model, "architecture: dense, conv, mlp or skip_mlp")
	fs.IntVar(&c.InDim, "in-dim", c.InDim, "input dimension (dense, mlp) or input channels (conv)")
	fs.IntVar(&c.OutDim, "out-dim", c.OutDim, "output dimension or number of classes")
	fs.IntVar(&c.Width, "width", c.Width, "ODE state width")
	fs.IntVar(&c.Hidden, "hidden", c.Hidden, "hidden width of the right-hand side")
	fs.IntVar(&c.Depth, "depth", c.Depth, "hidden layers of the mlp baseline")
	fs.StringVar(&c.Activation, "activation", c.Activation, "relu, tanh or sigmoid")
	fs.IntVar(&c.Channels, "channels", c.Channels, "ODE state channels (conv)")
	fs.IntVar(&c.ImageSize, "image-size", c.ImageSize, "input height and width (conv)")
	fs.BoolVar(&c.UseBatchNorm, "batch-norm", c.UseBatchNorm, "BatchNorm inside the conv right-hand side")
	fs.Float64Var(&c.Epsilon, "epsilon", c.Epsilon, "output scale of the conv right-hand side")
	fs.IntVar(&c.TimeD, "time-d", c.TimeD, "initial number of parameter time slices")
	fs.IntVar(&c.NTimeSteps, "n-time-steps", c.NTimeSteps, "initial number of solver steps")
	fs.StringVar(&c.Scheme, "scheme", c.Scheme, "integration scheme: "+strings.Join(integrate.Names(), ", "))
	fs.BoolVar(&c.UseAdjoint, "adjoint", c.UseAdjoint, "compute ODE gradients with the adjoint sweep")
	fs.Float64Var(&c.LR, "lr", c.LR, "base learning rate")
	fs.IntVar(&c.Epochs, "epochs", c.Epochs, "epochs per stage")
	fs.IntVar(&c.Refines, "refines", c.Refines, "number of curriculum stages")
	fs.IntVar(&c.BatchSize, "batch-size", c.BatchSize, "mini-batch size")
	fs.IntVar(&c.Samples, "samples", c.Samples, "number of synthetic samples")
	fs.Uint64Var(&c.Seed, "seed", c.Seed, "random seed")
	fs.IntVar(&c.PrintEvery, "print-every", c.PrintEvery, "log the loss every N steps")
	fs.StringVar(&c.Task, "task", c.Task, "classify or regress")
	fs.StringVar(&c.OutDir, "out", c.OutDir, "checkpoint directory (empty: no checkpoints)")
	fs.StringVar(&c.Device, "device", c.Device, "cpu or webgpu")
}

// ApplyFlags copies every flag that was set explicitly on parsed into c.
// parsed must have been bound with BindFlags to another Config; this lets a
// file named by a flag be loaded first and the flags still win.
func (c *Config) ApplyFlags(parsed *flag.FlagSet) error {
	target := flag.NewFlagSet("apply", flag.ContinueOnError)
	c.BindFlags(target)
	var err error
	parsed.Visit(func(f *flag.Flag) {
		if err != nil || target.Lookup(f.Name) == nil {
			return
		}
		err = errors.Wrapf(target.Set(f.Name, f.Value.String()), "flag -%s", f.Name)
	})
	return err
}

// Validate checks ranges and names.
func (c *Config) Validate() error {
	switch c.Model {
	case "dense", "conv", "mlp", "skip_mlp":
	default:
		return errors.Errorf("model %q: want dense, conv, mlp or skip_mlp", c.Model)
	}
	if c.Model == "skip_mlp" && c.InDim != c.OutDim {
		return errors.Errorf("skip_mlp needs in_dim == out_dim, got %d and %d", c.InDim, c.OutDim)
	}
	switch c.Task {
	case "classify", "regress":
	default:
		return errors.Errorf("task %q: want classify or regress", c.Task)
	}
	if c.Model == "conv" && c.Task != "classify" {
		return errors.New("the conv model only supports task classify")
	}
	if _, err := odenet.ParseActivation(c.Activation); err != nil {
		return err
	}
	if _, err := integrate.Lookup(c.Scheme); err != nil {
		return err
	}
	positive := []bound{
		{"in_dim", c.InDim},
		{"out_dim", c.OutDim},
		{"width", c.Width},
		{"hidden", c.Hidden},
		{"time_d", c.TimeD},
		{"n_time_steps", c.NTimeSteps},
		{"epochs", c.Epochs},
		{"refines", c.Refines},
		{"batch_size", c.BatchSize},
		{"samples", c.Samples},
		{"print_every", c.PrintEvery},
	}
	if c.Model == "conv" {
		positive = append(positive, bound{"channels", c.Channels}, bound{"image_size", c.ImageSize})
	}
	for _, p := range positive {
		if p.value <= 0 {
			return errors.Errorf("%s must be positive, got %d", p.name, p.value)
		}
	}
	if c.Depth < 0 {
		return errors.Errorf("depth must be >= 0, got %d", c.Depth)
	}
	if c.LR <= 0 {
		return errors.Errorf("lr must be positive, got %g", c.LR)
	}
	if c.Task == "classify" && c.OutDim < 2 {
		return errors.Errorf("classification needs out_dim >= 2, got %d", c.OutDim)
	}
	if c.Task == "regress" && (c.InDim != 1 || c.OutDim != 1) {
		return errors.Errorf("the sine regression task is 1-d, got in_dim=%d out_dim=%d", c.InDim, c.OutDim)
	}
	switch c.Device {
	case "cpu", "webgpu":
	default:
		return errors.Errorf("device %q: want cpu or webgpu", c.Device)
	}
	return nil
}

// ParsedActivation returns Activation as an odenet.Activation. Call
// Validate first.
func (c *Config) ParsedActivation() odenet.Activation {
	return odenet.Activation(c.Activation)
}

type bound struct {
	name  string
	value int
}
