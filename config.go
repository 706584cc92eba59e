package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ErrConfig marks invalid or missing configuration.
var ErrConfig = errors.New("invalid configuration")

const (
	DefaultBatchSize = 512
	DefaultMargin    = 2.0
	DefaultEpochs    = 100
	DefaultMaxNorm   = 100.0
	DefaultMinSigma  = 1e-2
	DefaultMaxSigma  = 1e2
	DefaultLearnRate = 1e-3
)

// TrainConfig is everything a train run needs. The same keys are used in
// YAML config files and in manifest.json.
type TrainConfig struct {
	Data      string  `json:"data" yaml:"data"`
	Format    string  `json:"format" yaml:"format"`
	VocabSize int     `json:"vocab_size" yaml:"vocab_size"`
	Window    int     `json:"window_size" yaml:"window_size"`
	Dim       int     `json:"embed_dim" yaml:"embed_dim"`
	Batch     int     `json:"batch_size" yaml:"batch_size"`
	Margin    float64 `json:"margin" yaml:"margin"`
	Epochs    int     `json:"num_epochs" yaml:"num_epochs"`
	MaxNorm   float64 `json:"C" yaml:"C"`
	MinSigma  float64 `json:"m" yaml:"m"`
	MaxSigma  float64 `json:"M" yaml:"M"`
	LearnRate float64 `json:"learning_rate" yaml:"learning_rate"`
	Seed      int64   `json:"seed" yaml:"seed"`
	Out       string  `json:"out" yaml:"out"`
	Prefetch  int     `json:"prefetch" yaml:"prefetch"`
	Metrics   string  `json:"metrics_addr" yaml:"metrics_addr"`
	LogLevel  string  `json:"log_level" yaml:"log_level"`
}

// DefaultTrainConfig returns the defaults for every optional setting.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		Format:    FormatAuto,
		Batch:     DefaultBatchSize,
		Margin:    DefaultMargin,
		Epochs:    DefaultEpochs,
		MaxNorm:   DefaultMaxNorm,
		MinSigma:  DefaultMinSigma,
		MaxSigma:  DefaultMaxSigma,
		LearnRate: DefaultLearnRate,
		Seed:      1,
		Out:       ".",
		LogLevel:  "info",
	}
}

// TrainCfg is the subset the trainer needs.
func (c TrainConfig) TrainCfg() TrainCfg {
	return TrainCfg{
		Window:    c.Window,
		Epochs:    c.Epochs,
		Margin:    c.Margin,
		MaxNorm:   c.MaxNorm,
		MinSigma:  c.MinSigma,
		MaxSigma:  c.MaxSigma,
		LearnRate: c.LearnRate,
	}
}

// Validate reports the first invalid setting, wrapped in ErrConfig.
func (c TrainConfig) Validate() error {
	var problems []string
	if c.Data == "" {
		problems = append(problems, "data file is required")
	}
	if c.VocabSize <= 0 {
		problems = append(problems, "vocab_size must be positive")
	}
	if c.Window <= 0 {
		problems = append(problems, "window_size must be positive")
	}
	if c.Dim <= 0 {
		problems = append(problems, "embed_dim must be positive")
	}
	if c.Batch <= 0 {
		problems = append(problems, "batch_size must be positive")
	}
	if c.Epochs < 0 {
		problems = append(problems, "num_epochs must not be negative")
	}
	if c.MaxNorm <= 0 {
		problems = append(problems, "C must be positive")
	}
	if c.MinSigma <= 0 {
		problems = append(problems, "m must be positive")
	}
	if c.MaxSigma < c.MinSigma {
		problems = append(problems, "M must not be below m")
	}
	if c.LearnRate <= 0 {
		problems = append(problems, "learning_rate must be positive")
	}
	if _, err := resolveFormat(c.Data, c.Format); err != nil {
		problems = append(problems, err.Error())
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %v", ErrConfig, problems)
	}
	return nil
}

// LoadConfigFile overlays the YAML document at path onto cfg. Keys absent
// from the file keep their current values.
func LoadConfigFile(path string, cfg *TrainConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %s: %v", ErrConfig, path, err)
	}
	return nil
}

const trainUsage = "train [flags] DATA VOCAB_SIZE WINDOW_SIZE EMBED_DIM [BATCH_SIZE [MARGIN [NUM_EPOCHS [C [m [M]]]]]]"

// ParseTrainArgs builds a TrainConfig from defaults, an optional -config
// file, flags and then positional arguments, each overriding the last.
func ParseTrainArgs(args []string, output io.Writer) (TrainConfig, error) {
	cfg := DefaultTrainConfig()
	var configPath string

	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: gaussembed %s\n\nFlags:\n", trainUsage)
		fs.PrintDefaults()
	}
	fs.StringVar(&configPath, "config", "", "YAML config file")
	fs.StringVar(&cfg.Format, "format", cfg.Format, "Data format: auto, tfrecord or jsonl")
	fs.StringVar(&cfg.Out, "out", cfg.Out, "Output directory for mu.npy, sigma.npy and manifest.json")
	fs.Float64Var(&cfg.LearnRate, "lr", cfg.LearnRate, "Adam learning rate")
	fs.Int64Var(&cfg.Seed, "seed", cfg.Seed, "Random seed for mean initialization")
	fs.IntVar(&cfg.Prefetch, "prefetch", cfg.Prefetch, "Batches to decode ahead (0 disables)")
	fs.StringVar(&cfg.Metrics, "metrics-addr", cfg.Metrics, "Serve Prometheus metrics on this address")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level")

	if err := fs.Parse(args); err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if configPath != "" {
		if err := LoadConfigFile(configPath, &cfg); err != nil {
			return cfg, err
		}
		// flags win over the file
		if err := fs.Parse(args); err != nil {
			return cfg, fmt.Errorf("%w: %w", ErrConfig, err)
		}
	}

	if err := applyPositional(&cfg, fs.Args()); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func applyPositional(cfg *TrainConfig, pos []string) error {
	if len(pos) == 0 {
		return nil
	}
	if len(pos) < 4 {
		return fmt.Errorf("%w: need DATA VOCAB_SIZE WINDOW_SIZE EMBED_DIM, got %d arguments", ErrConfig, len(pos))
	}
	if len(pos) > 10 {
		return fmt.Errorf("%w: too many arguments (%d)", ErrConfig, len(pos))
	}

	parseInt := func(name, s string, dst *int) error {
		v, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrConfig, name, err)
		}
		*dst = v
		return nil
	}
	parseFloat := func(name, s string, dst *float64) error {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrConfig, name, err)
		}
		*dst = v
		return nil
	}

	cfg.Data = pos[0]
	setters := []func(string) error{
		func(s string) error { return parseInt("vocab_size", s, &cfg.VocabSize) },
		func(s string) error { return parseInt("window_size", s, &cfg.Window) },
		func(s string) error { return parseInt("embed_dim", s, &cfg.Dim) },
		func(s string) error { return parseInt("batch_size", s, &cfg.Batch) },
		func(s string) error { return parseFloat("margin", s, &cfg.Margin) },
		func(s string) error { return parseInt("num_epochs", s, &cfg.Epochs) },
		func(s string) error { return parseFloat("C", s, &cfg.MaxNorm) },
		func(s string) error { return parseFloat("m", s, &cfg.MinSigma) },
		func(s string) error { return parseFloat("M", s, &cfg.MaxSigma) },
	}
	for i, s := range pos[1:] {
		if err := setters[i](s); err != nil {
			return err
		}
	}
	return nil
}
