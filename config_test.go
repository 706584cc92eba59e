package main

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestParseTrainArgsDefaults(t *testing.T) {
	cfg, err := ParseTrainArgs([]string{"data.tfrecord", "5000", "10", "50"}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Data != "data.tfrecord" || cfg.VocabSize != 5000 || cfg.Window != 10 || cfg.Dim != 50 {
		t.Errorf("required values = %+v", cfg)
	}
	if cfg.Batch != 512 || cfg.Margin != 2.0 || cfg.Epochs != 100 {
		t.Errorf("batch/margin/epochs = %d/%v/%d, want 512/2/100", cfg.Batch, cfg.Margin, cfg.Epochs)
	}
	if cfg.MaxNorm != 100 || cfg.MinSigma != 0.01 || cfg.MaxSigma != 100 {
		t.Errorf("C/m/M = %v/%v/%v, want 100/0.01/100", cfg.MaxNorm, cfg.MinSigma, cfg.MaxSigma)
	}
}

func TestParseTrainArgsAllPositional(t *testing.T) {
	args := []string{"-seed", "9", "d.jsonl", "5", "1", "2", "1", "3.5", "7", "10", "0.1", "5"}
	cfg, err := ParseTrainArgs(args, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Batch != 1 || cfg.Margin != 3.5 || cfg.Epochs != 7 || cfg.MaxNorm != 10 || cfg.MinSigma != 0.1 || cfg.MaxSigma != 5 {
		t.Errorf("optional positionals not applied: %+v", cfg)
	}
	if cfg.Seed != 9 {
		t.Errorf("seed = %d, want 9", cfg.Seed)
	}
}

func TestParseTrainArgsErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing everything", nil},
		{"too few positionals", []string{"d", "5", "1"}},
		{"bad vocab", []string{"d", "five", "1", "2"}},
		{"zero window", []string{"d", "5", "0", "2"}},
		{"m above M", []string{"d", "5", "1", "2", "1", "2", "1", "100", "10", "1"}},
		{"bad margin", []string{"d", "5", "1", "2", "1", "x"}},
		{"too many", []string{"d", "5", "1", "2", "1", "2", "1", "1", "1", "1", "1"}},
		{"unknown flag", []string{"-nope", "d", "5", "1", "2"}},
		{"bad format", []string{"-format", "csv", "d", "5", "1", "2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseTrainArgs(tt.args, io.Discard); !errors.Is(err, ErrConfig) {
				t.Errorf("err = %v, want ErrConfig", err)
			}
		})
	}
}

func TestParseTrainArgsConfigFilePrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.yaml")
	doc := `data: from-file.tfrecord
vocab_size: 100
window_size: 4
embed_dim: 8
margin: 1.5
seed: 3
M: 50
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := ParseTrainArgs([]string{"-config", path, "-seed", "11"}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Data != "from-file.tfrecord" || cfg.VocabSize != 100 || cfg.Margin != 1.5 || cfg.MaxSigma != 50 {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Batch != DefaultBatchSize {
		t.Errorf("batch = %d, want default %d", cfg.Batch, DefaultBatchSize)
	}
	if cfg.Seed != 11 {
		t.Errorf("seed = %d, flag should override file", cfg.Seed)
	}

	cfg, err = ParseTrainArgs([]string{"-config", path, "other.jsonl", "20", "2", "3"}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Data != "other.jsonl" || cfg.VocabSize != 20 || cfg.Window != 2 || cfg.Dim != 3 {
		t.Errorf("positionals should override file: %+v", cfg)
	}
}

func TestLoadConfigFileRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("vocabulary: 3\n"), 0o644)
	cfg := DefaultTrainConfig()
	if err := LoadConfigFile(path, &cfg); !errors.Is(err, ErrConfig) {
		t.Fatalf("err = %v, want ErrConfig", err)
	}
}
