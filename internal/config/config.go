package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment override, e.g. THINKMATE_MODEL_PATH.
const EnvPrefix = "THINKMATE"

// Config represents the application configuration
type Config struct {
	Model      ModelConfig      `json:"model"`
	Training   TrainingConfig   `json:"training"`
	Evaluation EvaluationConfig `json:"evaluation"`
	Ingestion  IngestionConfig  `json:"ingestion"`
	Server     ServerConfig     `json:"server"`
	Logging    LoggingConfig    `json:"logging"`
}

// ModelConfig locates the parameter artifact
type ModelConfig struct {
	Path   string `json:"path"`
	Device string `json:"device"`
}

// TrainingConfig contains training hyperparameters and inputs
type TrainingConfig struct {
	DatasetPath       string  `json:"dataset_path" split_words:"true"`
	RecordStore       string  `json:"record_store" split_words:"true"`
	Epochs            int     `json:"epochs"`
	BatchSize         int     `json:"batch_size" split_words:"true"`
	LearningRate      float64 `json:"learning_rate" split_words:"true"`
	MinLearningRate   float64 `json:"min_learning_rate" split_words:"true"`
	WarmupEpochs      int     `json:"warmup_epochs" split_words:"true"`
	WeightDecay       float64 `json:"weight_decay" split_words:"true"`
	LabelSmoothing    float64 `json:"label_smoothing" split_words:"true"`
	Workers           int     `json:"workers"`
	Seed              int64   `json:"seed"`
	SkipInvalidLabels bool    `json:"skip_invalid_labels" split_words:"true"`
	HistoryPath       string  `json:"history_path" split_words:"true"`
}

// EvaluationConfig controls the held-out accuracy run
type EvaluationConfig struct {
	DatasetPath  string  `json:"dataset_path" split_words:"true"`
	TestFraction float64 `json:"test_fraction" split_words:"true"`
	SplitSeed    int64   `json:"split_seed" split_words:"true"`
	OutputDir    string  `json:"output_dir" split_words:"true"`
}

// IngestionConfig controls PGN import into the record store
type IngestionConfig struct {
	PGNPath      string `json:"pgn_path" split_words:"true"`
	MaxGames     int    `json:"max_games" split_words:"true"`
	MaxPositions int    `json:"max_positions" split_words:"true"`
	BatchSize    int    `json:"batch_size" split_words:"true"`
	Workers      int    `json:"workers"`
}

// ServerConfig contains HTTP listener settings
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// LoggingConfig contains logger settings
type LoggingConfig struct {
	Level string `json:"level"`
	Path  string `json:"path"`
}

// DefaultConfig returns the built-in configuration
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			Path:   "models/chess_cnn.gob",
			Device: "cpu",
		},
		Training: TrainingConfig{
			DatasetPath:    "data/train_data.csv",
			RecordStore:    "data/positions.db",
			Epochs:         50,
			BatchSize:      256,
			LearningRate:   3e-4,
			WeightDecay:    1e-5,
			LabelSmoothing: 0.1,
			Workers:        2,
			Seed:           1,
			HistoryPath:    "data/training_history.db",
		},
		Evaluation: EvaluationConfig{
			DatasetPath:  "data/chess_data.csv",
			TestFraction: 0.2,
			SplitSeed:    42,
			OutputDir:    "data",
		},
		Ingestion: IngestionConfig{
			BatchSize: 100,
			Workers:   4,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 5000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load layers the JSON file at path (if any) over the defaults, applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to a file
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks value ranges
func (c *Config) Validate() error {
	var errs []error

	if c.Model.Path == "" {
		errs = append(errs, errors.New("model.path is empty"))
	}
	if c.Training.Epochs < 1 {
		errs = append(errs, fmt.Errorf("training.epochs must be positive, got %d", c.Training.Epochs))
	}
	if c.Training.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("training.batch_size must be positive, got %d", c.Training.BatchSize))
	}
	if c.Training.LearningRate <= 0 {
		errs = append(errs, fmt.Errorf("training.learning_rate must be positive, got %g", c.Training.LearningRate))
	}
	if c.Training.MinLearningRate < 0 || c.Training.MinLearningRate > c.Training.LearningRate {
		errs = append(errs, fmt.Errorf("training.min_learning_rate must be in [0, learning_rate], got %g", c.Training.MinLearningRate))
	}
	if c.Training.WeightDecay < 0 {
		errs = append(errs, fmt.Errorf("training.weight_decay must not be negative, got %g", c.Training.WeightDecay))
	}
	if c.Training.LabelSmoothing < 0 || c.Training.LabelSmoothing >= 1 {
		errs = append(errs, fmt.Errorf("training.label_smoothing must be in [0, 1), got %g", c.Training.LabelSmoothing))
	}
	if c.Evaluation.TestFraction <= 0 || c.Evaluation.TestFraction >= 1 {
		errs = append(errs, fmt.Errorf("evaluation.test_fraction must be in (0, 1), got %g", c.Evaluation.TestFraction))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}

	return errors.Join(errs...)
}

// Addr returns host:port for the HTTP listener.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
