//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2025 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/weaviate/chanstore/entities/objectid"
)

// DefaultConfigFile is read when present and no other file is given.
const DefaultConfigFile string = "./chanstore.yaml"

const (
	DefaultPersistenceDataPath       = "./data"
	DefaultLockFileRefreshInterval   = 10 * time.Second
	DefaultChannelCount              = 4
	DefaultHousekeepingInterval      = time.Second
	DefaultHousekeepingBudget        = 10 * time.Millisecond
	DefaultMarkingWaitTime           = 100 * time.Millisecond
	DefaultTransactionsFileMaxSize   = 100 << 20
	DefaultFileMinimumSize           = 1 << 20
	DefaultFileMaximumSize           = 8 << 20
	DefaultFileMinimumUseRatio       = 0.75
	DefaultCacheTimeout              = 24 * time.Hour
	DefaultImportMaxBatchLength      = 4 << 20
	DefaultBackupMaxRetryTime        = time.Minute
	DefaultMonitoringPort            = 2112
	DefaultShutdownTimeout           = 30 * time.Second
	DefaultPersistenceConnector      = ConnectorLocal
	DefaultImportReadMode            = ReadModeMmap
	DefaultLoggingLevel              = "info"
	DefaultLoggingFormat             = "text"
	DefaultOperationalMode           = READ_WRITE
	maxHousekeepingBudgetPerInterval = 1.0
)

const (
	ConnectorLocal = "local"
	ConnectorBolt  = "bolt"

	ReadModeMmap = "mmap"
	ReadModeRead = "read"
)

// Flags are command line options shared by every command. They override the
// config file and the environment.
type Flags struct {
	ConfigFile string `long:"config-file" description:"path to config file (default: ./chanstore.yaml)"`

	DataPath  string `long:"data-path" description:"directory holding the channel directories"`
	Connector string `long:"connector" description:"file system connector, local or bolt"`
	Channels  int    `long:"channels" description:"number of channels, a power of two"`
	ReadOnly  bool   `long:"read-only" description:"open the storage without writing to it"`

	LogLevel  string `long:"log-level" description:"logrus level, e.g. debug or info"`
	LogFormat string `long:"log-format" description:"text or json"`
}

// Config outline of the config file
type Config struct {
	Persistence   Persistence   `json:"persistence" yaml:"persistence"`
	Storage       Storage       `json:"storage" yaml:"storage"`
	Housekeeping  Housekeeping  `json:"housekeeping" yaml:"housekeeping"`
	FileEvaluator FileEvaluator `json:"file_evaluator" yaml:"file_evaluator"`
	Cache         Cache         `json:"cache" yaml:"cache"`
	Import        Import        `json:"import" yaml:"import"`
	Backup        Backup        `json:"backup" yaml:"backup"`
	Monitoring    Monitoring    `json:"monitoring" yaml:"monitoring"`
	Logging       Logging       `json:"logging" yaml:"logging"`

	// OperationalMode is READ_WRITE or READ_ONLY.
	OperationalMode string        `json:"operational_mode" yaml:"operational_mode"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type Persistence struct {
	DataPath                string        `json:"data_path" yaml:"data_path"`
	Connector               string        `json:"connector" yaml:"connector"`
	LockFileRefreshInterval time.Duration `json:"lock_file_refresh_interval" yaml:"lock_file_refresh_interval"`
}

func (p Persistence) Validate() error {
	if p.DataPath == "" {
		return fmt.Errorf("persistence.data_path must be set")
	}
	switch p.Connector {
	case ConnectorLocal, ConnectorBolt:
	default:
		return fmt.Errorf("persistence.connector must be %q or %q, got %q", ConnectorLocal, ConnectorBolt, p.Connector)
	}
	if p.LockFileRefreshInterval <= 0 {
		return fmt.Errorf("persistence.lock_file_refresh_interval must be positive")
	}
	return nil
}

type Storage struct {
	ChannelCount                int           `json:"channel_count" yaml:"channel_count"`
	RootTypeID                  int64         `json:"root_type_id" yaml:"root_type_id"`
	ReferenceTypeIDs            []int64       `json:"reference_type_ids" yaml:"reference_type_ids"`
	TransactionsFileMaximumSize int64         `json:"transactions_file_maximum_size" yaml:"transactions_file_maximum_size"`
	MarkingWaitTime             time.Duration `json:"marking_wait_time" yaml:"marking_wait_time"`
}

func (s Storage) Validate() error {
	if err := objectid.ValidateChannelCount(s.ChannelCount); err != nil {
		return errors.Wrap(err, "storage.channel_count")
	}
	if s.RootTypeID != 0 && !objectid.IsTypeID(s.RootTypeID) {
		return fmt.Errorf("storage.root_type_id %d is not a type id", s.RootTypeID)
	}
	for _, id := range s.ReferenceTypeIDs {
		if id <= 0 || !objectid.IsTypeID(id) {
			return fmt.Errorf("storage.reference_type_ids: %d is not a type id", id)
		}
	}
	if s.TransactionsFileMaximumSize <= 0 {
		return fmt.Errorf("storage.transactions_file_maximum_size must be positive")
	}
	if s.MarkingWaitTime <= 0 {
		return fmt.Errorf("storage.marking_wait_time must be positive")
	}
	return nil
}

type Housekeeping struct {
	Interval                time.Duration `json:"interval" yaml:"interval"`
	Budget                  time.Duration `json:"budget" yaml:"budget"`
	FileCleanupBudget       time.Duration `json:"file_cleanup_budget" yaml:"file_cleanup_budget"`
	GarbageCollectionBudget time.Duration `json:"garbage_collection_budget" yaml:"garbage_collection_budget"`
	CacheCheckBudget        time.Duration `json:"cache_check_budget" yaml:"cache_check_budget"`
	TransactionsFileBudget  time.Duration `json:"transactions_file_budget" yaml:"transactions_file_budget"`
}

func (h Housekeeping) Validate() error {
	if h.Interval <= 0 {
		return fmt.Errorf("housekeeping.interval must be positive")
	}
	if h.Budget <= 0 {
		return fmt.Errorf("housekeeping.budget must be positive")
	}
	if float64(h.Budget) > maxHousekeepingBudgetPerInterval*float64(h.Interval) {
		return fmt.Errorf("housekeeping.budget %s exceeds the interval %s", h.Budget, h.Interval)
	}
	for name, b := range map[string]time.Duration{
		"file_cleanup_budget":       h.FileCleanupBudget,
		"garbage_collection_budget": h.GarbageCollectionBudget,
		"cache_check_budget":        h.CacheCheckBudget,
		"transactions_file_budget":  h.TransactionsFileBudget,
	} {
		if b <= 0 {
			return fmt.Errorf("housekeeping.%s must be positive", name)
		}
	}
	return nil
}

type FileEvaluator struct {
	MinimumSize     int64   `json:"minimum_size" yaml:"minimum_size"`
	MaximumSize     int64   `json:"maximum_size" yaml:"maximum_size"`
	MinimumUseRatio float64 `json:"minimum_use_ratio" yaml:"minimum_use_ratio"`
	CleanUpHeadFile bool    `json:"clean_up_head_file" yaml:"clean_up_head_file"`
}

func (f FileEvaluator) Validate() error {
	if f.MinimumSize <= 0 || f.MaximumSize < f.MinimumSize {
		return fmt.Errorf("file_evaluator sizes must satisfy 0 < minimum_size <= maximum_size, got %d and %d",
			f.MinimumSize, f.MaximumSize)
	}
	if f.MinimumUseRatio <= 0 || f.MinimumUseRatio > 1 {
		return fmt.Errorf("file_evaluator.minimum_use_ratio must be within (0, 1], got %v", f.MinimumUseRatio)
	}
	return nil
}

type Cache struct {
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
	// Threshold 0 picks an eighth of the system memory.
	Threshold int64 `json:"threshold" yaml:"threshold"`
}

type Import struct {
	MaxBatchLength int64  `json:"max_batch_length" yaml:"max_batch_length"`
	ReadMode       string `json:"read_mode" yaml:"read_mode"`
}

func (i Import) Validate() error {
	if i.MaxBatchLength <= 0 {
		return fmt.Errorf("import.max_batch_length must be positive")
	}
	switch i.ReadMode {
	case ReadModeMmap, ReadModeRead:
	default:
		return fmt.Errorf("import.read_mode must be %q or %q, got %q", ReadModeMmap, ReadModeRead, i.ReadMode)
	}
	return nil
}

type Backup struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
	// BytesPerSecond 0 disables throttling.
	BytesPerSecond int           `json:"bytes_per_second" yaml:"bytes_per_second"`
	Verify         bool          `json:"verify" yaml:"verify"`
	MaxRetryTime   time.Duration `json:"max_retry_time" yaml:"max_retry_time"`
}

func (b Backup) Validate(dataPath string) error {
	if !b.Enabled {
		return nil
	}
	if b.Path == "" {
		return fmt.Errorf("backup.path must be set when backups are enabled")
	}
	if same, err := samePath(b.Path, dataPath); err == nil && same {
		return fmt.Errorf("backup.path must differ from persistence.data_path")
	}
	if b.BytesPerSecond < 0 {
		return fmt.Errorf("backup.bytes_per_second must not be negative")
	}
	return nil
}

type Monitoring struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	Port    int  `json:"port" yaml:"port"`
}

type Logging struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

func (l Logging) Validate() error {
	if _, err := logrus.ParseLevel(l.Level); err != nil {
		return errors.Wrap(err, "logging.level")
	}
	switch l.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", l.Format)
	}
	return nil
}

// Default returns a complete configuration every source can override.
func Default() Config {
	return Config{
		Persistence: Persistence{
			DataPath:                DefaultPersistenceDataPath,
			Connector:               DefaultPersistenceConnector,
			LockFileRefreshInterval: DefaultLockFileRefreshInterval,
		},
		Storage: Storage{
			ChannelCount:                DefaultChannelCount,
			TransactionsFileMaximumSize: DefaultTransactionsFileMaxSize,
			MarkingWaitTime:             DefaultMarkingWaitTime,
		},
		Housekeeping: Housekeeping{
			Interval:                DefaultHousekeepingInterval,
			Budget:                  DefaultHousekeepingBudget,
			FileCleanupBudget:       DefaultHousekeepingBudget,
			GarbageCollectionBudget: DefaultHousekeepingBudget,
			CacheCheckBudget:        DefaultHousekeepingBudget,
			TransactionsFileBudget:  DefaultHousekeepingBudget,
		},
		FileEvaluator: FileEvaluator{
			MinimumSize:     DefaultFileMinimumSize,
			MaximumSize:     DefaultFileMaximumSize,
			MinimumUseRatio: DefaultFileMinimumUseRatio,
			CleanUpHeadFile: true,
		},
		Cache: Cache{
			Timeout: DefaultCacheTimeout,
		},
		Import: Import{
			MaxBatchLength: DefaultImportMaxBatchLength,
			ReadMode:       DefaultImportReadMode,
		},
		Backup: Backup{
			MaxRetryTime: DefaultBackupMaxRetryTime,
		},
		Monitoring: Monitoring{
			Port: DefaultMonitoringPort,
		},
		Logging: Logging{
			Level:  DefaultLoggingLevel,
			Format: DefaultLoggingFormat,
		},
		OperationalMode: DefaultOperationalMode,
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

func (c *Config) Validate() error {
	if err := c.Persistence.Validate(); err != nil {
		return configErr(err)
	}
	if err := c.Storage.Validate(); err != nil {
		return configErr(err)
	}
	if err := c.Housekeeping.Validate(); err != nil {
		return configErr(err)
	}
	if err := c.FileEvaluator.Validate(); err != nil {
		return configErr(err)
	}
	if c.Cache.Timeout <= 0 || c.Cache.Threshold < 0 {
		return configErr(fmt.Errorf("cache.timeout must be positive and cache.threshold must not be negative"))
	}
	if err := c.Import.Validate(); err != nil {
		return configErr(err)
	}
	if err := c.Backup.Validate(c.Persistence.DataPath); err != nil {
		return configErr(err)
	}
	if err := c.Logging.Validate(); err != nil {
		return configErr(err)
	}
	if err := ValidateOperationalMode(c.OperationalMode); err != nil {
		return configErr(err)
	}
	if c.ShutdownTimeout <= 0 {
		return configErr(fmt.Errorf("shutdown_timeout must be positive"))
	}
	return nil
}

// ChanstoreConfig is the configuration of one process together with the
// file it was read from.
type ChanstoreConfig struct {
	Config     Config
	ConfigFile string
}

// LoadConfig from config locations. The load order for configuration values is
// 1. Defaults
// 2. Config file
// 3. Environment variables
// 4. Command line flags
// A value set in a later location wins.
func (f *ChanstoreConfig) LoadConfig(flags *Flags, logger logrus.FieldLogger) error {
	f.Config = Default()

	configFileName := flags.ConfigFile
	explicit := configFileName != ""
	if !explicit {
		configFileName = DefaultConfigFile
	}

	file, err := os.ReadFile(configFileName)
	switch {
	case err == nil:
		config, err := parseConfigFile(file, configFileName, f.Config)
		if err != nil {
			return configErr(err)
		}
		f.Config = config
		f.ConfigFile = configFileName
		logger.WithField("action", "config_load").WithField("config_file_path", configFileName).
			Debug("loaded config file")
	case explicit || !os.IsNotExist(err):
		return configErr(errors.Wrapf(err, "read config file %q", configFileName))
	}

	if err := FromEnv(&f.Config); err != nil {
		return configErr(err)
	}

	f.fromFlags(flags)

	return f.Config.Validate()
}

// parseConfigFile decodes file on top of base, so keys missing in the file
// keep their previous value.
func parseConfigFile(file []byte, name string, base Config) (Config, error) {
	config := base

	switch ext := strings.TrimPrefix(filepath.Ext(name), "."); ext {
	case "json":
		if err := json.Unmarshal(file, &config); err != nil {
			return config, fmt.Errorf("error unmarshalling the json config file: %w", err)
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(file, &config); err != nil {
			return config, fmt.Errorf("error unmarshalling the yaml config file: %w", err)
		}
	case "":
		return config, fmt.Errorf("config file does not have a file ending, got '%s'", name)
	default:
		return config, fmt.Errorf("unsupported config file extension '%s', use .yaml or .json", ext)
	}

	return config, nil
}

// fromFlags parses values from flags given as parameter and overrides values in the config
func (f *ChanstoreConfig) fromFlags(flags *Flags) {
	if flags.DataPath != "" {
		f.Config.Persistence.DataPath = flags.DataPath
	}
	if flags.Connector != "" {
		f.Config.Persistence.Connector = flags.Connector
	}
	if flags.Channels > 0 {
		f.Config.Storage.ChannelCount = flags.Channels
	}
	if flags.ReadOnly {
		f.Config.OperationalMode = READ_ONLY
	}
	if flags.LogLevel != "" {
		f.Config.Logging.Level = flags.LogLevel
	}
	if flags.LogFormat != "" {
		f.Config.Logging.Format = flags.LogFormat
	}
}

func samePath(a, b string) (bool, error) {
	absA, err := filepath.Abs(a)
	if err != nil {
		return false, err
	}
	absB, err := filepath.Abs(b)
	if err != nil {
		return false, err
	}
	return absA == absB, nil
}

func configErr(err error) error {
	return fmt.Errorf("invalid config: %w", err)
}
