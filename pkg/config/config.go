// Package config loads MikuDB's engine configuration from YAML (spec.md
// §6.4), the way the teacher's `warren apply` command unmarshals a
// resource manifest via gopkg.in/yaml.v3, generalized from a one-off CLI
// parse into a typed Config with defaults and a Validate pass.
package config

import (
	"os"

	"github.com/cuemby/mikudb/pkg/compress"
	"github.com/cuemby/mikudb/pkg/mdberr"
	"gopkg.in/yaml.v3"
)

// Compression names the WAL/frame payload compression codec (§6.4).
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionLZ4  Compression = "lz4"
	CompressionZstd Compression = "zstd"
)

// Codec maps the YAML-facing Compression name to the compress.Codec the
// document and WAL layers actually apply. Invalid values map to None;
// Validate is what rejects those before Codec is ever consulted.
func (c Compression) Codec() compress.Codec {
	switch c {
	case CompressionLZ4:
		return compress.LZ4
	case CompressionZstd:
		return compress.Zstd
	default:
		return compress.None
	}
}

// WALConfig controls the write-ahead log's durability and rotation
// behavior (§6.4).
type WALConfig struct {
	SyncOnWrite     bool  `yaml:"sync_on_write"`
	MaxFileSizeByte int64 `yaml:"max_file_size_bytes"`
}

// Config is every knob spec.md §6.4 names, all optional with documented
// defaults applied by Default/Load.
type Config struct {
	DataDir string `yaml:"data_dir"`

	CacheSizeBytes       int64 `yaml:"cache_size_bytes"`
	WriteBufferSizeBytes int64 `yaml:"write_buffer_size_bytes"`
	MaxWriteBufferNumber int   `yaml:"max_write_buffer_number"`
	MaxOpenFiles         int   `yaml:"max_open_files"`

	Compression Compression `yaml:"compression"`

	WAL WALConfig `yaml:"wal"`

	MaxNestingDepth  int   `yaml:"max_nesting_depth"`
	MaxStringBytes   int64 `yaml:"max_string_bytes"`
	MaxArrayLen      int64 `yaml:"max_array_len"`
	MaxDocumentBytes int64 `yaml:"max_document_bytes"`
}

// Default returns a Config with every documented default (§6.4) applied
// and data_dir set to dataDir.
func Default(dataDir string) Config {
	return Config{
		DataDir:          dataDir,
		Compression:      CompressionNone,
		WAL:              WALConfig{SyncOnWrite: true, MaxFileSizeByte: 64 << 20},
		MaxNestingDepth:  100,
		MaxStringBytes:   16 << 20,
		MaxArrayLen:      1_000_000,
		MaxDocumentBytes: 16 << 20,
	}
}

// Load reads a YAML file at path, applying defaults for any field the
// file leaves zero-valued, then validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, mdberr.Wrap(mdberr.KindIO, err, "reading config file %s", path)
	}
	cfg := Default("")
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, mdberr.Wrap(mdberr.KindIO, err, "parsing config file %s", path)
	}
	applyZeroDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyZeroDefaults fills in documented defaults for fields a partial
// YAML document left at their zero value.
func applyZeroDefaults(cfg *Config) {
	d := Default(cfg.DataDir)
	if cfg.Compression == "" {
		cfg.Compression = d.Compression
	}
	if cfg.WAL.MaxFileSizeByte == 0 {
		cfg.WAL.MaxFileSizeByte = d.WAL.MaxFileSizeByte
	}
	if cfg.MaxNestingDepth == 0 {
		cfg.MaxNestingDepth = d.MaxNestingDepth
	}
	if cfg.MaxStringBytes == 0 {
		cfg.MaxStringBytes = d.MaxStringBytes
	}
	if cfg.MaxArrayLen == 0 {
		cfg.MaxArrayLen = d.MaxArrayLen
	}
	if cfg.MaxDocumentBytes == 0 {
		cfg.MaxDocumentBytes = d.MaxDocumentBytes
	}
}

// Validate rejects configurations the engine cannot open with, mirroring
// the teacher's resource-validation passes (e.g. node CPU/memory bounds)
// generalized to this config's own invariants.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return mdberr.New(mdberr.KindIO, "data_dir must be set")
	}
	switch c.Compression {
	case CompressionNone, CompressionLZ4, CompressionZstd:
	default:
		return mdberr.New(mdberr.KindIO, "compression %q must be one of none|lz4|zstd", c.Compression)
	}
	if c.MaxNestingDepth <= 0 {
		return mdberr.New(mdberr.KindIO, "max_nesting_depth must be positive")
	}
	if c.MaxDocumentBytes <= 0 {
		return mdberr.New(mdberr.KindIO, "max_document_bytes must be positive")
	}
	return nil
}
