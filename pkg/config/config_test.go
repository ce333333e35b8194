package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultAppliesDocumentedDefaults(t *testing.T) {
	cfg := Default("/tmp/mikudb")
	if cfg.MaxNestingDepth != 100 {
		t.Errorf("MaxNestingDepth = %d, want 100", cfg.MaxNestingDepth)
	}
	if cfg.MaxDocumentBytes != 16<<20 {
		t.Errorf("MaxDocumentBytes = %d, want 16MiB", cfg.MaxDocumentBytes)
	}
	if cfg.Compression != CompressionNone {
		t.Errorf("Compression = %q, want none", cfg.Compression)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}

func TestLoadPartialYAMLFillsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mikudb.yaml")
	yamlBody := "data_dir: " + dir + "\ncompression: lz4\n"
	if err := os.WriteFile(path, []byte(yamlBody), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Compression != CompressionLZ4 {
		t.Errorf("Compression = %q, want lz4", cfg.Compression)
	}
	if cfg.MaxNestingDepth != 100 {
		t.Errorf("MaxNestingDepth = %d, want default 100", cfg.MaxNestingDepth)
	}
	if cfg.WAL.MaxFileSizeByte == 0 {
		t.Errorf("WAL.MaxFileSizeByte should have received its default")
	}
}

func TestValidateRejectsBadCompression(t *testing.T) {
	cfg := Default("/tmp/mikudb")
	cfg.Compression = "snappy"
	if err := cfg.Validate(); err == nil {
		t.Errorf("expected an error for an unrecognized compression value")
	}
}

func TestValidateRejectsEmptyDataDir(t *testing.T) {
	cfg := Default("")
	if err := cfg.Validate(); err == nil {
		t.Errorf("expected an error for an empty data_dir")
	}
}
