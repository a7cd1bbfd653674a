package groundrag

import (
	"path/filepath"
	"testing"
)

func TestDefaultConfigWeightsSumToOne(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.validateWeights(); err != nil {
		t.Fatalf("default config weights should validate: %v", err)
	}
}

func TestValidateWeightsRejectsBadSum(t *testing.T) {
	cfg := Config{WeightBM25: 0.5, WeightDense: 0.5, WeightStructural: 0.5}
	if err := cfg.validateWeights(); err == nil {
		t.Fatal("expected error for weights summing to 1.5")
	}
}

func TestResolveDirsDerivesFromDataDir(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{DataDir: dir}
	if err := cfg.resolveDirs(); err != nil {
		t.Fatalf("resolveDirs: %v", err)
	}
	if cfg.UploadDir != filepath.Join(dir, "uploads") {
		t.Errorf("UploadDir = %q, want %q", cfg.UploadDir, filepath.Join(dir, "uploads"))
	}
	if cfg.DBPath != filepath.Join(dir, "groundrag.db") {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, filepath.Join(dir, "groundrag.db"))
	}
}

func TestResolveDirsRespectsExplicitOverrides(t *testing.T) {
	dir := t.TempDir()
	override := filepath.Join(dir, "custom-uploads")
	cfg := Config{DataDir: dir, UploadDir: override}
	if err := cfg.resolveDirs(); err != nil {
		t.Fatalf("resolveDirs: %v", err)
	}
	if cfg.UploadDir != override {
		t.Errorf("UploadDir = %q, want override %q preserved", cfg.UploadDir, override)
	}
}

func TestClassifyError(t *testing.T) {
	cases := []struct {
		err  error
		kind Kind
	}{
		{ErrDocumentNotFound, KindNotFound},
		{ErrEmptyQuestion, KindBadInput},
		{ErrGeneratorUnavailable, KindExternalUnavailable},
		{ErrParsingFailed, KindIngestionFailed},
		{ErrStorageError, KindStorageError},
	}
	for _, c := range cases {
		if got := ClassifyError(c.err); got != c.kind {
			t.Errorf("ClassifyError(%v) = %v, want %v", c.err, got, c.kind)
		}
	}
}

func TestQueryOptionsDefaults(t *testing.T) {
	opts := &queryOptions{topK: 20, requireGrounding: true}
	WithTopK(5)(opts)
	if opts.topK != 5 {
		t.Errorf("WithTopK: got %d, want 5", opts.topK)
	}
	WithRequireGrounding(false)(opts)
	if opts.requireGrounding {
		t.Error("WithRequireGrounding(false) did not clear the flag")
	}
}

func TestIngestOptionsDefaults(t *testing.T) {
	opts := &ingestOptions{reliability: 1.0}
	WithCategory("spec")(opts)
	if opts.category != "spec" {
		t.Errorf("WithCategory: got %q, want %q", opts.category, "spec")
	}
	WithReliability(0.5)(opts)
	if opts.reliability != 0.5 {
		t.Errorf("WithReliability: got %v, want 0.5", opts.reliability)
	}
	WithForceReparse()(opts)
	if !opts.forceReparse {
		t.Error("WithForceReparse did not set the flag")
	}
}
