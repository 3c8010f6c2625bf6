package marketdata

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/eddiefleurent/strike_engine/internal/models"
)

// FileProvider serves snapshots recorded as <dir>/<SYMBOL>.yaml.
type FileProvider struct {
	dir string
}

// NewFileProvider creates a FileProvider rooted at dir.
func NewFileProvider(dir string) (*FileProvider, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("snapshot directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("snapshot directory: %s is not a directory", dir)
	}
	return &FileProvider{dir: dir}, nil
}

// Snapshot loads and decodes the symbol's snapshot file.
func (p *FileProvider) Snapshot(ctx context.Context, symbol string) (*models.MarketSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" || strings.ContainsAny(symbol, `/\`) {
		return nil, fmt.Errorf("%q: %w", symbol, ErrSymbolNotFound)
	}

	var data []byte
	var err error
	for _, ext := range []string{".yaml", ".yml"} {
		data, err = os.ReadFile(filepath.Join(p.dir, symbol+ext))
		if err == nil || !errors.Is(err, fs.ErrNotExist) {
			break
		}
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", symbol, ErrSymbolNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %s: %w", symbol, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var snap models.MarketSnapshot
	if err := dec.Decode(&snap); err != nil {
		return nil, fmt.Errorf("parsing snapshot %s: %w", symbol, err)
	}
	if snap.Chain.Symbol == "" {
		snap.Chain.Symbol = symbol
	}
	for i := range snap.Chain.Quotes {
		if snap.Chain.Quotes[i].Expiry.IsZero() {
			snap.Chain.Quotes[i].Expiry = snap.Chain.Expiry
		}
	}
	return &snap, nil
}

// WriteSnapshot records snap as <dir>/<SYMBOL>.yaml so it can be replayed later.
func WriteSnapshot(dir string, snap *models.MarketSnapshot) error {
	out, err := yaml.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating snapshot dir: %w", err)
	}
	path := filepath.Join(dir, strings.ToUpper(snap.Chain.Symbol)+".yaml")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o600); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return os.Rename(tmp, path)
}
