package etl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	apperrors "github.com/BartekS5/taprun/pkg/errors"
	"github.com/BartekS5/taprun/pkg/logger"
	"github.com/BartekS5/taprun/pkg/models"
)

// TapDiscoverer runs the tap with --discover and parses its catalog.
type TapDiscoverer struct {
	Runner          *ProcessRunner
	Logger          *slog.Logger
	DiagnosticBytes int
}

func (d *TapDiscoverer) Discover(ctx context.Context, configPath string) (*models.Catalog, error) {
	log := d.Logger
	if log == nil {
		log = logger.L()
	}
	log.Info("Discovering available streams...")

	var out bytes.Buffer
	stderr := NewStderrLogger(log, nil, d.DiagnosticBytes)
	proc, err := d.Runner.Start(ctx, []string{"--config", configPath, "--discover"},
		func(r io.Reader) error {
			_, err := io.Copy(&out, r)
			return err
		},
		stderr.Consume,
	)
	if err != nil {
		return nil, err
	}

	code, err := proc.Wait()
	if err != nil {
		return nil, apperrors.WithDiagnostic(apperrors.KindDiscovery, err, "Discoverer", "Wait", stderr.Tail())
	}
	if code != 0 {
		return nil, apperrors.WithDiagnostic(apperrors.KindDiscovery,
			fmt.Errorf("discovery exited with code %d", code), "Discoverer", "Discover", stderr.Tail())
	}

	var catalog models.Catalog
	if err := json.Unmarshal(out.Bytes(), &catalog); err != nil {
		return nil, apperrors.WithDiagnostic(apperrors.KindDiscovery,
			fmt.Errorf("malformed catalog: %w", err), "Discoverer", "Decode", stderr.Tail())
	}
	if err := ValidateCatalog(&catalog); err != nil {
		return nil, apperrors.WithDiagnostic(apperrors.KindDiscovery, err, "Discoverer", "Validate", stderr.Tail())
	}
	log.Info("Discovered catalog", "streams", len(catalog.Streams))
	return &catalog, nil
}
