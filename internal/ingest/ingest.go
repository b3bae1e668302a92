// Package ingest registers a day's audio intake as call rows and triggers
// the external metadata ingestion collaborators. The raw CSV/Excel parsing
// of call and trade metadata lives outside this service; only the trigger
// and completion contract is here.
package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/auditflow/callpipe/internal/config"
	"github.com/auditflow/callpipe/internal/types"
)

// intakeDateLayout names the per-day source folders, e.g. 17-03-2026.
const intakeDateLayout = "02-01-2006"

var audioExtensions = map[string]bool{
	".wav": true,
	".mp3": true,
}

// MetadataIngester is an external collaborator that loads one kind of
// structured metadata for a batch.
type MetadataIngester interface {
	Ingest(ctx context.Context, batchID uint, date time.Time) error
}

// Service copies intake audio into the working area and registers calls.
type Service struct {
	db        *gorm.DB
	cfg       config.PathsConfig
	callMeta  MetadataIngester
	tradeMeta MetadataIngester
	logger    zerolog.Logger
}

// NewService builds the intake service.
func NewService(db *gorm.DB, cfg config.PathsConfig, callMeta, tradeMeta MetadataIngester) *Service {
	return &Service{
		db:        db,
		cfg:       cfg,
		callMeta:  callMeta,
		tradeMeta: tradeMeta,
		logger:    log.With().Str("component", "ingest").Logger(),
	}
}

// Ready reports whether the batch day's source folder exists yet.
func (s *Service) Ready(batch *types.Batch) (bool, error) {
	_, err := os.Stat(s.intakeDir(batch))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Register copies each audio file into the working copy and creates its
// call row. Re-registration is a no-op per file: an existing row for the
// same audio name is left untouched.
func (s *Service) Register(ctx context.Context, batch *types.Batch) (int, error) {
	dir := s.intakeDir(batch)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("reading intake folder: %w", err)
	}

	if err := os.MkdirAll(s.cfg.WorkingCopy, 0o755); err != nil {
		return 0, err
	}

	registered := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return registered, err
		}
		if entry.IsDir() || !audioExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}

		var existing int64
		if err := s.db.Model(&types.Call{}).
			Where("batch_id = ? AND audio_name = ?", batch.ID, entry.Name()).
			Count(&existing).Error; err != nil {
			return registered, err
		}
		if existing > 0 {
			continue
		}

		if err := copyFile(filepath.Join(dir, entry.Name()), filepath.Join(s.cfg.WorkingCopy, entry.Name())); err != nil {
			s.logger.Error().Err(err).Str("file", entry.Name()).Msg("failed to copy intake file")
			continue
		}

		call := callFromFileName(entry.Name(), batch)
		if err := s.db.Create(&call).Error; err != nil {
			return registered, err
		}
		registered++
	}

	s.logger.Info().Int("registered", registered).Str("dir", dir).Msg("intake registration complete")
	return registered, nil
}

// IngestCallMetadata triggers the external call-metadata collaborator.
func (s *Service) IngestCallMetadata(ctx context.Context, batch *types.Batch) error {
	if s.callMeta == nil {
		return nil
	}
	return s.callMeta.Ingest(ctx, batch.ID, batch.BatchDate)
}

// IngestTradeMetadata triggers the external trade-metadata collaborator.
func (s *Service) IngestTradeMetadata(ctx context.Context, batch *types.Batch) error {
	if s.tradeMeta == nil {
		return nil
	}
	return s.tradeMeta.Ingest(ctx, batch.ID, batch.BatchDate)
}

func (s *Service) intakeDir(batch *types.Batch) string {
	return filepath.Join(s.cfg.IntakeRoot, batch.BatchDate.Format(intakeDateLayout))
}

// callFromFileName seeds a call row from the recorder's file naming scheme
// <mobile>_<clientCode>_<epochSeconds>.wav. Files not following the scheme
// still get a row; their identifiers arrive later with the call metadata.
func callFromFileName(name string, batch *types.Batch) types.Call {
	call := types.Call{
		AudioName: name,
		BatchID:   batch.ID,
		Status:    types.CallPending,
	}

	base := strings.TrimSuffix(name, filepath.Ext(name))
	parts := strings.Split(base, "_")
	if len(parts) >= 3 {
		call.ClientMobileNumber = parts[0]
		call.ClientCode = parts[1]
		if epoch, err := strconv.ParseInt(parts[2], 10, 64); err == nil {
			start := time.Unix(epoch, 0)
			call.CallStartTime = &start
		}
	}
	return call
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
