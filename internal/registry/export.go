/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package registry

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/friendsincode/framewall/internal/events"
	"github.com/friendsincode/framewall/internal/models"
)

// Backup is the YAML document written by Export and read by Import.
type Backup struct {
	Version  int                   `yaml:"version"`
	Items    []models.ContentItem  `yaml:"content_items"`
	Rules    []models.ScheduleRule `yaml:"schedule_rules"`
	Settings models.Settings       `yaml:"settings"`
}

const backupVersion = 1

// Export writes the registries as a YAML backup. Runtime state is not part
// of the backup; displays re-derive it on their next load.
func (s *Store) Export(ctx context.Context, w io.Writer) error {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}

	backup := Backup{
		Version:  backupVersion,
		Items:    snap.Items,
		Rules:    snap.Rules,
		Settings: snap.Settings,
	}

	enc := yaml.NewEncoder(w)
	defer enc.Close()
	if err := enc.Encode(&backup); err != nil {
		return fmt.Errorf("encode backup: %w", err)
	}
	return nil
}

// Import restores a YAML backup. Existing items and rules with the same IDs
// are overwritten; unknown IDs are added. Rules referencing items absent from
// both backup and database are dropped rather than failing the whole import.
func (s *Store) Import(ctx context.Context, r io.Reader) error {
	var backup Backup
	if err := yaml.NewDecoder(r).Decode(&backup); err != nil {
		return fmt.Errorf("decode backup: %w", err)
	}
	if backup.Version != backupVersion {
		return fmt.Errorf("unsupported backup version %d", backup.Version)
	}

	known := make(map[string]struct{}, len(backup.Items))
	for _, item := range backup.Items {
		known[item.ID] = struct{}{}
	}

	dropped := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range backup.Items {
			if err := tx.Save(&backup.Items[i]).Error; err != nil {
				return fmt.Errorf("restore content item %s: %w", backup.Items[i].ID, err)
			}
		}
		for i := range backup.Rules {
			rule := backup.Rules[i]
			if _, ok := known[rule.ContentItemID]; !ok {
				var count int64
				if err := tx.Model(&models.ContentItem{}).Where("id = ?", rule.ContentItemID).Count(&count).Error; err != nil {
					return err
				}
				if count == 0 {
					dropped++
					continue
				}
			}
			if err := tx.Save(&rule).Error; err != nil {
				return fmt.Errorf("restore schedule rule %s: %w", rule.ID, err)
			}
		}
		backup.Settings.ID = models.SettingsID
		return tx.Save(&backup.Settings).Error
	})
	if err != nil {
		return fmt.Errorf("import backup: %w", err)
	}

	if dropped > 0 {
		s.logger.Warn().Int("dropped_rules", dropped).Msg("import dropped rules with missing content")
	}
	s.bus.Publish(events.EventScheduleCreated, events.Payload{"source": "import"})
	return nil
}
