package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"gamecredit-platform/internal/settings"
)

// LoadSettings reads the single settings row. ok is false when none was saved yet.
func (s *Store) LoadSettings(ctx context.Context) (settings.Settings, bool, error) {
	var docs [][]byte
	if err := s.sel(ctx, &docs, `SELECT document FROM platform_settings WHERE id = 1`); err != nil {
		return settings.Settings{}, false, classify(err, "load settings")
	}
	if len(docs) == 0 {
		return settings.Settings{}, false, nil
	}
	var out settings.Settings
	if err := json.Unmarshal(docs[0], &out); err != nil {
		return settings.Settings{}, false, fmt.Errorf("decode settings: %w", err)
	}
	return out, true, nil
}

func (s *Store) SaveSettings(ctx context.Context, next settings.Settings) error {
	doc, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	_, err = s.exec(ctx, `
		INSERT INTO platform_settings (id, document, updated_at) VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE SET document = EXCLUDED.document, updated_at = EXCLUDED.updated_at`, string(doc))
	return classify(err, "save settings")
}
