package watermark

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	watermark_domain "github.com/huavcjj/mailbridge/internal/domain/watermark"
)

// fileRepo keeps the cursor as plain decimal text in a single file.
type fileRepo struct {
	path string
}

var _ watermark_domain.WatermarkRepo = (*fileRepo)(nil)

func NewFileRepo(path string) (watermark_domain.WatermarkRepo, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("watermark file path is empty")
	}
	return &fileRepo{path: path}, nil
}

func (r *fileRepo) Load(ctx context.Context) (watermark_domain.Cursor, bool, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to read watermark file: %w", err)
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return 0, false, nil
	}

	cursor, err := watermark_domain.ParseCursor(text)
	if err != nil {
		return 0, false, fmt.Errorf("failed to parse watermark file: %w", err)
	}
	return cursor, !cursor.IsZero(), nil
}

func (r *fileRepo) Save(ctx context.Context, cursor watermark_domain.Cursor) error {
	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create watermark directory: %w", err)
		}
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(cursor.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write watermark file: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("failed to replace watermark file: %w", err)
	}
	return nil
}

func (r *fileRepo) Close() error {
	return nil
}
