package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Alixandros/edugrader-client/internal/models"
	"github.com/Alixandros/edugrader-client/internal/pkg/log"
)

// storedTokens — формат файла: два непрозрачных токена плюс момент
// истечения access-токена (Unix UTC, 0 — неизвестно).
type storedTokens struct {
	AccessToken     string `json:"access_token"`
	RefreshToken    string `json:"refresh_token"`
	AccessExpiresAt int64  `json:"access_expires_at,omitempty"`
}

// FileStore хранит пару токенов в JSON-файле с правами 0600.
// Запись атомарная: временный файл + rename, чтобы падение процесса
// посреди записи не оставило усечённый файл.
type FileStore struct {
	path string
}

// NewFileStore создает FileStore по указанному пути.
func NewFileStore(path string) (*FileStore, error) {
	const op = "tokenstore.NewFileStore"

	if path == "" {
		return nil, fmt.Errorf("%s: empty path", op)
	}

	return &FileStore{path: path}, nil
}

// DefaultPath возвращает стандартное расположение файла токенов
// в пользовательской конфигурационной директории.
func DefaultPath() (string, error) {
	const op = "tokenstore.DefaultPath"

	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return filepath.Join(dir, "edugrader", "tokens.json"), nil
}

// Load читает сохранённую пару. Любая проблема с файлом (нет файла,
// битый JSON, неполная пара) — это «токенов нет», не ошибка.
func (s *FileStore) Load(ctx context.Context) (models.TokenPair, bool) {
	const op = "tokenstore.FileStore.Load"

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.From(ctx).Warn("token_file_read_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
		}

		return models.TokenPair{}, false
	}

	var st storedTokens
	if err := json.Unmarshal(data, &st); err != nil {
		log.From(ctx).Warn("token_file_malformed",
			slog.String("op", op),
		)

		return models.TokenPair{}, false
	}

	pair := models.TokenPair{
		AccessToken:  st.AccessToken,
		RefreshToken: st.RefreshToken,
	}
	if st.AccessExpiresAt > 0 {
		pair.AccessExpiresAt = time.Unix(st.AccessExpiresAt, 0).UTC()
	}

	if !pair.Present() {
		return models.TokenPair{}, false
	}

	return pair, true
}

// Save атомарно записывает пару токенов.
func (s *FileStore) Save(_ context.Context, pair models.TokenPair) error {
	const op = "tokenstore.FileStore.Save"

	st := storedTokens{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}
	if !pair.AccessExpiresAt.IsZero() {
		st.AccessExpiresAt = pair.AccessExpiresAt.UTC().Unix()
	}

	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Clear удаляет файл токенов. Отсутствие файла — не ошибка.
func (s *FileStore) Clear(_ context.Context) error {
	const op = "tokenstore.FileStore.Clear"

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
