package checkpoint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileName возвращает имя файла checkpoint для задачи.
func FileName(task string) string {
	return task + ".json"
}

// Marshal сериализует записи: ключи отсортированы, отступ 4 пробела.
// encoding/json сортирует ключи map, поля Record идут в алфавитном порядке.
func Marshal(records map[string]Record) ([]byte, error) {
	return json.MarshalIndent(records, "", "    ")
}

// WriteFile атомарно записывает checkpoint в path.
func WriteFile(path string, records map[string]Record) error {
	data, err := Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	return writeFileAtomic(path, data, 0o644)
}

// LoadFile читает checkpoint из path.
func LoadFile(path string) (map[string]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	records := make(map[string]Record)
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptCheckpoint, path, err)
	}
	return records, nil
}

// writeFileAtomic пишет во временный файл рядом с path и переименовывает его.
// Читатель видит либо старое, либо новое содержимое целиком.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return syncDir(dir)
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
