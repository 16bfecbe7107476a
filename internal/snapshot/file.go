package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roach88/odoorpc/internal/value"
)

// Encode renders v as indented JSON with sorted keys and a trailing
// newline. Equal values always encode to identical bytes.
func Encode(v value.Value) ([]byte, error) {
	canonical, err := value.MarshalCanonical(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, canonical, "", "  "); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// WriteFile encodes v to path, replacing any existing file atomically.
func WriteFile(path string, v value.Value) error {
	data, err := Encode(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// PickingFilename is the default file name for a picking snapshot.
func PickingFilename(id int64) string {
	return fmt.Sprintf("stock_picking_%d.json", id)
}

// StatusFilename is the default file name for the order-status list.
const StatusFilename = "salla_order_status_all.json"
