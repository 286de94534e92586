package pipeline

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// WritePredictions writes the prediction file: header id,probability and one
// row per scored creditor. The file lands via a temp-file rename in the same
// directory, so a failed run never leaves a partial output behind.
func WritePredictions(path string, preds []Prediction) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("WritePredictions: creating temp file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	w := csv.NewWriter(tmp)
	if err := w.Write([]string{"id", "probability"}); err != nil {
		return fmt.Errorf("WritePredictions: writing header: %w", err)
	}
	for _, p := range preds {
		record := []string{p.ID, strconv.FormatFloat(p.Probability, 'g', -1, 64)}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("WritePredictions: writing row for %s: %w", p.ID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("WritePredictions: flushing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("WritePredictions: closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("WritePredictions: renaming into place: %w", err)
	}

	return nil
}
