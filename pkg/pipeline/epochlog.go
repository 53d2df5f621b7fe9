package pipeline

import (
	"encoding/csv"
	"os"
	"strconv"

	"github.com/cockroachdb/errors"
)

var epochLogHeader = []string{"epoch", "train_loss", "val_loss", "lr"}

// EpochRecord is one row of the epoch log.
type EpochRecord struct {
	Epoch     int     `json:"epoch"`
	TrainLoss float64 `json:"train_loss"`
	ValLoss   float64 `json:"val_loss"`
	LR        float64 `json:"lr"`
}

// EpochLog appends one CSV row per finished epoch. Each row is flushed
// and the file closed before Append returns, so rows written before a
// later failure survive.
type EpochLog struct {
	path string
}

// CreateEpochLog truncates path and writes the header row.
func CreateEpochLog(path string) (*EpochLog, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "create epoch log")
	}
	l := &EpochLog{path: path}
	if err := writeRow(f, epochLogHeader); err != nil {
		return nil, err
	}
	return l, nil
}

// Path returns the log file location.
func (l *EpochLog) Path() string {
	return l.path
}

// Append writes one epoch row.
func (l *EpochLog) Append(r EpochRecord) error {
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "open epoch log")
	}
	return writeRow(f, []string{
		strconv.Itoa(r.Epoch),
		formatFloat(r.TrainLoss),
		formatFloat(r.ValLoss),
		formatFloat(r.LR),
	})
}

func writeRow(f *os.File, row []string) error {
	w := csv.NewWriter(f)
	if err := w.Write(row); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "write epoch log")
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "flush epoch log")
	}
	return errors.Wrap(f.Close(), "close epoch log")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ReadEpochLog parses an epoch log back into records.
func ReadEpochLog(path string) ([]EpochRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open epoch log")
	}
	defer func() { _ = f.Close() }()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "read epoch log")
	}
	if len(rows) == 0 {
		return nil, errors.Newf("epoch log %s has no header", path)
	}

	out := make([]EpochRecord, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) != len(epochLogHeader) {
			return nil, errors.Newf("epoch log line %d: expected %d fields, got %d", i+2, len(epochLogHeader), len(row))
		}
		var rec EpochRecord
		var perr error
		rec.Epoch, perr = strconv.Atoi(row[0])
		if perr == nil {
			rec.TrainLoss, perr = strconv.ParseFloat(row[1], 64)
		}
		if perr == nil {
			rec.ValLoss, perr = strconv.ParseFloat(row[2], 64)
		}
		if perr == nil {
			rec.LR, perr = strconv.ParseFloat(row[3], 64)
		}
		if perr != nil {
			return nil, errors.Wrapf(perr, "epoch log line %d", i+2)
		}
		out = append(out, rec)
	}
	return out, nil
}
