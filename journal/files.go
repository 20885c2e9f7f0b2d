package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/fract/broker"
)

const (
	OrderLogFile       = "order.jsonl"
	TransactionLogFile = "txn.jsonl"
	ParameterFile      = "parameter.yml"
)

// Files appends JSON lines to order.jsonl and txn.jsonl in a log directory.
// Signals are not written to files.
type Files struct {
	mu  sync.Mutex
	ord *os.File
	txn *os.File
}

func NewFiles(dir string) (*Files, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	ord, err := openAppend(filepath.Join(dir, OrderLogFile))
	if err != nil {
		return nil, err
	}
	txn, err := openAppend(filepath.Join(dir, TransactionLogFile))
	if err != nil {
		_ = ord.Close()
		return nil, err
	}
	return &Files{ord: ord, txn: txn}, nil
}

func openAppend(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

func (j *Files) RecordOrder(r OrderRecord) error {
	r.stampFromID()
	if len(r.Response) > 0 && !json.Valid(r.Response) {
		r.SetResponse(r.Response)
	}
	return j.writeLine(j.ord, r)
}

func (j *Files) RecordTransactions(ts []broker.Transaction) error {
	for _, t := range ts {
		if err := j.writeLine(j.txn, FromTransaction(t)); err != nil {
			return err
		}
	}
	return nil
}

func (j *Files) RecordSignal(SignalRecord) error { return nil }

func (j *Files) writeLine(f *os.File, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := f.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("write %s: %w", f.Name(), err)
	}
	return nil
}

func (j *Files) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	err1 := j.ord.Close()
	err2 := j.txn.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// WriteParameters dumps v as YAML to parameter.yml in dir.
func WriteParameters(dir string, v any) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	b, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ParameterFile), b, 0o644); err != nil {
		return fmt.Errorf("write parameters: %w", err)
	}
	return nil
}
