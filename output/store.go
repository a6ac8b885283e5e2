package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"unravel/config"
	"unravel/logger"
)

const treeFileName = "scantree.json"

// Store persists result records and the scan tree under the results
// directory. Every record is written at most once, through a temporary file
// that is renamed into place.
type Store struct {
	dir         string
	tmpDir      string
	format      string
	compression string

	mu      sync.Mutex
	written map[string]struct{}

	cborMode cbor.EncMode
	zenc     *zstd.Encoder
	otel     *otelLogger
}

func New(cfg *config.Config) (*Store, error) {
	for _, dir := range []string{cfg.ResultsDirectory, cfg.TemporaryDirectory} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	s := &Store{
		dir:         cfg.ResultsDirectory,
		tmpDir:      cfg.TemporaryDirectory,
		format:      strings.ToLower(cfg.ResultFormat),
		compression: strings.ToLower(cfg.ResultCompression),
		written:     make(map[string]struct{}),
	}
	if s.format == "" {
		s.format = "json"
	}
	if s.format == "cbor" {
		mode, err := cbor.CoreDetEncOptions().EncMode()
		if err != nil {
			return nil, err
		}
		s.cborMode = mode
	}
	if s.compression == "zstd" {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, err
		}
		s.zenc = enc
	}
	otel, err := newOtelLogger(cfg)
	if err != nil {
		logger.Warnf("OTEL export disabled: %v", err)
	} else {
		s.otel = otel
	}
	return s, nil
}

// Dir returns the results directory.
func (s *Store) Dir() string { return s.dir }

// RecordPath returns where the record for hash is stored.
func (s *Store) RecordPath(hash string) string {
	name := hash + "." + s.format
	if s.compression == "zstd" {
		name += ".zst"
	}
	return filepath.Join(s.dir, name)
}

// WriteRecord stores rec unless a record for the same hash was already
// written in this session. It reports whether a file was written.
func (s *Store) WriteRecord(rec *Record) (bool, error) {
	if rec.SHA256 == "" {
		return false, errors.New("record without sha256")
	}
	s.mu.Lock()
	if _, ok := s.written[rec.SHA256]; ok {
		s.mu.Unlock()
		return false, nil
	}
	s.written[rec.SHA256] = struct{}{}
	s.mu.Unlock()

	data, err := s.encode(rec)
	if err != nil {
		return false, fmt.Errorf("encode record %s: %w", rec.SHA256, err)
	}
	if err := s.writeAtomic(s.RecordPath(rec.SHA256), data); err != nil {
		s.mu.Lock()
		delete(s.written, rec.SHA256)
		s.mu.Unlock()
		return false, err
	}
	s.otel.Emit("record", rec)
	return true, nil
}

func (s *Store) encode(rec *Record) ([]byte, error) {
	var data []byte
	var err error
	switch s.format {
	case "cbor":
		data, err = s.cborMode.Marshal(rec)
	default:
		data, err = marshalDocument(rec)
	}
	if err != nil {
		return nil, err
	}
	if s.zenc != nil {
		data = s.zenc.EncodeAll(data, nil)
	}
	return data, nil
}

// WriteTree stores the scan tree snapshot, replacing an earlier snapshot of
// the same session.
func (s *Store) WriteTree(doc *TreeDocument) error {
	doc.SchemaVersion = SchemaVersion
	data, err := marshalDocument(doc)
	if err != nil {
		return err
	}
	if err := s.writeAtomic(filepath.Join(s.dir, treeFileName), data); err != nil {
		return err
	}
	if s.otel != nil {
		paths := make([]string, 0, len(doc.Files))
		for path := range doc.Files {
			paths = append(paths, path)
		}
		sort.Strings(paths)
		for _, path := range paths {
			s.otel.Emit("file", fileEvent{Path: path, TreeEntry: doc.Files[path]})
		}
		s.otel.Emit("metrics", doc.Metrics)
	}
	return nil
}

func (s *Store) writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(s.tmpDir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}

type fileEvent struct {
	Path string `json:"path"`
	TreeEntry
}

// Close flushes exporters.
func (s *Store) Close() {
	if s.zenc != nil {
		s.zenc.Close()
	}
	s.otel.Shutdown()
}

// ReadRecord loads a record written by any Store configuration, picking the
// codec from the file name.
func ReadRecord(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	name := path
	if strings.HasSuffix(name, ".zst") {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		if data, err = dec.DecodeAll(data, nil); err != nil {
			return nil, err
		}
		name = strings.TrimSuffix(name, ".zst")
	}
	var rec Record
	switch filepath.Ext(name) {
	case ".cbor":
		err = cbor.Unmarshal(data, &rec)
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		err = dec.Decode(&rec)
		if err == io.EOF {
			err = errors.New("empty record")
		}
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ReadTree loads a scan tree document.
func ReadTree(dir string) (*TreeDocument, error) {
	data, err := os.ReadFile(filepath.Join(dir, treeFileName))
	if err != nil {
		return nil, err
	}
	var doc TreeDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
