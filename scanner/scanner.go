package scanner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/time/rate"

	"unravel/config"
	"unravel/known"
	"unravel/logger"
	"unravel/output"
	"unravel/parser"
	"unravel/result"
	"unravel/utils"
	"unravel/version"
)

// Session unpacks a set of inputs into one extraction tree. A session is run
// once.
type Session struct {
	id       string
	cfg      *config.Config
	registry *parser.Registry
	sigs     *SignatureScanner
	modules  []FileModule
	tree     *result.Tree
	dedup    *result.Registry
	store    *output.Store
	known    *known.Set

	queue   *workQueue
	limiter *rate.Limiter
	bar     *progressbar.ProgressBar

	processed    atomic.Int64
	recorded     atomic.Int64
	scanned      atomic.Int64
	bytesScanned atomic.Int64
	dedupHits    atomic.Int64
	claims       atomic.Int64
	carved       atomic.Int64
	unscanned    atomic.Int64
	unparsed     atomic.Int64
	knownHits    atomic.Int64
	faults       atomic.Int64

	errMu  sync.Mutex
	err    error
	cancel context.CancelFunc
}

func NewSession(cfg *config.Config, reg *parser.Registry, store *output.Store) (*Session, error) {
	s := &Session{
		id:       uuid.NewString(),
		cfg:      cfg,
		registry: reg,
		sigs:     NewSignatureScanner(reg, cfg.ReadSize),
		modules:  buildFileModules(),
		tree:     result.NewTree(),
		dedup:    result.NewRegistry(),
		store:    store,
	}
	if cfg.KnownHashesFile != "" {
		set, err := known.LoadFile(cfg.KnownHashesFile)
		if err != nil {
			return nil, fmt.Errorf("load known hashes: %w", err)
		}
		logger.Infof("Loaded %d known hashes", set.Len())
		s.known = set
	}
	if cfg.AutoTune {
		applyAutoTune(cfg)
	} else {
		adjustConcurrency(cfg)
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = maxInt(1, cfg.ConcurrencyLevel) * 4
	}
	s.queue = newWorkQueue(queueSize)
	return s, nil
}

// ID returns the session identifier written into the scan tree.
func (s *Session) ID() string { return s.id }

// Tree returns the extraction tree. It is complete once Run returns.
func (s *Session) Tree() *result.Tree { return s.tree }

// Progress reports finished items, items queued or in progress, and the
// current queue depth.
func (s *Session) Progress() (processed, pending int64, queued int) {
	return s.processed.Load(), s.queue.pending.Load(), s.queue.depth()
}

// Run unpacks every input and writes the scan tree. The tree is written even
// when ctx is cancelled; the returned error then reports the cancellation.
func (s *Session) Run(ctx context.Context) (*output.Metrics, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.cancel = cancel
	start := time.Now()

	for _, dir := range []string{s.cfg.UnpackDirectory, s.cfg.TemporaryDirectory} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrOutput, err)
		}
	}

	matcher := utils.NewPatternMatcher(s.cfg.IncludePatterns, s.cfg.ExcludePatterns)
	roots, err := collectInputs(ctx, s.cfg.Inputs, matcher)
	if err != nil {
		return nil, err
	}
	logger.Infof("Unpacking %d input files", len(roots))

	workers := maxInt(1, s.cfg.ConcurrencyLevel)
	if s.cfg.MaxIOPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(s.cfg.MaxIOPerSecond), s.cfg.MaxIOPerSecond)
	}
	s.bar = progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("Unpacking files"),
		progressbar.OptionShowCount(),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetVisibility(progressVisible()),
		progressbar.OptionFullWidth(),
	)

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range s.queue.ch {
				s.handle(ctx, item)
			}
		}()
	}

	// the seeder's own token keeps the queue open until every root is queued
	s.queue.add()
	go func() {
		defer s.queue.done()
		for _, root := range roots {
			item := &workItem{
				path:    root.path,
				backing: root.file,
				size:    root.size,
				labels:  []string{labelRoot},
			}
			s.queue.add()
			select {
			case s.queue.ch <- item:
			case <-ctx.Done():
				s.queue.done()
				return
			}
		}
	}()

	wg.Wait()
	_ = s.bar.Finish()

	cancelled := ctx.Err() != nil && s.failure() == nil
	metrics := s.metrics(start, int64(len(roots)), cancelled)
	if err := s.writeTree(metrics); err != nil {
		s.fail(fmt.Errorf("%w: write scan tree: %v", ErrOutput, err))
	}
	if err := s.failure(); err != nil {
		return metrics, err
	}
	if cancelled {
		return metrics, context.Canceled
	}
	return metrics, nil
}

// submit queues a child. When the queue is full the caller unpacks it
// itself.
func (s *Session) submit(ctx context.Context, item *workItem) {
	s.queue.add()
	if s.queue.offer(item) {
		return
	}
	s.handle(ctx, item)
}

func (s *Session) handle(ctx context.Context, item *workItem) {
	defer s.queue.done()
	if ctx.Err() != nil {
		return
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
	}
	s.process(ctx, item)
	s.processed.Add(1)
	_ = s.bar.Add(1)
}

// fail records the first fatal error and stops the session.
func (s *Session) fail(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err != nil {
		return
	}
	logger.Errorf("Session failed: %v", err)
	s.err = err
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Session) failure() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *Session) metrics(start time.Time, inputs int64, cancelled bool) *output.Metrics {
	_, misses := s.dedup.Stats()
	return &output.Metrics{
		StartTime:     start.UTC().Format(time.RFC3339),
		EndTime:       time.Now().UTC().Format(time.RFC3339),
		Inputs:        inputs,
		FilesRecorded: s.recorded.Load(),
		FilesScanned:  s.scanned.Load(),
		BytesScanned:  s.bytesScanned.Load(),
		UniqueContent: misses,
		DedupHits:     s.dedupHits.Load(),
		Claims:        s.claims.Load(),
		Carves:        s.carved.Load(),
		Unscanned:     s.unscanned.Load(),
		Unparsed:      s.unparsed.Load(),
		Known:         s.knownHits.Load(),
		ParserFaults:  s.faults.Load(),
		Cancelled:     cancelled,
	}
}

func (s *Session) writeTree(metrics *output.Metrics) error {
	files := make(map[string]output.TreeEntry, s.tree.Len())
	err := s.tree.Walk(func(fr *result.FileResult) error {
		files[fr.Path] = output.EntryFromResult(fr, s.dataPath(fr.Backing))
		return nil
	})
	if err != nil {
		return err
	}
	doc := &output.TreeDocument{
		SessionID: s.id,
		Version:   version.Version,
		Inputs:    s.cfg.Inputs,
		Settings:  s.settings(),
		Metrics:   *metrics,
		Files:     files,
	}
	return s.store.WriteTree(doc)
}

// dataPath is where a node's content lives: relative to the unpack
// directory for unpacked content, absolute for inputs.
func (s *Session) dataPath(backing string) string {
	if backing == "" {
		return ""
	}
	if rel, err := filepath.Rel(s.cfg.UnpackDirectory, backing); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(rel)
	}
	if abs, err := filepath.Abs(backing); err == nil {
		return abs
	}
	return backing
}

func (s *Session) settings() map[string]any {
	var parsers []string
	for _, r := range s.registry.Parsers() {
		parsers = append(parsers, r.Parser.Name())
	}
	return map[string]any{
		"max_bytes":           s.cfg.MaxBytes,
		"max_file_size":       s.cfg.MaxFileSize,
		"min_scan_size":       s.cfg.MinScanSize,
		"read_size":           s.cfg.ReadSize,
		"synthesized_minimum": s.cfg.SynthesizedMinimum,
		"padding_name":        s.cfg.PaddingName,
		"scan_carves":         s.cfg.ScanCarves,
		"concurrency_level":   s.cfg.ConcurrencyLevel,
		"hash_algorithms":     s.cfg.HashAlgorithms,
		"fuzzy_algorithms":    s.cfg.FuzzyAlgorithms,
		"result_format":       s.cfg.ResultFormat,
		"result_compression":  s.cfg.ResultCompression,
		"parsers":             parsers,
	}
}

// IsOutputError reports whether err ended a session because results could
// not be written.
func IsOutputError(err error) bool { return errors.Is(err, ErrOutput) }

func progressVisible() bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv("UNRAVEL_DISABLE_PROGRESS")))
	return value != "1" && value != "true" && value != "yes" && value != "on"
}
