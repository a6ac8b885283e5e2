package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"

	"unravel/hasher"
	"unravel/logger"
	"unravel/metadata"
	"unravel/output"
	"unravel/parser"
	"unravel/result"
	"unravel/tracing"
	"unravel/utils"
)

const unpackSuffix = "-unpacked"

// Marker labels for files that were recorded without being unpacked.
const (
	labelRoot      = "root"
	labelUnscanned = "unscanned"
	labelUnparsed  = "unparsed"
	labelKnown     = "known"
)

// workItem is one file waiting to be unpacked. Roots carry no hashes until
// their worker computes them; children are hashed while being extracted.
type workItem struct {
	path      string
	parent    string
	backing   string
	size      int64
	extent    *result.Extent
	hashes    map[string]string
	kind      result.ChildKind
	labels    []string
	ancestors []string
}

func (it *workItem) hash() string { return it.hashes[hasher.Primary] }

func (it *workItem) isRoot() bool { return it.parent == "" }

// process unpacks one item, records it in the tree and hands its children to
// the queue.
func (s *Session) process(ctx context.Context, item *workItem) {
	ctx, endTask := tracing.StartTask(ctx, "unpack_item")
	tracing.Log(ctx, "path", item.path)
	defer endTask()

	if item.isRoot() {
		hashes, err := hasher.ComputeHashes(item.backing, s.cfg.HashAlgorithms)
		if err != nil {
			logger.Warnf("Failed to hash %s: %v", item.path, err)
			s.unparsed.Add(1)
			s.record(s.leaf(item, labelUnparsed))
			return
		}
		item.hashes = hashes
		if marker, ok := s.admit(item); !ok {
			s.record(s.leaf(item, marker))
			return
		}
	}

	s.scanned.Add(1)
	outcome, ticket, err := s.dedup.Acquire(ctx, item.hash())
	if err != nil {
		return
	}
	if ticket != nil {
		endRegion := tracing.StartRegion(ctx, "unpack")
		outcome, err = s.unpack(ctx, item)
		endRegion()
		if err != nil {
			ticket.Abandon()
			switch {
			case errors.Is(err, ErrOutput):
				s.fail(err)
			case ctx.Err() != nil:
			default:
				logger.Warnf("Failed to unpack %s: %v", item.path, err)
				s.unparsed.Add(1)
				s.record(s.leaf(item, labelUnparsed))
			}
			return
		}
		ticket.Publish(outcome)
		if _, err := s.store.WriteRecord(output.RecordFromOutcome(outcome)); err != nil {
			s.fail(fmt.Errorf("%w: %v", ErrOutput, err))
			return
		}
	} else {
		s.dedupHits.Add(1)
	}

	if !s.record(s.node(item, outcome)) {
		return
	}
	s.expand(ctx, item, outcome)
}

// admit decides whether item is unpacked. When it is not, the marker label
// to record it with is returned; carves skipped by configuration get none.
func (s *Session) admit(item *workItem) (string, bool) {
	hash := item.hash()
	for _, a := range item.ancestors {
		if a == hash {
			s.unscanned.Add(1)
			return labelUnscanned, false
		}
	}
	if s.known.Contains(hash) {
		s.knownHits.Add(1)
		return labelKnown, false
	}
	switch item.kind {
	case result.KindCarve:
		if !s.cfg.ScanCarves {
			return "", false
		}
	case result.KindClaim:
		s.charge(item)
		return "", true
	}
	if item.size < s.cfg.MinScanSize || (s.cfg.MaxFileSize > 0 && item.size > s.cfg.MaxFileSize) {
		s.unscanned.Add(1)
		return labelUnscanned, false
	}
	if !s.reserve(item) {
		s.unscanned.Add(1)
		return labelUnscanned, false
	}
	return "", true
}

// reserve takes item's size from the session budget. Content that has
// already been unpacked costs nothing.
func (s *Session) reserve(item *workItem) bool {
	if _, ok := s.dedup.Lookup(item.hash()); ok {
		return true
	}
	if s.cfg.MaxBytes <= 0 {
		s.bytesScanned.Add(item.size)
		return true
	}
	for {
		used := s.bytesScanned.Load()
		if used+item.size > s.cfg.MaxBytes {
			return false
		}
		if s.bytesScanned.CompareAndSwap(used, used+item.size) {
			return true
		}
	}
}

func (s *Session) charge(item *workItem) {
	if _, ok := s.dedup.Lookup(item.hash()); !ok {
		s.bytesScanned.Add(item.size)
	}
}

// unpack runs the signature scan and dispatch over item, extracts every child
// and collects the content fields. It is called once per unique hash.
func (s *Session) unpack(ctx context.Context, item *workItem) (*result.Outcome, error) {
	src, err := openSource(item.backing, item.size, s.cfg.ContentReadMode, s.cfg.MmapMinSize)
	if err != nil {
		return nil, &parser.IOError{Op: "open", Err: err}
	}
	defer src.Close()

	name := path.Base(item.path)
	tracing.Logf(ctx, "hash", "%s", item.hash())
	endScan := tracing.StartRegion(ctx, "scan")
	cands, err := s.sigs.Scan(ctx, src, item.size, name)
	endScan()
	if err != nil {
		return nil, err
	}
	endDispatch := tracing.StartRegion(ctx, "dispatch")
	claims, stats, err := dispatch(parser.NewStream(src, item.size, name), cands, item.path)
	endDispatch()
	s.faults.Add(int64(stats.Faults))
	if err != nil {
		return nil, err
	}
	logger.WithFields(logger.Fields{
		"file":     item.path,
		"tried":    stats.Tried,
		"mismatch": stats.Mismatch,
		"corrupt":  stats.Corrupt,
		"faults":   stats.Faults,
		"claims":   stats.Accepted,
	}).Debug("Dispatch finished")

	outcome := &result.Outcome{
		Hash:   item.hash(),
		Size:   item.size,
		Hashes: item.hashes,
		Labels: []string{},
	}
	u := &unpacker{s: s, src: src, dir: item.path + unpackSuffix, names: utils.NewNamer(unpackSuffix)}

	rest := claims
	if len(claims) > 0 && claims[0].claim.Offset == 0 {
		primary := claims[0]
		rest = claims[1:]
		outcome.Parser = primary.claim.Parser
		collected, err := safeCollect(primary.parsed)
		if err != nil {
			s.faults.Add(1)
			logger.Errorf("Parser fault in %s: %v", item.path, err)
		}
		outcome.Labels = result.MergeLabels(collected.Labels)
		outcome.Metadata = collected.Metadata
		if err := u.entries(primary); err != nil {
			return nil, err
		}
	}
	for _, a := range claims {
		outcome.Claims = append(outcome.Claims, a.claim)
	}
	s.claims.Add(int64(len(rest)))

	var spans []result.Claim
	for _, a := range claims {
		spans = append(spans, a.claim)
	}
	var gaps []result.Extent
	if len(claims) > 0 {
		gaps = carves(item.size, spans, s.cfg.SynthesizedMinimum)
	}
	if err := u.regions(rest, gaps); err != nil {
		return nil, err
	}
	outcome.Children = u.children

	head, err := readHead(src, item.size, sniffBytes)
	if err != nil {
		return nil, &parser.IOError{Op: "read", Err: err}
	}
	fc := &FileContext{Path: item.path, Backing: item.backing, Size: item.size, Head: head, Cfg: s.cfg}
	for _, module := range s.modules {
		if !module.Enabled(s.cfg) {
			continue
		}
		if err := module.Collect(ctx, fc, outcome); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			logger.Debugf("Module %s failed for %s: %v", module.Name(), item.path, err)
		}
	}
	return outcome, nil
}

// unpacker extracts the children of one file.
type unpacker struct {
	s        *Session
	src      io.ReaderAt
	dir      string
	names    *utils.Namer
	children []result.ChildRef
}

// entries extracts the entries of the primary claim in the order the parser
// listed them.
func (u *unpacker) entries(primary accepted) error {
	for i, e := range primary.entries {
		name := u.names.Unique(utils.SafeName(e.Name, fmt.Sprintf("entry-%d", i)))
		treePath := u.dir + "/" + name
		if !e.IsDerived() {
			off := primary.claim.Offset + e.Offset
			ex, err := u.s.extract(io.NewSectionReader(u.src, off, e.Size), e.Size, 0, treePath)
			if err != nil {
				return err
			}
			u.add(name, result.KindEntry, off, ex, e.Labels)
			continue
		}
		ex, err := u.derived(e, treePath)
		if err != nil {
			if errors.Is(err, ErrOutput) {
				return err
			}
			logger.Warnf("Skipping entry %s: %v", treePath, err)
			continue
		}
		u.add(name, result.KindEntry, parser.Derived, ex, e.Labels)
	}
	return nil
}

func (u *unpacker) derived(e parser.Entry, treePath string) (extracted, error) {
	rc, err := e.Open()
	if err != nil {
		return extracted{}, err
	}
	defer rc.Close()
	return u.s.extract(rc, e.Size, u.s.cfg.MaxFileSize, treePath)
}

// regions extracts non-primary claims and carves in offset order.
func (u *unpacker) regions(claims []accepted, gaps []result.Extent) error {
	type region struct {
		result.Extent
		kind   result.ChildKind
		suffix string
		labels []string
	}
	var all []region
	for _, a := range claims {
		all = append(all, region{
			Extent: result.Extent{Offset: a.claim.Offset, Size: a.claim.Size},
			kind:   result.KindClaim,
			suffix: utils.SafeName(a.claim.Parser, "claim"),
		})
	}
	for _, g := range gaps {
		all = append(all, region{
			Extent: g,
			kind:   result.KindCarve,
			suffix: "synthesized",
			labels: []string{u.s.cfg.PaddingName, "synthesized"},
		})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Offset < all[j].Offset })

	for _, r := range all {
		name := u.names.Unique(fmt.Sprintf("0x%08x-%s", r.Offset, r.suffix))
		ex, err := u.s.extract(io.NewSectionReader(u.src, r.Offset, r.Size), r.Size, 0, u.dir+"/"+name)
		if err != nil {
			return err
		}
		if r.kind == result.KindCarve {
			u.s.carved.Add(1)
		}
		u.add(name, r.kind, r.Offset, ex, r.labels)
	}
	return nil
}

func (u *unpacker) add(name string, kind result.ChildKind, off int64, ex extracted, labels []string) {
	u.children = append(u.children, result.ChildRef{
		Name:    name,
		Kind:    kind,
		Offset:  off,
		Size:    ex.size,
		Hashes:  ex.hashes,
		Backing: ex.backing,
		Labels:  labels,
	})
}

// expand turns the child references of an outcome into tree nodes under
// item. Children that are not admitted are recorded as leaves; the rest are
// queued.
func (s *Session) expand(ctx context.Context, item *workItem, outcome *result.Outcome) {
	if len(outcome.Children) == 0 {
		return
	}
	ancestors := append(append([]string(nil), item.ancestors...), item.hash())
	for _, ref := range outcome.Children {
		if ctx.Err() != nil {
			return
		}
		child := &workItem{
			path:      item.path + unpackSuffix + "/" + ref.Name,
			parent:    item.path,
			backing:   ref.Backing,
			size:      ref.Size,
			extent:    ref.Extent(),
			hashes:    ref.Hashes,
			kind:      ref.Kind,
			labels:    ref.Labels,
			ancestors: ancestors,
		}
		marker, ok := s.admit(child)
		if !ok {
			s.record(s.leaf(child, marker))
			continue
		}
		s.submit(ctx, child)
	}
}

// node builds the tree entry for an unpacked item.
func (s *Session) node(item *workItem, outcome *result.Outcome) *result.FileResult {
	fr := &result.FileResult{
		Path:        item.path,
		Parent:      item.parent,
		Size:        item.size,
		Extent:      item.extent,
		Labels:      result.MergeLabels(outcome.Labels, item.labels),
		Hashes:      item.hashes,
		FuzzyHashes: outcome.FuzzyHashes,
		Metadata:    outcome.Metadata,
		MimeType:    outcome.MimeType,
		Parser:      outcome.Parser,
		Claims:      outcome.Claims,
		Backing:     item.backing,
	}
	if item.isRoot() {
		meta := make(map[string]any, len(outcome.Metadata)+1)
		for k, v := range outcome.Metadata {
			meta[k] = v
		}
		if times, err := metadata.FileTimes(item.backing); err == nil {
			meta["file_times"] = times
		} else {
			logger.Debugf("No file times for %s: %v", item.path, err)
		}
		fr.Metadata = meta
	}
	return fr
}

// leaf builds the tree entry for an item that is recorded but not unpacked.
func (s *Session) leaf(item *workItem, marker string) *result.FileResult {
	return &result.FileResult{
		Path:    item.path,
		Parent:  item.parent,
		Size:    item.size,
		Extent:  item.extent,
		Labels:  result.MergeLabels(item.labels, []string{marker}),
		Hashes:  item.hashes,
		Backing: item.backing,
	}
}

func (s *Session) record(fr *result.FileResult) bool {
	if err := s.tree.Add(fr); err != nil {
		logger.Errorf("Failed to record %s: %v", fr.Path, err)
		return false
	}
	s.recorded.Add(1)
	return true
}
