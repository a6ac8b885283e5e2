// Package metadata extracts descriptive fields from documents, images and raw
// binaries for the format parsers and root file records.
package metadata

import (
	"bufio"
	"errors"
	"io"
	"time"

	"github.com/djherbis/times"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rwcarlsen/goexif/exif"
)

// ImageMetadata decodes a subset of EXIF tags. It returns nil when the data
// carries no readable EXIF block.
func ImageMetadata(r io.Reader, maxBytes int64) map[string]interface{} {
	if maxBytes > 0 {
		r = io.LimitReader(r, maxBytes)
	}
	x, err := exif.Decode(r)
	if err != nil {
		return nil
	}

	meta := make(map[string]interface{})
	if tm, err := x.DateTime(); err == nil {
		meta["datetime"] = tm.Format(time.RFC3339)
	}
	if makeTag, err := x.Get(exif.Make); err == nil {
		meta["make"] = makeTag.String()
	}
	if modelTag, err := x.Get(exif.Model); err == nil {
		meta["model"] = modelTag.String()
	}
	if sw, err := x.Get(exif.Software); err == nil {
		meta["software"] = sw.String()
	}
	if lat, long, err := x.LatLong(); err == nil {
		meta["gps_latitude"] = lat
		meta["gps_longitude"] = long
	}
	return meta
}

// PDFMetadata reads the document information dictionary. rs must be
// positioned anywhere inside a stream holding exactly one PDF document.
func PDFMetadata(rs io.ReadSeeker, name string) (map[string]interface{}, error) {
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	info, err := api.PDFInfo(rs, name, nil, false, nil)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, errors.New("pdf: no document information")
	}

	meta := make(map[string]interface{})
	if info.Title != "" {
		meta["title"] = info.Title
	}
	if info.Author != "" {
		meta["author"] = info.Author
	}
	if info.Subject != "" {
		meta["subject"] = info.Subject
	}
	if info.Creator != "" {
		meta["creator"] = info.Creator
	}
	if info.Producer != "" {
		meta["producer"] = info.Producer
	}
	if info.PageCount > 0 {
		meta["pages"] = info.PageCount
	}
	return meta, nil
}

// FileTimes returns the file system timestamps of path in RFC 3339 form. Only
// the timestamps the platform records are included.
func FileTimes(path string) (map[string]interface{}, error) {
	ts, err := times.Stat(path)
	if err != nil {
		return nil, err
	}
	result := map[string]interface{}{
		"modification_time": ts.ModTime().UTC().Format(time.RFC3339),
		"access_time":       ts.AccessTime().UTC().Format(time.RFC3339),
	}
	if ts.HasChangeTime() {
		result["change_time"] = ts.ChangeTime().UTC().Format(time.RFC3339)
	}
	if ts.HasBirthTime() {
		result["creation_time"] = ts.BirthTime().UTC().Format(time.RFC3339)
	}
	return result, nil
}

// MaxStringLength caps a single printable run. Longer runs are cut to this
// length and the remainder skipped.
const MaxStringLength = 4096

// PrintableStrings returns runs of at least minLen printable ASCII characters,
// stopping after limit strings. The result is never nil. A read error ends the
// scan; the strings found so far are returned with it.
func PrintableStrings(r io.Reader, minLen, limit int) ([]string, error) {
	if minLen <= 0 {
		minLen = 4
	}
	br := bufio.NewReaderSize(r, 64*1024)
	out := []string{}
	current := make([]byte, 0, 256)
	clipped := false
	flush := func() {
		if len(current) >= minLen {
			out = append(out, string(current))
		}
		current = current[:0]
		clipped = false
	}
	for {
		b, err := br.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			flush()
			return clip(out, limit), err
		}
		if isPrintable(b) {
			switch {
			case clipped:
			case len(current) == MaxStringLength:
				clipped = true
			default:
				current = append(current, b)
			}
			continue
		}
		flush()
		if limit > 0 && len(out) >= limit {
			return out, nil
		}
	}
	flush()
	return clip(out, limit), nil
}

func clip(out []string, limit int) []string {
	if limit > 0 && len(out) > limit {
		return out[:limit]
	}
	return out
}

func isPrintable(b byte) bool {
	return b == '\t' || (b >= 0x20 && b < 0x7f)
}
