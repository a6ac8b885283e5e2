package hasher

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"unravel/logger"
)

func TestComputeHashes(t *testing.T) {
	logger.Init("info")
	tmp, err := os.CreateTemp("", "hash-test")
	if err != nil {
		t.Fatalf("temp file: %v", err)
	}
	defer os.Remove(tmp.Name())
	tmp.WriteString("hello world")
	tmp.Close()

	hashes, err := ComputeHashes(tmp.Name(), []string{"md5", "sha1", "xxh64", "blake3", "unknown"})
	if err != nil {
		t.Fatal(err)
	}
	if hashes["md5"] != "5eb63bbbe01eeed093cb22bb8f5acdc3" {
		t.Errorf("md5 mismatch: %s", hashes["md5"])
	}
	if hashes["sha1"] != "2aae6c35c94fcfb415dbe95f408b9ce91ee846ed" {
		t.Errorf("sha1 mismatch: %s", hashes["sha1"])
	}
	if hashes["sha256"] != "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9" {
		t.Errorf("sha256 mismatch: %s", hashes["sha256"])
	}
	if hashes["xxh64"] != "45ab6734b21e6968" {
		t.Errorf("xxh64 mismatch: %s", hashes["xxh64"])
	}
	if len(hashes["blake3"]) != 64 {
		t.Errorf("blake3 digest length %d", len(hashes["blake3"]))
	}
	if _, ok := hashes["unknown"]; ok {
		t.Errorf("unexpected hash for unknown algorithm")
	}
}

func TestCopyTeesAndHashes(t *testing.T) {
	payload := strings.Repeat("unravel", 100000)
	var dst bytes.Buffer
	m := New(nil)
	n, err := m.Copy(&dst, strings.NewReader(payload), int64(len(payload)))
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(len(payload)) || m.Size() != n || dst.String() != payload {
		t.Fatalf("copied %d, size %d, dst %d", n, m.Size(), dst.Len())
	}
	sums := m.Sums()
	if len(sums) != 1 || len(sums[Primary]) != 64 {
		t.Fatalf("sums = %v", sums)
	}
}

func TestComputeHashesMissingFile(t *testing.T) {
	if _, err := ComputeHashes("/nonexistent/unravel", nil); err == nil {
		t.Fatal("expected error")
	}
}
