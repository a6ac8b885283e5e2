package all

import "testing"

func TestDefaultRegistry(t *testing.T) {
	r := Default()
	if r.Len() != 9 {
		t.Fatalf("registered %d parsers", r.Len())
	}
	list := r.Parsers()
	if list[0].Parser.Name() != "xar" || list[len(list)-1].Parser.Name() != "mbr" {
		t.Fatalf("unexpected order: first %s last %s", list[0].Parser.Name(), list[len(list)-1].Parser.Name())
	}
	if span := r.MaxSignatureSpan(); span != 512 {
		t.Fatalf("max span = %d", span)
	}
	for _, name := range []string{"gzip", "ELF", "GimpBrush"} {
		if _, ok := r.Lookup(name); !ok {
			t.Fatalf("lookup %q failed", name)
		}
	}
}
