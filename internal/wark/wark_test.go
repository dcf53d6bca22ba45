package wark

import "testing"

func TestFromHashlistStable(t *testing.T) {
	a := FromHashlist("salt1", 10, []string{"h1", "h2"})
	b := FromHashlist("salt1", 10, []string{"h1", "h2"})
	if a != b {
		t.Fatalf("wark not stable: %q != %q", a, b)
	}
}

func TestFromHashlistDiffersBySize(t *testing.T) {
	a := FromHashlist("salt1", 10, []string{"h1"})
	b := FromHashlist("salt1", 11, []string{"h1"})
	if a == b {
		t.Fatalf("wark should differ by size")
	}
}

func TestFromHashlistDiffersBySalt(t *testing.T) {
	a := FromHashlist("salt1", 10, []string{"h1"})
	b := FromHashlist("salt2", 10, []string{"h1"})
	if a == b {
		t.Fatalf("wark should differ by salt")
	}
}

func TestFileKeyTruncatable(t *testing.T) {
	k := FileKey("fksalt", "/srv/vol/a.bin", 10, 123)
	if len(k) < 8 {
		t.Fatalf("filekey too short to truncate: %q", k)
	}
	// truncation to an arbitrary fk length is just a substring
	if k[:4] != k[:8][:4] {
		t.Fatalf("truncation should be a stable prefix")
	}
}
