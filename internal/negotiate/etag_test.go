package negotiate

import (
	"fmt"
	"strings"
	"testing"
)

func TestComputeETagDependsOnPathAndSize(t *testing.T) {
	base := ComputeETag("/vol1/001.jpg", 1000)
	if !strings.HasPrefix(base, `"`) || !strings.HasSuffix(base, `"`) {
		t.Fatalf("etag should be quoted: %s", base)
	}
	if again := ComputeETag("/vol1/001.jpg", 1000); again != base {
		t.Fatalf("etag should be deterministic")
	}
	if other := ComputeETag("/vol1/001.jpg", 1001); other == base {
		t.Fatalf("size change should change etag")
	}
	if other := ComputeETag("/vol1/002.jpg", 1000); other == base {
		t.Fatalf("path change should change etag")
	}
}

func TestETaggerMemoizes(t *testing.T) {
	e := NewETagger(4)
	first := e.ETag("/a", 10)
	if second := e.ETag("/a", 10); second != first {
		t.Fatalf("memoized etag mismatch")
	}
	if e.Len() != 1 {
		t.Fatalf("expected one memo entry, got %d", e.Len())
	}
}

func TestETaggerEvictsOldestFirst(t *testing.T) {
	e := NewETagger(3)
	for i := 0; i < 3; i++ {
		e.ETag(fmt.Sprintf("/f%d", i), 1)
	}
	e.ETag("/f3", 1)

	if e.Len() != 3 {
		t.Fatalf("memo should stay bounded, got %d", e.Len())
	}
	if _, ok := e.tags[memoKey("/f0", 1)]; ok {
		t.Fatalf("oldest key should be dropped first")
	}
	for i := 1; i <= 3; i++ {
		if _, ok := e.tags[memoKey(fmt.Sprintf("/f%d", i), 1)]; !ok {
			t.Fatalf("/f%d should remain memoized", i)
		}
	}

	e.ETag("/f4", 1)
	if _, ok := e.tags[memoKey("/f1", 1)]; ok {
		t.Fatalf("second oldest key should be dropped next")
	}
}
