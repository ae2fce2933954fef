package content

import (
	"bytes"
	"io"
	"sync"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func TestGzipRoundTripsConcurrently(t *testing.T) {
	payload := bytes.Repeat([]byte("<p>chapter</p>\n"), 200)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			compressed, err := Gzip(payload)
			if err != nil {
				errs <- err
				return
			}
			if len(compressed) >= len(payload) {
				errs <- io.ErrShortWrite
				return
			}
			zr, err := gzip.NewReader(bytes.NewReader(compressed))
			if err != nil {
				errs <- err
				return
			}
			plain, err := io.ReadAll(zr)
			if err != nil {
				errs <- err
				return
			}
			if !bytes.Equal(plain, payload) {
				errs <- io.ErrUnexpectedEOF
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("gzip round trip failed: %v", err)
	}
}
