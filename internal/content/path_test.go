package content

import (
	"errors"
	"testing"
)

func TestResolvePath(t *testing.T) {
	cases := []struct {
		raw     string
		want    string
		wantErr error
	}{
		{raw: "", want: "index.html"},
		{raw: "/", want: "index.html"},
		{raw: "/comics/", want: "comics/index.html"},
		{raw: "/comics/vol1/001.png", want: "comics/vol1/001.png"},
		{raw: "/comics/./vol1//002.png", want: "comics/vol1/002.png"},
		{raw: "/comics/vol1/../vol2/a.png", want: "comics/vol2/a.png"},
		{raw: "/a%20b.txt", want: "a b.txt"},
		{raw: "/../etc/passwd", wantErr: ErrForbidden},
		{raw: "/%2e%2e/etc/passwd", wantErr: ErrForbidden},
		{raw: "/..%2Fetc%2Fpasswd", wantErr: ErrForbidden},
		{raw: "/comics/../../etc/passwd", wantErr: ErrForbidden},
		{raw: "/bad%zzescape", wantErr: ErrForbidden},
		{raw: "/nul%00byte", wantErr: ErrForbidden},
		{raw: "/win%5c..%5csecret", wantErr: ErrForbidden},
	}

	for _, tc := range cases {
		got, err := ResolvePath(tc.raw, "index.html")
		if tc.wantErr != nil {
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("%q: expected %v, got %q / %v", tc.raw, tc.wantErr, got, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: unexpected error %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("%q: expected %q, got %q", tc.raw, tc.want, got)
		}
	}
}
