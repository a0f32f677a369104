package fs

import (
	"testing"
	"testing/fstest"
)

func TestFSContains(t *testing.T) {
	tests := []struct {
		name  string
		fsys  fstest.MapFS
		files bool
		dirs  bool
	}{
		{"empty", fstest.MapFS{}, false, false},
		{"flat", fstest.MapFS{"a.properties": {Data: []byte("x=1")}}, true, false},
		{"nested", fstest.MapFS{"conf/a.properties": {Data: []byte("x=1")}}, true, true},
		{"hidden only", fstest.MapFS{".git/HEAD": {Data: []byte("ref")}}, true, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			files, err := FSContainsFiles(tc.fsys)
			if err != nil {
				t.Fatal(err)
			}
			dirs, err := FSContainsDirectories(tc.fsys)
			if err != nil {
				t.Fatal(err)
			}
			if files != tc.files || dirs != tc.dirs {
				t.Fatalf("expected files=%v dirs=%v, got files=%v dirs=%v", tc.files, tc.dirs, files, dirs)
			}
		})
	}
}
