package cvwriter

import "testing"

func TestFourCC(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", DefaultFourCC, false},
		{"mp4v", "mp4v", false},
		{"avc1", "avc1", false},
		{"MJPG", "MJPG", false},
		{"h264x", "", true},
		{"mp4", "", true},
		{"ab\x00c", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := fourCC(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("fourCC(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("fourCC(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestOpenRejectsInvalidGeometry(t *testing.T) {
	path := t.TempDir() + "/out.mp4"
	for _, g := range []struct {
		fps  float64
		w, h int
	}{
		{0, 64, 48},
		{30, 0, 48},
		{30, 64, -2},
	} {
		if _, err := (Factory{}).Open(path, g.fps, g.w, g.h); err == nil {
			t.Errorf("Open(%v, %v, %v) accepted invalid geometry", g.fps, g.w, g.h)
		}
	}
}
