package tasm

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestOpenAssembler_Validation(t *testing.T) {
	tests := []struct {
		name   string
		fps    float64
		canvas Canvas
	}{
		{"zero_fps", 0, Canvas{40, 30}},
		{"odd_width", 30, Canvas{41, 30}},
		{"odd_height", 30, Canvas{40, 29}},
		{"empty_canvas", 30, Canvas{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			factory := &memFactory{}
			_, err := OpenAssembler(factory, filepath.Join(t.TempDir(), "out.avi"), tt.fps, tt.canvas)
			if !errors.Is(err, ErrWriter) {
				t.Errorf("err = %v, want ErrWriter", err)
			}
			if len(factory.writers) != 0 {
				t.Error("writer opened despite invalid parameters")
			}
		})
	}
}

func TestAssembler_WriteAndClose(t *testing.T) {
	factory := &memFactory{}
	path := filepath.Join(t.TempDir(), "out.avi")

	asm, err := OpenAssembler(factory, path, 25, Canvas{4, 2})
	if err != nil {
		t.Fatalf("OpenAssembler: %v", err)
	}

	if err := asm.Write(NewFrame(4, 2)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	t.Run("wrong_size_rejected", func(t *testing.T) {
		err := asm.Write(NewFrame(6, 2))
		var we *WriterError
		if !errors.As(err, &we) || we.Op != "write" {
			t.Errorf("err = %v, want write WriterError", err)
		}
	})

	t.Run("truncated_data_rejected", func(t *testing.T) {
		f := NewFrame(4, 2)
		f.Data = f.Data[:10]
		if err := asm.Write(f); !errors.Is(err, ErrWriter) {
			t.Errorf("err = %v, want ErrWriter", err)
		}
	})

	if asm.Frames() != 1 {
		t.Errorf("Frames = %d, want 1", asm.Frames())
	}
	if err := asm.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := asm.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if !factory.last().closed {
		t.Error("underlying writer not closed")
	}

	t.Run("write_after_close_panics", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("expected panic")
			}
		}()
		_ = asm.Write(NewFrame(4, 2))
	})
}

func TestAssembler_Abort(t *testing.T) {
	factory := &memFactory{}
	path := filepath.Join(t.TempDir(), "out.avi")

	asm, err := OpenAssembler(factory, path, 30, Canvas{2, 2})
	if err != nil {
		t.Fatalf("OpenAssembler: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("output not created: %v", err)
	}

	asm.Abort()

	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("partial output still present (stat err %v)", err)
	}
	if !factory.last().closed {
		t.Error("writer not closed by Abort")
	}

	// aborting twice must not fail on the missing file
	asm.Abort()
}
