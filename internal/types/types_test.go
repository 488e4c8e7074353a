package types

import (
	"errors"
	"image"
	"image/color"
	"testing"
)

func TestResultBufferWriteOnce(t *testing.T) {
	buf := NewResultBuffer(3)
	f := NewFrame(Geometry{Width: 1, Height: 1})

	if err := buf.Set(0, f); err != nil {
		t.Fatalf("Set(0) failed: %v", err)
	}
	if err := buf.Set(0, f); !errors.Is(err, ErrSlotWritten) {
		t.Errorf("expected ErrSlotWritten on second write, got %v", err)
	}
	if err := buf.MarkFailed(2, "engine crashed"); err != nil {
		t.Fatalf("MarkFailed(2) failed: %v", err)
	}
	if err := buf.Set(3, f); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("expected ErrIndexOutOfRange, got %v", err)
	}

	if got := buf.Indices(SlotPending); len(got) != 1 || got[0] != 1 {
		t.Errorf("pending = %v, want [1]", got)
	}
	if buf.Count(SlotFailed) != 1 || buf.Slot(2).Reason != "engine crashed" {
		t.Errorf("tombstone not recorded: %+v", buf.Slot(2))
	}
	if buf.Complete() {
		t.Error("buffer with gaps reported complete")
	}
}

func TestFrameFromImage(t *testing.T) {
	src := image.NewNRGBA(image.Rect(5, 5, 7, 6)) // non-zero origin, 2x1
	src.Set(5, 5, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	src.Set(6, 5, color.NRGBA{R: 40, G: 50, B: 60, A: 255})

	f := FrameFromImage(src)
	if err := f.Validate(); err != nil {
		t.Fatal(err)
	}
	want := []byte{10, 20, 30, 255, 40, 50, 60, 255}
	for i := range want {
		if f.Pix[i] != want[i] {
			t.Fatalf("Pix = %v, want %v", f.Pix, want)
		}
	}
}

func TestBlankFrameIsOpaqueBlack(t *testing.T) {
	f := BlankFrame(Geometry{Width: 2, Height: 2})
	if len(f.Pix) != 16 {
		t.Fatalf("expected 16 bytes, got %d", len(f.Pix))
	}
	for i := 0; i < len(f.Pix); i += 4 {
		if f.Pix[i] != 0 || f.Pix[i+1] != 0 || f.Pix[i+2] != 0 || f.Pix[i+3] != 255 {
			t.Fatalf("pixel %d is not opaque black: %v", i/4, f.Pix[i:i+4])
		}
	}
}
