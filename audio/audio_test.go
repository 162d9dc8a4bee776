package audio

import (
	"testing"
)

func TestIsBluetooth(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"AirPods Pro", true},
		{"Sony WH-1000XM4", true},
		{"Jabra Elite 85t", true},
		{"USB Microphone (Bluetooth)", true},
		{"Built-in Microphone", false},
		{"USB Audio Device", false},
		{"Blue Yeti", false},
	}
	for _, c := range cases {
		if got := IsBluetooth(c.name); got != c.want {
			t.Errorf("IsBluetooth(%q) = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestBytesToSamples(t *testing.T) {
	data := []byte{0x01, 0x00, 0xff, 0xff, 0x00, 0x80, 0xaa}
	got := BytesToSamples(data)
	want := []int16{1, -1, -32768}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestFeedCaptureDeliversOnlyWhileStarted(t *testing.T) {
	ctx := NewFeedContext()
	dev, err := ctx.NewCapture(nil, CaptureConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatal(err)
	}
	cap := ctx.Capture()

	var frames uint32
	dev.SetCallback(func(data []byte, frameCount uint32) {
		frames += frameCount
	})

	cap.Feed(make([]int16, 100)) // not started yet
	if frames != 0 {
		t.Fatalf("delivered %d frames before start", frames)
	}

	if err := dev.Start(); err != nil {
		t.Fatal(err)
	}
	cap.Feed(make([]int16, 100))
	if frames != 100 {
		t.Fatalf("frames = %d, want 100", frames)
	}

	dev.Stop()
	cap.Feed(make([]int16, 100))
	if frames != 100 {
		t.Fatalf("frames after stop = %d, want 100", frames)
	}

	dev.Start()
	cap.Feed(make([]int16, 50))
	if frames != 150 {
		t.Fatalf("frames after restart = %d, want 150", frames)
	}
}
