package segment

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/junbin-yang/cansoftbus-go/pkg/canframe"
	"github.com/junbin-yang/cansoftbus-go/pkg/transport"
	"github.com/junbin-yang/cansoftbus-go/pkg/transport/virtual"
)

var testAddr = canframe.EncodeAddress(0x200, 0x4BA)

var versions = []canframe.ProtocolVersion{canframe.VersionStream, canframe.VersionSeries}

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + 3)
	}
	return b
}

func TestSegmentRoundTrip(t *testing.T) {
	for _, v := range versions {
		limit := DataPerFrame * MaxFrames(v)
		for n := 1; n <= limit; n++ {
			in := pattern(n)
			frames, err := Frames(v, in, testAddr)
			if err != nil {
				t.Fatalf("%s: Frames(%d): %v", v, n, err)
			}
			r := NewReassembler(v, PolicyAbort)
			var out []byte
			for i, f := range frames {
				buf, err := r.Feed(f)
				if err != nil {
					t.Fatalf("%s: len %d frame %d: %v", v, n, i, err)
				}
				if buf != nil {
					if i != len(frames)-1 {
						t.Fatalf("%s: len %d completed early at frame %d", v, n, i)
					}
					out = buf
				}
			}
			if !bytes.Equal(out, in) {
				t.Fatalf("%s: round trip mismatch for len %d", v, n)
			}
			if r.State() != StateComplete {
				t.Errorf("%s: state = %s", v, r.State())
			}
		}
	}
}

func TestSegmentSequencing(t *testing.T) {
	in := pattern(100) // 15帧
	for _, v := range versions {
		frames, err := Frames(v, in, testAddr)
		if err != nil {
			t.Fatalf("%s: %v", v, err)
		}
		data := frames
		if v == canframe.VersionSeries {
			c, _, err := canframe.DecodePayload(v, frames[0])
			if err != nil || c.Kind != canframe.KindStart || c.Count != 15 {
				t.Fatalf("series start frame = %+v, %v", c, err)
			}
			data = frames[1:]
		}
		if len(data) != 15 {
			t.Fatalf("%s: %d data frames, want 15", v, len(data))
		}
		total := 0
		// stream格式：第0..n-2帧序号等于下标，末帧携带结束标记31
		for i, f := range data {
			c, payload, err := canframe.DecodePayload(v, f)
			if err != nil {
				t.Fatalf("%s: frame %d: %v", v, i, err)
			}
			last := i == len(data)-1
			if v == canframe.VersionStream && last {
				if !c.Final {
					t.Errorf("stream: last frame not marked final: %+v", c)
				}
			} else if int(c.Seq) != i {
				t.Errorf("%s: frame %d decodes to seq %d", v, i, c.Seq)
			}
			if len(payload) == 0 {
				t.Errorf("%s: frame %d has zero-length payload", v, i)
			}
			if f.ID != testAddr {
				t.Errorf("%s: frame %d address %#x", v, i, f.ID)
			}
			total += len(payload)
		}
		if total != len(in) {
			t.Errorf("%s: emitted %d bytes, want %d", v, total, len(in))
		}
	}
}

func TestSegmentSevenBytesIsSingleFinalFrame(t *testing.T) {
	frames, err := Frames(canframe.VersionStream, pattern(7), testAddr)
	if err != nil {
		t.Fatalf("Frames: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	f := frames[0]
	if f.Len != 8 || f.Data[0] != 0xFF {
		t.Fatalf("frame = %v", f)
	}
	c, _, err := canframe.DecodePayload(canframe.VersionStream, f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !c.Final || c.Size != 7 {
		t.Errorf("control = %+v", c)
	}

	r := NewReassembler(canframe.VersionStream, PolicyAbort)
	out, err := r.Feed(f)
	if err != nil || !bytes.Equal(out, pattern(7)) {
		t.Errorf("reassemble single frame = %v, %v", out, err)
	}
}

func TestSegmentEightBytesTwoFrames(t *testing.T) {
	frames, err := Frames(canframe.VersionStream, pattern(8), testAddr)
	if err != nil {
		t.Fatalf("Frames: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("got %d frames", len(frames))
	}
	if frames[0].Data[0] != 0x07 || frames[0].Len != 8 {
		t.Errorf("first frame = %v", frames[0])
	}
	if frames[1].Data[0] != 0xF9 || frames[1].Len != 2 {
		t.Errorf("last frame = %v", frames[1])
	}
}

func TestSegmentCeiling(t *testing.T) {
	// 224字节需要32帧，两种格式都必须拒绝
	for _, v := range versions {
		if _, err := Segment(v, pattern(224), testAddr); !errors.Is(err, ErrTooManySegments) {
			t.Errorf("%s: 224 bytes: expected ErrTooManySegments, got %v", v, err)
		}
	}
	if _, err := Segment(canframe.VersionStream, pattern(217), testAddr); err != nil {
		t.Errorf("stream: 217 bytes (31 frames) must be accepted: %v", err)
	}
	if _, err := Segment(canframe.VersionStream, pattern(218), testAddr); !errors.Is(err, ErrTooManySegments) {
		t.Errorf("stream: 218 bytes: expected ErrTooManySegments, got %v", err)
	}
	if _, err := Segment(canframe.VersionSeries, pattern(106), testAddr); !errors.Is(err, ErrTooManySegments) {
		t.Errorf("series: 106 bytes: expected ErrTooManySegments, got %v", err)
	}
}

func TestSegmentRejectsEmptyAndUnknownVersion(t *testing.T) {
	if _, err := Segment(canframe.VersionStream, nil, testAddr); !errors.Is(err, ErrEmptyBuffer) {
		t.Errorf("expected ErrEmptyBuffer, got %v", err)
	}
	if _, err := Segment(canframe.ProtocolVersion(9), pattern(3), testAddr); !errors.Is(err, canframe.ErrUnknownVersion) {
		t.Errorf("expected ErrUnknownVersion, got %v", err)
	}
}

func TestSegmenterIsLazyAndSingleUse(t *testing.T) {
	s, err := Segment(canframe.VersionSeries, pattern(20), testAddr)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if s.Count() != 4 || s.DataFrames() != 3 || s.Remaining() != 4 {
		t.Fatalf("count=%d data=%d remaining=%d", s.Count(), s.DataFrames(), s.Remaining())
	}
	n := 0
	for _, ok := s.Next(); ok; _, ok = s.Next() {
		n++
		if s.Remaining() != 4-n {
			t.Errorf("remaining after %d frames = %d", n, s.Remaining())
		}
	}
	if n != 4 {
		t.Errorf("emitted %d frames", n)
	}
	if _, ok := s.Next(); ok {
		t.Error("exhausted segmenter must not restart")
	}
	if s.Err() != nil {
		t.Errorf("unexpected error: %v", s.Err())
	}
}

type failingSender struct{ after int }

func (f *failingSender) SendFrame(ctx context.Context, fr canframe.Frame) error {
	if f.after == 0 {
		return errors.New("bus off")
	}
	f.after--
	return nil
}

func TestSendWrapsTransportError(t *testing.T) {
	err := Send(context.Background(), &failingSender{after: 1}, canframe.VersionStream, pattern(30), testAddr)
	if !errors.Is(err, transport.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestSendAndReassembleOverBus(t *testing.T) {
	for _, v := range versions {
		bus := virtual.NewBus()
		tx := bus.Attach("tx")
		rx := bus.Attach("rx")

		in := []byte("This is test string__!!This is test string__!!")
		if err := Send(context.Background(), tx, v, in, testAddr); err != nil {
			t.Fatalf("%s: Send: %v", v, err)
		}
		out, err := Reassemble(context.Background(), rx, v, PolicyAbort, nil)
		if err != nil {
			t.Fatalf("%s: Reassemble: %v", v, err)
		}
		if !bytes.Equal(out, in) {
			t.Errorf("%s: got %q", v, out)
		}
		tx.Close()
		rx.Close()
	}
}

func TestSendAbortRequiresSeries(t *testing.T) {
	bus := virtual.NewBus()
	tx := bus.Attach("tx")
	if err := SendAbort(context.Background(), tx, canframe.VersionStream, testAddr); !errors.Is(err, canframe.ErrUnsupportedKind) {
		t.Errorf("expected ErrUnsupportedKind, got %v", err)
	}
	if err := SendAbort(context.Background(), tx, canframe.VersionSeries, testAddr); err != nil {
		t.Errorf("series abort: %v", err)
	}
}
