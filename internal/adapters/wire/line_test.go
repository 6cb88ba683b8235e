package wire

import (
	"errors"
	"testing"

	"github.com/gangulwar/rollX/internal/domain"
)

func TestEncodeUsesShortestDecimalForm(t *testing.T) {
	tests := []struct {
		name   string
		sample domain.Sample
		want   string
	}{
		{"tenths", domain.Sample{X: 0.1, Y: 0.2, Z: 0.3}, "0.1,0.2,0.3\n"},
		{"hundredths", domain.Sample{X: 0.11, Y: 0.19, Z: 0.29}, "0.11,0.19,0.29\n"},
		{"negative gravity", domain.Sample{X: -0.0123456789, Y: 0, Z: -1}, "-0.0123456789,0,-1\n"},
		{"full precision kept", domain.Sample{X: 0.123456789012345, Y: 1.5, Z: -9.81}, "0.123456789012345,1.5,-9.81\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(Encode(tt.sample)); got != tt.want {
				t.Fatalf("Encode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodeAcceptsEncodedRecords(t *testing.T) {
	in := domain.Sample{X: 0.12, Y: -0.18, Z: 0.98}
	out, err := Decode(Encode(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.X != in.X || out.Y != in.Y || out.Z != in.Z {
		t.Fatalf("decoded %+v, want %+v", out, in)
	}

	if _, err := Decode([]byte("1,2,3\r\n")); err != nil {
		t.Fatalf("expected CRLF record to decode, got %v", err)
	}
}

func TestDecodeRejectsMalformedRecords(t *testing.T) {
	for _, line := range []string{"", "1,2", "1,2,3,4", "a,b,c", "1,,3\n"} {
		if _, err := Decode([]byte(line)); !errors.Is(err, ErrMalformedRecord) {
			t.Fatalf("Decode(%q) error = %v, want ErrMalformedRecord", line, err)
		}
	}
}
