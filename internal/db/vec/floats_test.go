package vec

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"math"
	"reflect"
	"testing"
)

func TestUnmarshalFloats(t *testing.T) {
	testCases := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "Empty array", input: "[]"},
		{name: "Single integer", input: "[42]"},
		{name: "Embedding like values", input: "[0.0123, -0.0456, 0.789]"},
		{name: "Scientific notation", input: "[1.2e-3, 4.5E-2, 6.7e+1]"},
		{name: "Various spacing", input: "[  1.2 ,\n  3.4\t,   5.6   ]"},
		{name: "No brackets", input: "1, 2, 3", wantErr: true},
		{name: "String value", input: "[1, \"fern\", 3]", wantErr: true},
		{name: "Malformed number", input: "[1, 2..5, 3]", wantErr: true},
		{name: "Missing comma", input: "[1 2]", wantErr: true},
		{name: "Trailing comma", input: "[1, 2,]", wantErr: true},
		{name: "Leading comma", input: "[,1]", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := unmarshalFloats(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Errorf("unmarshalFloats(%q) should have failed", tc.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unmarshalFloats(%q) error = %v", tc.input, err)
			}

			var want []float64
			if err := json.Unmarshal([]byte(tc.input), &want); err != nil {
				t.Fatalf("json.Unmarshal(%q) error = %v", tc.input, err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("unmarshalFloats(%q) = %v, want %v", tc.input, got, want)
			}
		})
	}
}

func FuzzUnmarshalFloats(f *testing.F) {
	for _, seed := range []string{"[]", "[0]", "[-2.718]", "[1, 2, 3]", "[1e2, 3.4e-5]", "[1 ,2]"} {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, input string) {
		if len(input) > 10000 {
			return
		}
		got, err := unmarshalFloats(input)

		var want []float64
		stdErr := json.Unmarshal([]byte(input), &want)

		// every valid JSON number array must parse identically, the parser
		// is allowed to be more lenient than encoding/json
		if stdErr == nil {
			if err != nil {
				t.Fatalf("unmarshalFloats(%q) error = %v, encoding/json accepted it", input, err)
			}
			if want == nil {
				return
			}
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("unmarshalFloats(%q) = %v, want %v", input, got, want)
			}
		}
	})
}

func TestEncodeMatchesBinaryLittleEndian(t *testing.T) {
	values := []float64{1.23, -4.56, math.Pi, 0, math.Copysign(0, -1), math.MaxFloat64, math.SmallestNonzeroFloat64}

	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, values); err != nil {
		t.Fatal(err)
	}

	if got := EncodeFloat64s(values); !bytes.Equal(got, buf.Bytes()) {
		t.Errorf("EncodeFloat64s = %v, want %v", got, buf.Bytes())
	}
}

func TestDecodeFloat64s(t *testing.T) {
	tests := []struct {
		name   string
		input  []byte
		want   []float64
		errMsg string
	}{
		{name: "Empty", input: []byte{}, want: []float64{}},
		{name: "Invalid length", input: []byte{1, 2, 3}, errMsg: "invalid data length: 3 is not divisible by 8"},
		{name: "Single zero", input: make([]byte, 8), want: []float64{0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeFloat64s(tt.input)
			if tt.errMsg != "" {
				if err == nil || err.Error() != tt.errMsg {
					t.Errorf("DecodeFloat64s error = %v, want %q", err, tt.errMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeFloat64s error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DecodeFloat64s = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	embedding := make([]float64, 1536)
	for i := range embedding {
		embedding[i] = math.Sin(float64(i)) / 40
	}

	tests := []struct {
		name  string
		input []float64
	}{
		{name: "Embedding", input: embedding},
		{name: "Special values", input: []float64{math.Inf(1), math.Inf(-1), math.NaN()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, err := DecodeFloat64s(EncodeFloat64s(tt.input))
			if err != nil {
				t.Fatal(err)
			}
			if len(decoded) != len(tt.input) {
				t.Fatalf("length = %d, want %d", len(decoded), len(tt.input))
			}
			for i := range tt.input {
				if math.IsNaN(tt.input[i]) {
					if !math.IsNaN(decoded[i]) {
						t.Errorf("index %d: want NaN, got %v", i, decoded[i])
					}
				} else if tt.input[i] != decoded[i] {
					t.Errorf("index %d: want %v, got %v", i, tt.input[i], decoded[i])
				}
			}
		})
	}
}

func TestDecode(t *testing.T) {
	want := []float64{0.5, -1, 2}

	fromBlob, err := Decode(EncodeFloat64s(want))
	if err != nil || !reflect.DeepEqual(fromBlob, want) {
		t.Errorf("Decode(blob) = %v, %v", fromBlob, err)
	}

	fromText, err := Decode("[0.5, -1, 2]")
	if err != nil || !reflect.DeepEqual(fromText, want) {
		t.Errorf("Decode(text) = %v, %v", fromText, err)
	}

	if _, err := Decode(int64(3)); err == nil {
		t.Error("Decode(int64) should fail")
	}
}
