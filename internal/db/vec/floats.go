package vec

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// EncodeFloat64s packs floats as little-endian IEEE 754 values, 8 bytes each.
func EncodeFloat64s(floats []float64) []byte {
	buf := make([]byte, len(floats)*8)
	for i, f := range floats {
		bits := math.Float64bits(f)
		o := i * 8
		buf[o] = byte(bits)
		buf[o+1] = byte(bits >> 8)
		buf[o+2] = byte(bits >> 16)
		buf[o+3] = byte(bits >> 24)
		buf[o+4] = byte(bits >> 32)
		buf[o+5] = byte(bits >> 40)
		buf[o+6] = byte(bits >> 48)
		buf[o+7] = byte(bits >> 56)
	}
	return buf
}

// DecodeFloat64s is the inverse of EncodeFloat64s.
func DecodeFloat64s(data []byte) ([]float64, error) {
	if len(data)%8 != 0 {
		return nil, fmt.Errorf("invalid data length: %d is not divisible by 8", len(data))
	}
	result := make([]float64, len(data)/8)
	for i := range result {
		o := i * 8
		bits := uint64(data[o]) |
			uint64(data[o+1])<<8 |
			uint64(data[o+2])<<16 |
			uint64(data[o+3])<<24 |
			uint64(data[o+4])<<32 |
			uint64(data[o+5])<<40 |
			uint64(data[o+6])<<48 |
			uint64(data[o+7])<<56
		result[i] = math.Float64frombits(bits)
	}
	return result, nil
}

// Decode reads a vector handed to a SQL function, either a BLOB written by
// EncodeFloat64s or a JSON array of numbers stored as TEXT.
func Decode(v any) ([]float64, error) {
	switch t := v.(type) {
	case []byte:
		return DecodeFloat64s(t)
	case string:
		return unmarshalFloats(t)
	default:
		return nil, fmt.Errorf("expected blob or text vector, got %T", v)
	}
}

func unmarshalFloats(jsonStr string) ([]float64, error) {
	startIdx, endIdx := 0, len(jsonStr)-1

	for startIdx < len(jsonStr) && isWhitespace(jsonStr[startIdx]) {
		startIdx++
	}
	for endIdx > startIdx && isWhitespace(jsonStr[endIdx]) {
		endIdx--
	}

	if startIdx >= endIdx || jsonStr[startIdx] != '[' || jsonStr[endIdx] != ']' {
		return nil, errors.New("input is not a JSON array")
	}
	startIdx++
	endIdx--

	// one value per comma, plus one
	commaCount := 0
	for i := startIdx; i <= endIdx; i++ {
		if jsonStr[i] == ',' {
			commaCount++
		}
	}
	result := make([]float64, 0, commaCount+1)

	var numStart int
	inNumber := false
	needComma := false
	expectValue := false

	for i := startIdx; i <= endIdx; i++ {
		char := jsonStr[i]

		switch {
		case char >= '0' && char <= '9' || char == '.' || char == '-' || char == 'e' || char == 'E' || char == '+':
			if !inNumber {
				if needComma {
					return nil, errors.New("missing comma in JSON array")
				}
				numStart = i
				inNumber = true
				expectValue = false
			}

		case isWhitespace(char) || char == ',':
			if inNumber {
				num, err := strconv.ParseFloat(jsonStr[numStart:i], 64)
				if err != nil {
					return nil, err
				}
				result = append(result, num)
				inNumber = false
				needComma = true
			}
			if char == ',' {
				if !needComma {
					return nil, errors.New("unexpected comma in JSON array")
				}
				needComma = false
				expectValue = true
			}

		default:
			return nil, errors.New("invalid character in JSON array")
		}
	}

	if inNumber {
		num, err := strconv.ParseFloat(jsonStr[numStart:endIdx+1], 64)
		if err != nil {
			return nil, err
		}
		result = append(result, num)
	} else if expectValue {
		return nil, errors.New("trailing comma in JSON array")
	}

	return result, nil
}

func isWhitespace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
