package vec

import (
	"database/sql/driver"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"modernc.org/sqlite"
)

// FunctionName is the SQL function registered with the sqlite driver,
// vec_cosine_distance(a, b) = 1 - cos(a, b).
const FunctionName = "vec_cosine_distance"

var (
	distTotal    = atomic.Int64{}
	distDecoding = atomic.Int64{}
	distCount    = atomic.Int64{}
)

// Statistics logs the accumulated cost of vec_cosine_distance calls.
func Statistics(logger *slog.Logger) {
	if distCount.Load() == 0 {
		return
	}
	avg := time.Duration(distTotal.Load() / distCount.Load())
	logger.Debug("vec_cosine_distance stats",
		"count", distCount.Load(),
		"total", time.Duration(distTotal.Load()),
		"decoding", time.Duration(distDecoding.Load()),
		"avg", avg)
}

// CosineSimilarity of two equal length vectors. A zero vector is orthogonal
// to everything.
func CosineSimilarity(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("expected equal length vectors, got %d and %d", len(a), len(b))
	}

	var dotProduct float64
	var normA float64
	var normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

func CosineDistance(a, b []float64) (float64, error) {
	sim, err := CosineSimilarity(a, b)
	if err != nil {
		return 0, err
	}
	return 1 - sim, nil
}

func init() {
	sqlite.MustRegisterDeterministicScalarFunction(FunctionName, 2, func(ctx *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		start := time.Now()
		defer func() {
			distTotal.Add(int64(time.Since(start)))
			distCount.Add(1)
		}()

		if len(args) != 2 {
			return nil, fmt.Errorf("expected 2 arguments, got %d", len(args))
		}
		if args[0] == nil || args[1] == nil {
			return nil, nil
		}

		decodeStart := time.Now()
		left, err := Decode(args[0])
		if err != nil {
			return nil, err
		}
		right, err := Decode(args[1])
		if err != nil {
			return nil, err
		}
		distDecoding.Add(int64(time.Since(decodeStart)))

		return CosineDistance(left, right)
	})
}
