package sqlite

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"time"
)

// encodeStrings and decodeStrings carry the []string fields (keywords,
// openLoops, decisionsMade, lexicalFilters, topics, derivedFrom) as a
// JSON array column, mirroring the teacher's preference for plain JSON
// columns over a separate join table for small bounded sets.
func encodeStrings(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func decodeStrings(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	_ = json.Unmarshal([]byte(s), &out)
	return out
}

// encodeEmbedding and decodeEmbedding carry a []float32 vector as a
// little-endian BLOB, the same layout pkg/vector/sqlitevec uses for
// its vec0 virtual table columns.
func encodeEmbedding(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// sqliteTime and fromSqliteTime round-trip time.Time through SQLite's
// DATETIME column via RFC3339Nano so sub-second ordering (turn
// timestamps, lineage creation order) survives storage.
func sqliteTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func fromSqliteTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
