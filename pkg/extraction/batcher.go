package extraction

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	stringpool "github.com/ajitpratap0/bioetl/pkg/strings"
)

// LengthFunc returns the encoded length of the request that would carry ids.
type LengthFunc func(ids []string) int

// FilterQueryLength measures the encoded query string
// "<filterParam>=<id,id,...>&only=<field,...>" for a batch.
func FilterQueryLength(filterParam string, fields []string) LengthFunc {
	only := strings.Join(fields, ",")
	return func(ids []string) int {
		qb := stringpool.NewQueryBuilder()
		defer qb.Close()
		qb.AddParam(filterParam, strings.Join(ids, ","))
		if only != "" {
			qb.AddParam("only", only)
		}
		return qb.Len()
	}
}

// Batcher groups identifiers into request batches bounded by count and by
// encoded URL length. It never reorders its input.
type Batcher struct {
	BatchSize    int
	MaxURLLength int
	Length       LengthFunc
	Logger       *zap.Logger
}

// Chunk accumulates ids into batches, flushing before an id that would break
// either bound. An id too long to fit even alone is emitted as a singleton
// batch and logged.
func (b Batcher) Chunk(ids []string) [][]string {
	if len(ids) == 0 {
		return nil
	}
	size := b.BatchSize
	if size < 1 {
		size = 1
	}

	var batches [][]string
	var current []string
	for _, id := range ids {
		candidate := append(current[:len(current):len(current)], id)
		if len(current) > 0 && (len(candidate) > size || b.length(candidate) > b.MaxURLLength) {
			batches = append(batches, b.flush(current))
			current = []string{id}
			continue
		}
		current = candidate
	}
	if len(current) > 0 {
		batches = append(batches, b.flush(current))
	}
	return batches
}

func (b Batcher) flush(batch []string) []string {
	if len(batch) == 1 && b.MaxURLLength > 0 && b.length(batch) > b.MaxURLLength {
		b.logger().Warn("identifier exceeds max url length on its own",
			zap.String("id", batch[0]),
			zap.Int("length", b.length(batch)),
			zap.Int("max_url_length", b.MaxURLLength))
	}
	return batch
}

func (b Batcher) length(ids []string) int {
	if b.Length == nil {
		return 0
	}
	return b.Length(ids)
}

func (b Batcher) logger() *zap.Logger {
	if b.Logger == nil {
		return zap.NewNop()
	}
	return b.Logger
}

// SplitByURLLength splits ids purely by URL length: the whole set is kept
// when it fits, otherwise it is halved at the midpoint and each half split
// again. A single id is always returned, even when it does not fit.
func SplitByURLLength(ids []string, maxLen int, length LengthFunc) [][]string {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) == 1 || length(ids) <= maxLen {
		return [][]string{ids}
	}
	mid := len(ids) / 2
	left := SplitByURLLength(ids[:mid:mid], maxLen, length)
	return append(left, SplitByURLLength(ids[mid:], maxLen, length)...)
}

// NormalizeIDs trims, de-duplicates and sorts identifiers so batching and
// therefore fetch order are deterministic. Empty ids are dropped.
func NormalizeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
