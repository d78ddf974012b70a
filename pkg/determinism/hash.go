package determinism

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"

	"github.com/cespare/xxhash/v2"

	"github.com/ajitpratap0/bioetl/pkg/config"
	"github.com/ajitpratap0/bioetl/pkg/errors"
	jsonpool "github.com/ajitpratap0/bioetl/pkg/json"
	"github.com/ajitpratap0/bioetl/pkg/models"
)

// Hasher computes hex content hashes over a record's fields.
type Hasher struct {
	algo config.HashAlgorithm
	new  func() hash.Hash
}

// NewHasher returns a hasher for algo.
func NewHasher(algo config.HashAlgorithm) (*Hasher, error) {
	h := &Hasher{algo: algo}
	switch algo {
	case config.HashSHA256:
		h.new = sha256.New
	case config.HashSHA512:
		h.new = sha512.New
	case config.HashXXHash64:
		h.new = func() hash.Hash { return xxhash.New() }
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported hash algorithm %q", algo)
	}
	return h, nil
}

// Algorithm returns the hasher's algorithm.
func (h *Hasher) Algorithm() config.HashAlgorithm {
	return h.algo
}

// Hash digests the canonical JSON of [[field, value], ...] over fields in
// the given order. A missing field hashes as null, so adding an empty column
// changes no existing hash.
func (h *Hasher) Hash(r models.Record, fields []string) (string, error) {
	pairs := make([][2]interface{}, len(fields))
	for i, f := range fields {
		pairs[i] = [2]interface{}{f, r[f]}
	}
	payload, err := jsonpool.MarshalCanonical(pairs)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeData, "failed to encode record for hashing")
	}
	d := h.new()
	_, _ = d.Write(payload)
	return hex.EncodeToString(d.Sum(nil)), nil
}

// RowHash hashes fields of r with algo.
func RowHash(r models.Record, fields []string, algo config.HashAlgorithm) (string, error) {
	h, err := NewHasher(algo)
	if err != nil {
		return "", err
	}
	return h.Hash(r, fields)
}
