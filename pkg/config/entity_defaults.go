package config

import (
	"time"

	"github.com/ajitpratap0/bioetl/pkg/errors"
)

// EntityDefaults are the per-entity defaults layered underneath a run's
// SourceConfig. Values are copied on use and never mutated.
type EntityDefaults struct {
	PageSize           int
	MaxPageSize        int
	BatchSize          int
	MaxURLLength       int
	MaxURLLengthCap    int
	HandshakeEndpoint  string
	HandshakeFallbacks []string
	HandshakeEnabled   bool
	HandshakeTimeout   time.Duration
	HandshakeBudget    time.Duration
}

// DefaultEntityDefaults returns the defaults shared by most entities.
func DefaultEntityDefaults() EntityDefaults {
	return EntityDefaults{
		PageSize:          25,
		MaxPageSize:       1000,
		BatchSize:         25,
		MaxURLLength:      2000,
		MaxURLLengthCap:   8000,
		HandshakeEndpoint: "/status.json",
		HandshakeEnabled:  true,
		HandshakeTimeout:  10 * time.Second,
		HandshakeBudget:   30 * time.Second,
	}
}

// Effective is the resolved, entity-typed source configuration of one run.
type Effective struct {
	BaseURL      string
	Disabled     bool
	Fields       []string
	IDs          []string
	IDsFile      string
	PageSize     int
	BatchSize    int
	MaxURLLength int
	Parameters   map[string]string
	Handshake    EffectiveHandshake
}

// EffectiveHandshake is the resolved release discovery setting.
type EffectiveHandshake struct {
	Enabled   bool
	Endpoint  string
	Fallbacks []string
	Timeout   time.Duration
	Budget    time.Duration
}

// Resolve layers src over the defaults. pageSizeCap, when positive, is an
// additional hard cap supplied by the entity descriptor.
func (d EntityDefaults) Resolve(src SourceConfig, pageSizeCap int) (*Effective, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}

	eff := &Effective{
		BaseURL:      src.BaseURL,
		Disabled:     src.Disabled,
		Fields:       append([]string(nil), src.Fields...),
		IDs:          append([]string(nil), src.IDs...),
		IDsFile:      src.IDsFile,
		PageSize:     firstPositive(src.PageSize, d.PageSize),
		BatchSize:    firstPositive(src.BatchSize, d.BatchSize),
		MaxURLLength: firstPositive(src.MaxURLLength, d.MaxURLLength),
		Parameters:   make(map[string]string, len(src.Parameters)),
	}
	for k, v := range src.Parameters {
		eff.Parameters[k] = v
	}

	for _, limit := range []int{d.MaxPageSize, pageSizeCap} {
		if limit > 0 && eff.PageSize > limit {
			eff.PageSize = limit
		}
	}
	if d.MaxURLLengthCap > 0 && eff.MaxURLLength > d.MaxURLLengthCap {
		eff.MaxURLLength = d.MaxURLLengthCap
	}
	// a batch never asks for more ids than one page can return
	if eff.BatchSize > eff.PageSize {
		eff.BatchSize = eff.PageSize
	}

	if eff.PageSize <= 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "page size must be positive")
	}
	if eff.BatchSize <= 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "invalid batch size").
			WithDetail("batch_size", eff.BatchSize)
	}
	if eff.MaxURLLength <= 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "max url length must be positive")
	}

	eff.Handshake = EffectiveHandshake{
		Enabled:   d.HandshakeEnabled,
		Endpoint:  d.HandshakeEndpoint,
		Fallbacks: append([]string(nil), d.HandshakeFallbacks...),
		Timeout:   d.HandshakeTimeout,
		Budget:    d.HandshakeBudget,
	}
	h := src.Handshake
	if h.Enabled != nil {
		eff.Handshake.Enabled = *h.Enabled
	}
	if h.Endpoint != "" {
		eff.Handshake.Endpoint = h.Endpoint
	}
	if len(h.Fallbacks) > 0 {
		eff.Handshake.Fallbacks = append([]string(nil), h.Fallbacks...)
	}
	if h.Timeout > 0 {
		eff.Handshake.Timeout = h.Timeout
	}
	if h.Budget > 0 {
		eff.Handshake.Budget = h.Budget
	}

	return eff, nil
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
