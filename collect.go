package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
)

// Module slice keys. Each UI module persists its own slice under one of
// these; the collector reads whatever is currently present (single-user,
// single-writer, so no cross-slice snapshot is attempted).
const (
	KeyPersonalData       = "retirement-personal-data"
	KeyRetirementData     = "retirement-data"
	KeyRealEstateData     = "immobilier-data"
	KeyRRQCPPData         = "rrq-cpp-data"
	KeyRREGOPData         = "rregop-data"
	KeyGISData            = "srg-data"
	KeyExpensesData       = "depenses-data"
	KeyBudgetData         = "budget-data"
	KeyTaxOptimization    = "optimisation-fiscale-data"
	KeyMonteCarloData     = "monte-carlo-data"
	KeySensitivityData    = "analyse-sensibilite-data"
	KeyScenarioComparison = "comparaison-scenarios-data"
	KeyExpertPlanning     = "planification-expert-data"
	KeyEmergencyPlanning  = "planification-urgence-data"
	KeyEstatePlanning     = "planification-successorale-data"
)

// ModuleSliceKeys lists every known slice, in collection order.
var ModuleSliceKeys = []string{
	KeyPersonalData,
	KeyRetirementData,
	KeyRealEstateData,
	KeyRRQCPPData,
	KeyRREGOPData,
	KeyGISData,
	KeyExpensesData,
	KeyBudgetData,
	KeyTaxOptimization,
	KeyMonteCarloData,
	KeySensitivityData,
	KeyScenarioComparison,
	KeyExpertPlanning,
	KeyEmergencyPlanning,
	KeyEstatePlanning,
}

// UserData is the single aggregated application state document. The four
// top-level sections are required by backup validation; Modules carries
// every raw slice so a restore loses nothing.
type UserData struct {
	Personal   json.RawMessage            `json:"personal"`
	Retirement json.RawMessage            `json:"retirement"`
	Savings    json.RawMessage            `json:"savings"`
	Cashflow   json.RawMessage            `json:"cashflow"`
	Modules    map[string]json.RawMessage `json:"modules,omitempty"`
}

// CollectionResult is the outcome of one full collection pass.
type CollectionResult struct {
	Data           UserData  `json:"data"`
	Checksum       string    `json:"checksum"`
	ModulesPresent []string  `json:"modulesPresent"`
	CollectedAt    time.Time `json:"collectedAt"`
}

// Collector aggregates the per-module store slices into one document.
type Collector struct {
	store Store
	log   Logger
}

func NewCollector(store Store, log Logger) *Collector {
	return &Collector{store: store, log: log}
}

var emptyObject = json.RawMessage(`{}`)

// sectionOrEmpty returns one slice as a JSON value, or {} if absent.
func (c *Collector) sectionOrEmpty(ctx context.Context, key string) json.RawMessage {
	data, err := c.store.Get(ctx, key)
	if err != nil || len(data) == 0 {
		return emptyObject
	}
	if !json.Valid(data) {
		c.log.Warnf("slice %s holds invalid JSON, replaced with empty object", key)
		return emptyObject
	}
	return json.RawMessage(data)
}

// composite builds one section from several slices, keyed by slice name.
func (c *Collector) composite(ctx context.Context, keys ...string) json.RawMessage {
	section := make(map[string]json.RawMessage, len(keys))
	for _, k := range keys {
		section[k] = c.sectionOrEmpty(ctx, k)
	}
	out, err := json.Marshal(section)
	if err != nil {
		return emptyObject
	}
	return out
}

// CollectAllData reads every known module slice, merges the slices into
// one UserData document, and checksums the result. Missing modules leave
// empty sections rather than failing the whole collection.
func (c *Collector) CollectAllData(ctx context.Context) (*CollectionResult, error) {
	data := UserData{
		Personal:   c.sectionOrEmpty(ctx, KeyPersonalData),
		Retirement: c.sectionOrEmpty(ctx, KeyRetirementData),
		Savings:    c.composite(ctx, KeyRealEstateData, KeyRRQCPPData, KeyRREGOPData, KeyGISData),
		Cashflow:   c.composite(ctx, KeyExpensesData, KeyBudgetData),
		Modules:    make(map[string]json.RawMessage),
	}

	var present []string
	for _, key := range ModuleSliceKeys {
		raw, err := c.store.Get(ctx, key)
		if err != nil {
			if errors.Is(err, ErrKeyNotFound) {
				continue
			}
			return nil, fmt.Errorf("failed to read slice %s: %w", key, err)
		}
		if len(raw) == 0 || !json.Valid(raw) {
			continue
		}
		data.Modules[key] = json.RawMessage(raw)
		present = append(present, key)
	}

	serialized, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize collected data: %w", err)
	}

	c.log.Debugf("collected %d of %d module slices", len(present), len(ModuleSliceKeys))
	return &CollectionResult{
		Data:           data,
		Checksum:       RollingChecksum(serialized),
		ModulesPresent: present,
		CollectedAt:    time.Now().UTC(),
	}, nil
}

// RestoreAllData writes a UserData document's module slices back to the
// store. Only the raw module slices are written; the synthesized sections
// are derived data.
func (c *Collector) RestoreAllData(ctx context.Context, data UserData) (int, error) {
	restored := 0
	for _, key := range ModuleSliceKeys {
		raw, ok := data.Modules[key]
		if !ok || len(raw) == 0 {
			continue
		}
		if err := c.store.Put(ctx, key, raw); err != nil {
			return restored, fmt.Errorf("failed to restore slice %s: %w", key, err)
		}
		restored++
	}
	return restored, nil
}

// RollingChecksum is the cheap integrity hash used across backups. Not
// cryptographic: collisions only matter against accidental corruption.
func RollingChecksum(data []byte) string {
	var h uint64 = 1469598103934665603
	for _, b := range data {
		h = h*31 + uint64(b)
	}
	return fmt.Sprintf("%016x", h)
}
