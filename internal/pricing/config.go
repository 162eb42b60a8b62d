package pricing

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
)

const (
	defaultWeightStep = 0.5
	defaultCountStep  = 1.0
)

// Product is the pricing view of a catalog product row.
type Product struct {
	ID           string          `json:"id"`
	Slug         string          `json:"slug"`
	Price        float64         `json:"price"`
	IsWeight     bool            `json:"isWeight"`
	IsOnline     bool            `json:"isOnline"`
	MinOrderQty  *float64        `json:"minOrderQty,omitempty"`
	QtyStep      *float64        `json:"qtyStep,omitempty"`
	Stock        float64         `json:"stock"`
	OnlineConfig json.RawMessage `json:"onlineConfig,omitempty"`
}

// Config returns the validated pricing configuration for the product.
func (p Product) Config() Config {
	return NormalizeConfig(p.OnlineConfig, p)
}

// TierKind discriminates exact point prices from bulk range prices.
type TierKind string

const (
	TierExact TierKind = "exact"
	TierBulk  TierKind = "bulk"
)

// Tier is a priced quantity rule. Exact tiers use Qty; bulk tiers use MinQty
// and MaxQty, where a nil MaxQty means the range is unbounded.
type Tier struct {
	ID        string   `json:"id"`
	Label     string   `json:"label"`
	Kind      TierKind `json:"type"`
	Qty       float64  `json:"qty,omitempty"`
	MinQty    float64  `json:"minQty,omitempty"`
	MaxQty    *float64 `json:"maxQty,omitempty"`
	UnitPrice float64  `json:"unitPrice"`
}

// Config holds the quantity rules and price tiers for a single product.
type Config struct {
	Unit     string  `json:"unit"`
	IsWeight bool    `json:"isWeight"`
	MinQty   float64 `json:"minQty"`
	StepQty  float64 `json:"stepQty"`
	Tiers    []Tier  `json:"tiers"`
}

// Sanitized returns a copy whose MinQty and StepQty are guaranteed positive.
// Count configs are raised to whole numbers of at least one.
func (c Config) Sanitized() Config {
	fallback := defaultCountStep
	if c.IsWeight {
		fallback = defaultWeightStep
	}
	if !positive(c.MinQty) {
		c.MinQty = fallback
	}
	if !positive(c.StepQty) {
		c.StepQty = fallback
	}
	if !c.IsWeight {
		c.MinQty = math.Max(1, math.Ceil(c.MinQty))
		c.StepQty = math.Max(1, math.Round(c.StepQty))
	}
	if strings.TrimSpace(c.Unit) == "" {
		c.Unit = defaultUnit(c.IsWeight)
	}
	return c
}

// NormalizeConfig parses the free-form online configuration of a product into
// a validated Config. It never fails: invalid fields fall back to defaults
// derived from the product and invalid tiers are dropped.
func NormalizeConfig(raw json.RawMessage, p Product) Config {
	fallback := defaultCountStep
	if p.IsWeight {
		fallback = defaultWeightStep
	}
	cfg := Config{
		Unit:     defaultUnit(p.IsWeight),
		IsWeight: p.IsWeight,
		MinQty:   positiveOr(p.MinOrderQty, fallback),
		StepQty:  positiveOr(p.QtyStep, fallback),
		Tiers:    []Tier{},
	}

	doc, ok := decodeObject(raw)
	if !ok {
		return cfg
	}
	if unit, ok := doc["unit"].(string); ok && strings.TrimSpace(unit) != "" {
		cfg.Unit = strings.TrimSpace(unit)
	}
	if isWeight, ok := doc["is_weight"].(bool); ok {
		cfg.IsWeight = isWeight
	}
	if v, ok := parseNum(doc["min"]); ok && v > 0 {
		cfg.MinQty = v
	}
	if v, ok := parseNum(doc["step"]); ok && v > 0 {
		cfg.StepQty = v
	}

	options, _ := doc["options"].([]any)
	exact := make([]Tier, 0, len(options))
	bulk := make([]Tier, 0, len(options))
	for _, opt := range options {
		tier, ok := parseTier(opt)
		if !ok {
			continue
		}
		if tier.Kind == TierExact {
			exact = append(exact, tier)
		} else {
			bulk = append(bulk, tier)
		}
	}
	sort.SliceStable(exact, func(i, j int) bool { return exact[i].Qty < exact[j].Qty })
	sort.SliceStable(bulk, func(i, j int) bool { return bulk[i].MinQty < bulk[j].MinQty })
	cfg.Tiers = append(exact, bulk...)
	return cfg
}

func parseTier(v any) (Tier, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return Tier{}, false
	}
	kind, _ := obj["type"].(string)
	label := strings.TrimSpace(stringOf(obj["label"]))
	if (kind != string(TierExact) && kind != string(TierBulk)) || label == "" {
		return Tier{}, false
	}
	price, ok := parseNum(obj["unit_price"])
	if !ok || price < 0 {
		return Tier{}, false
	}
	id := strings.TrimSpace(stringOf(obj["id"]))

	if TierKind(kind) == TierExact {
		qty, ok := parseNum(obj["qty"])
		if !ok || qty <= 0 {
			return Tier{}, false
		}
		if id == "" {
			id = label + "_" + formatNum(qty)
		}
		return Tier{ID: id, Label: label, Kind: TierExact, Qty: qty, UnitPrice: price}, true
	}

	minQty, ok := parseNum(obj["min_qty"])
	if !ok || minQty < 0 {
		return Tier{}, false
	}
	var maxQty *float64
	if rawMax, present := obj["max_qty"]; present && !isBlank(rawMax) {
		m, ok := parseNum(rawMax)
		if !ok || m < minQty {
			return Tier{}, false
		}
		maxQty = &m
	}
	if id == "" {
		id = label + "_" + formatNum(minQty)
	}
	return Tier{ID: id, Label: label, Kind: TierBulk, MinQty: minQty, MaxQty: maxQty, UnitPrice: price}, true
}

func decodeObject(raw json.RawMessage) (map[string]any, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, false
	}
	return doc, true
}

// parseNum accepts JSON numbers and numeric strings, including a comma as the
// decimal separator. Missing values and blank strings are not numbers.
func parseNum(v any) (float64, bool) {
	var s string
	switch n := v.(type) {
	case json.Number:
		s = n.String()
	case float64:
		return n, finite(n)
	case string:
		s = strings.Replace(strings.TrimSpace(n), ",", ".", 1)
	default:
		return 0, false
	}
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || !finite(f) {
		return 0, false
	}
	return f, true
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func stringOf(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	default:
		return ""
	}
}

func formatNum(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func defaultUnit(isWeight bool) string {
	if isWeight {
		return "kg"
	}
	return "pcs"
}

func positiveOr(v *float64, fallback float64) float64 {
	if v != nil && positive(*v) {
		return *v
	}
	return fallback
}

func positive(v float64) bool {
	return finite(v) && v > 0
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
