// Package routing implements the topic exchange: dynamic, priority-ordered
// routing rules stored per exchange, with atomic stop-on-match routing
// delegated to the route_message script. The engine itself never matches
// patterns; matching happens server-side so a route is all-or-nothing.
package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/streamworks/relay/pkg/config"
	"github.com/streamworks/relay/pkg/events"
	"github.com/streamworks/relay/pkg/models"
	"github.com/streamworks/relay/pkg/relayerr"
	"github.com/streamworks/relay/pkg/store"
	"github.com/streamworks/relay/pkg/store/scripts"
)

// Key prefixes for the per-exchange rule storage.
const (
	rulesKeyPrefix = "routing:rules:"
	metaKeyPrefix  = "routing:meta:"
)

// Priority bounds for routing rules.
const (
	MinPriority = 1
	MaxPriority = 999
)

// Engine owns rule storage and routing for all exchanges.
type Engine struct {
	store *store.Client
	bus   *events.Bus
	cfg   config.RoutingConfig
}

// New creates a topic-routing engine. bus may be nil (tests).
func New(st *store.Client, bus *events.Bus, cfg config.RoutingConfig) *Engine {
	return &Engine{store: st, bus: bus, cfg: cfg}
}

// Exchange returns the default exchange stream name.
func (e *Engine) Exchange() string {
	return e.cfg.Exchange
}

func rulesKey(exchange string) string { return rulesKeyPrefix + exchange }
func metaKey(exchange string) string  { return metaKeyPrefix + exchange }

// ValidateRule rejects rules the router cannot store or evaluate.
func ValidateRule(rule models.RoutingRule) error {
	if rule.ID == "" {
		return relayerr.Validationf("rule id is required")
	}
	if rule.Pattern == "" {
		return relayerr.Validationf("rule pattern is required")
	}
	if rule.Destination == "" {
		return relayerr.Validationf("rule destination is required")
	}
	if rule.Priority < MinPriority || rule.Priority > MaxPriority {
		return relayerr.Validationf("rule priority must be in [%d, %d], got %d",
			MinPriority, MaxPriority, rule.Priority)
	}
	return nil
}

// SortRules orders rules by (priority asc, id asc), the evaluation order.
func SortRules(rules []models.RoutingRule) {
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})
}

// ListRules returns the exchange's rules in evaluation order, materializing
// the defaults on first use.
func (e *Engine) ListRules(ctx context.Context, exchange string) ([]models.RoutingRule, error) {
	if err := e.ensureDefaults(ctx, exchange); err != nil {
		return nil, err
	}
	raw, err := e.store.HGetAll(ctx, rulesKey(exchange))
	if err != nil {
		return nil, err
	}

	rules := make([]models.RoutingRule, 0, len(raw))
	for id, encoded := range raw {
		var rule models.RoutingRule
		if err := json.Unmarshal([]byte(encoded), &rule); err != nil {
			return nil, relayerr.Wrap(relayerr.KindProtocol,
				fmt.Sprintf("corrupt rule %s on exchange %s", id, exchange), err)
		}
		rules = append(rules, rule)
	}
	SortRules(rules)
	return rules, nil
}

// GetRule returns one rule or ErrNotFound.
func (e *Engine) GetRule(ctx context.Context, exchange, id string) (*models.RoutingRule, error) {
	rules, err := e.ListRules(ctx, exchange)
	if err != nil {
		return nil, err
	}
	for _, rule := range rules {
		if rule.ID == id {
			return &rule, nil
		}
	}
	return nil, store.ErrNotFound
}

// UpsertRule validates and stores a rule, enforcing the exchange's rule
// budget for new ids and bumping the metadata version.
func (e *Engine) UpsertRule(ctx context.Context, exchange string, rule models.RoutingRule) error {
	if err := ValidateRule(rule); err != nil {
		return err
	}
	if err := e.ensureDefaults(ctx, exchange); err != nil {
		return err
	}

	existing, err := e.store.HGetAll(ctx, rulesKey(exchange))
	if err != nil {
		return err
	}
	meta, err := e.Metadata(ctx, exchange)
	if err != nil {
		return err
	}
	if _, known := existing[rule.ID]; !known && len(existing) >= meta.MaxRules {
		return relayerr.Validationf("exchange %s is at its rule limit (%d)", exchange, meta.MaxRules)
	}

	encoded, err := json.Marshal(rule)
	if err != nil {
		return relayerr.Wrap(relayerr.KindInternal, "encoding rule", err)
	}
	if err := e.store.HSet(ctx, rulesKey(exchange), map[string]string{rule.ID: string(encoded)}); err != nil {
		return err
	}
	return e.bumpMeta(ctx, exchange, meta)
}

// DeleteRule removes a rule; the bool reports whether it existed.
func (e *Engine) DeleteRule(ctx context.Context, exchange, id string) (bool, error) {
	n, err := e.store.HDel(ctx, rulesKey(exchange), id)
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	meta, err := e.Metadata(ctx, exchange)
	if err != nil {
		return true, err
	}
	return true, e.bumpMeta(ctx, exchange, meta)
}

// Metadata returns the exchange's rule-set metadata, materializing the
// defaults on first use.
func (e *Engine) Metadata(ctx context.Context, exchange string) (*models.RuleSetMeta, error) {
	if err := e.ensureDefaults(ctx, exchange); err != nil {
		return nil, err
	}
	raw, err := e.store.HGetAll(ctx, metaKey(exchange))
	if err != nil {
		return nil, err
	}
	meta := &models.RuleSetMeta{MaxRules: e.cfg.MaxRules}
	if v, ok := raw["maxRules"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			meta.MaxRules = n
		}
	}
	if v, ok := raw["version"]; ok {
		meta.Version, _ = strconv.ParseInt(v, 10, 64)
	}
	meta.UpdatedAt = raw["updatedAt"]
	meta.Description = raw["description"]
	return meta, nil
}

// UpdateMetadata stores caller-editable metadata fields.
func (e *Engine) UpdateMetadata(ctx context.Context, exchange string, meta models.RuleSetMeta) error {
	if meta.MaxRules < 1 {
		return relayerr.Validationf("maxRules must be at least 1, got %d", meta.MaxRules)
	}
	current, err := e.Metadata(ctx, exchange)
	if err != nil {
		return err
	}
	current.MaxRules = meta.MaxRules
	current.Description = meta.Description
	return e.bumpMeta(ctx, exchange, current)
}

// Reset replaces the exchange's rules with the default set.
func (e *Engine) Reset(ctx context.Context, exchange string) error {
	if err := e.store.Delete(ctx, rulesKey(exchange), metaKey(exchange)); err != nil {
		return err
	}
	return e.writeDefaults(ctx, exchange)
}

// Route appends the payload to the exchange and atomically fans it out to
// every matching destination.
func (e *Engine) Route(ctx context.Context, exchange, routingKey string, payload map[string]interface{}) (*models.RouteResult, error) {
	if routingKey == "" {
		return nil, relayerr.Validationf("routingKey is required")
	}
	if len(payload) == 0 {
		return nil, relayerr.Validationf("payload must not be empty")
	}
	if err := e.ensureDefaults(ctx, exchange); err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, relayerr.Wrap(relayerr.KindValidation, "payload is not JSON-encodable", err)
	}

	reply, err := e.store.RunScript(ctx, scripts.RouteMessage,
		[]string{exchange}, routingKey, string(encoded))
	if err != nil {
		return nil, err
	}
	result, err := scripts.ParseRouteResult(reply)
	if err != nil {
		return nil, err
	}

	if e.bus != nil {
		for _, dest := range result.RoutedTo {
			e.bus.Publish(events.Produced(dest.Stream, dest.ID, map[string]string{
				"_routingKey": routingKey,
			}))
		}
	}
	return result, nil
}

// Clear deletes the exchange stream and the destination streams of the
// current rule set. Rules and metadata survive; use Reset for those.
func (e *Engine) Clear(ctx context.Context, exchange string) error {
	rules, err := e.ListRules(ctx, exchange)
	if err != nil {
		return err
	}
	keys := []string{exchange}
	seen := map[string]bool{exchange: true}
	for _, rule := range rules {
		if !seen[rule.Destination] {
			keys = append(keys, rule.Destination)
			seen[rule.Destination] = true
		}
	}
	return e.store.Delete(ctx, keys...)
}

// SampleRoutingKeys returns example keys exercising the default rule set.
func SampleRoutingKeys() []string {
	return []string{
		"order.created.v1",
		"order.cancelled.vip.eu.v1",
		"order.shipped.eu.v1",
		"payment.captured.v1",
		"notification.vip.email",
		"inventory.restocked.v1",
	}
}

// DefaultRules is the rule set materialized for a fresh exchange.
func DefaultRules() []models.RoutingRule {
	return []models.RoutingRule{
		{
			ID:          "cancelled-audit",
			Pattern:     "^order%.cancelled",
			Destination: "events.audit.cancelled",
			Description: "Cancelled orders go to audit only",
			Priority:    10,
			Enabled:     true,
			StopOnMatch: true,
		},
		{
			ID:          "order-events",
			Pattern:     "^order%.",
			Destination: "events.order.v1",
			Description: "All order events",
			Priority:    100,
			Enabled:     true,
		},
		{
			ID:          "vip-notifications",
			Pattern:     "%.vip%.",
			Destination: "events.notification.vip",
			Description: "Anything VIP-tagged",
			Priority:    110,
			Enabled:     true,
		},
		{
			ID:          "payment-events",
			Pattern:     "^payment%.",
			Destination: "events.payment.v1",
			Description: "All payment events",
			Priority:    120,
			Enabled:     true,
		},
	}
}

// ensureDefaults materializes the default rule set the first time an
// exchange is touched. Presence of the meta hash is the marker.
func (e *Engine) ensureDefaults(ctx context.Context, exchange string) error {
	meta, err := e.store.HGetAll(ctx, metaKey(exchange))
	if err != nil {
		return err
	}
	if len(meta) > 0 {
		return nil
	}
	return e.writeDefaults(ctx, exchange)
}

func (e *Engine) writeDefaults(ctx context.Context, exchange string) error {
	rules := make(map[string]string, len(DefaultRules()))
	for _, rule := range DefaultRules() {
		encoded, err := json.Marshal(rule)
		if err != nil {
			return relayerr.Wrap(relayerr.KindInternal, "encoding default rule", err)
		}
		rules[rule.ID] = string(encoded)
	}
	if err := e.store.HSet(ctx, rulesKey(exchange), rules); err != nil {
		return err
	}
	return e.store.HSet(ctx, metaKey(exchange), map[string]string{
		"maxRules":    strconv.Itoa(e.cfg.MaxRules),
		"version":     "1",
		"updatedAt":   time.Now().UTC().Format(time.RFC3339),
		"description": "topic exchange " + exchange,
	})
}

func (e *Engine) bumpMeta(ctx context.Context, exchange string, meta *models.RuleSetMeta) error {
	return e.store.HSet(ctx, metaKey(exchange), map[string]string{
		"maxRules":    strconv.Itoa(meta.MaxRules),
		"version":     strconv.FormatInt(meta.Version+1, 10),
		"updatedAt":   time.Now().UTC().Format(time.RFC3339),
		"description": meta.Description,
	})
}
