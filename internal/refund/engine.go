package refund

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/opensource-finance/moim/internal/domain"
)

// Engine holds compiled policies per tenant and program.
// Lookups fall back from (tenant, program) to (tenant, "*") to ("*", "*").
type Engine struct {
	mu       sync.RWMutex
	compiler *Compiler
	policies map[string]*Policy
	empty    *Policy
}

// NewEngine creates an empty policy engine.
func NewEngine() (*Engine, error) {
	compiler, err := NewCompiler()
	if err != nil {
		return nil, err
	}

	empty, err := compiler.Compile(nil)
	if err != nil {
		return nil, err
	}

	return &Engine{
		compiler: compiler,
		policies: make(map[string]*Policy),
		empty:    empty,
	}, nil
}

// Validate compiles a table without loading it.
func (e *Engine) Validate(table *domain.PolicyTable) error {
	_, err := e.compiler.Compile(table)
	return err
}

// Load compiles and loads one table, replacing any table for the same tenant and program.
func (e *Engine) Load(table *domain.PolicyTable) error {
	p, err := e.compiler.Compile(table)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.policies[policyKey(table.TenantID, table.ProgramID)] = p
	return nil
}

// LoadAll compiles and loads tables. Nothing is loaded if any table fails.
func (e *Engine) LoadAll(tables []*domain.PolicyTable) error {
	compiled, err := e.compileAll(tables)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for key, p := range compiled {
		e.policies[key] = p
	}
	return nil
}

// Reload replaces every loaded policy with tables.
// This enables hot-reloading of policies from the database.
func (e *Engine) Reload(tables []*domain.PolicyTable) error {
	compiled, err := e.compileAll(tables)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.policies = compiled
	return nil
}

func (e *Engine) compileAll(tables []*domain.PolicyTable) (map[string]*Policy, error) {
	compiled := make(map[string]*Policy, len(tables))
	for _, table := range tables {
		p, err := e.compiler.Compile(table)
		if err != nil {
			return nil, fmt.Errorf("policy %s/%s: %w", table.TenantID, table.ProgramID, err)
		}
		compiled[policyKey(table.TenantID, table.ProgramID)] = p
	}
	return compiled, nil
}

// Policy returns the most specific policy for a program.
// The result is never nil; without any table it has no tiers.
func (e *Engine) Policy(tenantID, programID string) *Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, key := range []string{
		policyKey(tenantID, programID),
		policyKey(tenantID, domain.GlobalProgramID),
		policyKey(domain.WildcardTenant, domain.GlobalProgramID),
	} {
		if p, ok := e.policies[key]; ok {
			return p
		}
	}
	return e.empty
}

// Tables returns the loaded tables sorted by tenant and program.
func (e *Engine) Tables() []*domain.PolicyTable {
	e.mu.RLock()
	defer e.mu.RUnlock()

	tables := make([]*domain.PolicyTable, 0, len(e.policies))
	for _, p := range e.policies {
		tables = append(tables, p.table)
	}
	sort.Slice(tables, func(i, j int) bool {
		if tables[i].TenantID != tables[j].TenantID {
			return tables[i].TenantID < tables[j].TenantID
		}
		return tables[i].ProgramID < tables[j].ProgramID
	})
	return tables
}

// Count returns the number of loaded policies.
func (e *Engine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.policies)
}

// PolicyUpdatedEvent is the bus payload of moim.policy.updated.
type PolicyUpdatedEvent struct {
	TenantID  string `json:"tenantId"`
	ProgramID string `json:"programId"`
}

// Watch reloads a table from store whenever any instance publishes moim.policy.updated.
func (e *Engine) Watch(ctx context.Context, bus domain.EventBus, store domain.DepositStore) (domain.Subscription, error) {
	return bus.Subscribe(ctx, domain.WildcardTenant, domain.TopicPolicyUpdated, func(ctx context.Context, msg *domain.Message) error {
		var evt PolicyUpdatedEvent
		if err := json.Unmarshal(msg.Payload, &evt); err != nil {
			return fmt.Errorf("failed to decode policy update: %w", err)
		}

		table, err := store.GetPolicyTable(ctx, evt.TenantID, evt.ProgramID)
		if err != nil {
			return fmt.Errorf("failed to load policy %s/%s: %w", evt.TenantID, evt.ProgramID, err)
		}

		if err := e.Load(table); err != nil {
			return err
		}

		slog.Info("refund policy reloaded",
			"tenant_id", evt.TenantID,
			"program_id", evt.ProgramID,
			"tiers", len(table.Tiers),
		)
		return nil
	})
}

func policyKey(tenantID, programID string) string {
	return tenantID + "|" + programID
}
