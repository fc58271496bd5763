package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/propflow/upkeep/internal/domain"
)

// Memory implements both stores in process, for tests and single-node
// deployments that do not need durability. State
// lives in maps guarded by a single RWMutex; entities are deep-copied on the
// way in and out so callers never alias stored state.
type Memory struct {
	mu            sync.RWMutex
	subscriptions map[string]*domain.Subscription
	instances     map[string]*domain.Instance
	subOrder      []string // creation order, for stable listing
	instOrder     []string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		subscriptions: make(map[string]*domain.Subscription),
		instances:     make(map[string]*domain.Instance),
	}
}

func (m *Memory) CreateSubscription(_ context.Context, sub *domain.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions[sub.ID] = sub.Clone()
	m.subOrder = append(m.subOrder, sub.ID)
	return nil
}

func (m *Memory) GetSubscription(_ context.Context, id string) (*domain.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sub, ok := m.subscriptions[id]
	if !ok {
		return nil, &domain.SubscriptionNotFoundError{SubscriptionID: id}
	}
	return sub.Clone(), nil
}

func (m *Memory) UpdateSubscription(_ context.Context, sub *domain.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subscriptions[sub.ID]; !ok {
		return &domain.SubscriptionNotFoundError{SubscriptionID: sub.ID}
	}
	m.subscriptions[sub.ID] = sub.Clone()
	return nil
}

func (m *Memory) ListSubscriptions(_ context.Context, status domain.SubscriptionStatus) ([]*domain.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Subscription
	for _, id := range m.subOrder {
		sub := m.subscriptions[id]
		if status != "" && sub.Status != status {
			continue
		}
		out = append(out, sub.Clone())
	}
	return out, nil
}

func (m *Memory) ListDueSubscriptions(_ context.Context, before time.Time) ([]*domain.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Subscription
	for _, id := range m.subOrder {
		sub := m.subscriptions[id]
		if sub.Status == domain.SubActive && !sub.NextScheduledDate.After(before) {
			out = append(out, sub.Clone())
		}
	}
	return out, nil
}

func (m *Memory) CreateInstance(_ context.Context, inst *domain.Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instances[inst.ID] = inst.Clone()
	m.instOrder = append(m.instOrder, inst.ID)
	return nil
}

func (m *Memory) GetInstance(_ context.Context, id string) (*domain.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[id]
	if !ok {
		return nil, &domain.InstanceNotFoundError{InstanceID: id}
	}
	return inst.Clone(), nil
}

func (m *Memory) UpdateInstance(_ context.Context, inst *domain.Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.instances[inst.ID]; !ok {
		return &domain.InstanceNotFoundError{InstanceID: inst.ID}
	}
	m.instances[inst.ID] = inst.Clone()
	return nil
}

func (m *Memory) ListInstances(_ context.Context, subscriptionID string) ([]*domain.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Instance
	for _, id := range m.instOrder {
		inst := m.instances[id]
		if inst.SubscriptionID == subscriptionID {
			out = append(out, inst.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ScheduledDate.Before(out[j].ScheduledDate)
	})
	return out, nil
}

func (m *Memory) HasPendingInstance(_ context.Context, subscriptionID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, inst := range m.instances {
		if inst.SubscriptionID == subscriptionID && inst.Status.IsPending() {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) ListPendingBefore(_ context.Context, cutoff time.Time) ([]*domain.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Instance
	for _, id := range m.instOrder {
		inst := m.instances[id]
		if inst.Status.IsPending() && inst.ScheduledDate.Before(cutoff) {
			out = append(out, inst.Clone())
		}
	}
	return out, nil
}

func (m *Memory) CountInstances(_ context.Context) (total, completed int, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, inst := range m.instances {
		total++
		if inst.Status == domain.InstCompleted {
			completed++
		}
	}
	return total, completed, nil
}
