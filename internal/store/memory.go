package store

import (
	"context"
	"sort"
	"sync"

	"github.com/yourorg/vault-bff/internal/model"
)

// Memory keeps everything in process. It backs local runs without a database.
type Memory struct {
	mu            sync.RWMutex
	subscriptions []Subscription
	referrals     []Referral
	snapshots     []model.BalanceSnapshot
}

// NewMemory returns an empty store
func NewMemory() *Memory {
	return &Memory{}
}

// Subscribe records s unless the same address and email pair exists
func (m *Memory) Subscribe(_ context.Context, s Subscription) error {
	s.Address = normalize(s.Address)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.subscriptions {
		if row == s {
			return ErrAlreadyExists
		}
	}
	m.subscriptions = append(m.subscriptions, s)
	return nil
}

// Subscribed reports whether address has any subscription
func (m *Memory) Subscribed(_ context.Context, address string) (bool, error) {
	address = normalize(address)
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, row := range m.subscriptions {
		if row.Address == address {
			return true, nil
		}
	}
	return false, nil
}

// Refer records r when the referral rules allow it
func (m *Memory) Refer(_ context.Context, r Referral) error {
	r = Referral{Referrer: normalize(r.Referrer), Referee: normalize(r.Referee)}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := checkReferral(m.referrals, r); err != nil {
		return err
	}
	m.referrals = append(m.referrals, r)
	return nil
}

// Referrals lists address's referees and its referrer
func (m *Memory) Referrals(_ context.Context, address string) (ReferralList, error) {
	address = normalize(address)
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := ReferralList{Referees: []Referral{}}
	for _, row := range m.referrals {
		if row.Referrer == address {
			out.Referees = append(out.Referees, row)
		}
		if row.Referee == address && out.Referrer == "" {
			out.Referrer = row.Referrer
		}
	}
	return out, nil
}

// AddSnapshot appends a balance snapshot
func (m *Memory) AddSnapshot(_ context.Context, s model.BalanceSnapshot) error {
	s.Address = normalize(s.Address)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, s)
	return nil
}

// Snapshots returns address's snapshots oldest first
func (m *Memory) Snapshots(_ context.Context, address string) ([]model.BalanceSnapshot, error) {
	address = normalize(address)
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []model.BalanceSnapshot{}
	for _, s := range m.snapshots {
		if s.Address == address {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TakenAt.Before(out[j].TakenAt) })
	return out, nil
}

// Close is a no-op
func (m *Memory) Close() error { return nil }
