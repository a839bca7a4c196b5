// Package store persists email subscriptions, referrals and balance snapshots.
package store

import (
	"context"
	"errors"
	"strings"

	"github.com/yourorg/vault-bff/internal/model"
)

var (
	// ErrAlreadyExists is returned for a duplicate subscription
	ErrAlreadyExists = errors.New("Already Exists!")
	// ErrInvalidReferral is returned when the referee already has a referrer
	// or is the referrer's own referrer
	ErrInvalidReferral = errors.New("Referrer Already Exists! Or Your referrer cannot be referred by you")
)

// Subscription is an email registered for an address's reports
type Subscription struct {
	Address string `json:"address"`
	Email   string `json:"email"`
}

// Referral links a referee to the address that referred them
type Referral struct {
	Referrer string `json:"referrer"`
	Referee  string `json:"referee"`
}

// ReferralList is an address's referees and its own referrer
type ReferralList struct {
	Referees []Referral `json:"referees"`
	Referrer string     `json:"referrer"`
}

// Store is implemented by Postgres and Memory
type Store interface {
	Subscribe(ctx context.Context, s Subscription) error
	Subscribed(ctx context.Context, address string) (bool, error)
	Refer(ctx context.Context, r Referral) error
	Referrals(ctx context.Context, address string) (ReferralList, error)
	AddSnapshot(ctx context.Context, s model.BalanceSnapshot) error
	Snapshots(ctx context.Context, address string) ([]model.BalanceSnapshot, error)
	Close() error
}

func normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// checkReferral applies the referral rules against existing rows
func checkReferral(existing []Referral, r Referral) error {
	if r.Referee == r.Referrer {
		return ErrInvalidReferral
	}
	for _, row := range existing {
		if row.Referee == r.Referee {
			return ErrInvalidReferral
		}
		if row.Referee == r.Referrer && row.Referrer == r.Referee {
			return ErrInvalidReferral
		}
	}
	return nil
}
