// Package store serves holdings from the primary database with a local
// fallback copy for outages.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/trogers1052/portfolio-ledger/internal/models"
)

// Policy decides what a read does when the remote store fails
type Policy string

const (
	// PolicyRemoteWins serves the local copy, marked stale, when remote fails
	PolicyRemoteWins Policy = "remote-wins"
	// PolicyRemoteOnly surfaces remote failures
	PolicyRemoteOnly Policy = "remote-only"
)

// ParsePolicy accepts the policy names case-insensitively
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyRemoteWins, PolicyRemoteOnly:
		return p, nil
	case "":
		return PolicyRemoteWins, nil
	default:
		return "", fmt.Errorf("unknown holdings fallback policy %q", s)
	}
}

// Remote is the authoritative holdings store
type Remote interface {
	ListHoldings(ctx context.Context, ownerID string) ([]*models.Holding, error)
}

// Local keeps the last known holdings per owner
type Local interface {
	Load(ctx context.Context, ownerID string) ([]*models.Holding, bool, error)
	Save(ctx context.Context, ownerID string, holdings []*models.Holding) error
	Delete(ctx context.Context, ownerID string) error
}

// Snapshot is the result of a holdings read. Stale is set when the holdings
// came from the local copy.
type Snapshot struct {
	Holdings []*models.Holding
	Stale    bool
}

// Tiered reads through Remote and maintains the Local copy
type Tiered struct {
	remote Remote
	local  Local
	policy Policy
	log    logrus.FieldLogger
}

// NewTiered creates a two-tier reader. A nil local behaves as PolicyRemoteOnly.
func NewTiered(remote Remote, local Local, policy Policy, log logrus.FieldLogger) *Tiered {
	if local == nil {
		policy = PolicyRemoteOnly
	}
	return &Tiered{
		remote: remote,
		local:  local,
		policy: policy,
		log:    log.WithField("component", "holdings_store"),
	}
}

// Holdings returns the owner's holdings
func (t *Tiered) Holdings(ctx context.Context, ownerID string) (Snapshot, error) {
	holdings, err := t.remote.ListHoldings(ctx, ownerID)
	if err == nil {
		if t.local != nil {
			if serr := t.local.Save(ctx, ownerID, holdings); serr != nil {
				t.log.WithError(serr).WithField("owner_id", ownerID).Warn("failed to refresh local holdings")
			}
		}
		return Snapshot{Holdings: holdings}, nil
	}

	if t.policy == PolicyRemoteOnly {
		return Snapshot{}, err
	}

	cached, ok, lerr := t.local.Load(ctx, ownerID)
	if lerr != nil {
		t.log.WithError(lerr).WithField("owner_id", ownerID).Warn("failed to read local holdings")
	}
	if !ok {
		return Snapshot{}, err
	}

	t.log.WithError(err).WithField("owner_id", ownerID).Warn("serving stale holdings")
	return Snapshot{Holdings: cached, Stale: true}, nil
}

// Invalidate drops the owner's local copy
func (t *Tiered) Invalidate(ctx context.Context, ownerID string) error {
	if t.local == nil {
		return nil
	}
	if err := t.local.Delete(ctx, ownerID); err != nil {
		return fmt.Errorf("failed to invalidate local holdings: %w", err)
	}
	return nil
}
