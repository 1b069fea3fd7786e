// SPDX-License-Identifier: ice License 1.0

package ws

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/rangeforge/pulse/model"
)

// subscriptionSet tracks the extra scopes layered onto the channel's primary
// scope. It is informational on the client: subscriptions are commands
// re-sent on demand, not state replayed automatically after a reconnect.
type subscriptionSet struct {
	mx     sync.Mutex
	ranges map[string]struct{}
	vms    map[string]struct{}
}

func newSubscriptionSet() *subscriptionSet {
	return &subscriptionSet{
		ranges: make(map[string]struct{}),
		vms:    make(map[string]struct{}),
	}
}

func (s *subscriptionSet) addRange(rangeID string) {
	s.mx.Lock()
	s.ranges[rangeID] = struct{}{}
	s.mx.Unlock()
}

func (s *subscriptionSet) removeRange(rangeID string) {
	s.mx.Lock()
	delete(s.ranges, rangeID)
	s.mx.Unlock()
}

func (s *subscriptionSet) addVM(vmID string) {
	s.mx.Lock()
	s.vms[vmID] = struct{}{}
	s.mx.Unlock()
}

func (s *subscriptionSet) reset() {
	s.mx.Lock()
	s.ranges = make(map[string]struct{})
	s.vms = make(map[string]struct{})
	s.mx.Unlock()
}

func (s *subscriptionSet) snapshot() (ranges, vms []string) {
	s.mx.Lock()
	defer s.mx.Unlock()
	ranges = make([]string, 0, len(s.ranges))
	for rangeID := range s.ranges {
		ranges = append(ranges, rangeID)
	}
	vms = make([]string, 0, len(s.vms))
	for vmID := range s.vms {
		vms = append(vms, vmID)
	}

	return ranges, vms
}

func (m *Manager) Subscribe(rangeID string) error {
	if rangeID == "" {
		return errors.New("subscribe requires a range id")
	}
	if err := m.Send(model.NewSubscribeCommand(rangeID)); err != nil {
		return errors.Wrapf(err, "failed to subscribe to range %v", rangeID)
	}
	m.subs.addRange(rangeID)

	return nil
}

func (m *Manager) Unsubscribe(rangeID string) error {
	if rangeID == "" {
		return errors.New("unsubscribe requires a range id")
	}
	if err := m.Send(model.NewUnsubscribeCommand(rangeID)); err != nil {
		return errors.Wrapf(err, "failed to unsubscribe from range %v", rangeID)
	}
	m.subs.removeRange(rangeID)

	return nil
}

func (m *Manager) SubscribeVM(vmID string) error {
	if vmID == "" {
		return errors.New("subscribe requires a vm id")
	}
	if err := m.Send(model.NewSubscribeVMCommand(vmID)); err != nil {
		return errors.Wrapf(err, "failed to subscribe to vm %v", vmID)
	}
	m.subs.addVM(vmID)

	return nil
}

// Subscriptions returns the extra scopes requested on the current transport.
// The set is cleared on every reconnect; callers that need their extra scopes
// back after a drop must re-issue them.
func (m *Manager) Subscriptions() (ranges, vms []string) {
	return m.subs.snapshot()
}
