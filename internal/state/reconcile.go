package state

import (
	"cmp"
	"slices"
	"strings"

	"github.com/five82/berth/internal/portainer"
)

// Reconcile pairs each fresh container with the previous container it
// continues. A container keeps its match when its id survives; otherwise a
// previous container that vanished from the fresh list and carries the same
// association key is taken, first match in previous fetch order. The result
// maps fresh id to previous id and omits unmatched containers.
func Reconcile(previous, fresh []portainer.Container) map[string]string {
	matches := make(map[string]string, len(fresh))
	if len(previous) == 0 {
		return matches
	}

	freshIDs := make(map[string]bool, len(fresh))
	for _, c := range fresh {
		freshIDs[c.ID] = true
	}

	used := make(map[string]bool, len(previous))
	byID := make(map[string]bool, len(previous))
	for _, p := range previous {
		byID[p.ID] = true
	}
	for _, c := range fresh {
		if byID[c.ID] {
			matches[c.ID] = c.ID
			used[c.ID] = true
		}
	}

	for _, c := range fresh {
		if _, done := matches[c.ID]; done {
			continue
		}
		key := c.AssociationKey()
		if key == "" {
			continue
		}
		for _, p := range previous {
			if used[p.ID] || freshIDs[p.ID] || p.AssociationKey() != key {
				continue
			}
			matches[c.ID] = p.ID
			used[p.ID] = true
			break
		}
	}
	return matches
}

// carryKeys derives stable keys for fresh from the previous keys.
func carryKeys(previous, fresh []portainer.Container, keys map[string]string) map[string]string {
	matches := Reconcile(previous, fresh)
	out := make(map[string]string, len(fresh))
	for _, c := range fresh {
		prevID, ok := matches[c.ID]
		if !ok {
			out[c.ID] = c.ID
			continue
		}
		if key, ok := keys[prevID]; ok {
			out[c.ID] = key
		} else {
			out[c.ID] = prevID
		}
	}
	return out
}

func sortEndpoints(items []portainer.Endpoint) {
	slices.SortStableFunc(items, func(a, b portainer.Endpoint) int {
		return cmp.Or(cmp.Compare(a.ID, b.ID), strings.Compare(a.Name, b.Name))
	})
}

func sortContainers(items []portainer.Container) {
	slices.SortStableFunc(items, func(a, b portainer.Container) int {
		return cmp.Or(
			strings.Compare(strings.ToLower(a.DisplayName()), strings.ToLower(b.DisplayName())),
			strings.Compare(a.ID, b.ID),
		)
	})
}

func sortStacks(items []portainer.Stack) {
	slices.SortStableFunc(items, func(a, b portainer.Stack) int {
		return cmp.Or(strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)), cmp.Compare(a.ID, b.ID))
	})
}
