package state

import (
	"strconv"

	"github.com/five82/berth/internal/cache"
	"github.com/five82/berth/internal/portainer"
)

const (
	endpointKind  = cache.KindEndpoints
	containerKind = cache.KindContainers
	stackKind     = cache.KindStacks
	selectionKind = cache.KindSelection
)

func stackKey(id int) string { return strconv.Itoa(id) }

// Cache writes are best effort: failures are logged and never reach the caller.

func (c *Coordinator) persistEndpoints(items []portainer.Endpoint) {
	storeAll(c, endpointKind, items, func(e portainer.Endpoint) string { return strconv.Itoa(e.ID) })
}

func (c *Coordinator) persistContainers(items []portainer.Container) {
	storeAll(c, containerKind, items, func(ct portainer.Container) string { return ct.ID })
}

func (c *Coordinator) persistStacks(items []portainer.Stack) {
	storeAll(c, stackKind, items, func(st portainer.Stack) string { return stackKey(st.ID) })
}

func (c *Coordinator) persistSelection(endpointID int) {
	var ids []int
	if endpointID > 0 {
		ids = []int{endpointID}
	}
	storeAll(c, selectionKind, ids, strconv.Itoa)
}

func storeAll[T any](c *Coordinator, kind cache.Kind, items []T, key func(T) string) {
	records := make([]cache.Record, 0, len(items))
	for _, item := range items {
		r, err := cache.NewRecord(key(item), item)
		if err != nil {
			c.logger.Warn().Err(err).Str("kind", string(kind)).Msg("encode cache record")
			return
		}
		records = append(records, r)
	}
	if err := c.cache.Store(kind, records); err != nil {
		c.logger.Warn().Err(err).Str("kind", string(kind)).Msg("cache write failed")
	}
}

func (c *Coordinator) deleteCached(kind cache.Kind, key string) {
	err := c.cache.DeleteWhere(kind, func(r cache.Record) bool { return r.Key == key })
	if err != nil {
		c.logger.Warn().Err(err).Str("kind", string(kind)).Msg("cache delete failed")
	}
}

func (c *Coordinator) clearCache() {
	for _, kind := range []cache.Kind{endpointKind, containerKind, stackKind, selectionKind} {
		if err := c.cache.Store(kind, nil); err != nil {
			c.logger.Warn().Err(err).Str("kind", string(kind)).Msg("cache clear failed")
		}
	}
}

// loadAll decodes every record of kind. Unreadable or malformed data yields
// an empty result.
func loadAll[T any](c *Coordinator, kind cache.Kind) []T {
	records, ok, err := c.cache.FetchAll(kind)
	if err != nil {
		c.logger.Warn().Err(err).Str("kind", string(kind)).Msg("cache read failed")
		return nil
	}
	if !ok {
		return nil
	}
	items := make([]T, 0, len(records))
	for _, r := range records {
		var item T
		if err := r.Decode(&item); err != nil {
			c.logger.Warn().Err(err).Str("kind", string(kind)).Msg("discarding malformed cache")
			return nil
		}
		items = append(items, item)
	}
	return items
}

// LoadCached restores the snapshot from the cache so the UI has data before
// the first refresh. It never fails.
func (c *Coordinator) LoadCached() Snapshot {
	endpoints := loadAll[portainer.Endpoint](c, endpointKind)
	containers := loadAll[portainer.Container](c, containerKind)
	stacks := loadAll[portainer.Stack](c, stackKind)
	selection := loadAll[int](c, selectionKind)

	sortEndpoints(endpoints)
	sortContainers(containers)
	sortStacks(stacks)

	c.mu.Lock()
	if len(selection) == 1 && selection[0] > 0 {
		c.persistedEndpoint = selection[0]
	}
	c.setEndpointsLocked(endpoints)
	if c.snap.Selected != nil {
		c.snap.Containers = containers
		c.snap.ContainerKeys = carryKeys(nil, containers, nil)
	}
	c.snap.Stacks = stacks
	snap := c.snap.clone()
	c.mu.Unlock()

	c.logger.Debug().
		Int("endpoints", len(snap.Endpoints)).
		Int("containers", len(snap.Containers)).
		Int("stacks", len(snap.Stacks)).
		Msg("loaded cached snapshot")
	c.notify()
	return snap
}
