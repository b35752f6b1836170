// Package platform hosts the light entities: it adopts backing devices,
// drives entity lifecycle, dispatches commands and keeps the entity
// registry.
package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/cyncd/internal/cync"
	"github.com/dokzlo13/cyncd/internal/eventbus"
	"github.com/dokzlo13/cyncd/internal/ledger"
	"github.com/dokzlo13/cyncd/internal/light"
	"github.com/dokzlo13/cyncd/internal/metrics"
	"github.com/dokzlo13/cyncd/internal/storage"
)

// ErrNotFound is returned for unknown entity IDs.
var ErrNotFound = errors.New("entity not found")

// registryKind is the storage kind for entity registry entries.
const registryKind = "entity"

// RegistryEntry is the persisted record of an adopted entity.
type RegistryEntry struct {
	UniqueID   string           `json:"unique_id"`
	Kind       light.Kind       `json:"kind"`
	Name       string           `json:"name"`
	DeviceInfo light.DeviceInfo `json:"device_info"`
}

// Platform owns the registered light entities.
type Platform struct {
	bus     *eventbus.Bus
	store   *storage.Store
	ledger  *ledger.Ledger
	metrics *metrics.Metrics

	mu       sync.RWMutex
	entities map[string]*light.Entity
}

// New creates a platform. metrics may be nil.
func New(bus *eventbus.Bus, store *storage.Store, l *ledger.Ledger, m *metrics.Metrics) *Platform {
	p := &Platform{
		bus:      bus,
		store:    store,
		ledger:   l,
		metrics:  m,
		entities: make(map[string]*light.Entity),
	}
	if m != nil {
		bus.Subscribe(eventbus.EventTypeStateChanged, p.observe)
	}
	return p
}

// Setup adopts every selected device of hub and reports registry entries
// that no longer match a device.
func (p *Platform) Setup(ctx context.Context, hub *cync.Hub, opts Options) error {
	entities := Discover(hub, opts)
	if err := p.Add(ctx, entities...); err != nil {
		return err
	}

	orphans, err := p.Orphans(ctx)
	if err != nil {
		return err
	}
	for _, entry := range orphans {
		log.Warn().
			Str("unique_id", entry.UniqueID).
			Str("name", entry.Name).
			Msg("Registered entity has no matching device")
	}

	log.Info().Int("entities", len(entities)).Int("orphans", len(orphans)).Msg("Light platform set up")
	return nil
}

// Add registers entities. Entities whose unique ID is already registered
// are skipped.
func (p *Platform) Add(ctx context.Context, entities ...*light.Entity) error {
	for _, e := range entities {
		uid := e.UniqueID()

		p.mu.Lock()
		if _, exists := p.entities[uid]; exists {
			p.mu.Unlock()
			log.Warn().Str("unique_id", uid).Msg("Entity already registered, skipping")
			continue
		}
		p.entities[uid] = e
		count := len(p.entities)
		p.mu.Unlock()

		e.Added(func() {
			p.bus.Publish(eventbus.Event{Type: eventbus.EventTypeStateChanged, UniqueID: uid})
		})

		entry := RegistryEntry{
			UniqueID:   uid,
			Kind:       e.Kind(),
			Name:       e.Name(),
			DeviceInfo: e.DeviceInfo(),
		}
		if err := p.store.Put(ctx, registryKind, uid, entry); err != nil {
			e.WillRemove()
			p.mu.Lock()
			delete(p.entities, uid)
			p.mu.Unlock()
			return fmt.Errorf("failed to register %s: %w", uid, err)
		}

		if p.metrics != nil {
			p.metrics.SetEntities(count)
			p.metrics.Observe(e.State())
		}
		p.bus.Publish(eventbus.Event{Type: eventbus.EventTypeEntityAdded, UniqueID: uid})

		log.Info().
			Str("unique_id", uid).
			Str("kind", string(e.Kind())).
			Str("name", e.Name()).
			Msg("Entity added")
	}
	return nil
}

// Remove unregisters an entity and releases its device.
func (p *Platform) Remove(ctx context.Context, uniqueID string) error {
	p.mu.Lock()
	e, ok := p.entities[uniqueID]
	if ok {
		delete(p.entities, uniqueID)
	}
	count := len(p.entities)
	p.mu.Unlock()

	if !ok {
		return fmt.Errorf("%s: %w", uniqueID, ErrNotFound)
	}

	e.WillRemove()

	if err := p.store.Delete(ctx, registryKind, uniqueID); err != nil {
		return fmt.Errorf("failed to unregister %s: %w", uniqueID, err)
	}
	if p.metrics != nil {
		p.metrics.SetEntities(count)
		p.metrics.Forget(uniqueID, e.Name())
	}
	p.bus.Publish(eventbus.Event{Type: eventbus.EventTypeEntityRemoved, UniqueID: uniqueID})

	log.Info().Str("unique_id", uniqueID).Msg("Entity removed")
	return nil
}

// Shutdown releases every device subscription but keeps the registry.
func (p *Platform) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range p.entities {
		e.WillRemove()
	}
	p.entities = make(map[string]*light.Entity)
}

// Get returns a registered entity.
func (p *Platform) Get(uniqueID string) (*light.Entity, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	e, ok := p.entities[uniqueID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", uniqueID, ErrNotFound)
	}
	return e, nil
}

// Snapshot returns the current state projection of an entity.
func (p *Platform) Snapshot(uniqueID string) (light.State, error) {
	e, err := p.Get(uniqueID)
	if err != nil {
		return light.State{}, err
	}
	return e.State(), nil
}

// List returns every registered entity ordered by unique ID.
func (p *Platform) List() []*light.Entity {
	p.mu.RLock()
	entities := make([]*light.Entity, 0, len(p.entities))
	for _, e := range p.entities {
		entities = append(entities, e)
	}
	p.mu.RUnlock()

	sort.Slice(entities, func(i, j int) bool { return entities[i].UniqueID() < entities[j].UniqueID() })
	return entities
}

// Registry returns every persisted registry entry.
func (p *Platform) Registry(ctx context.Context) ([]RegistryEntry, error) {
	records, err := p.store.List(ctx, registryKind)
	if err != nil {
		return nil, err
	}
	entries := make([]RegistryEntry, 0, len(records))
	for _, rec := range records {
		var entry RegistryEntry
		if err := json.Unmarshal(rec.Payload, &entry); err != nil {
			return nil, fmt.Errorf("registry entry %s: %w", rec.ID, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Orphans returns registry entries without a live entity.
func (p *Platform) Orphans(ctx context.Context) ([]RegistryEntry, error) {
	entries, err := p.Registry(ctx)
	if err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	var orphans []RegistryEntry
	for _, entry := range entries {
		if _, ok := p.entities[entry.UniqueID]; !ok {
			orphans = append(orphans, entry)
		}
	}
	return orphans, nil
}

// ClearRegistry drops every persisted registry entry.
func (p *Platform) ClearRegistry(ctx context.Context) error {
	return p.store.Clear(ctx, registryKind)
}

func (p *Platform) observe(e eventbus.Event) {
	ent, err := p.Get(e.UniqueID)
	if err != nil {
		return
	}
	p.metrics.Observe(ent.State())
}
