// Package bo tracks the buffer objects one driver instance allocates from the kernel.
//
// The kernel owns placement and remaining capacity. The Manager only remembers what it
// has been handed so that every object can be released on teardown, and it optionally
// enforces per-domain budgets computed by the budget planner.
package bo

import (
	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/radeon-kms/adapter/internal/metrics"
	"github.com/radeon-kms/adapter/internal/utils"
	"github.com/radeon-kms/adapter/kms"
	"github.com/radeon-kms/adapter/memutils"
	"golang.org/x/exp/slog"
)

type budget struct {
	// limit is -1 when the domain has no budget
	limit int
	used  int
}

// Manager allocates, maps and releases buffer objects
type Manager struct {
	logger    *slog.Logger
	allocator kms.BufferAllocator
	pageSize  int
	useMutex  bool

	mutex   utils.OptionalRWMutex
	live    *swiss.Map[kms.BufferHandle, *Object]
	stats   map[kms.Domain]*memutils.Statistics
	budgets map[kms.Domain]*budget
	metrics *metrics.Recorder
}

// Allocate creates a buffer object of at least size bytes in domain. Either a usable
// object is returned or nothing was left behind in the kernel. Failures are not
// retried in another domain: a domain that is out of space returns an error marked
// with kms.ErrOutOfMemory and the caller decides what to do.
//
// An alignment of 0 uses the page size.
func (m *Manager) Allocate(domain kms.Domain, size int, alignment uint, flags AllocateFlags) (*Object, error) {
	m.logger.Debug("Manager::Allocate", slog.String("domain", domain.String()), slog.Int("size", size))

	if !domain.Valid() {
		return nil, errors.Newf("buffer objects cannot be allocated in %s", domain)
	}
	if err := memutils.CheckSize(size, "allocation size"); err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, errors.New("allocation size must be positive")
	}
	if alignment == 0 {
		alignment = uint(m.pageSize)
	}
	if err := memutils.CheckPow2(alignment, "alignment"); err != nil {
		return nil, err
	}

	size = memutils.AlignUp(size, m.pageSize)

	if flags&AllocateWithinBudget != 0 {
		if err := m.reserveBudget(domain, size); err != nil {
			return nil, err
		}
	}

	obj, err := m.create(domain, size, alignment, flags)
	if err != nil {
		if flags&AllocateWithinBudget != 0 {
			m.releaseBudget(domain, size)
		}
		return nil, err
	}

	return obj, nil
}

func (m *Manager) create(domain kms.Domain, size int, alignment uint, flags AllocateFlags) (*Object, error) {
	handle, err := m.allocator.CreateBuffer(domain, size, alignment)
	if err != nil {
		return nil, errors.Wrapf(err, "allocating %d bytes in %s", size, domain)
	}

	obj := &Object{
		handle:    handle,
		domain:    domain,
		size:      size,
		alignment: alignment,
		flags:     flags,
		mapMutex:  utils.NewOptionalMutex(!m.useMutex),
	}

	if flags&AllocateMapped != 0 {
		if _, err := m.Map(obj); err != nil {
			if closeErr := m.allocator.CloseBuffer(handle); closeErr != nil {
				m.logger.Error("failed to close buffer after map failure", slog.Int("handle", int(handle)), slog.Any("error", closeErr))
			}
			return nil, err
		}
	}

	m.mutex.Lock()
	m.live.Put(handle, obj)
	m.stats[domain].AddAllocation(size)
	if obj.mapReferences > 0 {
		m.stats[domain].MappedCount++
	}
	m.mutex.Unlock()

	m.publishDomain(domain)
	memutils.DebugValidate(m)

	return obj, nil
}

func (m *Manager) reserveBudget(domain kms.Domain, size int) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	b := m.budgets[domain]
	if b.limit >= 0 && b.used+size > b.limit {
		return errors.Mark(
			errors.Newf("%d bytes in %s would exceed the budget: %d of %d bytes in use", size, domain, b.used, b.limit),
			kms.ErrOutOfMemory)
	}
	b.used += size
	return nil
}

func (m *Manager) releaseBudget(domain kms.Domain, size int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.budgets[domain].used -= size
}

// Map returns a CPU mapping of obj. While a mapping is held, further calls return the
// same slice and only add a reference. Every Map must be paired with an Unmap.
func (m *Manager) Map(obj *Object) ([]byte, error) {
	m.logger.Debug("Manager::Map", slog.Int("handle", int(obj.handle)))

	obj.mapMutex.Lock()
	defer obj.mapMutex.Unlock()

	if obj.released {
		return nil, errors.Newf("buffer object %d has been released", obj.handle)
	}

	if obj.mapReferences > 0 {
		obj.mapReferences++
		return obj.mapData, nil
	}

	data, err := m.allocator.MapBuffer(obj.handle, obj.size)
	if err != nil {
		return nil, errors.Wrapf(err, "mapping buffer object %d", obj.handle)
	}

	obj.mapData = data
	obj.mapReferences = 1
	m.adjustMapped(obj, 1)
	return data, nil
}

// Unmap drops one mapping reference. The kernel mapping is removed with the last one.
func (m *Manager) Unmap(obj *Object) error {
	m.logger.Debug("Manager::Unmap", slog.Int("handle", int(obj.handle)))

	obj.mapMutex.Lock()
	defer obj.mapMutex.Unlock()

	if obj.mapReferences == 0 {
		return errors.Newf("buffer object %d is not mapped", obj.handle)
	}

	if obj.mapReferences > 1 {
		obj.mapReferences--
		return nil
	}

	if err := m.allocator.UnmapBuffer(obj.handle, obj.mapData); err != nil {
		return errors.Wrapf(err, "unmapping buffer object %d", obj.handle)
	}

	obj.mapData = nil
	obj.mapReferences = 0
	m.adjustMapped(obj, -1)
	return nil
}

func (m *Manager) adjustMapped(obj *Object, delta int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	// Objects mapped during create are counted when they are registered
	if _, live := m.live.Get(obj.handle); live {
		m.stats[obj.domain].MappedCount += delta
	}
}

// Release returns obj to the kernel. Releasing nil or an object that was already
// released does nothing. A mapped object must be unmapped first.
func (m *Manager) Release(obj *Object) error {
	if obj == nil {
		return nil
	}

	m.logger.Debug("Manager::Release", slog.Int("handle", int(obj.handle)))

	released, err := m.release(obj)
	if err != nil || !released {
		return err
	}

	m.publishDomain(obj.domain)
	memutils.DebugValidate(m)
	return nil
}

func (m *Manager) release(obj *Object) (bool, error) {
	obj.mapMutex.Lock()
	defer obj.mapMutex.Unlock()

	if obj.released {
		return false, nil
	}
	if obj.mapReferences > 0 {
		return false, errors.Newf("buffer object %d is still mapped %d times", obj.handle, obj.mapReferences)
	}

	if err := m.allocator.CloseBuffer(obj.handle); err != nil {
		return false, errors.Wrapf(err, "releasing buffer object %d", obj.handle)
	}
	obj.released = true

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.live.Delete(obj.handle)
	m.stats[obj.domain].RemoveAllocation(obj.size)
	if obj.flags&AllocateWithinBudget != 0 {
		m.budgets[obj.domain].used -= obj.size
	}
	return true, nil
}

// SetBudget caps the bytes AllocateWithinBudget may hold in domain. A negative limit
// removes the cap. Objects already allocated are unaffected even if they exceed the
// new limit.
func (m *Manager) SetBudget(domain kms.Domain, limit int) error {
	if !domain.Valid() {
		return errors.Newf("cannot set a budget for %s", domain)
	}
	if limit < 0 {
		limit = -1
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.budgets[domain].limit = limit
	return nil
}

// Budget returns the budget limit for domain (-1 if none) and the bytes charged against it
func (m *Manager) Budget(domain kms.Domain) (limit int, used int) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	b, ok := m.budgets[domain]
	if !ok {
		return -1, 0
	}
	return b.limit, b.used
}

// LiveCount returns the number of objects that have been allocated and not released
func (m *Manager) LiveCount() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return m.live.Count()
}

// Statistics returns the running totals for domain
func (m *Manager) Statistics(domain kms.Domain) memutils.Statistics {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	stats, ok := m.stats[domain]
	if !ok {
		return memutils.Statistics{}
	}
	return *stats
}

// DetailedStatistics walks every live object in domain
func (m *Manager) DetailedStatistics(domain kms.Domain) memutils.DetailedStatistics {
	var stats memutils.DetailedStatistics
	stats.Clear()

	for _, obj := range m.liveObjects() {
		if obj.domain != domain {
			continue
		}
		stats.AddAllocation(obj.size)
		if obj.MapReferences() > 0 {
			stats.MappedCount++
		}
	}
	return stats
}

// liveObjects snapshots the live table so objects can be inspected under their own lock
func (m *Manager) liveObjects() []*Object {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	objects := make([]*Object, 0, m.live.Count())
	m.live.Iter(func(_ kms.BufferHandle, obj *Object) bool {
		objects = append(objects, obj)
		return false
	})
	return objects
}

// Validate checks the running totals against the live object table
func (m *Manager) Validate() error {
	for _, domain := range kms.Domains {
		detailed := m.DetailedStatistics(domain)
		running := m.Statistics(domain)

		if detailed.AllocationCount != running.AllocationCount {
			return errors.Newf("%s: %d live objects but %d counted", domain, detailed.AllocationCount, running.AllocationCount)
		}
		if detailed.AllocationBytes != running.AllocationBytes {
			return errors.Newf("%s: %d live bytes but %d counted", domain, detailed.AllocationBytes, running.AllocationBytes)
		}
		if detailed.MappedCount != running.MappedCount {
			return errors.Newf("%s: %d mapped objects but %d counted", domain, detailed.MappedCount, running.MappedCount)
		}

		// use may exceed a limit lowered by SetBudget
		if _, used := m.Budget(domain); used < 0 {
			return errors.Newf("%s: budget use %d is negative", domain, used)
		}
	}
	return nil
}

// PrintDetailedMap writes per-domain totals and every live object into json
func (m *Manager) PrintDetailedMap(json *jwriter.ObjectState) {
	domains := json.Name("Domains").Object()
	for _, domain := range kms.Domains {
		stats := m.Statistics(domain)
		limit, used := m.Budget(domain)

		d := domains.Name(domain.String()).Object()
		d.Name("AllocationCount").Int(stats.AllocationCount)
		d.Name("AllocationBytes").Int(stats.AllocationBytes)
		d.Name("MappedCount").Int(stats.MappedCount)
		if limit >= 0 {
			d.Name("BudgetLimit").Int(limit)
			d.Name("BudgetUsed").Int(used)
		}
		d.End()
	}
	domains.End()

	objects := json.Name("Objects").Array()
	for _, obj := range m.liveObjects() {
		o := objects.Object()
		obj.printParameters(&o)
		o.End()
	}
	objects.End()
}

// BuildStatsString returns PrintDetailedMap as a JSON document
func (m *Manager) BuildStatsString() string {
	w := jwriter.NewWriter()
	obj := w.Object()
	m.PrintDetailedMap(&obj)
	obj.End()
	return string(w.Bytes())
}

func (m *Manager) publishDomain(domain kms.Domain) {
	if m.metrics == nil {
		return
	}
	stats := m.Statistics(domain)
	m.metrics.SetLiveBuffers(domain.String(), stats.AllocationCount, stats.AllocationBytes)
}
