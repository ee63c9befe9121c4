package bo

import (
	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/radeon-kms/adapter/internal/metrics"
	"github.com/radeon-kms/adapter/internal/utils"
	"github.com/radeon-kms/adapter/kms"
	"github.com/radeon-kms/adapter/memutils"
	"golang.org/x/exp/slog"
)

const defaultPageSize = 4096

// CreateOptions contains optional settings when creating a Manager
type CreateOptions struct {
	// ExternallySynchronized disables internal locking. The caller must guarantee that
	// the Manager and its objects are only used from one goroutine at a time.
	ExternallySynchronized bool
	// PageSize is the kernel's allocation granularity. Every size is rounded up to it.
	// Defaults to 4096.
	PageSize int
	// Budgets optionally caps AllocateWithinBudget requests per domain, in bytes
	Budgets map[kms.Domain]int
	// Metrics receives live buffer counts. May be nil.
	Metrics *metrics.Recorder
}

// New creates a Manager that allocates buffer objects through allocator
func New(logger *slog.Logger, allocator kms.BufferAllocator, options CreateOptions) (*Manager, error) {
	if allocator == nil {
		return nil, errors.New("bo.New requires a BufferAllocator")
	}

	pageSize := options.PageSize
	if pageSize == 0 {
		pageSize = defaultPageSize
	}
	if err := memutils.CheckPow2(pageSize, "bo.CreateOptions.PageSize"); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	manager := &Manager{
		logger:    logger,
		allocator: allocator,
		pageSize:  pageSize,
		useMutex:  !options.ExternallySynchronized,
		mutex:     utils.NewOptionalRWMutex(options.ExternallySynchronized),
		live:      swiss.NewMap[kms.BufferHandle, *Object](42),
		stats:     make(map[kms.Domain]*memutils.Statistics),
		budgets:   make(map[kms.Domain]*budget),
		metrics:   options.Metrics,
	}

	for _, domain := range kms.Domains {
		manager.stats[domain] = &memutils.Statistics{}
		manager.budgets[domain] = &budget{limit: -1}
	}

	for domain, limit := range options.Budgets {
		if err := manager.SetBudget(domain, limit); err != nil {
			return nil, err
		}
	}

	return manager, nil
}
