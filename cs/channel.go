// Package cs implements the command channel: a bounded buffer of GPU command dwords
// plus the buffer objects they reference, handed to the kernel in batches.
//
// The channel does not enforce domain ceilings itself. It passes them to the kernel
// with every batch and surfaces the kernel's refusal as an error marked
// kms.ErrLimitExceeded.
package cs

import (
	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/radeon-kms/adapter/bo"
	"github.com/radeon-kms/adapter/gpustate"
	"github.com/radeon-kms/adapter/internal/metrics"
	"github.com/radeon-kms/adapter/internal/utils"
	"github.com/radeon-kms/adapter/kms"
	"github.com/radeon-kms/adapter/memutils"
	"golang.org/x/exp/slog"
)

const dwordSize = 4

// CreateOptions contains optional settings when creating a Channel
type CreateOptions struct {
	// ExternallySynchronized disables the channel's mutex
	ExternallySynchronized bool
	// Limits are installed as if passed to SetLimit
	Limits map[kms.Domain]int
	// Bus receives gpustate.ReasonFlush after every batch the kernel accepts. May be nil.
	Bus *gpustate.Bus
	// Metrics counts flushes. May be nil.
	Metrics *metrics.Recorder
}

// Channel queues command dwords and relocations until they are flushed, either
// explicitly or because the buffer is full
type Channel struct {
	logger    *slog.Logger
	submitter kms.Submitter
	bus       *gpustate.Bus
	metrics   *metrics.Recorder

	mutex      utils.OptionalMutex
	commands   []uint32
	relocs     []kms.Reloc
	relocIndex *swiss.Map[kms.BufferHandle, int]
	limits     map[kms.Domain]int

	submitted int
	closed    bool
}

// New creates a channel whose buffer holds bufferSizeBytes of commands
func New(logger *slog.Logger, submitter kms.Submitter, bufferSizeBytes int, options CreateOptions) (*Channel, error) {
	if submitter == nil {
		return nil, errors.New("cs.New requires a Submitter")
	}
	if bufferSizeBytes < dwordSize || !memutils.IsAligned(bufferSizeBytes, dwordSize) {
		return nil, errors.Newf("command buffer size %d must be a positive multiple of %d", bufferSizeBytes, dwordSize)
	}
	if logger == nil {
		logger = slog.Default()
	}

	channel := &Channel{
		logger:     logger,
		submitter:  submitter,
		bus:        options.Bus,
		metrics:    options.Metrics,
		mutex:      utils.NewOptionalMutex(options.ExternallySynchronized),
		commands:   make([]uint32, 0, bufferSizeBytes/dwordSize),
		relocIndex: swiss.NewMap[kms.BufferHandle, int](16),
		limits:     make(map[kms.Domain]int),
	}

	for domain, limit := range options.Limits {
		if err := channel.SetLimit(domain, limit); err != nil {
			return nil, err
		}
	}

	return channel, nil
}

// Capacity returns the buffer size in dwords
func (c *Channel) Capacity() int {
	return cap(c.commands)
}

// Pending returns the number of dwords waiting to be flushed
func (c *Channel) Pending() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return len(c.commands)
}

// PendingRelocs returns the number of distinct buffer objects referenced by the
// pending commands
func (c *Channel) PendingRelocs() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return len(c.relocs)
}

// Submitted returns the number of batches the kernel has accepted
func (c *Channel) Submitted() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.submitted
}

// SetLimit installs the byte ceiling for domain. The kernel rejects batches that
// reference more than this much memory in the domain.
func (c *Channel) SetLimit(domain kms.Domain, bytes int) error {
	if !domain.Valid() {
		return errors.Newf("cannot set a command limit for %s", domain)
	}
	if err := memutils.CheckSize(bytes, "command limit"); err != nil {
		return err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.limits[domain] = bytes
	return nil
}

// Limit returns the ceiling installed for domain
func (c *Channel) Limit(domain kms.Domain) (int, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	limit, ok := c.limits[domain]
	return limit, ok
}

// Reserve makes room for count dwords, flushing first if they do not fit behind the
// pending commands. Callers that add relocations for a packet reserve the packet's
// space first so the packet and its relocations land in the same batch.
func (c *Channel) Reserve(count int) error {
	c.mutex.Lock()
	flushed, err := c.reserve(count)
	c.mutex.Unlock()

	c.afterFlush(flushed)
	return err
}

func (c *Channel) reserve(count int) (bool, error) {
	if c.closed {
		return false, kms.ErrClosed
	}
	if count > cap(c.commands) {
		return false, errors.Newf("%d dwords cannot fit in a %d dword command buffer", count, cap(c.commands))
	}
	if len(c.commands)+count <= cap(c.commands) {
		return false, nil
	}

	return c.flush(true)
}

// Write appends dwords to the buffer. When they do not fit the pending commands are
// flushed first; if that flush fails nothing is written.
func (c *Channel) Write(dwords ...uint32) error {
	c.mutex.Lock()
	flushed, err := c.reserve(len(dwords))
	if err == nil {
		c.commands = append(c.commands, dwords...)
	}
	c.mutex.Unlock()

	c.afterFlush(flushed)
	return err
}

// AddReloc records that the pending commands reference obj. Repeated references to
// the same object in one batch merge their domains.
func (c *Channel) AddReloc(obj *bo.Object, readDomains, writeDomain kms.Domain) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.closed {
		return kms.ErrClosed
	}
	if readDomains == 0 && writeDomain == 0 {
		return errors.Newf("relocation of buffer object %d names no domain", obj.Handle())
	}

	if index, ok := c.relocIndex.Get(obj.Handle()); ok {
		c.relocs[index].ReadDomains |= readDomains
		c.relocs[index].WriteDomain |= writeDomain
		return nil
	}

	c.relocIndex.Put(obj.Handle(), len(c.relocs))
	c.relocs = append(c.relocs, kms.Reloc{
		Handle:      obj.Handle(),
		Size:        obj.Size(),
		ReadDomains: readDomains,
		WriteDomain: writeDomain,
	})
	return nil
}

// Flush hands the pending commands to the kernel. It is safe to call at any time:
// with nothing pending it does nothing and returns nil.
//
// A batch the kernel refuses is dropped and the error returned. Refusals caused by a
// domain ceiling are marked kms.ErrLimitExceeded.
func (c *Channel) Flush() error {
	c.mutex.Lock()
	flushed, err := c.flush(false)
	c.mutex.Unlock()

	c.afterFlush(flushed)
	return err
}

func (c *Channel) flush(implicit bool) (bool, error) {
	if len(c.commands) == 0 {
		return false, nil
	}

	c.logger.Debug("Channel::flush", slog.Int("dwords", len(c.commands)), slog.Int("relocs", len(c.relocs)), slog.Bool("implicit", implicit))

	submission := kms.Submission{
		Commands: append([]uint32(nil), c.commands...),
		Relocs:   append([]kms.Reloc(nil), c.relocs...),
		Limits:   make(map[kms.Domain]int, len(c.limits)),
	}
	for domain, limit := range c.limits {
		submission.Limits[domain] = limit
	}

	err := c.submitter.Submit(submission)

	c.commands = c.commands[:0]
	c.relocs = c.relocs[:0]
	c.relocIndex = swiss.NewMap[kms.BufferHandle, int](16)

	if err != nil {
		if errors.Is(err, kms.ErrLimitExceeded) {
			c.metrics.LimitExceeded()
		}
		return false, errors.Wrapf(err, "submitting %d dwords", len(submission.Commands))
	}

	c.submitted++
	c.metrics.Flushed(implicit)
	return true, nil
}

func (c *Channel) afterFlush(flushed bool) {
	if flushed {
		c.bus.Publish(gpustate.ReasonFlush)
	}
}

// Close flushes anything pending and stops accepting commands. Flush on a closed
// channel stays a no-op.
func (c *Channel) Close() error {
	c.mutex.Lock()
	if c.closed {
		c.mutex.Unlock()
		return nil
	}
	flushed, err := c.flush(false)
	c.closed = true
	c.mutex.Unlock()

	c.afterFlush(flushed)
	return err
}
