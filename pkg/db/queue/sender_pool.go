package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/erain9/pairbook/pkg/messaging"
	"github.com/rs/zerolog/log"
)

// DefaultPoolSize is the number of senders a pool keeps when none is given
const DefaultPoolSize = 32

// SenderFactory creates a connected sender
type SenderFactory func() (messaging.MessageSender, error)

// SenderPool is a bounded pool of senders. It implements
// messaging.MessageSender, so it can be handed to the order book directly.
type SenderPool struct {
	senders chan messaging.MessageSender
	factory SenderFactory
	closed  bool
	mu      sync.RWMutex
}

// NewSenderPool pre-populates a pool of size senders built by factory. It
// fails only if no sender at all could be created.
func NewSenderPool(size int, factory SenderFactory) (*SenderPool, error) {
	if size <= 0 {
		size = DefaultPoolSize
	}

	pool := &SenderPool{
		senders: make(chan messaging.MessageSender, size),
		factory: factory,
	}

	var errs []error
	for i := 0; i < size; i++ {
		sender, err := factory()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		pool.senders <- sender
	}
	if len(pool.senders) == 0 {
		return nil, fmt.Errorf("failed to create any sender: %w", errors.Join(errs...))
	}
	if len(errs) > 0 {
		log.Warn().Int("created", len(pool.senders)).Int("requested", size).Msg("Sender pool partially filled")
	}
	return pool, nil
}

// NewQueueSenderPool creates a pool of sarama senders
func NewQueueSenderPool(size int) (*SenderPool, error) {
	return NewSenderPool(size, func() (messaging.MessageSender, error) {
		return NewQueueMessageSender()
	})
}

// Get takes a sender from the pool, waiting until one is free
func (p *SenderPool) Get(ctx context.Context) (messaging.MessageSender, error) {
	select {
	case sender, ok := <-p.senders:
		if !ok {
			return nil, errors.New("sender pool is closed")
		}
		return sender, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Put returns a sender to the pool
func (p *SenderPool) Put(sender messaging.MessageSender) {
	if sender == nil {
		return
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		_ = sender.Close()
		return
	}

	select {
	case p.senders <- sender:
	default:
		log.Warn().Msg("Sender pool is full")
		_ = sender.Close()
	}
}

// SendSettlement sends msg with a pooled sender. A sender that fails is
// closed and replaced.
func (p *SenderPool) SendSettlement(ctx context.Context, msg *messaging.SettlementMessage) error {
	sender, err := p.Get(ctx)
	if err != nil {
		return err
	}

	if err := sender.SendSettlement(ctx, msg); err != nil {
		_ = sender.Close()
		if replacement, ferr := p.factory(); ferr == nil {
			p.Put(replacement)
		} else {
			log.Error().Err(ferr).Msg("Failed to replace sender")
		}
		return err
	}

	p.Put(sender)
	return nil
}

// Len returns the number of idle senders
func (p *SenderPool) Len() int {
	return len(p.senders)
}

// Close closes every idle sender. Senders in use are closed when returned.
func (p *SenderPool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.senders)
	p.mu.Unlock()

	var errs []error
	for sender := range p.senders {
		if err := sender.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ messaging.MessageSender = (*SenderPool)(nil)
