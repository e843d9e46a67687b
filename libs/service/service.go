package service

import (
	"context"
	"errors"
	"sync"

	"github.com/bazaarnet/bazaar/libs/log"
)

var (
	// ErrAlreadyStarted is returned when somebody tries to start an already
	// running service.
	ErrAlreadyStarted = errors.New("already started")
	// ErrAlreadyStopped is returned when somebody tries to stop an already
	// stopped service (without resetting it).
	ErrAlreadyStopped = errors.New("already stopped")
)

// Service defines a service that can be started and stopped.
type Service interface {
	// Start is called to start the service, which should run until
	// the context terminates. If the service is already running, Start
	// must report an error.
	Start(context.Context) error

	// Stop the service. Calling Stop on a service that was never
	// started, or that is already stopped, has no effect.
	Stop()

	// Return true if the service is running
	IsRunning() bool

	// String representation of the service
	String() string

	// Wait blocks until the service is stopped.
	Wait()
}

// Implementation describes the implementation that the
// BaseService implementation wraps.
type Implementation interface {
	// Called by the Services Start Method
	OnStart(context.Context) error

	// Called when the service's context is canceled.
	OnStop()
}

/*
BaseService provides the start/stop bookkeeping shared by the server,
the auction coordinator and the inspect endpoint.

Users implement OnStart/OnStop. OnStart is called at most once per
successful Start; OnStop is called exactly once, either when Stop is
called or when the context passed to Start is canceled, whichever comes
first.

Typical usage:

	type FooService struct {
		service.BaseService
		// private fields
	}

	func NewFooService(logger log.Logger) *FooService {
		fs := &FooService{
			// init
		}
		fs.BaseService = *service.NewBaseService(logger, "FooService", fs)
		return fs
	}

	func (fs *FooService) OnStart(ctx context.Context) error {
		// start goroutines bound to ctx
	}

	func (fs *FooService) OnStop() {
		// close/destroy private fields
	}
*/
type BaseService struct {
	logger log.Logger
	name   string
	mtx    sync.Mutex
	quit   <-chan struct{}
	cancel context.CancelFunc

	// The "subclass" of BaseService
	impl Implementation
}

// NewBaseService creates a new BaseService.
func NewBaseService(logger log.Logger, name string, impl Implementation) *BaseService {
	return &BaseService{
		logger: logger,
		name:   name,
		impl:   impl,
	}
}

// Start starts the Service and calls its OnStart method. An error
// will be returned if the service is stopped, but not if it is
// already running.
func (bs *BaseService) Start(ctx context.Context) error {
	bs.mtx.Lock()
	defer bs.mtx.Unlock()

	if bs.quit != nil {
		return ErrAlreadyStarted
	}

	select {
	case <-ctx.Done():
		return ErrAlreadyStopped
	default:
	}

	bs.logger.Info("starting service", "service", bs.name)

	srvCtx, cancel := context.WithCancel(context.Background())
	if err := bs.impl.OnStart(ctx); err != nil {
		cancel()
		return err
	}

	bs.cancel = cancel
	bs.quit = srvCtx.Done()

	go func(ctx context.Context) {
		select {
		case <-srvCtx.Done():
			// this means stop was called manually
			return
		case <-ctx.Done():
			bs.Stop()
		}

		bs.logger.Info("stopped service", "service", bs.name)
	}(ctx)

	return nil
}

// Stop manually terminates the service by calling OnStop method from
// the implementation and releases all resources related to the
// service.
func (bs *BaseService) Stop() {
	bs.mtx.Lock()
	defer bs.mtx.Unlock()

	if bs.quit == nil {
		return
	}

	select {
	case <-bs.quit:
		return
	default:
	}

	bs.logger.Info("stopping service", "service", bs.name)
	bs.impl.OnStop()
	bs.cancel()
}

// IsRunning implements Service by returning true or false depending on the
// service's state.
func (bs *BaseService) IsRunning() bool {
	bs.mtx.Lock()
	defer bs.mtx.Unlock()

	if bs.quit == nil {
		return false
	}

	select {
	case <-bs.quit:
		return false
	default:
		return true
	}
}

func (bs *BaseService) getWait() <-chan struct{} {
	bs.mtx.Lock()
	defer bs.mtx.Unlock()

	if bs.quit == nil {
		out := make(chan struct{})
		close(out)
		return out
	}

	return bs.quit
}

// Wait blocks until the service is stopped.
func (bs *BaseService) Wait() { <-bs.getWait() }

// String provides a human-friendly representation of the service.
func (bs *BaseService) String() string { return bs.name }
