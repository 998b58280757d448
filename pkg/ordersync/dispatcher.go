package ordersync

import (
	"context"
	"sync"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// Dispatcher runs detached tasks that outlive the call that started them.
type Dispatcher interface {
	Go(task func(ctx context.Context))
	// Wait blocks until every task started so far has finished or ctx is
	// done, whichever comes first.
	Wait(ctx context.Context) error
}

// ActorDispatcher spawns one short-lived actor per task. The actor runs the
// task when it starts and stops itself afterwards.
type ActorDispatcher struct {
	system *actor.ActorSystem
	logger *zap.Logger
	wg     sync.WaitGroup
}

func NewActorDispatcher(system *actor.ActorSystem, logger *zap.Logger) *ActorDispatcher {
	if system == nil {
		system = actor.NewActorSystem()
	}
	return &ActorDispatcher{system: system, logger: logger.Named("dispatcher")}
}

func (d *ActorDispatcher) Go(task func(ctx context.Context)) {
	d.wg.Add(1)
	props := actor.PropsFromProducer(func() actor.Actor {
		return &taskActor{task: task, done: d.wg.Done, logger: d.logger}
	})
	d.system.Root.Spawn(props)
}

// Wait returns ctx.Err() if tasks are still running when ctx ends. Those
// tasks keep running; a hung one is abandoned, not cancelled.
func (d *ActorDispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type taskActor struct {
	task   func(ctx context.Context)
	done   func()
	logger *zap.Logger
}

func (a *taskActor) Receive(ctx actor.Context) {
	switch ctx.Message().(type) {
	case *actor.Started:
		defer a.done()
		defer ctx.Stop(ctx.Self())
		defer func() {
			if r := recover(); r != nil {
				a.logger.Error("detached task panicked", zap.Any("panic", r))
			}
		}()
		a.task(context.Background())
	}
}
