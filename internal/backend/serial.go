package backend

import "context"

// serialEngine funnels all generation calls through one mutex-like slot. The
// underlying runtime holds a single model instance and is not safe for
// concurrent inference, so HTTP handlers may run in parallel but generation
// itself must not.
type serialEngine struct {
	inner Engine
	slot  chan struct{}
}

// Serialize wraps an engine so at most one generation call runs at a time.
// For streams the slot stays held until the stream drains or the caller's
// context is cancelled; a disconnected client therefore releases the model
// promptly instead of pinning it for the rest of the generation.
func Serialize(inner Engine) Engine {
	s := &serialEngine{inner: inner, slot: make(chan struct{}, 1)}
	return s
}

func (s *serialEngine) acquire(ctx context.Context) error {
	select {
	case s.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *serialEngine) release() {
	<-s.slot
}

func (s *serialEngine) Complete(ctx context.Context, params Params) (Result, error) {
	if err := s.acquire(ctx); err != nil {
		return Result{}, err
	}
	defer s.release()
	return s.inner.Complete(ctx, params)
}

func (s *serialEngine) CompleteStream(ctx context.Context, params Params) (<-chan StreamEvent, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}

	inner, err := s.inner.CompleteStream(ctx, params)
	if err != nil {
		s.release()
		return nil, err
	}

	out := make(chan StreamEvent)
	go func() {
		defer close(out)
		defer s.release()
		for ev := range inner {
			select {
			case out <- ev:
			case <-ctx.Done():
				// Consumer is gone; stop forwarding and let the inner
				// producer observe the cancelled context.
				return
			}
		}
	}()
	return out, nil
}
