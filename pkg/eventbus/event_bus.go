package eventbus

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/sirupsen/logrus"
)

var ErrNoSubscribers = errors.New("eventbus: no matching subscribers")

// EventBus dispatches events to every subscribed func whose parameter list
// matches the published arguments.
type EventBus interface {
	Publish(args ...any)
	PublishE(args ...any) error
	Subscribe(handler any)
	SubscribersCount() int
}

type publisherImpl struct {
	log *logrus.Entry

	mu       sync.RWMutex
	handlers []reflect.Value
}

func NewEventPublisher(log *logrus.Logger) EventBus {
	return &publisherImpl{log: logrus.NewEntry(log).WithField("component", "eventbus")}
}

func MatchSignature(handler any, args []any) bool {
	t := reflect.TypeOf(handler)
	if t == nil || t.Kind() != reflect.Func || t.NumIn() != len(args) {
		return false
	}
	for i, arg := range args {
		paramType := t.In(i)
		if arg == nil {
			if paramType.Kind() != reflect.Interface && paramType.Kind() != reflect.Ptr {
				return false
			}
			continue
		}
		if !reflect.TypeOf(arg).AssignableTo(paramType) {
			return false
		}
	}
	return true
}

// Publish calls matching handlers synchronously. A panicking handler is
// logged and does not stop the others.
func (p *publisherImpl) Publish(args ...any) {
	if err := p.PublishE(args...); err != nil {
		if errors.Is(err, ErrNoSubscribers) {
			p.log.Debugf("no matching subscribers for %d args", len(args))
			return
		}
		p.log.WithError(err).Error("event handler failed")
	}
}

// PublishE is Publish that also collects errors returned by handlers of
// signature func(...) error.
func (p *publisherImpl) PublishE(args ...any) error {
	p.mu.RLock()
	handlers := make([]reflect.Value, len(p.handlers))
	copy(handlers, p.handlers)
	p.mu.RUnlock()

	handled := false
	var errs []error
	for _, h := range handlers {
		if !MatchSignature(h.Interface(), args) {
			continue
		}
		handled = true
		if err := call(h, argValues(h.Type(), args)); err != nil {
			errs = append(errs, err)
		}
	}
	if !handled {
		return ErrNoSubscribers
	}
	return errors.Join(errs...)
}

// argValues converts args for h; untyped nils become zero values of the
// parameter type.
func argValues(t reflect.Type, args []any) []reflect.Value {
	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		if arg == nil {
			in[i] = reflect.Zero(t.In(i))
			continue
		}
		in[i] = reflect.ValueOf(arg)
	}
	return in
}

func call(h reflect.Value, in []reflect.Value) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("eventbus: handler %s panicked: %v", h.Type(), r)
		}
	}()
	out := h.Call(in)
	if len(out) == 1 && out[0].Type() == reflect.TypeOf((*error)(nil)).Elem() && !out[0].IsNil() {
		return out[0].Interface().(error)
	}
	return nil
}

func (p *publisherImpl) Subscribe(handler any) {
	v := reflect.ValueOf(handler)
	if v.Kind() != reflect.Func {
		panic("handler must be a function")
	}
	p.mu.Lock()
	p.handlers = append(p.handlers, v)
	p.mu.Unlock()
}

func (p *publisherImpl) SubscribersCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.handlers)
}
