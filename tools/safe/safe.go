package safe

import (
	"fmt"
	"reflect"
	"runtime/debug"

	"PPRealtime/tools/errs"

	"go.uber.org/zap"
)

// MustNotNil panics if the given value is nil.
// Useful for enforcing required collaborators during construction.
func MustNotNil(v any, name string) {
	if v == nil {
		panic(fmt.Sprintf("%s must not be nil", name))
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if rv.IsNil() {
			panic(fmt.Sprintf("%s must not be nil", name))
		}
	}
}

// Recover logs a recovered panic. Call it deferred.
func Recover(log *zap.Logger, name string) {
	if r := recover(); r != nil {
		if log == nil {
			log = zap.L()
		}
		log.Error("panic recovered",
			zap.String("goroutine", name),
			zap.Error(errs.ErrPanic(r)),
			zap.ByteString("stack", debug.Stack()))
	}
}

// SafeGo starts a new goroutine that recovers from panic,
// so that panics don't crash the entire program.
func SafeGo(log *zap.Logger, name string, f func()) {
	go func() {
		defer Recover(log, name)
		f()
	}()
}
