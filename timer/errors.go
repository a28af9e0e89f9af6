package timer

import (
	"errors"
	"fmt"

	"github.com/fixkme/ticktimer/util/errs"
	"go.uber.org/multierr"
)

// ActionError 单个回调的失败, errors.Is(err, errs.ActionFailure) 成立
type ActionError struct {
	Domain  string
	TimerId TimerId
	Tick    Tick
	Name    string
	Err     error
	Panic   any // 回调panic时的值
}

func (e *ActionError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("timer %d(%s) failed at tick %d: %v", e.TimerId, e.Name, e.Tick, e.Err)
	}
	return fmt.Sprintf("timer %d failed at tick %d: %v", e.TimerId, e.Tick, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// Is 匹配 errs.ActionFailure, 回调原始错误通过 Unwrap 匹配
func (e *ActionError) Is(target error) bool {
	return errors.Is(errs.ActionFailure, target)
}

// Failures 拆开 Advance 返回的聚合错误, 只有一个失败时 Advance 直接返回该 *ActionError
func Failures(err error) []*ActionError {
	if ae, ok := err.(*ActionError); ok {
		return []*ActionError{ae}
	}
	var out []*ActionError
	for _, e := range multierr.Errors(err) {
		var ae *ActionError
		if errors.As(e, &ae) {
			out = append(out, ae)
		}
	}
	return out
}
