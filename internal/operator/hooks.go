package operator

import (
	"github.com/cinemaleshalles/rapla/internal/entity"
	"github.com/cinemaleshalles/rapla/internal/storage"
)

// DispatchProcessor lets external components inspect changesets around the
// commit. PreProcess runs before any mutation and may veto the whole dispatch
// by returning an error; PostProcess observes the committed result.
type DispatchProcessor interface {
	PreProcess(user *entity.User, evt *storage.UpdateEvent) error
	PostProcess(user *entity.User, evt *storage.UpdateEvent)
}

// RegisterProcessor appends a dispatch processor. Not safe to call
// concurrently with dispatches; register during wiring.
func (o *Operator) RegisterProcessor(p DispatchProcessor) {
	if p != nil {
		o.processors = append(o.processors, p)
	}
}
