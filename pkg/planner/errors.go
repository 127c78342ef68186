package planner

import "fmt"

// PlanningError 一次规划过程的失败
// Stage 标识失败发生在哪个阶段（setup/base relation/join search/contract）
type PlanningError struct {
	Stage string
	Err   error
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("planner: %s: %v", e.Stage, e.Err)
}

func (e *PlanningError) Unwrap() error {
	return e.Err
}
