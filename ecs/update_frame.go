package ecs

// UpdateFrame is passed to struct systems on every run.
type UpdateFrame struct {
	DeltaTime float64
	Tick      uint64
	Commands  *Commands
}
