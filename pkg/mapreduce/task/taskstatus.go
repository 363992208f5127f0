package task

type TaskStatus string

const (
	Idle       TaskStatus = "idle"
	InProgress TaskStatus = "in-progress"
	Done       TaskStatus = "done"
)
