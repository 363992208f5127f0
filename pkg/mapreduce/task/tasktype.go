package task

type TaskType string

const (
	Map    TaskType = "map"
	Reduce TaskType = "reduce"

	UnknownType TaskType = ""
)
