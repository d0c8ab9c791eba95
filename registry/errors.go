package registry

type ErrInvalidTask struct {
	msg string
}

func (e *ErrInvalidTask) Error() string {
	return e.msg
}

type ErrTaskAlreadyRegistered struct {
	msg string
}

func (e *ErrTaskAlreadyRegistered) Error() string {
	return e.msg
}

type ErrTaskNotFound struct {
	msg string
}

func (e *ErrTaskNotFound) Error() string {
	return e.msg
}
