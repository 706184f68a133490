package ordering

import "github.com/pkg/errors"

// Классы ошибок. Сравнивать через errors.Is: более точные ошибки ниже
// оборачивают их.
var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

var (
	ErrQueueNotFound = errors.Wrap(ErrNotFound, "queue")
	ErrNotMember     = errors.Wrap(ErrNotFound, "member")
	ErrAlreadyMember = errors.Wrap(ErrConflict, "already a member")
)

// Unavailable помечает сбой хранилища как временный, запрос можно повторить.
func Unavailable(err error, op string) error {
	if err == nil {
		return nil
	}
	return &storageError{op: op, err: err}
}

type storageError struct {
	op  string
	err error
}

func (e *storageError) Error() string {
	return e.op + ": " + ErrStorageUnavailable.Error() + ": " + e.err.Error()
}

func (e *storageError) Is(target error) bool { return target == ErrStorageUnavailable }

func (e *storageError) Unwrap() error { return e.err }

// Retryable сообщает, можно ли повторить неудачный запрос.
func Retryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}
