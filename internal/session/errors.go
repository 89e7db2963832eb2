package session

import "sync"

// ValidationError reports caller-side input the core rejects before any
// store call: an empty room name, a missing identity, an out-of-policy
// avatar file.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message}
}

// errorSlot is the caller-visible record of the most recent failure.
// Interactive operations write it and still return the error; it never
// swallows anything.
type errorSlot struct {
	lock sync.Mutex
	err  error
}

func (s *errorSlot) record(err error) error {
	if err != nil {
		s.lock.Lock()
		s.err = err
		s.lock.Unlock()
	}
	return err
}

// LastError returns the most recently recorded failure, or nil.
func (s *errorSlot) LastError() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.err
}
