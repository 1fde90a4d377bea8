package errors

import "fmt"

type Underflow struct {
	MessageName string
	MsgSize     int
	MinimumSize int
}

func (e *Underflow) Error() string {
	return fmt.Sprintf("Message parsing underflowed (type=%s), provided %d bytes, needed at least %d", e.MessageName, e.MsgSize, e.MinimumSize)
}

type PayloadTooLarge struct {
	MessageName string
	PayloadSize int
	MaximumSize int
}

func (e *PayloadTooLarge) Error() string {
	return fmt.Sprintf("Payload too large for message type %s: %d bytes, limit is %d", e.MessageName, e.PayloadSize, e.MaximumSize)
}

type ShortWrite struct {
	MessageSize  int
	BytesWritten int
}

func (e *ShortWrite) Error() string {
	return fmt.Sprintf("Short write to server: write() returned %d, but message size is %d", e.BytesWritten, e.MessageSize)
}

type ConnectFailed struct {
	Address  string
	Attempts int
	LastErr  error
}

func (e *ConnectFailed) Error() string {
	return fmt.Sprintf("Failed to connect to '%s' after %d attempt(s): %v", e.Address, e.Attempts, e.LastErr)
}

func (e *ConnectFailed) Unwrap() error {
	return e.LastErr
}

type UnsupportedScheme struct {
	ConnectionString string
}

func (e *UnsupportedScheme) Error() string {
	return fmt.Sprintf("Unsupported connection string scheme: '%s'", e.ConnectionString)
}
