// Package link is the host side of the board connection: it sends run
// configurations and turns the board output back into rows and messages.
package link

import "github.com/itohio/pvstab/pkg/protocol"

// Device defines the interface for boards (real or simulated).
type Device interface {
	Connect() error
	Close() error
	Rows() <-chan Row
	Messages() <-chan string
	Start(cfg protocol.RunConfig) error
	IsConnected() bool
	HWID() string
}

// Ensure Serial implements Device.
var _ Device = (*Serial)(nil)

// Ensure Loopback implements Device.
var _ Device = (*Loopback)(nil)
