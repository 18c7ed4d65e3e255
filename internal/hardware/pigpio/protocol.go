package pigpio

import (
	"encoding/binary"
	"fmt"
)

// Command is a pigpio socket command number.
type Command uint32

// Socket commands used by the controller.
const (
	CmdModes Command = 0  // set GPIO mode
	CmdPUD   Command = 2  // set pull-up/down
	CmdRead  Command = 3  // read level
	CmdWrite Command = 4  // write level
	CmdPWM   Command = 5  // set PWM dutycycle
	CmdPRS   Command = 6  // set PWM range
	CmdPFS   Command = 7  // set PWM frequency
	CmdBR1   Command = 10 // read bank 1 (GPIO 0-31)
)

func (c Command) String() string {
	switch c {
	case CmdModes:
		return "MODES"
	case CmdPUD:
		return "PUD"
	case CmdRead:
		return "READ"
	case CmdWrite:
		return "WRITE"
	case CmdPWM:
		return "PWM"
	case CmdPRS:
		return "PRS"
	case CmdPFS:
		return "PFS"
	case CmdBR1:
		return "BR1"
	default:
		return fmt.Sprintf("CMD(%d)", uint32(c))
	}
}

// Mode is a GPIO mode.
type Mode uint32

const (
	ModeInput  Mode = 0
	ModeOutput Mode = 1
)

// Pull is a pull-up/down resistor setting.
type Pull uint32

const (
	PullOff  Pull = 0
	PullDown Pull = 1
	PullUp   Pull = 2
)

// frameSize is the size of both request and response frames.
const frameSize = 16

// encodeRequest builds a command frame without extension data.
func encodeRequest(cmd Command, p1, p2 uint32) []byte {
	frame := make([]byte, frameSize)
	binary.LittleEndian.PutUint32(frame[0:4], uint32(cmd))
	binary.LittleEndian.PutUint32(frame[4:8], p1)
	binary.LittleEndian.PutUint32(frame[8:12], p2)
	binary.LittleEndian.PutUint32(frame[12:16], 0)
	return frame
}

// decodeResponse returns the echoed command and the result word.
func decodeResponse(frame []byte) (Command, int32, error) {
	if len(frame) != frameSize {
		return 0, 0, fmt.Errorf("response frame is %d bytes, want %d", len(frame), frameSize)
	}
	cmd := Command(binary.LittleEndian.Uint32(frame[0:4]))
	res := int32(binary.LittleEndian.Uint32(frame[12:16])) //nolint:gosec // two's complement result word
	return cmd, res, nil
}
