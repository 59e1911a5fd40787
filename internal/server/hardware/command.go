// Package hardware talks to the drawer controllers over MQTT: typed run
// commands for drawers and LEDs, and the card-reader bridge.
package hardware

import (
	"fmt"

	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/common"
)

type CommandKind int

const (
	OpenDrawer CommandKind = iota + 1
	CloseDrawer
	LEDOn
	LEDOff
)

func (k CommandKind) String() string {
	switch k {
	case OpenDrawer:
		return "open_drawer"
	case CloseDrawer:
		return "close_drawer"
	case LEDOn:
		return "led_on"
	case LEDOff:
		return "led_off"
	default:
		return fmt.Sprintf("CommandKind(%d)", int(k))
	}
}

// Command is a validated controller action. Build it with NewDrawerCommand
// or NewLEDCommand.
type Command struct {
	kind   CommandKind
	drawer int
}

// NewDrawerCommand builds an open or close command for drawer (>= 1).
// Any other kind is rejected; LED commands come from NewLEDCommand.
func NewDrawerCommand(kind CommandKind, drawer int) (Command, error) {
	switch kind {
	case OpenDrawer, CloseDrawer:
		if drawer < 1 {
			return Command{}, fmt.Errorf("drawer %d: %w", drawer, common.ErrorInvalidInput)
		}
		return Command{kind: kind, drawer: drawer}, nil
	default:
		return Command{}, fmt.Errorf("%s is not a drawer command: %w", kind, common.ErrorInvalidInput)
	}
}

// NewLEDCommand switches the camera illumination on or off.
func NewLEDCommand(on bool) Command {
	if on {
		return Command{kind: LEDOn}
	}
	return Command{kind: LEDOff}
}

func (c Command) Kind() CommandKind { return c.kind }

func (c Command) Drawer() int { return c.drawer }

// Alias is the name the controller runner knows the action by.
func (c Command) Alias() string {
	switch c.kind {
	case OpenDrawer:
		return fmt.Sprintf("abrir_gaveta_%d", c.drawer)
	case CloseDrawer:
		return fmt.Sprintf("fechar_gaveta_%d", c.drawer)
	case LEDOn:
		return "led_on"
	case LEDOff:
		return "led_off"
	default:
		return ""
	}
}

// Envelope is the JSON published on <base>/<device>/run.
type Envelope struct {
	ReqID    string   `json:"req_id"`
	Alias    string   `json:"alias"`
	Args     []string `json:"args"`
	Mode     string   `json:"mode"`
	TimeoutS float64  `json:"timeout_s"`
}

// Result reports one command. A failed command is a value, not an error.
type Result struct {
	OK      bool      `json:"ok"`
	Topic   string    `json:"topic,omitempty"`
	Payload *Envelope `json:"payload,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// Err returns nil for a successful result and an error wrapping
// common.ErrorHardwareCommandFailed otherwise.
func (r Result) Err() error {
	if r.OK {
		return nil
	}
	return fmt.Errorf("%s: %w", r.Error, common.ErrorHardwareCommandFailed)
}

func failed(msg string) Result {
	return Result{OK: false, Error: msg}
}
