package serialshare

import (
	"fmt"
	"strings"
)

type FlowControl int

const (
	FlowControlNone FlowControl = iota
	FlowControlSoftware
	FlowControlHardware
)

func (fc FlowControl) String() string {
	switch fc {
	case FlowControlNone:
		return "none"
	case FlowControlSoftware:
		return "software"
	case FlowControlHardware:
		return "hardware"
	}
	return fmt.Sprintf("flowcontrol(%d)", int(fc))
}

// ParseFlowControl accepts "none", "software" (xon/xoff) and "hardware" (rts/cts).
func ParseFlowControl(s string) (FlowControl, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return FlowControlNone, nil
	case "software", "xonxoff":
		return FlowControlSoftware, nil
	case "hardware", "rtscts":
		return FlowControlHardware, nil
	}
	return FlowControlNone, fmt.Errorf("invalid flow control: %q", s)
}
