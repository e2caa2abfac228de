package serialshare

import (
	"runtime"
	"sort"
	"strconv"
	"strings"

	"go.bug.st/serial/enumerator"
)

const devicePrefix = `\\.\`

func isValidPortPattern(portName string) bool {
	upper := strings.ToUpper(portName)
	// Windows: COM1-COM999, raw com0com endpoints and \\.\ device paths
	if strings.HasPrefix(upper, "COM") && len(portName) >= 4 && len(portName) <= 6 {
		return true
	}
	if strings.HasPrefix(upper, "CNCA") || strings.HasPrefix(upper, "CNCB") || strings.HasPrefix(portName, devicePrefix) {
		return true
	}
	// Unix/Linux: /dev/tty* or /dev/cu* (macOS)
	if strings.HasPrefix(portName, "/dev/tty") || strings.HasPrefix(portName, "/dev/cu") || strings.HasPrefix(portName, "/dev/pts/") {
		return true
	}
	return false
}

// VirtualDeviceName returns the name to open for a virtual endpoint. Raw
// com0com names (CNCA0, CNCB3) are only reachable through the \\.\ namespace.
func VirtualDeviceName(name string) string {
	if runtime.GOOS != "windows" {
		return name
	}
	if strings.HasPrefix(strings.ToUpper(name), "CNC") && !strings.HasPrefix(name, devicePrefix) {
		return devicePrefix + name
	}
	return name
}

// PortInfo is a port a user may open with a label describing the device.
type PortInfo struct {
	Name    string `json:"port_name"`
	Product string `json:"product_name"`
}

// AvailablePorts lists the ports a user may open, hiding the com0com
// endpoints and sorting COM9 before COM10. Product comes from the USB
// descriptor when there is one. Platforms without detailed enumeration get
// names only, labelled as standard ports.
func AvailablePorts() ([]PortInfo, error) {
	details, err := getDetailedPorts()
	if err != nil {
		names, lerr := getPortsList()
		if lerr != nil {
			return nil, lerr
		}
		details = make([]*enumerator.PortDetails, 0, len(names))
		for _, n := range names {
			details = append(details, &enumerator.PortDetails{Name: n})
		}
	}

	out := make([]PortInfo, 0, len(details))
	for _, d := range details {
		if d == nil || strings.HasPrefix(strings.ToLower(d.Name), "cnc") {
			continue
		}
		out = append(out, PortInfo{Name: d.Name, Product: productName(d)})
	}
	sort.SliceStable(out, func(i, j int) bool { return lessPortName(out[i].Name, out[j].Name) })
	return out, nil
}

func productName(d *enumerator.PortDetails) string {
	switch {
	case d.Product != "":
		return d.Product
	case d.IsUSB:
		return "USB Device"
	default:
		return "Standard Serial Port"
	}
}

// SortPortNames orders names by their first embedded number, falling back to
// plain string order.
func SortPortNames(names []string) {
	sort.SliceStable(names, func(i, j int) bool { return lessPortName(names[i], names[j]) })
}

func lessPortName(a, b string) bool {
	na, okA := portNumber(a)
	nb, okB := portNumber(b)
	if okA && okB && na != nb {
		return na < nb
	}
	return a < b
}

func portNumber(name string) (int, bool) {
	start := strings.IndexAny(name, "0123456789")
	if start < 0 {
		return 0, false
	}
	end := start
	for end < len(name) && name[end] >= '0' && name[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(name[start:end])
	if err != nil {
		return 0, false
	}
	return n, true
}
