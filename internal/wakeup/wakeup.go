// Package wakeup computes which peripheral classes must stay able to wake
// the system during a sleep transaction.
//
// Only devices with a clock constraint during sleep are tracked: the IR
// receiver needs at least 1 MHz, HDMI-CEC needs its 100 MHz interconnect,
// an Ethernet PHY needs its 25 MHz reference. The clock tree keeps every
// domain one of these classes depends on running.
package wakeup

import (
	"fmt"
	"log/slog"
	"strings"
)

// Class is one wake-capable peripheral class.
type Class uint8

const (
	IR Class = iota
	HDMI
	EthPHY
	Eth1PHY
	RTC
	GPIO
	UART

	numClasses
)

var classNames = [numClasses]string{
	IR:      "ir",
	HDMI:    "hdmi",
	EthPHY:  "eth_phy",
	Eth1PHY: "eth1_phy",
	RTC:     "rtc",
	GPIO:    "gpio",
	UART:    "uart",
}

// String returns the configuration name of the class.
func (c Class) String() string {
	if c < numClasses {
		return classNames[c]
	}
	return fmt.Sprintf("class(%d)", uint8(c))
}

// ParseClass converts a configuration name to a Class.
func ParseClass(s string) (Class, error) {
	for c, name := range classNames {
		if name == s {
			return Class(c), nil
		}
	}
	return 0, fmt.Errorf("unknown wakeup class %q", s)
}

// Set is a bitset of Classes. The zero value is the empty set.
type Set uint16

// Of builds a Set from classes.
func Of(classes ...Class) Set {
	var s Set
	for _, c := range classes {
		s = s.With(c)
	}
	return s
}

// With returns s with c added.
func (s Set) With(c Class) Set {
	return s | 1<<c
}

// Has reports whether c is in s.
func (s Set) Has(c Class) bool {
	return s&(1<<c) != 0
}

// Intersects reports whether s and o share a class.
func (s Set) Intersects(o Set) bool {
	return s&o != 0
}

// Classes returns the members in declaration order.
func (s Set) Classes() []Class {
	var out []Class
	for c := Class(0); c < numClasses; c++ {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// Names returns the member names in declaration order.
func (s Set) Names() []string {
	classes := s.Classes()
	names := make([]string, len(classes))
	for i, c := range classes {
		names[i] = c.String()
	}
	return names
}

// String renders s as a comma separated list, or "none".
func (s Set) String() string {
	if s == 0 {
		return "none"
	}
	return strings.Join(s.Names(), ",")
}

// ParseSet parses a comma separated list of class names. "" and "none"
// yield the empty set.
func ParseSet(s string) (Set, error) {
	var set Set
	if s == "" || s == "none" {
		return set, nil
	}
	for _, part := range strings.Split(s, ",") {
		c, err := ParseClass(strings.TrimSpace(part))
		if err != nil {
			return 0, err
		}
		set = set.With(c)
	}
	return set, nil
}

// Device is a peripheral as seen by the bus scan.
type Device struct {
	Name      string `json:"name" yaml:"name"`
	MayWakeup bool   `json:"may_wakeup" yaml:"may_wakeup"`
}

// deviceClasses maps platform device names to the class they wake through.
var deviceClasses = map[string]Class{
	"lirc":        IR,
	"hdmi":        HDMI,
	"stmmaceth":   EthPHY,
	"stmmaceth.0": EthPHY,
	"stmmaceth.1": Eth1PHY,
	"rtc":         RTC,
	"gpio":        GPIO,
	"asc":         UART,
}

// ClassOf returns the class a device name belongs to.
func ClassOf(name string) (Class, bool) {
	c, ok := deviceClasses[name]
	return c, ok
}

// Scan returns the classes of every device allowed to wake the system.
// Devices with unknown names are ignored.
func Scan(devices []Device) Set {
	var set Set
	for _, d := range devices {
		if !d.MayWakeup {
			continue
		}
		c, ok := deviceClasses[d.Name]
		if !ok {
			slog.Debug("wakeup device has no clock constraint", "device", d.Name)
			continue
		}
		slog.Info("device can wake the system", "device", d.Name, "class", c.String())
		set = set.With(c)
	}
	return set
}
