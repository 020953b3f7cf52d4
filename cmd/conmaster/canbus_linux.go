//go:build linux

package main

import "github.com/aw4Motion/CANopen4Drives/canbus"

func newPlatformBus(ifname string) (canbus.Bus, error) {
	return canbus.NewSocketCANBus(ifname), nil
}
