//go:build !linux

package main

import "github.com/aw4Motion/CANopen4Drives/canbus"

func newPlatformBus(ifname string) (canbus.Bus, error) {
	if err := mustLinux(); err != nil {
		return nil, err
	}
	return nil, nil
}
