//go:build !linux

package adapter

// FindDevices lists CAN network interfaces, there are none outside linux.
func FindDevices() []string {
	return nil
}
