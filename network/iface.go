package network

import (
	"fmt"
	"net"
)

// InterfaceSource reads link state from an OS network interface (wlan0, eth0...).
// The OS supplicant owns association; this only observes the result.
type InterfaceSource struct {
	name string
}

// NewInterfaceSource fails with ErrNetworkInit when the interface does not exist,
// since nothing can make it appear later.
func NewInterfaceSource(name string) (*InterfaceSource, error) {
	if _, err := net.InterfaceByName(name); err != nil {
		return nil, fmt.Errorf("%w: interface %q: %v", ErrNetworkInit, name, err)
	}
	return &InterfaceSource{name: name}, nil
}

func (s *InterfaceSource) LinkState() (LinkState, error) {
	iface, err := net.InterfaceByName(s.name)
	if err != nil {
		return Disconnected, err
	}
	if iface.Flags&net.FlagUp == 0 {
		return Disconnected, nil
	}
	ipnet, err := firstIPv4(iface)
	if err != nil {
		return Disconnected, err
	}
	if ipnet == nil {
		return Connecting, nil
	}
	return Connected, nil
}

func (s *InterfaceSource) IPInfo() (IPInfo, error) {
	iface, err := net.InterfaceByName(s.name)
	if err != nil {
		return IPInfo{}, err
	}
	ipnet, err := firstIPv4(iface)
	if err != nil {
		return IPInfo{}, err
	}
	if ipnet == nil {
		return IPInfo{}, ErrNotConnected
	}
	return IPInfo{
		Interface:    iface.Name,
		HardwareAddr: iface.HardwareAddr.String(),
		IP:           ipnet.IP,
		Mask:         ipnet.Mask,
	}, nil
}

func (s *InterfaceSource) Describe() map[string]any {
	desc := map[string]any{"interface": s.name}
	iface, err := net.InterfaceByName(s.name)
	if err != nil {
		desc["error"] = err.Error()
		return desc
	}
	desc["flags"] = iface.Flags.String()
	desc["mtu"] = iface.MTU
	desc["hwaddr"] = iface.HardwareAddr.String()
	return desc
}

func firstIPv4(iface *net.Interface) (*net.IPNet, error) {
	addrs, err := iface.Addrs()
	if err != nil {
		return nil, err
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 != nil && !ip4.IsUnspecified() {
			return &net.IPNet{IP: ip4, Mask: ipnet.Mask}, nil
		}
	}
	return nil, nil
}
