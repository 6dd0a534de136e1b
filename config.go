package j1939

import (
	"fmt"

	ini "gopkg.in/ini.v1"
)

// Config is the INI-loadable node/connection configuration of
// SPEC_FULL.md §4.7, grounded on the teacher's EDS-via-ini parsing in
// pkg/od/parser.go (same library, generalized from object-dictionary
// entries to node identity / connection parameters).
type Config struct {
	Connection ConnectionConfig
	Name       NameFields
	// PreferredAddress is the [name] section's preferred_address key,
	// consumed by Manager.Acquire rather than the NAME bit pattern itself.
	PreferredAddress uint8
}

// ConnectionConfig is the [connection] section: which CAN backend to open
// and how received frames should be filtered.
type ConnectionConfig struct {
	Interface string // registered can.Bus interface name, e.g. "socketcan"
	Channel   string // interface-specific channel, e.g. "can0"
	Filter    FilterSet
}

// LoadConfig reads a Config from the INI file at path.
func LoadConfig(path string) (*Config, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	return configFromFile(f)
}

func configFromFile(f *ini.File) (*Config, error) {
	connSec := f.Section("connection")
	nameSec := f.Section("name")

	filter, err := parseFilter(connSec.Key("filter").MustString("all"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Connection: ConnectionConfig{
			Interface: connSec.Key("interface").MustString("virtual"),
			Channel:   connSec.Key("channel").String(),
			Filter:    filter,
		},
		Name: NameFields{
			IdentityNumber:        uint32(nameSec.Key("identity_number").MustUint(0)),
			ManufacturerCode:      uint16(nameSec.Key("manufacturer_code").MustUint(0)),
			ECUInstance:           uint8(nameSec.Key("ecu_instance").MustUint(0)),
			FunctionInstance:      uint8(nameSec.Key("function_instance").MustUint(0)),
			Function:              uint8(nameSec.Key("function").MustUint(0)),
			VehicleSystem:         uint8(nameSec.Key("vehicle_system").MustUint(0)),
			VehicleSystemInstance: uint8(nameSec.Key("vehicle_system_instance").MustUint(0)),
			IndustryGroup:         uint8(nameSec.Key("industry_group").MustUint(0)),
			SelfConfigurable:      nameSec.Key("self_configurable").MustBool(false),
		},
		PreferredAddress: uint8(nameSec.Key("preferred_address").MustUint(uint(AddressIdle))),
	}
	return cfg, nil
}

func parseFilter(s string) (FilterSet, error) {
	switch s {
	case "all", "":
		return FilterAcceptAll, nil
	case "addressed":
		return FilterAcceptAddressed, nil
	default:
		return 0, fmt.Errorf("%w: unknown filter mode %q", ErrIllegalArgument, s)
	}
}
