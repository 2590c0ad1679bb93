package rtc

import (
	"fmt"
	"strings"
)

// ParseDeviceCatalog reads devices from "kind:id:label" entries separated by
// commas, e.g. "camera:cam0:Front Camera,speaker:default:Default".
func ParseDeviceCatalog(catalog string) ([]Device, error) {
	var devices []Device
	for _, entry := range strings.Split(catalog, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		parts := strings.SplitN(entry, ":", 3)
		if len(parts) < 2 {
			return nil, fmt.Errorf("device entry %q: want kind:id[:label]", entry)
		}

		kind := DeviceKind(strings.TrimSpace(parts[0]))
		if !kind.Valid() {
			return nil, fmt.Errorf("device entry %q: unknown kind %q", entry, kind)
		}
		id := strings.TrimSpace(parts[1])
		if id == "" {
			return nil, fmt.Errorf("device entry %q: empty id", entry)
		}

		label := id
		if len(parts) == 3 && strings.TrimSpace(parts[2]) != "" {
			label = strings.TrimSpace(parts[2])
		}

		devices = append(devices, Device{ID: id, Kind: kind, Label: label})
	}
	return devices, nil
}

// defaultSelection picks the first device of every kind.
func defaultSelection(devices []Device) map[DeviceKind]string {
	selected := make(map[DeviceKind]string)
	for _, d := range devices {
		if _, ok := selected[d.Kind]; !ok {
			selected[d.Kind] = d.ID
		}
	}
	return selected
}
