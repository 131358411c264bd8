package call

import (
	"context"
	"log/slog"

	"eldercare-platform/internal/media"
)

// Devices is the enumerated capture hardware, in provider order.
type Devices struct {
	Cameras     []media.Device `json:"cameras"`
	Microphones []media.Device `json:"microphones"`

	// enumerationFailed lets track creation still try the default devices.
	enumerationFailed bool
}

// Inventory lists capture devices. Listing is read-only and never fails.
type Inventory struct {
	provider media.Provider
	log      *slog.Logger
}

func NewInventory(provider media.Provider, log *slog.Logger) *Inventory {
	if log == nil {
		log = slog.Default()
	}
	return &Inventory{provider: provider, log: log}
}

// List partitions enumerated devices by kind. Unknown kinds are dropped and
// an enumeration failure yields empty lists.
func (i *Inventory) List(ctx context.Context) Devices {
	all, err := i.provider.EnumerateDevices(ctx)
	if err != nil {
		i.log.Warn("device enumeration failed", "err", err)
		return Devices{Cameras: []media.Device{}, Microphones: []media.Device{}, enumerationFailed: true}
	}
	out := Devices{Cameras: []media.Device{}, Microphones: []media.Device{}}
	for _, d := range all {
		switch d.Kind {
		case media.DeviceCamera:
			out.Cameras = append(out.Cameras, d)
		case media.DeviceMicrophone:
			out.Microphones = append(out.Microphones, d)
		}
	}
	return out
}
