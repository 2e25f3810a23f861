// internal/writer/types.go
package writer

import "github.com/tamzrod/cgm-collector/internal/poller"

// StatusPlan locates the collector status block.
type StatusPlan struct {
	Endpoint   string
	UnitID     uint8
	BaseSlot   uint16
	DeviceName string
}

// DataPlan locates the newest-reading window.
type DataPlan struct {
	Endpoint string
	UnitID   uint8
	Address  uint16
}

// Plan is the fully-built export plan. Nil parts are disabled.
type Plan struct {
	Status *StatusPlan
	Data   *DataPlan
}

// Writer delivers attempt results into target memory.
type Writer interface {
	Write(res poller.Result) error
}
