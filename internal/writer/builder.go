// internal/writer/builder.go
package writer

import (
	"errors"
	"time"

	"github.com/tamzrod/cgm-collector/internal/config"
	wmodbus "github.com/tamzrod/cgm-collector/internal/writer/modbus"
)

// BuildPlan converts the status export config into a Plan.
// Assumes config has already passed validation. A nil config gives an empty plan.
func BuildPlan(c *config.StatusConfig) (Plan, error) {
	if c == nil {
		return Plan{}, nil
	}
	if c.Endpoint == "" {
		return Plan{}, errors.New("writer: status.endpoint required")
	}

	plan := Plan{
		Status: &StatusPlan{
			Endpoint:   c.Endpoint,
			UnitID:     c.UnitID,
			BaseSlot:   c.Slot,
			DeviceName: c.DeviceName,
		},
	}

	if c.DataAddress != nil {
		plan.Data = &DataPlan{
			Endpoint: c.Endpoint,
			UnitID:   c.UnitID,
			Address:  *c.DataAddress,
		}
	}

	return plan, nil
}

// BuildEndpointClients creates one TCP client per unique endpoint in plan.
func BuildEndpointClients(plan Plan, timeout time.Duration) (map[string]RegisterClient, func() error, error) {
	unique := map[string]struct{}{}
	if plan.Status != nil {
		unique[plan.Status.Endpoint] = struct{}{}
	}
	if plan.Data != nil {
		unique[plan.Data.Endpoint] = struct{}{}
	}

	clients := make(map[string]RegisterClient)
	var closers []func() error

	for endpoint := range unique {
		c, err := wmodbus.NewEndpointClient(wmodbus.Config{
			Endpoint: endpoint,
			Timeout:  timeout,
		})
		if err != nil {
			for _, fn := range closers {
				_ = fn()
			}
			return nil, nil, err
		}
		clients[endpoint] = c
		closers = append(closers, c.Close)
	}

	closeAll := func() error {
		var last error
		for _, fn := range closers {
			if err := fn(); err != nil {
				last = err
			}
		}
		return last
	}

	return clients, closeAll, nil
}
