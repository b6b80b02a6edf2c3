// Package plugins wires the built-in dashboard plugins.
package plugins

import (
	"github.com/cwarwicker/elbp/core/plugin"
	"github.com/cwarwicker/elbp/plugins/attendance"
	"github.com/cwarwicker/elbp/plugins/reports"
	"github.com/cwarwicker/elbp/plugins/targets"
	"github.com/cwarwicker/elbp/plugins/tutorials"
)

// RegisterBuiltins adds the built-in plugin factories to reg.
func RegisterBuiltins(reg *plugin.Registry) {
	reg.Register(attendance.Name, attendance.New)
	reg.Register(targets.Name, targets.New)
	reg.Register(tutorials.Name, tutorials.New)
	reg.Register(reports.Name, reports.New)
}
