package modules

import (
	"github.com/kingrea/paneler/internal/module"
	"github.com/kingrea/paneler/internal/modules/adjust_targets"
	"github.com/kingrea/paneler/internal/modules/create_panels"
	"github.com/kingrea/paneler/internal/modules/split_panels"
	"github.com/kingrea/paneler/internal/modules/summary_report"
	"github.com/kingrea/paneler/internal/modules/verify_splits"
)

// RegisterBuiltins installs all of the built-in module factories into the
// provided registry.
func RegisterBuiltins(reg *module.Registry) {
	if reg == nil {
		return
	}
	adjust_targets.Register(reg)
	create_panels.Register(reg)
	split_panels.Register(reg)
	summary_report.Register(reg)
	verify_splits.Register(reg)
}
