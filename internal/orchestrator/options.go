package orchestrator

import "time"

// DefaultStageTimeout bounds one collaborator call when no timeout is configured.
const DefaultStageTimeout = 30 * time.Second

// Options configure one orchestration call.
type Options struct {
	// SkipStructuring runs enhancement on the raw prompt. Nil inherits the
	// default; a caller's explicit false re-enables structuring.
	SkipStructuring *bool              `json:"skipStructuring,omitempty"`
	StageTimeout    time.Duration      `json:"stageTimeout,omitempty"`
	Template        TemplateOptions    `json:"template,omitempty"`
	Enhancement     EnhancementOptions `json:"enhancement,omitempty"`
}

// merge overlays caller options onto defaults. The merge is shallow: any
// non-zero caller field replaces the default field as a whole, and a non-nil
// SkipStructuring replaces the default in either direction.
func (d Options) merge(caller *Options) Options {
	if caller == nil {
		return d
	}
	out := d
	if caller.SkipStructuring != nil {
		skip := *caller.SkipStructuring
		out.SkipStructuring = &skip
	}
	if caller.StageTimeout != 0 {
		out.StageTimeout = caller.StageTimeout
	}
	if len(caller.Template.Features) > 0 {
		out.Template = caller.Template
	}
	if len(caller.Enhancement.Practices) > 0 || caller.Enhancement.MaxWords != 0 {
		out.Enhancement = caller.Enhancement
	}
	return out
}

func (d Options) skipsStructuring() bool {
	return d.SkipStructuring != nil && *d.SkipStructuring
}
