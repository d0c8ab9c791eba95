// Package metrics defines the minimal metrics client the engine emits
// through. The default implementation is a no-op; deployments plug in their
// own sink.
package metrics

import "time"

type Tags map[string]string

type Client interface {
	Counter(name string, tags Tags, value float64)

	Timing(name string, tags Tags, duration time.Duration)

	WithTags(tags Tags) Client
}
