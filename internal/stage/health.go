package stage

import "fmt"

// Health is the readiness of one stage handler as reported in daemon status.
type Health struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

func Unhealthy(name, detail string) Health {
	return Health{Name: name, Detail: detail}
}

// Unavailable reports a stage blocked by a failing dependency probe.
func Unavailable(name, dependency string, err error) Health {
	if err == nil {
		return Unhealthy(name, dependency+" unavailable")
	}
	return Unhealthy(name, fmt.Sprintf("%s: %v", dependency, err))
}
