package health

import (
	"context"
	"sort"
	"time"
)

const checkTimeout = 2 * time.Second

// Check probes one dependency. A nil error means healthy.
type Check func(ctx context.Context) error

// Service runs the registered dependency checks.
type Service struct {
	checks map[string]Check
}

// NewService constructs a new health service.
func NewService() *Service {
	return &Service{checks: map[string]Check{}}
}

// Register adds a named check. Registering a name twice replaces it.
func (s *Service) Register(name string, c Check) {
	s.checks[name] = c
}

// Report is the health payload.
type Report struct {
	OK         bool              `json:"ok"`
	Components map[string]string `json:"components,omitempty"`
}

// Status runs every check with a short timeout. OK is false when any
// component fails.
func (s *Service) Status(ctx context.Context) Report {
	rep := Report{OK: true}
	if s == nil || len(s.checks) == 0 {
		return rep
	}
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	rep.Components = make(map[string]string, len(names))
	for _, name := range names {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := s.checks[name](cctx)
		cancel()
		if err != nil {
			rep.OK = false
			rep.Components[name] = "error: " + err.Error()
			continue
		}
		rep.Components[name] = "ok"
	}
	return rep
}
