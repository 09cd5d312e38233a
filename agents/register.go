package agents

import (
	"fmt"

	"github.com/sehgal-vip/travel-agent/handler"
	"github.com/sehgal-vip/travel-agent/llm"
	"github.com/sehgal-vip/travel-agent/prompt"
)

// Register adds a specialist for every catalog entry to reg. All
// specialists share one template manager.
func Register(reg *handler.Registry, gen llm.Generator, opts ...Option) error {
	shared := append([]Option{WithPrompts(prompt.NewManager())}, opts...)
	for _, spec := range Catalog() {
		s, err := NewSpecialist(spec, gen, shared...)
		if err != nil {
			return err
		}
		if err := reg.Register(spec.Name, s); err != nil {
			return fmt.Errorf("register %s: %w", spec.Name, err)
		}
	}
	return nil
}
