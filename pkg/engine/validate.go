package engine

import (
	"fmt"
	"regexp"

	"github.com/mnemohq/mnemo/pkg/core"
)

var agentIDRE = regexp.MustCompile(`^[A-Za-z0-9._-]{1,256}$`)

func validateAgentID(agentID string) error {
	if !agentIDRE.MatchString(agentID) {
		return fmt.Errorf("agent_id must match [A-Za-z0-9._-]{1,256}, got %q", agentID)
	}
	return nil
}

func validateContent(content string) error {
	if content == "" {
		return fmt.Errorf("content must not be empty")
	}
	return nil
}

func validateImportance(v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("importance %v out of range [0,1]", v)
	}
	return nil
}

func validationErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return core.NewEngineError(op, core.KindValidation, err)
}
