package temporal

import "credverify/internal/domain"

const DecisionSignalName = "verificationDecision"

type DecisionSignal struct {
	Decision domain.DecisionType `json:"decision"`
	Reviewer string              `json:"reviewer,omitempty"`
	Reason   string              `json:"reason,omitempty"`
}
