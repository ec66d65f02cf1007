package supervisor

import (
	"context"

	"github.com/vitaliisemenov/pagewatch/internal/domain"
)

// ConfigStore is the persistence seam the Supervisor writes Target
// records and reads global settings through. internal/configstore
// implements it; declared locally (rather than imported) to keep this
// package's own dependency surface minimal, matching the leaf-first order
// of spec §2 (Config Store sits beside, not below, the Supervisor).
type ConfigStore interface {
	SaveTarget(ctx context.Context, target domain.Target) error
	DeleteTarget(ctx context.Context, id domain.TargetId) error
	LoadEnabledTargets(ctx context.Context) ([]domain.Target, error)
	GlobalWebhook(ctx context.Context) (string, error)
}
