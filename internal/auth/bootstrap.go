package auth

import (
	"context"

	"go.uber.org/zap"

	"github.com/doorlist/backend/internal/models"
	"github.com/doorlist/backend/pkg/utils"
)

// EnsureBootstrapAdmin creates the first super_admin when the users table
// is empty. No-op on any later boot.
func EnsureBootstrapAdmin(ctx context.Context, repo *Repository, email, password string, logger *zap.Logger) error {
	if email == "" || password == "" {
		return nil
	}
	n, err := repo.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	hash, err := utils.HashPassword(password)
	if err != nil {
		return err
	}
	if _, err := repo.Create(ctx, email, hash, "Administrator", models.RoleSuperAdmin); err != nil {
		return err
	}
	logger.Info("bootstrap super admin created", zap.String("email", email))
	return nil
}
