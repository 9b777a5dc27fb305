package service

import (
	"errors"
	"fmt"
	"strconv"

	"fleetops/pkg/apperror"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// storeErr classifies a repository error. Typed errors pass through untouched.
func storeErr(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		return err
	}
	msg := fmt.Sprintf(format, args...)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperror.Wrap(apperror.KindNotFound, err, "%s", msg)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperror.Wrap(apperror.KindDuplicateKey, err, "%s", msg)
	}
	return apperror.Internal(err, "%s", msg)
}

func parseUUID(raw, what string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperror.Wrap(apperror.KindValidationFailed, err, "invalid %s id '%s'", what, raw)
	}
	return id, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func uintString(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
