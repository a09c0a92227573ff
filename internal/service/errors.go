package service

import (
	"errors"

	"github.com/sakif/alternatives/internal/apperror"
)

func isNotFound(err error) bool { return errors.Is(err, apperror.ErrNotFound) }

func isConflict(err error) bool { return errors.Is(err, apperror.ErrConflict) }
