// Package deviceapi provides an HTTP API for device registration.
package deviceapi

import (
	"fmt"
	"net/http"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/google/uuid"

	"github.com/fmitra/iap"
	"github.com/fmitra/iap/internal/httpapi"
	tokenLib "github.com/fmitra/iap/internal/token"
)

type service struct {
	logger   log.Logger
	repoMngr iap.RepositoryManager
	token    iap.TokenService
}

// Register registers a Device for an app and returns a client token
// for it. Registering an existing Device returns a fresh token.
func (s *service) Register(w http.ResponseWriter, r *http.Request) (interface{}, error) {
	ctx := r.Context()

	req, err := decodeRegisterRequest(r)
	if err != nil {
		return nil, err
	}

	_, err = s.repoMngr.App().ByID(ctx, req.appID)
	if iap.ErrorCode(err) == iap.ENotFound {
		return nil, fmt.Errorf("%v: %w", err, iap.ErrNotFound("Invalid app_id. The app does not exist."))
	}
	if err != nil {
		return nil, err
	}

	message := "Register OK"
	_, err = s.repoMngr.Device().ByIdentity(ctx, req.uid, req.appID)
	if iap.ErrorCode(err) == iap.ENotFound {
		message = "Device registered successfully"
		err = s.repoMngr.Device().Create(ctx, &iap.Device{
			UID:      req.uid,
			AppID:    req.appID,
			Language: req.language,
			OS:       req.os,
		})
		if iap.ErrorCode(err) == iap.EAlreadyExists {
			// Registered concurrently by another request.
			message = "Register OK"
			err = nil
		}
		if iap.ErrorCode(err) == iap.ENotFound {
			return nil, fmt.Errorf("%v: %w", err, iap.ErrNotFound("Invalid app_id. The app does not exist."))
		}
	}
	if err != nil {
		return nil, err
	}

	tokenID := uuid.NewString()
	clientToken, err := s.token.Issue(tokenID, req.uid, req.appID)
	if err != nil {
		return nil, err
	}

	level.Info(s.logger).Log(
		"message", message,
		"uid", req.uid,
		"app_id", req.appID,
		"token_id", tokenID,
	)

	return httpapi.Success(message, &tokenLib.Response{ClientToken: clientToken}), nil
}
