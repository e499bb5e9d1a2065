package purchaseapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/fmitra/iap"
)

type purchaseRequest struct {
	Receipt string `json:"receipt"`
}

func decodePurchaseRequest(r *http.Request) (*purchaseRequest, error) {
	var (
		req purchaseRequest
		err error
	)

	if r == nil || r.Body == nil {
		return nil, iap.ErrBadRequest("Receipt is required")
	}

	err = json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		return nil, errors.Wrap(iap.ErrBadRequest("invalid JSON request"), err.Error())
	}

	req.Receipt = strings.TrimSpace(req.Receipt)
	if req.Receipt == "" {
		return nil, iap.ErrBadRequest("Receipt is required")
	}

	return &req, nil
}
