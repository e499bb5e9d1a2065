package deviceapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/fmitra/iap"
)

type registerRequest struct {
	UID      string          `json:"uid"`
	AppID    json.RawMessage `json:"app_id"`
	Language string          `json:"language"`
	OS       json.RawMessage `json:"os"`
}

// device is a validated registerRequest.
type device struct {
	uid      string
	appID    int64
	language string
	os       iap.OS
}

func decodeRegisterRequest(r *http.Request) (*device, error) {
	var (
		req registerRequest
		err error
	)

	if r == nil || r.Body == nil {
		return nil, iap.ErrBadRequest("no request body received")
	}

	err = json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, iap.ErrBadRequest("invalid JSON request"))
	}

	var fields []string
	d := device{
		uid:      strings.TrimSpace(req.UID),
		language: strings.TrimSpace(req.Language),
	}

	switch {
	case d.uid == "":
		fields = append(fields, "The uid is required.")
	case strings.Contains(d.uid, "|"):
		fields = append(fields, "The uid must not contain '|'.")
	}

	d.appID, err = parseInt(req.AppID)
	if err != nil {
		fields = append(fields, "The app_id must be a number.")
	}

	if d.language == "" {
		fields = append(fields, "The language is required.")
	}

	os, err := parseInt(req.OS)
	d.os = iap.OS(os)
	if err != nil || !d.os.Valid() {
		fields = append(fields, "The os must be either 1 (iOS) or 2 (Android).")
	}

	if len(fields) > 0 {
		return nil, iap.ErrValidation{Fields: fields}
	}

	return &d, nil
}

// parseInt reads an integer sent either as a JSON number or
// as a numeric string.
func parseInt(raw json.RawMessage) (int64, error) {
	v := bytes.Trim(bytes.TrimSpace(raw), `"`)
	return strconv.ParseInt(string(v), 10, 64)
}
