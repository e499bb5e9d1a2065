package receipt

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/fmitra/iap"
	"github.com/fmitra/iap/internal/test"
)

func TestReceipt_Validate(t *testing.T) {
	tt := []struct {
		name         string
		responseCode int
		response     string
		result       *iap.ReceiptResult
		errCode      iap.ErrCode
	}{
		{
			name:         "Accepted receipt",
			responseCode: http.StatusOK,
			response:     `{"status": true, "expire_date": "2030-01-02 15:04:05"}`,
			result: &iap.ReceiptResult{
				Accepted: true,
				ExpireAt: time.Date(2030, 1, 2, 15, 4, 5, 0, time.UTC),
			},
		},
		{
			name:         "Accepted receipt with RFC3339 expiry",
			responseCode: http.StatusOK,
			response:     `{"status": true, "expire_date": "2030-01-02T18:04:05+03:00"}`,
			result: &iap.ReceiptResult{
				Accepted: true,
				ExpireAt: time.Date(2030, 1, 2, 15, 4, 5, 0, time.UTC),
			},
		},
		{
			name:         "Rejected receipt",
			responseCode: http.StatusOK,
			response:     `{"status": false, "expire_date": ""}`,
			result:       &iap.ReceiptResult{Accepted: false},
		},
		{
			name:         "Storefront error status",
			responseCode: http.StatusInternalServerError,
			response:     `{}`,
			errCode:      iap.EStorefront,
		},
		{
			name:         "Storefront bad request",
			responseCode: http.StatusBadRequest,
			response:     `Invalid request body`,
			errCode:      iap.EStorefront,
		},
		{
			name:         "Undecodable response",
			responseCode: http.StatusOK,
			response:     `not json`,
			errCode:      iap.EStorefront,
		},
		{
			name:         "Invalid expiry",
			responseCode: http.StatusOK,
			response:     `{"status": true, "expire_date": "tomorrow"}`,
			errCode:      iap.EStorefront,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			srv := test.Server(test.ServerResp{
				Path:       "/validate-receipt",
				Resp:       tc.response,
				StatusCode: tc.responseCode,
			})
			defer srv.Close()

			c := NewClient(WithBaseURL(srv.URL + "/"))
			result, err := c.Validate(context.Background(), "receipt-1")
			if code := iap.ErrorCode(err); code != tc.errCode {
				t.Fatalf("incorrect error code, want %q got %q (%v)", tc.errCode, code, err)
			}

			if !cmp.Equal(result, tc.result) {
				t.Error("result does not match", cmp.Diff(result, tc.result))
			}
		})
	}
}

func TestReceipt_ValidateUnreachable(t *testing.T) {
	srv := test.Server()
	url := srv.URL
	srv.Close()

	c := NewClient(WithBaseURL(url), WithTimeout(time.Second))
	_, err := c.Validate(context.Background(), "receipt-1")
	if iap.ErrorCode(err) != iap.EStorefront {
		t.Errorf("expected storefront error, got %v", err)
	}
}

func TestReceipt_ValidateTimeout(t *testing.T) {
	srv := test.SlowServer(time.Millisecond * 200)
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithTimeout(time.Millisecond*20))
	_, err := c.Validate(context.Background(), "receipt-1")
	if iap.ErrorCode(err) != iap.EStorefront {
		t.Errorf("expected storefront error, got %v", err)
	}
}
