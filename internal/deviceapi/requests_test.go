package deviceapi

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/fmitra/iap"
)

func TestDeviceAPI_DecodeRegisterRequest(t *testing.T) {
	tt := []struct {
		name    string
		body    string
		errCode iap.ErrCode
		fields  []string
		result  *device
	}{
		{
			name:    "Invalid JSON",
			body:    `{"uid":`,
			errCode: iap.EBadRequest,
		},
		{
			name:    "Empty request",
			body:    `{}`,
			errCode: iap.EValidation,
			fields: []string{
				"The uid is required.",
				"The app_id must be a number.",
				"The language is required.",
				"The os must be either 1 (iOS) or 2 (Android).",
			},
		},
		{
			name:    "Non numeric app_id",
			body:    `{"uid":"d1","app_id":"one","language":"en","os":1}`,
			errCode: iap.EValidation,
			fields:  []string{"The app_id must be a number."},
		},
		{
			name:    "Unsupported os",
			body:    `{"uid":"d1","app_id":1,"language":"en","os":3}`,
			errCode: iap.EValidation,
			fields:  []string{"The os must be either 1 (iOS) or 2 (Android)."},
		},
		{
			name:    "Reserved uid character",
			body:    `{"uid":"d|1","app_id":1,"language":"en","os":1}`,
			errCode: iap.EValidation,
			fields:  []string{"The uid must not contain '|'."},
		},
		{
			name: "Numeric fields as numbers",
			body: `{"uid":"d1","app_id":1,"language":"en","os":1}`,
			result: &device{
				uid:      "d1",
				appID:    1,
				language: "en",
				os:       iap.IOS,
			},
		},
		{
			name: "Numeric fields as strings",
			body: `{"uid":" d2 ","app_id":"7","language":"tr","os":"2"}`,
			result: &device{
				uid:      "d2",
				appID:    7,
				language: "tr",
				os:       iap.Android,
			},
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			r, err := http.NewRequest("POST", "/devices/register", bytes.NewBufferString(tc.body))
			if err != nil {
				t.Fatal("failed to create request:", err)
			}

			d, err := decodeRegisterRequest(r)
			if code := iap.ErrorCode(err); code != tc.errCode {
				t.Fatalf("incorrect error code, want '%s' got '%s'", tc.errCode, code)
			}

			if tc.errCode == iap.EValidation {
				v, ok := iap.DomainError(err).(iap.ErrValidation)
				if !ok {
					t.Fatal("expected validation error")
				}
				if !cmp.Equal(v.Fields, tc.fields) {
					t.Error(cmp.Diff(v.Fields, tc.fields))
				}
			}

			if tc.result != nil && !cmp.Equal(d, tc.result, cmp.AllowUnexported(device{})) {
				t.Error(cmp.Diff(d, tc.result, cmp.AllowUnexported(device{})))
			}
		})
	}
}
