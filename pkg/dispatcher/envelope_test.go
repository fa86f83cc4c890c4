package dispatcher

import (
	"encoding/json"
	"testing"
	"time"

	"golang.org/x/text/language"

	"github.com/morezero/calldef/pkg/calldef"
)

func TestErrorInfo_DisplayMessage(t *testing.T) {
	info := &ErrorInfo{
		Kind:     calldef.KindTransportResponse,
		Code:     "ERROR_RESPONSE",
		Message:  "Request failed with status code 409",
		Response: json.RawMessage(`{"code":409}`),
	}
	want := "ERROR_RESPONSE(Request failed with status code 409)\nresponse:\n{\n\t\"code\": 409\n}"
	if got := info.DisplayMessage(); got != want {
		t.Errorf("dispatcher:envelope_test - DisplayMessage = %q, want %q", got, want)
	}

	plain := &ErrorInfo{Code: "NO_RESPONSE", Message: "timeout"}
	if got := plain.DisplayMessage(); got != "NO_RESPONSE(timeout)" {
		t.Errorf("dispatcher:envelope_test - DisplayMessage = %q", got)
	}

	broken := &ErrorInfo{Code: "ERROR_RESPONSE", Message: "m", Response: json.RawMessage(`not json`)}
	if got := broken.DisplayMessage(); got != "ERROR_RESPONSE(m)\nresponse:\nnot json" {
		t.Errorf("dispatcher:envelope_test - DisplayMessage for raw payload = %q", got)
	}
}

func TestResult_DateTimeStringIn(t *testing.T) {
	ts := time.Date(2024, time.January, 2, 3, 4, 5, 0, time.Local)
	res := Success(json.RawMessage(`{}`), ts)
	if got := res.DateTimeStringIn(language.Japanese); got != "2024/1/2 03:04:05" {
		t.Errorf("dispatcher:envelope_test - DateTimeStringIn(ja) = %q", got)
	}
	if got := res.DateTimeString(); got == "" {
		t.Error("dispatcher:envelope_test - DateTimeString is empty")
	}
}

func TestSuccessAndFailure(t *testing.T) {
	res := Success(nil, time.Now())
	if !res.IsSuccess || string(res.Response) != "null" || res.ErrorInfo != nil {
		t.Errorf("dispatcher:envelope_test - Success(nil) = %+v", res)
	}

	res = Failure(nil, time.Now())
	if res.IsSuccess || res.ErrorInfo == nil || res.Response != nil {
		t.Errorf("dispatcher:envelope_test - Failure(nil) = %+v", res)
	}
	if res.ErrorInfo.Kind != calldef.KindTransportSetup {
		t.Errorf("dispatcher:envelope_test - Failure(nil) kind = %v", res.ErrorInfo.Kind)
	}
}

func TestResult_Decode(t *testing.T) {
	var out map[string]int
	res := Success(json.RawMessage(`{"n":3}`), time.Now())
	if err := res.Decode(&out); err != nil || out["n"] != 3 {
		t.Errorf("dispatcher:envelope_test - Decode = %v, %v", out, err)
	}

	failed := Failure(&ErrorInfo{Code: "NO_RESPONSE", Message: "x"}, time.Now())
	if err := failed.Decode(&out); err == nil {
		t.Error("dispatcher:envelope_test - expected error decoding failed result")
	}
}

func TestResult_JSONRoundTrip(t *testing.T) {
	res := Failure(Classify(&calldef.ResponseError{Status: 409, Response: json.RawMessage(`{"code":409}`)}), time.Now().UTC())
	data, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("dispatcher:envelope_test - marshal: %v", err)
	}
	var decoded Result
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("dispatcher:envelope_test - unmarshal: %v", err)
	}
	if decoded.ErrorInfo == nil || decoded.ErrorInfo.Kind != calldef.KindTransportResponse {
		t.Errorf("dispatcher:envelope_test - decoded ErrorInfo = %+v", decoded.ErrorInfo)
	}
	if decoded.ErrorInfo.Message != "status 409" {
		t.Errorf("dispatcher:envelope_test - decoded message = %q", decoded.ErrorInfo.Message)
	}
}

func TestCallRequest_ToParams(t *testing.T) {
	raw := `{
		"id": "req-1",
		"operation": "work.updateModel@dev",
		"params": {"modelId": "model-1", "who": null, "when": 1700000000000},
		"unset": ["extra"]
	}`
	var req CallRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		t.Fatalf("dispatcher:envelope_test - unmarshal: %v", err)
	}
	p, err := req.ToParams()
	if err != nil {
		t.Fatalf("dispatcher:envelope_test - ToParams: %v", err)
	}
	if p["modelId"] != "model-1" {
		t.Errorf("dispatcher:envelope_test - modelId = %v", p["modelId"])
	}
	if v, ok := p["who"]; !ok || v != nil {
		t.Errorf("dispatcher:envelope_test - who should be an explicit null, got %v (present=%v)", v, ok)
	}
	if !calldef.IsUndefined(p["extra"]) {
		t.Errorf("dispatcher:envelope_test - extra should be Undefined, got %v", p["extra"])
	}
	if n, ok := p["when"].(json.Number); !ok || n.String() != "1700000000000" {
		t.Errorf("dispatcher:envelope_test - when should keep full precision, got %v", p["when"])
	}
}

func TestCallRequest_ToParamsInvalid(t *testing.T) {
	req := CallRequest{Params: map[string]json.RawMessage{"a": json.RawMessage(`{bad`)}}
	if _, err := req.ToParams(); err == nil {
		t.Error("dispatcher:envelope_test - expected error for invalid param JSON")
	}
}
